package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var (
	ingestCollection string
	ingestFile       string
	ingestLimit      int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load a JSON list of records into a collection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !strings.EqualFold(filepath.Ext(ingestFile), ".json") {
			return fmt.Errorf("only JSON files are supported: %s", ingestFile)
		}
		f, err := os.Open(filepath.Clean(ingestFile))
		if err != nil {
			return err
		}
		defer f.Close()

		ctx := cmd.Context()
		env, err := start(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.app.Ingest.IngestJSON(ctx, f, ingestCollection, ingestLimit)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Dataset ingestion completed successfully. read=%d skipped=%d upserted=%d\n",
			res.Read, res.Skipped, res.Upserted)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestCollection, "collection", "", "target record collection")
	ingestCmd.Flags().StringVarP(&ingestFile, "file", "f", "", "path to a .json dataset")
	ingestCmd.Flags().IntVarP(&ingestLimit, "limit", "n", 0, "max records to load (0 for all)")
	_ = ingestCmd.MarkFlagRequired("collection")
	_ = ingestCmd.MarkFlagRequired("file")
}
