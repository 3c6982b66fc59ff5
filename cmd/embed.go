package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/timrodz/cards-oracle/features/embeddings"
	"github.com/timrodz/cards-oracle/internal/pipeline"
)

var (
	embedSource    string
	embedTarget    string
	embedTemplate  string
	embedLimit     int
	embedNormalize bool
)

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Embed a record collection into the vector index",
	Long: `Render every record of the source collection into a chunk, embed it and
upsert it into the target collection.

Examples:
  cards-oracle embed --source cards --target card_embeddings
  cards-oracle embed --source cards --target card_embeddings --template "{name}: {oracle_text}" --limit 100`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		req := pipeline.Request{
			SourceCollection: embedSource,
			TargetCollection: embedTarget,
			Normalize:        embedNormalize,
		}
		if embedTemplate != "" {
			req.ChunkMappings = &embedTemplate
		}
		if cmd.Flags().Changed("limit") {
			req.Limit = &embedLimit
		}

		env, err := start(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := embeddings.Prepare(ctx, env.app.Records, req); err != nil {
			return err
		}
		stats, err := env.app.Pipeline.Run(ctx, req)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Embeddings creation completed successfully. read=%d filtered=%d chunks=%d\n",
			stats.Read, stats.Filtered, stats.Chunks)
		return nil
	},
}

func init() {
	embedCmd.Flags().StringVar(&embedSource, "source", "", "source record collection")
	embedCmd.Flags().StringVar(&embedTarget, "target", "", "target vector collection")
	embedCmd.Flags().StringVar(&embedTemplate, "template", "", "chunk template with {field} placeholders")
	embedCmd.Flags().IntVarP(&embedLimit, "limit", "n", 0, "max records to embed")
	embedCmd.Flags().BoolVar(&embedNormalize, "normalize", true, "L2-normalize vectors")
	_ = embedCmd.MarkFlagRequired("source")
	_ = embedCmd.MarkFlagRequired("target")
}
