package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/timrodz/cards-oracle/internal/vector"
)

var (
	indexCollection string
	indexField      string
	indexSimilarity string
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Create the vector index of a collection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sim, err := vector.ParseSimilarity(indexSimilarity)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		env, err := start(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		def := vector.NewIndexDefinition(indexCollection, indexField, cfg.EmbeddingDimensions, sim)
		if err := env.deps.VectorStore.CreateIndex(ctx, def); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Search index %s ready (%s, %d dimensions)\n", def.Name, sim, cfg.EmbeddingDimensions)
		return nil
	},
}

func init() {
	indexCmd.Flags().StringVar(&indexCollection, "collection", "", "vector collection name")
	indexCmd.Flags().StringVar(&indexField, "field", "embeddings", "embeddings field path")
	indexCmd.Flags().StringVar(&indexSimilarity, "similarity", string(vector.DotProduct), "dot_product, cosine or euclidean")
	_ = indexCmd.MarkFlagRequired("collection")
}
