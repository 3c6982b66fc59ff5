package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/timrodz/cards-oracle/internal/retrieval"
)

var (
	searchStream    bool
	searchNormalize bool
	searchSources   bool
)

var (
	answerStyle = color.New(color.FgGreen).SprintFunc()
	cardStyle   = color.New(color.FgCyan, color.Bold).SprintFunc()
	sourceStyle = color.New(color.Faint).SprintFunc()
	errorStyle  = color.New(color.FgRed).SprintFunc()
)

var searchCmd = &cobra.Command{
	Use:   "search <question>",
	Short: "Ask a question about the embedded cards",
	Long: `Ask a question answered from the nearest embedded cards.

Examples:
  cards-oracle search "which red instant deals 3 damage for one mana?"
  cards-oracle search --stream --sources "cards that draw when a creature dies"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		ctx := cmd.Context()

		env, err := start(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		out := cmd.OutOrStdout()
		if searchStream {
			return printStream(out, env.app.Retrieval.SearchStream(ctx, question, searchNormalize))
		}

		resp, err := env.app.Retrieval.Search(ctx, question, searchNormalize)
		if err != nil {
			return err
		}
		if resp == nil {
			fmt.Fprintln(out, "No relevant cards found for this question.")
			return nil
		}
		fmt.Fprintln(out, answerStyle(resp.Answer))
		if resp.SourceID != nil {
			fmt.Fprintf(out, "\nCard: %s\n", cardStyle(*resp.SourceID))
		}
		return nil
	},
}

func printStream(out io.Writer, events <-chan retrieval.Event) error {
	var failed error
	for ev := range events {
		switch e := ev.(type) {
		case retrieval.MetaEvent:
			if searchSources {
				for _, r := range e.Results {
					fmt.Fprintln(out, sourceStyle(fmt.Sprintf("[%.3f] %s", r.Score, r.SourceID)))
				}
				fmt.Fprintln(out)
			}
		case retrieval.ChunkEvent:
			fmt.Fprint(out, answerStyle(e.Content))
		case retrieval.SeekingCardEvent:
			fmt.Fprintln(out)
		case retrieval.FoundCardEvent:
			fmt.Fprintf(out, "\nCard: %s\n", cardStyle(e.ID))
		case retrieval.ErrorEvent:
			fmt.Fprintln(out, errorStyle(e.Message))
			failed = fmt.Errorf("search failed: %s", e.Message)
		case retrieval.DoneEvent:
			fmt.Fprintln(out)
		}
	}
	return failed
}

func init() {
	searchCmd.Flags().BoolVar(&searchStream, "stream", false, "print the answer as it is generated")
	searchCmd.Flags().BoolVar(&searchNormalize, "normalize", true, "L2-normalize the question vector")
	searchCmd.Flags().BoolVar(&searchSources, "sources", false, "print retrieved cards before the answer")
}
