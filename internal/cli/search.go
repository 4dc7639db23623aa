package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"studyrag/internal/usecase"
)

var (
	searchText  string
	searchTopK  int
	searchJSON  bool
	searchScope scopeFlags
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Show the passages retrieval would pick for a question",
	Long: `Run retrieval alone and print the ranked passages with their scores and
scoring strategy. Useful for checking why an answer cited what it did.

Examples:
  studyrag search -q "cellular respiration" --all
  studyrag search -q "treaty of versailles" --doc history.txt -k 5 --json`,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVarP(&searchText, "query", "q", "", "search query (required)")
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "number of results (default from config)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output as JSON")
	searchScope.register(searchCmd, "search")
	searchCmd.MarkFlagRequired("query")
}

func runSearch(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	return withApp(cmd, func(a *app) error {
		results, err := a.svc.Retrieve(cmd.Context(), searchText, searchScope.scope(), searchTopK)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}

		if searchJSON {
			return printJSON(out, results)
		}
		if len(results) == 0 {
			fmt.Fprintln(out, "No results found. Select documents with --doc or --all.")
			return nil
		}

		fmt.Fprintf(out, "Found %d results for: %s\n\n", len(results), searchText)
		for i, r := range results {
			fmt.Fprintf(out, "--- [%d] %s part %d (%s score: %.3f) ---\n",
				i+1, r.Chunk.DocumentFilename, r.Chunk.Index+1, r.Strategy, r.Score)
			fmt.Fprintln(out, usecase.Truncate(r.Chunk.Text, 500))
			fmt.Fprintln(out)
		}
		return nil
	})
}
