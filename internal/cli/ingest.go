package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"studyrag/internal/adapter/fs"
	"studyrag/internal/usecase"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Upload every text file under a directory",
	Long: `Walk a directory and upload every file matching ingest.includes and none of
ingest.excludes. Documents are named by their path relative to the directory,
so re-running ingest replaces them in place. Binary files are skipped.

With --watch, ingest keeps running after the first pass: edited files are
uploaded again and deleted files are removed from the store.

Examples:
  studyrag ingest .
  studyrag ingest ~/courses/biology
  studyrag ingest notes --watch`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

var ingestWatch bool

func init() {
	ingestCmd.Flags().BoolVarP(&ingestWatch, "watch", "w", false, "Keep watching for changes after the first pass")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	path := GetRootDir()
	if len(args) > 0 {
		var err error
		path, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	out := cmd.OutOrStdout()
	return withApp(cmd, func(a *app) error {
		fmt.Fprintf(out, "Scanning %s...\n", path)

		result, err := a.svc.Ingest(cmd.Context(), path, &ingestProgress{out: cmd.ErrOrStderr()})
		if err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}

		chunks, embedded := 0, 0
		for _, u := range result.Uploaded {
			chunks += u.ChunkCount
			embedded += u.EmbeddingCount
		}
		fmt.Fprintf(out, "\nIngest complete:\n")
		fmt.Fprintf(out, "  Documents uploaded: %d\n", len(result.Uploaded))
		fmt.Fprintf(out, "  Files skipped:      %d (not text)\n", len(result.Skipped))
		fmt.Fprintf(out, "  Chunks created:     %d\n", chunks)
		fmt.Fprintf(out, "  Chunks embedded:    %d\n", embedded)

		if len(result.Errors) > 0 {
			fmt.Fprintf(out, "\nWarnings:\n")
			for _, e := range result.Errors {
				fmt.Fprintf(out, "  - %s\n", e)
			}
		}
		if !ingestWatch {
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		cfg := GetConfig()
		watcher := fs.NewWatcher(fs.NewWalker(cfg.Ingest.Includes, cfg.Ingest.Excludes), fs.DefaultDebounce, log)
		fmt.Fprintf(out, "\nWatching %s for changes (Ctrl+C to stop)...\n", path)
		return a.svc.WatchIngest(ctx, path, watcher, func(r *usecase.IngestResult) {
			printSync(out, r)
		})
	})
}

func printSync(out io.Writer, r *usecase.IngestResult) {
	for _, u := range r.Uploaded {
		fmt.Fprintf(out, "  updated  %s (%d chunks)\n", u.Filename, u.ChunkCount)
	}
	for _, name := range r.Removed {
		fmt.Fprintf(out, "  removed  %s\n", name)
	}
	for _, name := range r.Skipped {
		fmt.Fprintf(out, "  skipped  %s (not text)\n", name)
	}
	for _, e := range r.Errors {
		fmt.Fprintf(out, "  error    %s\n", e)
	}
}
