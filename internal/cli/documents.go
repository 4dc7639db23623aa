package cli

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"studyrag/internal/adapter/fs"
)

var (
	uploadName string
	docsJSON   bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload text documents",
	Long: `Upload one or more UTF-8 text files. Each file is stored under its base name,
replacing any document with the same name.

Examples:
  studyrag upload biology.txt chemistry.md
  studyrag upload notes.txt --name "unit1/cells.txt"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Manage stored documents",
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored documents",
	Args:  cobra.NoArgs,
	RunE:  runDocsList,
}

var docsShowCmd = &cobra.Command{
	Use:   "show <filename>",
	Short: "Show one document's details",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocsShow,
}

var docsDeleteCmd = &cobra.Command{
	Use:   "delete <filename>",
	Short: "Delete a document and its chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocsDelete,
}

var chunksCmd = &cobra.Command{
	Use:   "chunks <filename>",
	Short: "Inspect how a document was chunked and embedded",
	Args:  cobra.ExactArgs(1),
	RunE:  runChunks,
}

func init() {
	rootCmd.AddCommand(uploadCmd, docsCmd, chunksCmd)
	docsCmd.AddCommand(docsListCmd, docsShowCmd, docsDeleteCmd)

	uploadCmd.Flags().StringVar(&uploadName, "name", "", "store the document under this name (single file only)")
	docsCmd.PersistentFlags().BoolVar(&docsJSON, "json", false, "output as JSON")
	chunksCmd.Flags().BoolVar(&docsJSON, "json", false, "output as JSON")
}

func runUpload(cmd *cobra.Command, args []string) error {
	if uploadName != "" && len(args) > 1 {
		return fmt.Errorf("--name can only be used with a single file")
	}
	out := cmd.OutOrStdout()

	return withApp(cmd, func(a *app) error {
		for _, path := range args {
			text, err := fs.ReadText(path)
			if err != nil {
				return err
			}
			name := uploadName
			if name == "" {
				name = filepath.Base(path)
			}

			res, err := a.svc.UploadDocument(cmd.Context(), name, text)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Uploaded %s: %d characters, %d chunks, %d embedded\n",
				res.Filename, res.TextLength, res.ChunkCount, res.EmbeddingCount)
			if res.ChunkCount > 0 && res.EmbeddingCount < res.ChunkCount {
				fmt.Fprintf(out, "  %d chunks have no embedding and will be matched by keywords\n",
					res.ChunkCount-res.EmbeddingCount)
			}
		}
		return nil
	})
}

func runDocsList(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	return withApp(cmd, func(a *app) error {
		docs, err := a.svc.ListDocuments()
		if err != nil {
			return err
		}
		if docsJSON {
			return printJSON(out, docs)
		}
		if len(docs) == 0 {
			fmt.Fprintln(out, "No documents stored.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "FILENAME\tLENGTH\tCHUNKS\tEMBEDDED\tCREATED")
		for _, d := range docs {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n",
				d.Filename, d.Length, d.ChunkCount, d.EmbeddingCount, d.CreatedAt.Format(time.DateTime))
		}
		return w.Flush()
	})
}

func runDocsShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	return withApp(cmd, func(a *app) error {
		info, err := a.svc.GetDocument(args[0])
		if err != nil {
			return err
		}
		if docsJSON {
			return printJSON(out, info)
		}
		fmt.Fprintf(out, "Filename:   %s\n", info.Filename)
		fmt.Fprintf(out, "Length:     %d characters\n", info.Length)
		fmt.Fprintf(out, "Chunks:     %d (%d embedded)\n", info.ChunkCount, info.EmbeddingCount)
		fmt.Fprintf(out, "Created:    %s\n", info.CreatedAt.Format(time.DateTime))
		return nil
	})
}

func runDocsDelete(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(a *app) error {
		if err := a.svc.DeleteDocument(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	})
}

func runChunks(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	return withApp(cmd, func(a *app) error {
		res, err := a.svc.InspectChunks(args[0])
		if err != nil {
			return err
		}
		if docsJSON {
			return printJSON(out, res)
		}
		fmt.Fprintf(out, "Filename:        %s\n", res.Filename)
		fmt.Fprintf(out, "Chunks:          %d\n", res.ChunkCount)
		fmt.Fprintf(out, "Embedded chunks: %d\n", res.EmbeddingCount)
		fmt.Fprintf(out, "Total length:    %d characters\n", res.TotalLength)
		if res.FirstChunkPreview != "" {
			fmt.Fprintf(out, "\nFirst chunk:\n%s\n", res.FirstChunkPreview)
		}
		return nil
	})
}
