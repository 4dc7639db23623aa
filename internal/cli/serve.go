package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"studyrag/internal/adapter/httpapi"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API",
	Long: `Serve the study assistant over HTTP. Prometheus metrics are exposed on /metrics.

Examples:
  studyrag serve
  studyrag serve --addr 127.0.0.1:9000`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return withApp(cmd, func(a *app) error {
			addr := a.cfg.Server.Addr
			if serveAddr != "" {
				addr = serveAddr
			}
			srv := httpapi.New(a.svc, a.metrics, log, httpapi.Options{
				MaxUploadBytes: a.cfg.Server.MaxUploadBytes,
				ReadTimeout:    a.cfg.Server.ReadTimeout,
				WriteTimeout:   a.cfg.Server.WriteTimeout,
			})
			return srv.ListenAndServe(ctx, addr)
		})
	},
}

var rechunkCmd = &cobra.Command{
	Use:   "rechunk",
	Short: "Re-chunk and re-embed every stored document",
	Long: `Rebuild the chunks and embeddings of every stored document from its raw text
using the current chunking and embedding settings. This runs automatically when
those settings change; use it after swapping embedding models with the same name.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app) error {
			infos, err := a.svc.ListDocuments()
			if err != nil {
				return err
			}
			bar := newProgressBar(cmd.ErrOrStderr(), len(infos), "Re-chunking")
			n, err := a.svc.Rechunk(cmd.Context(), func(string) { _ = bar.Add(1) })
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Re-chunked %d documents\n", n)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, rechunkCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}
