package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/attrib-app/attrib/internal/server"
	"github.com/attrib-app/attrib/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web app",
	Long: `Start the attrib web app.

The server provides:
  - The attribution page at /
  - CSV upload, model runs and CSV export
  - Health check endpoint at /health

Example:
  attrib serve --port 8080`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		srv, err := server.New(server.Config{
			Store:          s,
			Port:           cfg.Port,
			SessionSecret:  cfg.SessionSecret,
			MaxUploadBytes: cfg.MaxUploadBytes,
			UploadTTL:      cfg.UploadTTL,
			ShapleySeed:    cfg.ShapleySeed,
			ShapleyWorkers: cfg.ShapleyWorkers,
			Logger:         logger,
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		fmt.Fprintln(out)
		fmt.Fprintf(out, "attrib running on http://localhost:%d\n", cfg.Port)
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Press Ctrl+C to stop")

		return srv.Serve(ctx)
	})
}
