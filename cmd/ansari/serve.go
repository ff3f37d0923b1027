package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ansari/internal/server"
	"ansari/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serves the thread API: create threads, replay their history, and send
messages whose answers stream back as plain text chunks.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	client, registry, system, err := buildCollaborators()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Store.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.New(cfg, st, client, registry, system).ListenAndServe(ctx)
}
