package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bnema/wayrange/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the SSH rescue server",
	Long: `Serve the arrange screen over SSH so a machine whose displays are all
black or misplaced can be fixed from another one. Authentication is by
public key against the configured authorized_keys file.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	inv, err := openInventory(ctx)
	if err != nil {
		return err
	}
	defer inv.Close()

	srv, err := rescueServer(inv, openStore(), config.Get().Rescue)
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}
	defer srv.Stop()

	<-ctx.Done()
	return nil
}
