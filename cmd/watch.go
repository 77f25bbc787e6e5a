package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bnema/wayrange/internal/config"
	"github.com/bnema/wayrange/internal/daemon"
	"github.com/bnema/wayrange/internal/inventory"
	"github.com/bnema/wayrange/internal/ipc"
	"github.com/bnema/wayrange/internal/logger"
	"github.com/bnema/wayrange/internal/profile"
	"github.com/bnema/wayrange/internal/rescue"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch for hotplug events and re-apply matching profiles",
	Long: `Run the watch daemon: on every output change, re-detect the connected
displays and apply the profile that matches them all by hardware identity.
A control socket answers 'wayrange ctl' requests while it runs.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	if path := cfg.Log.File; path != "" {
		f, err := logger.FileOutput(path)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
	}

	if ipc.DaemonRunning() {
		return fmt.Errorf("a wayrange daemon is already running on %s", ipc.SocketPath())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	inv, err := openInventory(ctx)
	if err != nil {
		return err
	}
	defer inv.Close()

	store := openStore()
	d := daemon.New(inv, store, daemon.Options{
		Debounce:  time.Duration(cfg.Watch.DebounceMs) * time.Millisecond,
		AutoApply: cfg.Watch.AutoApply,
	})

	ipcServer := ipc.NewSocketServer(d)
	if err := ipcServer.Start(); err != nil {
		return fmt.Errorf("failed to start control socket: %w", err)
	}
	defer ipcServer.Stop()

	if cfg.Rescue.Enabled {
		srv, err := rescueServer(inv, store, cfg.Rescue)
		if err != nil {
			return err
		}
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer srv.Stop()
	}

	logger.Infof("Watch daemon started (auto apply: %t, debounce: %dms)", cfg.Watch.AutoApply, cfg.Watch.DebounceMs)
	return d.Run(ctx)
}

// rescueServer builds the rescue server from its config section. Shared by
// watch (when rescue.enabled) and the standalone serve command.
func rescueServer(inv *inventory.Inventory, store *profile.Store, cfg config.RescueConfig) (*rescue.Server, error) {
	return rescue.New(inv, store, rescue.Options{
		BindAddress:        cfg.BindAddress,
		Port:               cfg.Port,
		HostKeyPath:        cfg.HostKeyPath,
		AuthorizedKeysPath: cfg.AuthorizedKeysPath,
		Canvas:             canvasOptions(),
	})
}
