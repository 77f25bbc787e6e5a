// Package cmd wires the wayrange CLI: detection and arrangement commands,
// the profile surface, the watch daemon and its control client, and the
// SSH rescue server.
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/bnema/wayrange/internal/config"
	"github.com/bnema/wayrange/internal/logger"
)

var (
	// Version info set by the main package
	Version = "0.1.0-dev"

	cfgFile   string
	debugMode bool

	rootCmd = &cobra.Command{
		Use:   "wayrange",
		Short: "Wayrange - display arrangement for wlroots compositors",
		Long: `Wayrange arranges the displays of a wlroots Wayland session: drag them on
a scaled terminal canvas, apply the layout atomically through
wlr-output-management, and save it as a profile keyed by monitor hardware
identity so it survives replugs, reboots and connector renumbering.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile != "" {
				config.SetConfigPath(cfgFile)
			}
			if err := config.Init(); err != nil {
				return err
			}
			if lvl := config.Get().Log.Level; lvl != "" && os.Getenv("LOG_LEVEL") == "" {
				logger.SetLevel(lvl)
			}
			if debugMode {
				logger.SetLevel("debug")
			}
			return nil
		},
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s\n" .Version}}`)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.config/wayrange/wayrange.toml)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")
}
