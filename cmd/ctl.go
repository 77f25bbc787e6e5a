package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bnema/wayrange/internal/ipc"
)

var ctlCmd = &cobra.Command{
	Use:   "ctl",
	Short: "Control a running watch daemon",
}

var ctlStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon's status",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := ipc.NewClient().Status()
		if err != nil {
			return err
		}
		printStatus(st)
		return nil
	},
}

var ctlReapplyCmd = &cobra.Command{
	Use:   "reapply",
	Short: "Re-run profile selection and apply the match",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := ipc.NewClient().Reapply()
		if err != nil {
			return err
		}
		printStatus(st)
		return nil
	},
}

var ctlSwitchCmd = &cobra.Command{
	Use:   "switch <profile>",
	Short: "Apply a named profile through the daemon",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := ipc.NewClient().Switch(args[0])
		if err != nil {
			return err
		}
		printStatus(st)
		return nil
	},
}

var ctlStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the watch daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ipc.NewClient().Stop(); err != nil {
			return err
		}
		fmt.Println("Daemon stopped.")
		return nil
	},
}

func init() {
	ctlCmd.AddCommand(ctlStatusCmd)
	ctlCmd.AddCommand(ctlReapplyCmd)
	ctlCmd.AddCommand(ctlSwitchCmd)
	ctlCmd.AddCommand(ctlStopCmd)
	rootCmd.AddCommand(ctlCmd)
}

func printStatus(st *ipc.Status) {
	active := st.ActiveProfile
	if active == "" {
		active = "(none)"
	}
	fmt.Printf("Active profile: %s\n", active)
	fmt.Printf("Auto apply: %t\n", st.AutoApply)
	if la := st.LastApply; la != nil {
		outcome := "ok"
		if !la.OK {
			outcome = "failed: " + la.Error
		}
		fmt.Printf("Last apply: %s at %s (%s)\n", la.Profile, la.When.Local().Format("15:04:05"), outcome)
	}

	if len(st.Outputs) == 0 {
		return
	}
	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATE\tPOSITION\tMODE\tSCALE\tPRIMARY")
	for _, o := range st.Outputs {
		state := "enabled"
		if !o.Enabled {
			state = "disabled"
		}
		primary := ""
		if o.Primary {
			primary = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%s\n", o.Name, state, o.Position, o.Mode, o.Scale, primary)
	}
	_ = w.Flush()
}
