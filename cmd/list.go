package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bnema/wayrange/internal/display"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List detected displays",
	Long:  `Enumerate every display output the compositor reports, enabled or not.`,
	RunE:  runList,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	inv, err := openInventory(ctx)
	if err != nil {
		return err
	}
	defer inv.Close()

	snap, err := inv.Enumerate(ctx)
	if err != nil {
		return err
	}

	if listJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tIDENTITY\tSTATE\tPOSITION\tMODE\tSCALE\tPRIMARY")
	for i := range snap.Displays {
		d := &snap.Displays[i]
		state := "enabled"
		if !d.Enabled {
			state = "disabled"
		}
		id := d.Identity.String()
		if !d.Identity.Valid() {
			id = "-"
		}
		primary := ""
		if d.Primary {
			primary = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.2f\t%s\n",
			d.Name, id, state, d.Position, modeColumn(d), d.Scale, primary)
	}
	return w.Flush()
}

func modeColumn(d *display.DisplayInfo) string {
	if !d.Enabled {
		return "-"
	}
	return d.Mode.String()
}
