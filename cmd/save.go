package cmd

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/bnema/wayrange/internal/profile"
)

var saveForce bool

var saveCmd = &cobra.Command{
	Use:   "save <name>",
	Short: "Save the current layout as a profile",
	Long: `Capture the current display arrangement, keyed by each monitor's
hardware identity, so it can be re-applied after replugs and reboots.`,
	Args: cobra.ExactArgs(1),
	RunE: runSave,
}

func init() {
	saveCmd.Flags().BoolVarP(&saveForce, "force", "f", false, "Overwrite an existing profile without asking")
	rootCmd.AddCommand(saveCmd)
}

func runSave(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := args[0]
	if err := profile.ValidateName(name); err != nil {
		return err
	}

	store := openStore()
	if store.Exists(name) && !saveForce {
		confirmed := false
		form := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Profile %s already exists. Overwrite?", name)).
				Value(&confirmed),
		))
		if err := form.Run(); err != nil {
			return fmt.Errorf("save cancelled: %w", err)
		}
		if !confirmed {
			fmt.Println("Save cancelled.")
			return nil
		}
	}

	inv, err := openInventory(ctx)
	if err != nil {
		return err
	}
	defer inv.Close()

	snap, err := inv.Enumerate(ctx)
	if err != nil {
		return err
	}

	p := profile.FromSnapshot(name, snap)
	if err := store.Save(p); err != nil {
		return err
	}
	fmt.Printf("Saved profile %s (%d displays) to %s\n", name, len(p.Entries), store.Path(name))
	return nil
}
