package cmd

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var profilesDeleteYes bool

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage saved profiles",
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := openStore()
		names, err := store.List()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Printf("No profiles in %s\n", store.Dir())
			return nil
		}
		for _, name := range names {
			p, err := store.Load(name)
			if err != nil {
				fmt.Printf("%s  (unreadable: %v)\n", name, err)
				continue
			}
			fmt.Printf("%s  %d displays, saved %s\n", name, len(p.Entries), p.Saved.Local().Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var profilesShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a saved profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openStore().Load(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Profile %s (saved %s)\n", p.Name, p.Saved.Local().Format("2006-01-02 15:04"))
		for _, e := range p.Entries {
			if !e.Enabled {
				fmt.Printf("  %s: off\n", e.Label())
				continue
			}
			primary := ""
			if e.Primary {
				primary = " primary"
			}
			fmt.Printf("  %s: %s at %s scale %.2f%s\n", e.Label(), e.Mode, e.Position, e.Scale, primary)
		}
		return nil
	},
}

var profilesDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a saved profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		store := openStore()
		if !store.Exists(name) {
			return fmt.Errorf("profile %s does not exist", name)
		}
		if !profilesDeleteYes {
			confirmed := false
			form := huh.NewForm(huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Delete profile %s?", name)).
					Value(&confirmed),
			))
			if err := form.Run(); err != nil {
				return fmt.Errorf("delete cancelled: %w", err)
			}
			if !confirmed {
				fmt.Println("Delete cancelled.")
				return nil
			}
		}
		if err := store.Delete(name); err != nil {
			return err
		}
		fmt.Printf("Deleted profile %s\n", name)
		return nil
	},
}

func init() {
	profilesDeleteCmd.Flags().BoolVarP(&profilesDeleteYes, "yes", "y", false, "Skip the confirmation prompt")
	profilesCmd.AddCommand(profilesListCmd)
	profilesCmd.AddCommand(profilesShowCmd)
	profilesCmd.AddCommand(profilesDeleteCmd)
	rootCmd.AddCommand(profilesCmd)
}
