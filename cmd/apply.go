package cmd

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/bnema/wayrange/internal/configure"
	"github.com/bnema/wayrange/internal/profile"
	"github.com/bnema/wayrange/internal/ui"
)

var (
	applyPartial bool
	applyDryRun  bool
	applyYes     bool
)

var applyCmd = &cobra.Command{
	Use:   "apply <profile>",
	Short: "Apply a saved profile",
	Long: `Match a saved profile against the connected displays by hardware
identity, validate the resulting layout and apply it atomically.`,
	Args: cobra.ExactArgs(1),
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyPartial, "partial", false, "Apply even when saved displays are not connected")
	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "Validate and print the plan without applying")
	applyCmd.Flags().BoolVarP(&applyYes, "yes", "y", false, "Skip the confirmation prompt")
	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := args[0]

	p, err := openStore().Load(name)
	if err != nil {
		return err
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

	pending, match, err := profile.Resolve(p, snap)
	if err != nil {
		var unmatched *profile.UnmatchedError
		if !errors.As(err, &unmatched) {
			return err
		}
		for _, entry := range unmatched.Entries {
			fmt.Printf("not connected: %s\n", entry.Label())
		}
		if !applyPartial {
			return fmt.Errorf("%d saved displays are not connected (use --partial to apply the rest)", len(unmatched.Entries))
		}
	}
	for _, pair := range match.Pairs {
		if pair.Confidence == profile.ConfidenceName {
			fmt.Printf("note: %s matched by connector name only (no hardware identity)\n", pair.Entry.Label())
		}
	}

	applier := configure.NewApplier(inv)
	configs, err := applier.Plan(pending)
	if err != nil {
		return fmt.Errorf("%s", ui.DescribeError(err))
	}

	fmt.Printf("Plan for profile %s:\n", name)
	for _, cfg := range configs {
		fmt.Printf("  %s\n", cfg)
	}
	if applyDryRun {
		return nil
	}

	if !applyYes {
		confirmed := false
		form := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Apply profile %s?", name)).
				Description("The new layout takes effect immediately.").
				Value(&confirmed),
		))
		if err := form.Run(); err != nil {
			return fmt.Errorf("apply cancelled: %w", err)
		}
		if !confirmed {
			fmt.Println("Apply cancelled.")
			return nil
		}
	}

	if _, err := applier.Apply(ctx, pending); err != nil {
		return fmt.Errorf("%s", ui.DescribeError(err))
	}
	fmt.Printf("Profile %s applied and verified.\n", name)
	return nil
}
