package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"felloe/internal/activation"
	"felloe/internal/tui"
)

var removeForce bool

func newRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "remove <version>...",
		Aliases: []string{"rm"},
		Short:   "Remove cached versions",
		Args:    cobra.MinimumNArgs(1),
		RunE:    runRemove,
	}
	cmd.Flags().BoolVarP(&removeForce, "force", "f", false, "Also remove the active version and its links")
	return cmd
}

func runRemove(cmd *cobra.Command, args []string) error {
	a, ctx, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.manager.RemoveAll(ctx, args, removeForce, func(res activation.RemoveResult) {
		printRemoveResult(cmd.OutOrStdout(), a.cfg.ToolName, res)
	})
}

func newPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove every cached version except the active one",
		Args:  cobra.NoArgs,
		RunE:  runPrune,
	}
}

func runPrune(cmd *cobra.Command, _ []string) error {
	a, ctx, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.store.Entries()
	if err != nil {
		return err
	}
	active, err := a.activeVersion(ctx)
	if err != nil {
		return err
	}

	var targets []string
	for _, e := range entries {
		if e.Version != active {
			targets = append(targets, e.Version)
		}
	}
	if len(targets) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing to prune")
		return nil
	}

	return a.manager.RemoveAll(ctx, targets, false, func(res activation.RemoveResult) {
		printRemoveResult(cmd.OutOrStdout(), a.cfg.ToolName, res)
	})
}

func newUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the active version and its links",
		Args:  cobra.NoArgs,
		RunE:  runUninstall,
	}
}

func runUninstall(cmd *cobra.Command, _ []string) error {
	a, ctx, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	active, err := a.manager.Active()
	switch {
	case errors.Is(err, activation.ErrNoActiveVersion):
		fmt.Fprintln(out, "No active version set")
		return nil
	case errors.Is(err, activation.ErrForeignLink):
		fmt.Fprintf(out, "%s is not managed by felloe; leaving it in place\n", a.layout.PrimaryLink())
		fmt.Fprintln(out, "No active version set")
		return nil
	case errors.Is(err, activation.ErrBrokenLink):
		if err := a.manager.Deactivate(); err != nil {
			return err
		}
		fmt.Fprintln(out, "Removed broken links")
		fmt.Fprintln(out, "No active version set")
		return nil
	case err != nil:
		return err
	}

	fmt.Fprintf(out, "Uninstalling %s %s\n", a.cfg.ToolName, active)
	res, err := a.manager.Remove(ctx, active, true)
	if err != nil {
		return err
	}
	printRemoveResult(cmd.OutOrStdout(), a.cfg.ToolName, res)
	fmt.Fprintln(out, "No active version set")
	return nil
}

func printRemoveResult(out io.Writer, tool string, res activation.RemoveResult) {
	if res.NothingToDo {
		fmt.Fprintf(out, "%s Cache directory %s does not exist.\n", tui.StatusStyle("skipped").Render("!"), res.Version)
		return
	}
	fmt.Fprintf(out, "%s %s %s\n", tui.StatusStyle("removed").Render("Uninstalled"), tool, res.Version)
}
