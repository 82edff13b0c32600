package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"felloe/internal/activation"
	"felloe/internal/tui"
)

func runSelector(cmd *cobra.Command) error {
	a, ctx, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	versions, err := a.cachedVersions()
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		return fmt.Errorf("%w; run `felloe latest` or `felloe <version>` first", tui.ErrNothingToSelect)
	}
	if !tui.IsTerminal(cmd.InOrStdin()) || !tui.IsTerminal(cmd.OutOrStdout()) {
		return errors.New("interactive selection needs a terminal; use `felloe list` and `felloe <version>`")
	}

	active, err := a.activeVersion(ctx)
	if err != nil {
		return err
	}

	choice, err := tui.RunSelector(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), versions, active)
	if err != nil {
		return err
	}

	return applyChoice(ctx, cmd.OutOrStdout(), a, choice)
}

// applyChoice performs the selector action once the program has exited.
func applyChoice(ctx context.Context, out io.Writer, a *app, choice tui.Choice) error {
	switch choice.Action {
	case tui.ActionActivate:
		if err := a.manager.Activate(ctx, choice.Version); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s %s\n", tui.StatusStyle("activated").Render("Activated"), a.cfg.ToolName, choice.Version)
	case tui.ActionRemove:
		res, err := a.manager.Remove(ctx, choice.Version, false)
		if err != nil {
			if errors.Is(err, activation.ErrActiveVersion) {
				return fmt.Errorf("%w: %s %s; use `felloe remove --force %s`", activation.ErrActiveVersion, a.cfg.ToolName, choice.Version, choice.Version)
			}
			return err
		}
		printRemoveResult(out, a.cfg.ToolName, res)
	}
	return nil
}
