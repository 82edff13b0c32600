package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"felloe/internal/platform"
	"felloe/internal/tui"
)

func runInstall(cmd *cobra.Command, selector string) error {
	a, ctx, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := platform.CheckSupported(a.layout.OS, a.layout.Arch); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	reporter := tui.NewInstallReporter(out, tui.DetectMode(out, noProgress), a.cfg.ToolName)
	defer reporter.Close()

	res, err := a.orchestrator(reporter).Install(ctx, selector)
	if err != nil {
		return err
	}

	if res.Cached {
		fmt.Fprintf(out, "%s %s %s\n", tui.StatusStyle("cached").Render("Using cached"), a.cfg.ToolName, res.Version)
	}
	fmt.Fprintf(out, "%s %s %s\n", tui.StatusStyle("activated").Render("Activated"), a.cfg.ToolName, res.Version)
	return nil
}
