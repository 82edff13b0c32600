package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"felloe/internal/paths"
	"felloe/internal/store"
)

func newWhichCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "which [version]",
		Short: "Print the executable paths of a cached version (default: active)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runWhich,
	}
}

func runWhich(cmd *cobra.Command, args []string) error {
	a, _, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	var v string
	if len(args) == 1 {
		v = args[0]
		if err := paths.CheckVersion(v); err != nil {
			return err
		}
	} else {
		v, err = a.manager.Active()
		if err != nil {
			return err
		}
	}

	primary := a.layout.PrimaryPath(v)
	ok, err := paths.FileExists(primary)
	if err != nil {
		return fmt.Errorf("stat %s: %w", primary, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s %s", store.ErrNotInstalled, a.cfg.ToolName, v)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, primary)
	if a.layout.Auxiliary != "" {
		aux := a.layout.AuxiliaryPath(v)
		if ok, _ := paths.FileExists(aux); ok {
			fmt.Fprintln(out, aux)
		}
	}
	return nil
}
