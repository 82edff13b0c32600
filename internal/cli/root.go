package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"felloe/internal/version"
)

var (
	configPath string
	logLevel   string
	noProgress bool
	showLatest bool
)

// Execute runs the root cobra command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}

	var exitErr *exitCodeError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.code)
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "felloe [version]",
		Short: "Install and switch between helm versions",
		Long: "felloe downloads helm releases into ~/.felloe/cache, verifies their checksums and\n" +
			"links the selected version into the bin directory.\n\n" +
			"  felloe latest      install and activate the newest release\n" +
			"  felloe v3.2.1      install and activate a specific release\n" +
			"  felloe             choose a cached version interactively",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runRoot,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ~/.felloe/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "Disable progress bars and spinners")
	cmd.Flags().BoolVarP(&showLatest, "latest", "l", false, "Print the latest release tag without installing")

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newVersionsCmd())
	cmd.AddCommand(newWhichCmd())
	cmd.AddCommand(newExecCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newRemoveCmd())
	cmd.AddCommand(newPruneCmd())
	cmd.AddCommand(newUninstallCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newDoctorCmd())
	version.AttachCobraVersionCommand(cmd)

	return cmd
}

func runRoot(cmd *cobra.Command, args []string) error {
	if showLatest {
		return runShowLatest(cmd)
	}
	if len(args) == 1 {
		return runInstall(cmd, args[0])
	}
	return runSelector(cmd)
}

func runShowLatest(cmd *cobra.Command) error {
	a, ctx, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	rel, err := a.registry.Get(ctx, "latest")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), rel.Tag)
	return nil
}

type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}
