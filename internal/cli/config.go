package cli

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"felloe/internal/config"
	"felloe/internal/paths"
)

var configInitForce bool

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or edit felloe configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigEditCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration in YAML",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}
}

func newConfigInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE:  runConfigInit,
	}
	cmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing file")
	return cmd
}

func newConfigEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit",
		Short: "Open the configuration file in $EDITOR",
		Args:  cobra.NoArgs,
		RunE:  runConfigEdit,
	}
}

func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return paths.DefaultConfigFile()
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	path, err := resolveConfigPath()
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	if len(data) == 0 || data[len(data)-1] != '\n' {
		fmt.Fprintln(cmd.OutOrStdout())
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	path, err := resolveConfigPath()
	if err != nil {
		return err
	}
	exists, err := paths.FileExists(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	if exists && !configInitForce {
		return fmt.Errorf("config %s already exists (use --force to overwrite)", path)
	}

	if err := config.Save(path, config.Default()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

func runConfigEdit(cmd *cobra.Command, _ []string) error {
	path, err := resolveConfigPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := config.Save(path, config.Default()); err != nil {
			return err
		}
	} else if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	// Handles simple EDITOR values like "nano" or "code -w".
	parts := strings.Fields(editor)
	parts = append(parts, path)

	execCmd := exec.CommandContext(cmd.Context(), parts[0], parts[1:]...)
	execCmd.Stdout = cmd.OutOrStdout()
	execCmd.Stderr = cmd.ErrOrStderr()
	execCmd.Stdin = cmd.InOrStdin()

	if err := execCmd.Run(); err != nil {
		return fmt.Errorf("editor exited with error: %w", err)
	}
	if _, err := config.Load(path); err != nil {
		return fmt.Errorf("edited config is invalid: %w", err)
	}
	return nil
}
