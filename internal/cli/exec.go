package cli

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"felloe/internal/logx"
)

func newExecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec <version> [args...]",
		Short: "Run a cached version with its directory first on PATH",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCached(cmd, args[0], args[1:], true)
		},
	}
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <version> [args...]",
		Short: "Run a cached version directly",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCached(cmd, args[0], args[1:], false)
		},
	}
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func runCached(cmd *cobra.Command, v string, args []string, prefixPath bool) error {
	a, ctx, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.Require(v); err != nil {
		return err
	}

	env := os.Environ()
	program := a.layout.PrimaryPath(v)
	if prefixPath {
		env = withPathPrefix(env, a.layout.ExecutableDir(v))
		// exec.Command resolves bare names against our own PATH, not the child's.
		program, err = lookPathIn(env, a.layout.Primary)
		if err != nil {
			return err
		}
	}

	child := exec.CommandContext(ctx, program, args...)
	if prefixPath {
		child.Args[0] = a.layout.Primary
	}
	child.Stdin = cmd.InOrStdin()
	child.Stdout = cmd.OutOrStdout()
	child.Stderr = cmd.ErrOrStderr()
	child.Env = env

	logx.FromContext(ctx).Debugw("running cached executable", "version", v, "path", child.Path, "args", args)
	if err := child.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code := exitErr.ExitCode()
			if code < 0 {
				code = 1
			}
			return &exitCodeError{code: code}
		}
		return fmt.Errorf("run %s %s: %w", a.cfg.ToolName, v, err)
	}
	return nil
}

// withPathPrefix returns env with dir prepended to PATH.
func withPathPrefix(env []string, dir string) []string {
	out := make([]string, 0, len(env)+1)
	found := false
	for _, kv := range env {
		key, value, ok := strings.Cut(kv, "=")
		if ok && strings.EqualFold(key, "PATH") && !found {
			out = append(out, key+"="+dir+string(os.PathListSeparator)+value)
			found = true
			continue
		}
		out = append(out, kv)
	}
	if !found {
		out = append(out, "PATH="+dir)
	}
	return out
}

// lookPathIn resolves name against the PATH entry of env.
func lookPathIn(env []string, name string) (string, error) {
	for _, kv := range env {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.EqualFold(key, "PATH") {
			continue
		}
		for _, dir := range filepath.SplitList(value) {
			if dir == "" {
				continue
			}
			if path, err := exec.LookPath(filepath.Join(dir, name)); err == nil {
				return path, nil
			}
		}
		break
	}
	return "", fmt.Errorf("%s: %w", name, exec.ErrNotFound)
}
