package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"felloe/internal/activation"
	"felloe/internal/platform"
	"felloe/internal/store"
	"felloe/internal/tui"
)

// lowSpaceThreshold covers a few extracted helm releases.
const lowSpaceThreshold = 256 << 20

var doctorJSON bool

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check platform support, cache and link health",
		Args:  cobra.NoArgs,
		RunE:  runDoctor,
	}
	cmd.Flags().BoolVar(&doctorJSON, "json", false, "Output machine-readable JSON")
	return cmd
}

type healthCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "ok", "warning", "error"
	Summary string `json:"summary"`
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	a, ctx, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	var checks []healthCheck

	info, err := platform.Detect(ctx)
	if err != nil {
		checks = append(checks, healthCheck{Name: "Platform", Status: "error", Summary: err.Error()})
	} else {
		checks = append(checks, healthCheck{Name: "Platform", Status: "ok", Summary: info.String()})
	}

	checks = append(checks, checkCache(a))
	checks = append(checks, checkActive(a))
	checks = append(checks, checkBinDir(a.layout.BinDir))
	checks = append(checks, checkDisk(ctx, a.layout.CacheDir))

	return writeDoctorResult(cmd, a.layout.Home, checks)
}

func checkCache(a *app) healthCheck {
	entries, err := a.store.Entries()
	if errors.Is(err, store.ErrCacheMissing) {
		return healthCheck{Name: "Cache", Status: "warning", Summary: "no versions cached yet"}
	}
	if err != nil {
		return healthCheck{Name: "Cache", Status: "error", Summary: err.Error()}
	}

	var complete, partial int
	for _, e := range entries {
		if e.Complete {
			complete++
		} else {
			partial++
		}
	}
	summary := fmt.Sprintf("%d cached", complete)
	if partial > 0 {
		return healthCheck{
			Name:    "Cache",
			Status:  "warning",
			Summary: fmt.Sprintf("%s, %d incomplete (run `felloe prune`)", summary, partial),
		}
	}
	return healthCheck{Name: "Cache", Status: "ok", Summary: summary}
}

func checkActive(a *app) healthCheck {
	active, err := a.manager.Active()
	switch {
	case err == nil:
		return healthCheck{Name: "Active", Status: "ok", Summary: a.cfg.ToolName + " " + active}
	case errors.Is(err, activation.ErrNoActiveVersion):
		return healthCheck{Name: "Active", Status: "warning", Summary: "no active version"}
	default:
		return healthCheck{Name: "Active", Status: "error", Summary: err.Error()}
	}
}

func checkBinDir(dir string) healthCheck {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return healthCheck{Name: "Bin dir", Status: "error", Summary: err.Error()}
	}
	probe := filepath.Join(dir, ".felloe-probe-"+uuid.NewString())
	f, err := os.Create(probe)
	if err != nil {
		return healthCheck{Name: "Bin dir", Status: "error", Summary: fmt.Sprintf("%s is not writable", dir)}
	}
	f.Close()
	_ = os.Remove(probe)
	return healthCheck{Name: "Bin dir", Status: "ok", Summary: dir}
}

func checkDisk(ctx context.Context, cacheDir string) healthCheck {
	free, probe, err := platform.FreeSpace(ctx, cacheDir)
	if err != nil {
		return healthCheck{Name: "Disk", Status: "warning", Summary: err.Error()}
	}
	summary := fmt.Sprintf("%s free on %s", tui.FormatBytes(int64(free)), probe)
	if free < lowSpaceThreshold {
		return healthCheck{Name: "Disk", Status: "warning", Summary: summary}
	}
	return healthCheck{Name: "Disk", Status: "ok", Summary: summary}
}

func writeDoctorResult(cmd *cobra.Command, home string, checks []healthCheck) error {
	out := cmd.OutOrStdout()
	if doctorJSON {
		data, err := json.MarshalIndent(checks, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	bold := lipgloss.NewStyle().Bold(true).Inline(true)
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Inline(true)
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Inline(true)
	red := lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Inline(true)

	fmt.Fprintln(out, bold.Render("FELLOE HEALTH:")+" "+home)
	for _, c := range checks {
		var status string
		switch c.Status {
		case "ok":
			status = green.Render("OK")
		case "warning":
			status = yellow.Render("WARN")
		case "error":
			status = red.Render("ERROR")
		}
		fmt.Fprintf(out, "  %-10s %s    %s\n", c.Name+":", status, c.Summary)
	}
	return nil
}
