package tui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"

	"felloe/internal/install"
)

const redrawInterval = 100 * time.Millisecond

// InstallReporter renders install.Orchestrator progress: a progress bar
// while downloading and spinners while resolving, verifying and unpacking.
// In plain mode it prints one line per finished stage.
type InstallReporter struct {
	out  io.Writer
	mode OutputMode
	tool string

	mu       sync.Mutex
	bar      progress.Model
	spinner  *StatusWriter
	lastDraw time.Time
	drawn    bool
}

var _ install.Observer = (*InstallReporter)(nil)

// NewInstallReporter returns a reporter writing to out.
func NewInstallReporter(out io.Writer, mode OutputMode, tool string) *InstallReporter {
	return &InstallReporter{
		out:  out,
		mode: mode,
		tool: tool,
		bar:  progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

// StageStarted implements install.Observer.
func (r *InstallReporter) StageStarted(stage install.Stage, version string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch stage {
	case install.StageResolve:
		r.spin(fmt.Sprintf("Resolving %s %s", r.tool, version))
	case install.StageDownload:
		r.drawn = false
		fmt.Fprintf(r.out, "%s %s %s\n", StatusStyle("downloading").Render("Downloading"), r.tool, version)
	case install.StageVerify:
		r.spin("Verifying checksum")
	case install.StageExtract:
		r.spin(fmt.Sprintf("Unpacking %s %s", r.tool, version))
	}
}

// StageFinished implements install.Observer.
func (r *InstallReporter) StageFinished(stage install.Stage, version string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopSpinner()
	switch stage {
	case install.StageDownload:
		if r.drawn {
			fmt.Fprintln(r.out)
		}
	case install.StageVerify:
		fmt.Fprintf(r.out, "%s checksum\n", StatusStyle("verified").Render("✓ verified"))
	case install.StageExtract:
		fmt.Fprintf(r.out, "%s %s %s\n", StatusStyle("unpacked").Render("✓ unpacked"), r.tool, version)
	}
}

// Progress implements install.Observer.
func (r *InstallReporter) Progress(received, total int64) {
	if r.mode != ModeInteractive || total <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if received < total && r.drawn && now.Sub(r.lastDraw) < redrawInterval {
		return
	}
	r.lastDraw = now
	r.drawn = true

	pct := float64(received) / float64(total)
	fmt.Fprintf(r.out, "\r\033[K%s %s / %s", r.bar.ViewAs(pct), FormatBytes(received), FormatBytes(total))
}

// Close stops any running spinner. Call it when an install fails part way.
func (r *InstallReporter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopSpinner()
}

func (r *InstallReporter) spin(msg string) {
	if r.mode != ModeInteractive {
		return
	}
	r.stopSpinner()
	r.spinner = NewStatusWriter(r.out, msg)
}

func (r *InstallReporter) stopSpinner() {
	if r.spinner != nil {
		r.spinner.Stop()
		r.spinner = nil
	}
}

// FormatBytes renders n with a binary unit, e.g. "12.3 MiB".
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
