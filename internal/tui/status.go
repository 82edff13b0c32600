package tui

import (
	"fmt"
	"io"
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// StatusWriter draws a spinner with a message and elapsed time on a single
// line until stopped.
type StatusWriter struct {
	w          io.Writer
	mu         sync.Mutex
	message    string
	phaseStart time.Time
	done       chan struct{}
	exited     chan struct{}
	stopped    bool
}

// NewStatusWriter starts a background spinner rendering msg to w every 100ms.
func NewStatusWriter(w io.Writer, msg string) *StatusWriter {
	sw := &StatusWriter{
		w:          w,
		message:    msg,
		phaseStart: time.Now(),
		done:       make(chan struct{}),
		exited:     make(chan struct{}),
	}
	go sw.loop()
	return sw
}

// Update replaces the message and restarts the elapsed timer.
func (sw *StatusWriter) Update(msg string) {
	sw.mu.Lock()
	sw.message = msg
	sw.phaseStart = time.Now()
	sw.mu.Unlock()
}

// Stop halts the spinner and clears its line. It is safe to call twice.
func (sw *StatusWriter) Stop() {
	sw.mu.Lock()
	if sw.stopped {
		sw.mu.Unlock()
		return
	}
	sw.stopped = true
	sw.mu.Unlock()

	close(sw.done)
	<-sw.exited
	fmt.Fprint(sw.w, "\r\033[K")
}

func (sw *StatusWriter) loop() {
	defer close(sw.exited)

	tick := 0
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-sw.done:
			return
		case <-ticker.C:
			sw.mu.Lock()
			msg := sw.message
			start := sw.phaseStart
			sw.mu.Unlock()

			frame := spinnerFrames[tick%len(spinnerFrames)]
			tick++
			fmt.Fprintf(sw.w, "\r\033[K%s %s (%s)", frame, msg, formatElapsed(time.Since(start)))
		}
	}
}

func formatElapsed(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < 10*time.Second {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}
