package cli

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/briandowns/spinner"

	"nixmate/internal/progress"
)

// ProgressRenderer shows progress events. On a terminal it animates a
// spinner whose suffix follows the latest event; elsewhere it prints one line
// per distinct message.
type ProgressRenderer struct {
	out   io.Writer
	quiet bool

	mu      sync.Mutex
	spinner *spinner.Spinner
	last    string
}

// NewProgressRenderer creates a renderer writing to out.
func NewProgressRenderer(out io.Writer, quiet bool) *ProgressRenderer {
	r := &ProgressRenderer{out: out, quiet: quiet}
	if !quiet && isTerminal(out) {
		r.spinner = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(out))
	}
	return r
}

// Start shows label until the first event arrives.
func (r *ProgressRenderer) Start(label string) {
	if r.spinner == nil {
		return
	}
	r.spinner.Suffix = " " + label
	r.spinner.Start()
}

// Callback returns the progress callback to hand to the orchestrator.
func (r *ProgressRenderer) Callback() progress.Callback {
	if r.quiet {
		return nil
	}
	return r.update
}

func (r *ProgressRenderer) update(ev progress.Event) {
	line := formatEvent(ev)

	if r.spinner != nil {
		r.spinner.Lock()
		r.spinner.Suffix = " " + line
		r.spinner.Unlock()
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ev.Message == r.last {
		return
	}
	r.last = ev.Message
	fmt.Fprintln(r.out, line)
}

// Stop clears the spinner. It is safe to call more than once.
func (r *ProgressRenderer) Stop() {
	if r.spinner != nil {
		r.spinner.Stop()
	}
}

func formatEvent(ev progress.Event) string {
	line := fmt.Sprintf("[%3.0f%%] %s", ev.Fraction*100, ev.Message)
	if ev.ETA > 0 {
		line += fmt.Sprintf(" (about %s left)", ev.ETA.Round(time.Second))
	}
	return line
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
