// Package ui - Terminal output for interactive runs
// Stage progress bars and status lines written to stderr while a run executes.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"hospital-abc/core/types"
)

// Colors for terminal output
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
)

// Writer is the UI output destination
type Writer struct {
	mu      sync.Mutex
	out     io.Writer
	noColor bool
}

// NewWriter creates a UI writer
func NewWriter(out io.Writer, noColor bool) *Writer {
	if out == nil {
		out = os.Stderr
	}
	return &Writer{out: out, noColor: noColor}
}

// color applies color if enabled
func (w *Writer) color(c, text string) string {
	if w.noColor {
		return text
	}
	return c + text + Reset
}

func (w *Writer) println(line string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintln(w.out, line)
}

// Success prints a success message
func (w *Writer) Success(format string, args ...interface{}) {
	w.println(w.color(Green, "✓ ") + fmt.Sprintf(format, args...))
}

// Warning prints a warning
func (w *Writer) Warning(format string, args ...interface{}) {
	w.println(w.color(Yellow, "⚠ ") + fmt.Sprintf(format, args...))
}

// Error prints an error
func (w *Writer) Error(format string, args ...interface{}) {
	w.println(w.color(Red, "✗ ") + fmt.Sprintf(format, args...))
}

// StageProgress draws one progress bar per stage. Its Update method has
// the signature of engine.ProgressFunc and may be called from pool workers.
type StageProgress struct {
	w       *Writer
	width   int
	current types.Stage
	percent int
	started time.Time
}

// NewStageProgress creates a stage progress display
func (w *Writer) NewStageProgress() *StageProgress {
	return &StageProgress{w: w, width: 30}
}

// Update records progress of stage. Moving to a new stage finishes the
// previous bar.
func (p *StageProgress) Update(stage types.Stage, percent int) {
	p.w.mu.Lock()
	defer p.w.mu.Unlock()

	if stage != p.current {
		if p.current != "" {
			fmt.Fprintln(p.w.out)
		}
		p.current = stage
		p.percent = -1
		p.started = time.Now()
	}
	if percent < p.percent {
		return
	}
	p.percent = min(max(percent, 0), 100)
	p.render()
}

// Done finishes the last bar
func (p *StageProgress) Done() {
	p.w.mu.Lock()
	defer p.w.mu.Unlock()
	if p.current != "" {
		fmt.Fprintln(p.w.out)
		p.current = ""
	}
}

func (p *StageProgress) render() {
	filled := p.percent * p.width / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", p.width-filled)
	fmt.Fprintf(p.w.out, "\r%s [%s] %3d%% %s",
		p.w.color(Bold+Cyan, fmt.Sprintf("%-5s", p.current)), bar, p.percent, formatDuration(time.Since(p.started)))
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
