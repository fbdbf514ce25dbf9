// Package notify renders toast notifications on the terminal.
package notify

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/example/pm/internal/ports/secondary"
)

// Terminal implements secondary.Notifier by printing one line per toast.
type Terminal struct {
	mu  sync.Mutex
	out io.Writer
}

var _ secondary.Notifier = (*Terminal)(nil)

// NewTerminal creates a notifier writing to out (usually stderr).
func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out}
}

func (t *Terminal) Success(msg string) {
	t.print(color.New(color.FgGreen).Sprint("✓"), msg)
}

func (t *Terminal) Error(msg string) {
	t.print(color.New(color.FgRed).Sprint("✗"), msg)
}

func (t *Terminal) Info(msg string) {
	t.print(color.New(color.FgCyan).Sprint("i"), msg)
}

// print never fails the caller; toasts are fire-and-forget.
func (t *Terminal) print(icon, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = fmt.Fprintf(t.out, "%s %s\n", icon, msg)
}

// Discard drops every toast. Used where output would be noise, such as
// background refreshes.
type Discard struct{}

func (Discard) Success(string) {}
func (Discard) Error(string)   {}
func (Discard) Info(string)    {}
