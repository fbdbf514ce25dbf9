package notify

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestTerminal(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	tests := []struct {
		name string
		emit func(*Terminal)
		want string
	}{
		{name: "success", emit: func(n *Terminal) { n.Success("Project updated successfully") }, want: "✓ Project updated successfully\n"},
		{name: "error", emit: func(n *Terminal) { n.Error("Failed to delete task") }, want: "✗ Failed to delete task\n"},
		{name: "info", emit: func(n *Terminal) { n.Info("Refreshing") }, want: "i Refreshing\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.emit(NewTerminal(&buf))
			if buf.String() != tt.want {
				t.Errorf("got %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestTerminalOneLinePerToast(t *testing.T) {
	var buf bytes.Buffer
	n := NewTerminal(&buf)
	n.Success("a")
	n.Error("b")
	if got := strings.Count(buf.String(), "\n"); got != 2 {
		t.Errorf("lines = %d, want 2", got)
	}
}
