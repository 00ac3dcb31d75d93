package platform

import (
	"os/exec"
	"runtime"
	"strings"
)

// Clipboard copies a secret to the system clipboard. The CLI uses it so a
// fetched value never has to appear on the terminal.
type Clipboard interface {
	Copy(text string) error
}

type execClipboard struct{ cmd []string }

func (c execClipboard) Copy(text string) error {
	cmd := exec.Command(c.cmd[0], c.cmd[1:]...)
	cmd.Stdin = strings.NewReader(text)
	return cmd.Run()
}

type noopClipboard struct{}

func (noopClipboard) Copy(string) error { return nil }

// NewClipboard picks the first available system clipboard tool, falling
// back to a noop when none is installed.
func NewClipboard() Clipboard {
	var candidates [][]string
	if runtime.GOOS == "darwin" {
		candidates = [][]string{{"pbcopy"}}
	} else {
		candidates = [][]string{{"wl-copy"}, {"xclip", "-selection", "clipboard"}}
	}
	for _, c := range candidates {
		if _, err := exec.LookPath(c[0]); err == nil {
			return execClipboard{cmd: c}
		}
	}
	return noopClipboard{}
}
