// Package ui is the status sink the runtime reports chat rounds to.
package ui

import (
	"fmt"
	"io"
	"sync"
)

type UI interface {
	UpdateStatus(status string)
	UpdateRound(n int)
	Log(msg string)
}

type SilentUI struct{}

func (s SilentUI) UpdateStatus(status string) {}
func (s SilentUI) UpdateRound(n int)          {}
func (s SilentUI) Log(msg string)             {}

// LineUI prints log lines to a writer, for plain terminals and pipes.
// Status and round updates are dropped; they only matter to the TUI.
type LineUI struct {
	mu  sync.Mutex
	out io.Writer
}

func NewLineUI(out io.Writer) *LineUI {
	return &LineUI{out: out}
}

func (l *LineUI) UpdateStatus(status string) {}
func (l *LineUI) UpdateRound(n int)          {}

func (l *LineUI) Log(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, "· "+msg)
}
