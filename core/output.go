package core

import (
	"fmt"
	"io"
	"sync"
)

const (
	colorGreen = "\033[32m"
	colorReset = "\033[0m"
)

// Output is a line oriented progress sink used by batch commands.
type Output interface {
	// Info writes a highlighted status line.
	Info(msg string)
	// Line writes a plain line.
	Line(msg string)
}

type writerOutput struct {
	mu      sync.Mutex
	w       io.Writer
	colored bool
}

var _ Output = (*writerOutput)(nil)

// NewWriterOutput returns an Output writing one line per message to w.
// Info lines are green when colored is set.
func NewWriterOutput(w io.Writer, colored bool) Output {
	return &writerOutput{w: w, colored: colored}
}

func (o *writerOutput) Info(msg string) {
	if o.colored {
		msg = colorGreen + msg + colorReset
	}
	o.write(msg)
}

func (o *writerOutput) Line(msg string) {
	o.write(msg)
}

func (o *writerOutput) write(msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, _ = fmt.Fprintln(o.w, msg)
}

type discardOutput struct{}

func (discardOutput) Info(string) {}
func (discardOutput) Line(string) {}

// DiscardOutput drops every line.
var DiscardOutput Output = discardOutput{}
