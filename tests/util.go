package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/trezcool/warsha/core"
)

// Output records the lines written to a core.Output.
type Output struct {
	mu    sync.Mutex
	lines []string
}

var _ core.Output = (*Output)(nil)

func (o *Output) Info(msg string) { o.add(msg) }
func (o *Output) Line(msg string) { o.add(msg) }

func (o *Output) add(msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lines = append(o.lines, msg)
}

// Lines returns a copy of the recorded lines.
func (o *Output) Lines() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.lines...)
}

func (o *Output) String() string {
	return strings.Join(o.Lines(), "\n")
}

// Mailbox is a core.EmailService that keeps every sent message.
type Mailbox struct {
	mu       sync.Mutex
	messages []core.EmailMessage
	Err      error // returned by SendMessage when set
}

var _ core.EmailService = (*Mailbox)(nil)

func (m *Mailbox) SendMessage(ctx context.Context, msg *core.EmailMessage) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, *msg)
	return nil
}

// Messages returns a copy of the sent messages.
func (m *Mailbox) Messages() []core.EmailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.EmailMessage(nil), m.messages...)
}

// Logger is a silent core.Logger that counts errors.
type Logger struct {
	mu     sync.Mutex
	Errors []string
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) Debug(msg string, args ...interface{}) {}
func (l *Logger) Info(msg string, args ...interface{})  {}
func (l *Logger) Warn(msg string, args ...interface{})  {}
func (l *Logger) Error(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}
func (l *Logger) Fatal(msg string, args ...interface{}) { l.Error(msg, args...) }
