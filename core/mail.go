package core

import (
	"context"
	"net/mail"
	"strings"
)

type (
	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Bcc     []mail.Address
		Subject string
		Body    string // text/plain
	}

	// EmailService is any service that can send emails.
	EmailService interface {
		// SendMessage sends msg and returns once the provider accepted it.
		SendMessage(ctx context.Context, msg *EmailMessage) error
	}
)

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return strings.TrimSpace(m.Body) != "" }

// Deliverable reports whether msg has both recipients and content.
func (m *EmailMessage) Deliverable() bool {
	return m.HasRecipients() && m.HasContent()
}

// JoinAddresses formats addresses as a comma separated header value.
func JoinAddresses(addrs []mail.Address) string {
	list := make([]string, 0, len(addrs))
	for _, a := range addrs {
		list = append(list, a.String())
	}
	return strings.Join(list, ", ")
}
