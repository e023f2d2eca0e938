package seminar

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/warsha/core"
	"github.com/trezcool/warsha/core/dispatch"
	"github.com/trezcool/warsha/core/user"
)

// Job kind names, as carried by queued messages.
const (
	ReminderKindName    = "seminar.reminder"
	CertificateKindName = "seminar.certificate"
)

type mailer struct {
	repo    Repository
	mailSvc core.EmailService
	appName string
	now     func() time.Time
}

// KindOption configures a seminar job kind.
type KindOption func(*mailer)

// WithClock makes a kind read the current time from now instead of the system clock.
func WithClock(now func() time.Time) KindOption {
	return func(m *mailer) { m.now = now }
}

func newMailer(repo Repository, mailSvc core.EmailService, conf *core.Config, opts []KindOption) mailer {
	m := mailer{
		repo:    repo,
		mailSvc: mailSvc,
		appName: conf.AppName,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

func (m mailer) send(ctx context.Context, usr user.User, subject, body string) error {
	if m.appName != "" {
		body += "\n-- \nThe " + m.appName + " team\n"
	}
	msg := &core.EmailMessage{
		To:      []mail.Address{usr.Address()},
		Subject: subject,
		Body:    body,
	}
	if !msg.Deliverable() {
		return nil
	}
	return errors.Wrapf(m.mailSvc.SendMessage(ctx, msg), "sending %q to %s", subject, usr.Email)
}

// ReminderKind emails each user the upcoming seminars they registered to.
// The registrations a Job carries were selected by the dispatcher; the Job only drops those that started since.
type ReminderKind struct {
	mailer
}

var _ dispatch.JobKind = (*ReminderKind)(nil)

func NewReminderKind(repo Repository, mailSvc core.EmailService, conf *core.Config, opts ...KindOption) *ReminderKind {
	return &ReminderKind{mailer: newMailer(repo, mailSvc, conf, opts)}
}

func (k *ReminderKind) Name() string { return ReminderKindName }

func (k *ReminderKind) New(usr user.User, keys []string) dispatch.Job {
	return reminderJob{kind: k, usr: usr, ids: keys}
}

type reminderJob struct {
	kind *ReminderKind
	usr  user.User
	ids  []string
}

func (j reminderJob) Handle(ctx context.Context) error {
	filter := RegistrationFilter{IDs: j.ids, StartsFrom: j.kind.now()}
	regs, err := j.kind.repo.QueryRegistrations(ctx, filter)
	if err != nil {
		return errors.Wrap(err, "querying registrations")
	}
	if len(regs) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\nThis is a reminder of your upcoming %s:\n\n", j.usr.DisplayName(), core.Plural(len(regs), "session"))
	for _, r := range regs {
		writeSeminarLine(&b, r.Seminar)
	}
	b.WriteString("\nSee you there!\n")
	return j.kind.send(ctx, j.usr, "Upcoming "+core.Plural(len(regs), "session"), b.String())
}

// CertificateKind issues certificates for attended registrations and emails them to their user.
// Registrations already issued are ignored, so a retried Job sends nothing twice.
type CertificateKind struct {
	mailer
}

var _ dispatch.JobKind = (*CertificateKind)(nil)

func NewCertificateKind(repo Repository, mailSvc core.EmailService, conf *core.Config, opts ...KindOption) *CertificateKind {
	return &CertificateKind{mailer: newMailer(repo, mailSvc, conf, opts)}
}

func (k *CertificateKind) Name() string { return CertificateKindName }

func (k *CertificateKind) New(usr user.User, keys []string) dispatch.Job {
	return certificateJob{kind: k, usr: usr, ids: keys}
}

type certificateJob struct {
	kind *CertificateKind
	usr  user.User
	ids  []string
}

func (j certificateJob) Handle(ctx context.Context) error {
	filter := Certifiable()
	filter.IDs = j.ids
	regs, err := j.kind.repo.QueryRegistrations(ctx, filter)
	if err != nil {
		return errors.Wrap(err, "querying registrations")
	}
	if len(regs) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\nThank you for attending! Your %s of attendance for the following %s are now available:\n\n",
		j.usr.DisplayName(), core.Plural(len(regs), "certificate"), core.Plural(len(regs), "session"))
	ids := make([]string, 0, len(regs))
	for _, r := range regs {
		writeSeminarLine(&b, r.Seminar)
		ids = append(ids, r.ID)
	}

	// the email goes first: a failed send leaves the rows pending for the retry
	if err = j.kind.send(ctx, j.usr, "Your "+core.Plural(len(regs), "certificate"), b.String()); err != nil {
		return err
	}
	if _, err = j.kind.repo.MarkCertificatesIssued(ctx, ids, j.kind.now()); err != nil {
		return errors.Wrap(err, "marking certificates issued")
	}
	return nil
}

func writeSeminarLine(b *strings.Builder, sem Seminar) {
	fmt.Fprintf(b, "- %s (%s), %s", sem.Title, sem.Kind, sem.StartsAt.Format("Mon 02 Jan 2006 15:04 MST"))
	if sem.Location != "" {
		fmt.Fprintf(b, " at %s", sem.Location)
	}
	b.WriteString("\n")
}

// JobKinds registers every seminar job kind.
func JobKinds(repo Repository, mailSvc core.EmailService, conf *core.Config) *dispatch.Registry {
	return dispatch.NewRegistry(
		NewReminderKind(repo, mailSvc, conf),
		NewCertificateKind(repo, mailSvc, conf),
	)
}
