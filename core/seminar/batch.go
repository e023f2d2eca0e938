package seminar

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/warsha/core"
	"github.com/trezcool/warsha/core/dispatch"
)

// Batch pairs a job kind with the registrations it runs for.
type Batch struct {
	Kind   dispatch.JobKind
	Filter RegistrationFilter
	Label  string
}

// ReminderBatch selects the registrations of seminars starting within window from now.
// Its jobs share the same now, so whatever the batch selects is what gets emailed.
func ReminderBatch(repo Repository, mailSvc core.EmailService, conf *core.Config, now time.Time, window time.Duration, seminarIDs ...string) Batch {
	return Batch{
		Kind:   NewReminderKind(repo, mailSvc, conf, WithClock(func() time.Time { return now })),
		Filter: Upcoming(now, window, seminarIDs...),
		Label:  "with upcoming sessions",
	}
}

// CertificateBatch selects attended registrations still waiting for their certificate.
func CertificateBatch(repo Repository, mailSvc core.EmailService, conf *core.Config, seminarIDs ...string) Batch {
	return Batch{
		Kind:   NewCertificateKind(repo, mailSvc, conf),
		Filter: Certifiable(seminarIDs...),
		Label:  "awaiting certificates",
	}
}

// Dispatch loads the batch's registrations and hands one job per user to d.
func (b Batch) Dispatch(ctx context.Context, repo Repository, d *dispatch.Dispatcher) (int, error) {
	regs, err := repo.QueryRegistrations(ctx, b.Filter)
	if err != nil {
		return 0, errors.Wrap(err, "loading registrations")
	}
	return d.DispatchGroupedByUser(ctx, Owned(regs), b.Kind, b.Label)
}
