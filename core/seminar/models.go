package seminar

import (
	"context"
	"errors"
	"time"

	"github.com/trezcool/warsha/core"
	"github.com/trezcool/warsha/core/dispatch"
	"github.com/trezcool/warsha/core/user"
)

// Kinds
const (
	KindSeminar  = "seminar"
	KindWorkshop = "workshop"
)

type Seminar struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Kind     string    `json:"kind"`
	StartsAt time.Time `json:"starts_at"` // UTC
	EndsAt   time.Time `json:"ends_at"`   // UTC
	Location string    `json:"location"`
}

// Registration is one user's enrollment in one Seminar.
type Registration struct {
	ID                  string     `json:"id"`
	SeminarID           string     `json:"seminar_id"`
	UserID              string     `json:"user_id"`
	User                *user.User `json:"user,omitempty"` // nil when the user did not resolve
	Seminar             Seminar    `json:"seminar"`
	Attended            bool       `json:"attended"`
	CertificateIssuedAt *time.Time `json:"certificate_issued_at"`
	CreatedAt           time.Time  `json:"created_at"`
}

var _ dispatch.Owned = Registration{}

func (r Registration) Key() string     { return r.ID }
func (r Registration) OwnerID() string { return r.UserID }

func (r Registration) Owner() (user.User, bool) {
	if r.User == nil {
		return user.User{}, false
	}
	return *r.User, true
}

// CertificatePending reports whether an attended Registration still awaits its certificate.
func (r Registration) CertificatePending() bool {
	return r.Attended && r.CertificateIssuedAt == nil
}

// Owned converts registrations for dispatch.Dispatcher.
func Owned(regs []Registration) []dispatch.Owned {
	items := make([]dispatch.Owned, 0, len(regs))
	for _, r := range regs {
		items = append(items, r)
	}
	return items
}

// RegistrationFilter applies AND operation on its set fields.
type RegistrationFilter struct {
	IDs                []string
	SeminarIDs         []string
	Attended           *bool
	CertificatePending bool
	StartsFrom         time.Time
	StartsTo           time.Time
}

// Match reports whether r satisfies the filter.
func (f RegistrationFilter) Match(r Registration) bool {
	if len(f.IDs) > 0 && !contains(f.IDs, r.ID) {
		return false
	}
	if len(f.SeminarIDs) > 0 && !contains(f.SeminarIDs, r.SeminarID) {
		return false
	}
	if f.Attended != nil && r.Attended != *f.Attended {
		return false
	}
	if f.CertificatePending && r.CertificateIssuedAt != nil {
		return false
	}
	if !f.StartsFrom.IsZero() && r.Seminar.StartsAt.Before(f.StartsFrom) {
		return false
	}
	if !f.StartsTo.IsZero() && r.Seminar.StartsAt.After(f.StartsTo) {
		return false
	}
	return true
}

// Upcoming selects the registrations of seminars starting within window from now.
// A window <= 0 sets no upper bound.
func Upcoming(now time.Time, window time.Duration, seminarIDs ...string) RegistrationFilter {
	f := RegistrationFilter{SeminarIDs: seminarIDs, StartsFrom: now}
	if window > 0 {
		f.StartsTo = now.Add(window)
	}
	return f
}

// Certifiable selects attended registrations still waiting for their certificate.
func Certifiable(seminarIDs ...string) RegistrationFilter {
	attended := true
	return RegistrationFilter{SeminarIDs: seminarIDs, Attended: &attended, CertificatePending: true}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ErrNotFound is returned when a Seminar does not exist.
var ErrNotFound = errors.New("seminar not found")

type Repository interface {
	GetSeminar(ctx context.Context, id string, exec ...core.DBExecutor) (Seminar, error)
	// QueryRegistrations returns matching registrations ordered by creation time, with their Seminar and
	// live User preloaded.
	QueryRegistrations(ctx context.Context, filter RegistrationFilter, exec ...core.DBExecutor) ([]Registration, error)
	// MarkCertificatesIssued stamps the pending registrations among ids and returns how many were stamped.
	MarkCertificatesIssued(ctx context.Context, ids []string, at time.Time, exec ...core.DBExecutor) (int, error)
}
