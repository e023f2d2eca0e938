package boiledrepos

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/strmangle"

	"github.com/trezcool/warsha/core"
	"github.com/trezcool/warsha/core/seminar"
	"github.com/trezcool/warsha/core/user"
)

const selectRegistrations = `SELECT
	r.id, r.seminar_id, r.user_id, r.attended, r.certificate_issued_at, r.created_at,
	u.id AS owner_id, u.name AS owner_name, u.email AS owner_email, u.is_active AS owner_is_active,
	u.created_at AS owner_created_at, u.updated_at AS owner_updated_at,
	s.title AS seminar_title, s.kind AS seminar_kind, s.starts_at AS seminar_starts_at,
	s.ends_at AS seminar_ends_at, s.location AS seminar_location
FROM registrations r
JOIN seminars s ON s.id = r.seminar_id
LEFT JOIN users u ON u.id = r.user_id AND u.deleted_at IS NULL`

const selectSeminar = `SELECT id, title, kind, starts_at, ends_at, location FROM seminars WHERE id = $1`

type seminarRow struct {
	ID       string    `boil:"id"`
	Title    string    `boil:"title"`
	Kind     string    `boil:"kind"`
	StartsAt time.Time `boil:"starts_at"`
	EndsAt   null.Time `boil:"ends_at"`
	Location string    `boil:"location"`
}

// registrationRow is one row of selectRegistrations; owner columns are null for unresolved users.
type registrationRow struct {
	ID                  string    `boil:"id"`
	SeminarID           string    `boil:"seminar_id"`
	UserID              string    `boil:"user_id"`
	Attended            bool      `boil:"attended"`
	CertificateIssuedAt null.Time `boil:"certificate_issued_at"`
	CreatedAt           time.Time `boil:"created_at"`

	OwnerID        null.String `boil:"owner_id"`
	OwnerName      null.String `boil:"owner_name"`
	OwnerEmail     null.String `boil:"owner_email"`
	OwnerIsActive  null.Bool   `boil:"owner_is_active"`
	OwnerCreatedAt null.Time   `boil:"owner_created_at"`
	OwnerUpdatedAt null.Time   `boil:"owner_updated_at"`

	SeminarTitle    string    `boil:"seminar_title"`
	SeminarKind     string    `boil:"seminar_kind"`
	SeminarStartsAt time.Time `boil:"seminar_starts_at"`
	SeminarEndsAt   null.Time `boil:"seminar_ends_at"`
	SeminarLocation string    `boil:"seminar_location"`
}

type registrationRepository struct {
	exec core.DBExecutor
}

var _ seminar.Repository = (*registrationRepository)(nil) // interface compliance check

func NewRegistrationRepository(exec core.DBExecutor) *registrationRepository {
	return &registrationRepository{exec: exec}
}

func (repo registrationRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

// dbError wraps err with msg; a lost connection becomes a shutdown error so the app can restart cleanly.
func dbError(err error, msg string) error {
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return core.NewShutdownError(fmt.Sprintf("%s: database connection lost: %v", msg, err))
	}
	return errors.Wrap(err, msg)
}

func (repo registrationRepository) unboil(row registrationRow) seminar.Registration {
	reg := seminar.Registration{
		ID:                  row.ID,
		SeminarID:           row.SeminarID,
		UserID:              row.UserID,
		Attended:            row.Attended,
		CertificateIssuedAt: row.CertificateIssuedAt.Ptr(),
		CreatedAt:           row.CreatedAt.UTC(),
		Seminar: seminar.Seminar{
			ID:       row.SeminarID,
			Title:    row.SeminarTitle,
			Kind:     row.SeminarKind,
			StartsAt: row.SeminarStartsAt.UTC(),
			EndsAt:   row.SeminarEndsAt.Time.UTC(),
			Location: row.SeminarLocation,
		},
	}
	if row.OwnerID.Valid {
		reg.User = &user.User{
			ID:        row.OwnerID.String,
			Name:      row.OwnerName.String,
			Email:     row.OwnerEmail.String,
			IsActive:  row.OwnerIsActive.Bool,
			CreatedAt: row.OwnerCreatedAt.Time.UTC(),
			UpdatedAt: row.OwnerUpdatedAt.Time.UTC(),
		}
	}
	return reg
}

func (repo registrationRepository) GetSeminar(ctx context.Context, id string, exec ...core.DBExecutor) (seminar.Seminar, error) {
	var row seminarRow
	if err := queries.Raw(selectSeminar, id).Bind(ctx, repo.getExec(exec), &row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return seminar.Seminar{}, seminar.ErrNotFound
		}
		return seminar.Seminar{}, dbError(err, "getting seminar")
	}
	return seminar.Seminar{
		ID:       row.ID,
		Title:    row.Title,
		Kind:     row.Kind,
		StartsAt: row.StartsAt.UTC(),
		EndsAt:   row.EndsAt.Time.UTC(),
		Location: row.Location,
	}, nil
}

// whereIn renders "<col> IN ($n,...)" for values, numbering placeholders after args.
func whereIn(col string, values []string, args []interface{}) (string, []interface{}) {
	clause := fmt.Sprintf("%s IN (%s)", col, strmangle.Placeholders(true, len(values), len(args)+1, 1))
	for _, v := range values {
		args = append(args, v)
	}
	return clause, args
}

func registrationsQuery(filter seminar.RegistrationFilter) (string, []interface{}) {
	var (
		where []string
		args  []interface{}
		c     string
	)
	if len(filter.IDs) > 0 {
		c, args = whereIn("r.id", filter.IDs, args)
		where = append(where, c)
	}
	if len(filter.SeminarIDs) > 0 {
		c, args = whereIn("r.seminar_id", filter.SeminarIDs, args)
		where = append(where, c)
	}
	if filter.Attended != nil {
		args = append(args, *filter.Attended)
		where = append(where, fmt.Sprintf("r.attended = $%d", len(args)))
	}
	if filter.CertificatePending {
		where = append(where, "r.certificate_issued_at IS NULL")
	}
	if !filter.StartsFrom.IsZero() {
		args = append(args, filter.StartsFrom.UTC())
		where = append(where, fmt.Sprintf("s.starts_at >= $%d", len(args)))
	}
	if !filter.StartsTo.IsZero() {
		args = append(args, filter.StartsTo.UTC())
		where = append(where, fmt.Sprintf("s.starts_at <= $%d", len(args)))
	}

	q := selectRegistrations
	if len(where) > 0 {
		q += "\nWHERE " + strings.Join(where, " AND ")
	}
	q += "\nORDER BY " + core.OrderByClause(
		core.DBOrdering{Field: "r.created_at", Ascending: true},
		core.DBOrdering{Field: "r.id", Ascending: true},
	)
	return q, args
}

func (repo registrationRepository) QueryRegistrations(ctx context.Context, filter seminar.RegistrationFilter, exec ...core.DBExecutor) ([]seminar.Registration, error) {
	query, args := registrationsQuery(filter)

	var rows []registrationRow
	if err := queries.Raw(query, args...).Bind(ctx, repo.getExec(exec), &rows); err != nil {
		return nil, dbError(err, "querying registrations")
	}

	regs := make([]seminar.Registration, 0, len(rows))
	for _, row := range rows {
		regs = append(regs, repo.unboil(row))
	}
	return regs, nil
}

func markIssuedQuery(ids []string, at time.Time) (string, []interface{}) {
	args := []interface{}{at.UTC()}
	in, args := whereIn("id", ids, args)
	return "UPDATE registrations SET certificate_issued_at = $1 WHERE certificate_issued_at IS NULL AND " + in, args
}

func (repo registrationRepository) MarkCertificatesIssued(ctx context.Context, ids []string, at time.Time, exec ...core.DBExecutor) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args := markIssuedQuery(ids, at)

	res, err := queries.Raw(query, args...).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return 0, dbError(err, "marking certificates issued")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "counting issued certificates")
	}
	return int(cnt), nil
}
