package inmemdb

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/trezcool/warsha/core"
	"github.com/trezcool/warsha/core/migrate"
	"github.com/trezcool/warsha/core/seminar"
	"github.com/trezcool/warsha/core/user"
)

// Table names shared with the SQL schema.
const (
	UsersTable         = "users"
	SeminarsTable      = "seminars"
	RegistrationsTable = "registrations"
)

type registrationRepository struct {
	db *DB
}

var _ seminar.Repository = (*registrationRepository)(nil)

// NewRegistrationRepository reads registrations from the users, seminars and registrations tables of db.
func NewRegistrationRepository(db *DB) seminar.Repository {
	return &registrationRepository{db: db}
}

func (repo *registrationRepository) GetSeminar(ctx context.Context, id string, _ ...core.DBExecutor) (seminar.Seminar, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	for _, r := range repo.db.tables[SeminarsTable] {
		if asString(r["id"]) == id {
			return unboilSeminar(r), nil
		}
	}
	return seminar.Seminar{}, seminar.ErrNotFound
}

func (repo *registrationRepository) QueryRegistrations(ctx context.Context, filter seminar.RegistrationFilter, _ ...core.DBExecutor) ([]seminar.Registration, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	users := make(map[string]user.User)
	for _, r := range repo.db.tables[UsersTable] {
		if r["deleted_at"] != nil {
			continue
		}
		usr := unboilUser(r)
		users[usr.ID] = usr
	}
	seminars := make(map[string]seminar.Seminar)
	for _, r := range repo.db.tables[SeminarsTable] {
		sem := unboilSeminar(r)
		seminars[sem.ID] = sem
	}

	regs := make([]seminar.Registration, 0)
	for _, r := range repo.db.tables[RegistrationsTable] {
		reg := seminar.Registration{
			ID:        asString(r["id"]),
			SeminarID: asString(r["seminar_id"]),
			UserID:    asString(r["user_id"]),
			Attended:  asBool(r["attended"]),
			CreatedAt: asTime(r["created_at"]),
		}
		if at := asTime(r["certificate_issued_at"]); !at.IsZero() {
			reg.CertificateIssuedAt = &at
		}
		if usr, ok := users[reg.UserID]; ok {
			reg.User = &usr
		}
		reg.Seminar = seminars[reg.SeminarID]
		if filter.Match(reg) {
			regs = append(regs, reg)
		}
	}
	sort.SliceStable(regs, func(i, j int) bool {
		if regs[i].CreatedAt.Equal(regs[j].CreatedAt) {
			return regs[i].ID < regs[j].ID
		}
		return regs[i].CreatedAt.Before(regs[j].CreatedAt)
	})
	return regs, nil
}

func (repo *registrationRepository) MarkCertificatesIssued(ctx context.Context, ids []string, at time.Time, _ ...core.DBExecutor) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var cnt int
	for _, r := range repo.db.tables[RegistrationsTable] {
		if wanted[asString(r["id"])] && r["certificate_issued_at"] == nil {
			r["certificate_issued_at"] = at.UTC()
			cnt++
		}
	}
	return cnt, nil
}

func unboilUser(r migrate.Record) user.User {
	return user.User{
		ID:        asString(r["id"]),
		Name:      asString(r["name"]),
		Email:     asString(r["email"]),
		IsActive:  asBool(r["is_active"]),
		CreatedAt: asTime(r["created_at"]),
		UpdatedAt: asTime(r["updated_at"]),
	}
}

func unboilSeminar(r migrate.Record) seminar.Seminar {
	return seminar.Seminar{
		ID:       asString(r["id"]),
		Title:    asString(r["title"]),
		Kind:     asString(r["kind"]),
		StartsAt: asTime(r["starts_at"]),
		EndsAt:   asTime(r["ends_at"]),
		Location: asString(r["location"]),
	}
}

func asString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	}
	return fmt.Sprint(v)
}

func asBool(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int:
		return b != 0
	case int64:
		return b != 0
	case string:
		return b == "1" || b == "t" || b == "true"
	}
	return false
}

func asTime(v interface{}) time.Time {
	if t, ok := v.(time.Time); ok {
		return t.UTC()
	}
	return time.Time{}
}
