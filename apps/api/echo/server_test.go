package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/warsha/apps/api/echo"
	"github.com/trezcool/warsha/core"
	"github.com/trezcool/warsha/core/dispatch"
	"github.com/trezcool/warsha/core/migrate"
	"github.com/trezcool/warsha/core/seminar"
	"github.com/trezcool/warsha/core/user"
	"github.com/trezcool/warsha/storage/database/inmem"
	"github.com/trezcool/warsha/tests"
)

const apiKey = "s3cr3t"

var future = time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)

type queued struct {
	calls map[string][]string
}

func (q *queued) Execute(ctx context.Context, kind dispatch.JobKind, usr user.User, keys []string) error {
	q.calls[kind.Name()+":"+usr.ID] = keys
	return nil
}

type env struct {
	app     *Server
	mailbox *testutil.Mailbox
	logger  *testutil.Logger
	queue   *queued
	db      *inmemdb.DB
}

func setup(t *testing.T, async bool) *env {
	t.Helper()
	conf := &core.Config{AppName: "Warsha", TestMode: true, DefaultFromEmail: mail.Address{Address: "noreply@warsha.test"}}
	conf.API.Key = apiKey
	conf.Dispatch.ReminderWindow = 7 * 24 * time.Hour

	db := inmemdb.Open()
	db.Seed(inmemdb.UsersTable,
		migrate.Record{"id": "u1", "name": "Amani", "email": "amani@warsha.test", "is_active": true},
		migrate.Record{"id": "u2", "name": "Baraka", "email": "baraka@warsha.test", "is_active": true},
	)
	db.Seed(inmemdb.SeminarsTable,
		migrate.Record{"id": "s1", "title": "Intro to Go", "kind": seminar.KindSeminar, "starts_at": future},
		migrate.Record{"id": "s2", "title": "Soldering", "kind": seminar.KindWorkshop, "starts_at": future.Add(-96 * time.Hour)},
	)
	db.Seed(inmemdb.RegistrationsTable,
		migrate.Record{"id": "r1", "seminar_id": "s1", "user_id": "u1", "created_at": future.Add(-time.Hour)},
		migrate.Record{"id": "r2", "seminar_id": "s1", "user_id": "u2", "created_at": future.Add(-time.Minute)},
		migrate.Record{"id": "r3", "seminar_id": "s2", "user_id": "u1", "attended": true, "created_at": future},
		migrate.Record{"id": "r4", "seminar_id": "s2", "user_id": "u2", "attended": false, "created_at": future},
	)

	e := &env{mailbox: new(testutil.Mailbox), logger: new(testutil.Logger), queue: &queued{calls: make(map[string][]string)}, db: db}
	validate, translator := core.NewValidator()
	deps := &Deps{
		RegRepo:    inmemdb.NewRegistrationRepository(db),
		MailSvc:    e.mailbox,
		Gatherer:   prometheus.NewRegistry(),
		Validate:   validate,
		Translator: translator,
	}
	if async {
		deps.Async = e.queue
	}
	e.app = NewServer(conf, e.logger, deps)
	return e
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     string
	key      string
	wantCode int
	wantData string
}

func newRequest(method, path, key, body string) (*http.Request, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	return req, httptest.NewRecorder()
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData != "" {
		assert.JSONEq(t, tt.wantData, rec.Body.String())
	}
}

func TestServer_auth(t *testing.T) {
	e := setup(t, false)
	tests := []httpTest{
		{name: "home", method: http.MethodGet, path: "/", wantCode: http.StatusOK},
		{name: "metrics", method: http.MethodGet, path: "/metrics", wantCode: http.StatusOK},
		{name: "missing key", method: http.MethodGet, path: "/api/seminars/s1/registrations", wantCode: http.StatusUnauthorized, wantData: `{"error":"missing API key"}`},
		{name: "wrong key", method: http.MethodGet, path: "/api/seminars/s1/registrations", key: "lol", wantCode: http.StatusForbidden, wantData: `{"error":"invalid API key"}`},
		{name: "unknown seminar", method: http.MethodGet, path: "/api/seminars/nope/registrations", key: apiKey, wantCode: http.StatusNotFound, wantData: `{"error":"not found"}`},
		{name: "unknown route", method: http.MethodGet, path: "/api/lol", key: apiKey, wantCode: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.key, tt.body)
			e.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
	assert.Empty(t, e.logger.Errors)
}

func TestServer_home(t *testing.T) {
	e := setup(t, false)
	req, rec := newRequest(http.MethodGet, "/", "", "")
	e.app.ServeHTTP(rec, req)
	assert.Equal(t, "Welcome to Warsha API!", rec.Body.String())
}

func TestSeminarApi_queryRegistrations(t *testing.T) {
	e := setup(t, false)
	ids := func(rec *httptest.ResponseRecorder) []string {
		var regs []seminar.Registration
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &regs))
		out := make([]string, 0, len(regs))
		for _, r := range regs {
			out = append(out, r.ID)
		}
		return out
	}

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantIDs  []string
	}{
		{name: "all", path: "/api/seminars/s1/registrations", wantCode: http.StatusOK, wantIDs: []string{"r1", "r2"}},
		{name: "trailing slash", path: "/api/seminars/s1/registrations/", wantCode: http.StatusOK, wantIDs: []string{"r1", "r2"}},
		{name: "attended", path: "/api/seminars/s2/registrations?attended=true", wantCode: http.StatusOK, wantIDs: []string{"r3"}},
		{name: "absent", path: "/api/seminars/s2/registrations?attended=false", wantCode: http.StatusOK, wantIDs: []string{"r4"}},
		{name: "pending", path: "/api/seminars/s2/registrations?pending=true", wantCode: http.StatusOK, wantIDs: []string{"r3", "r4"}},
		{name: "empty", path: "/api/seminars/s1/registrations?attended=true", wantCode: http.StatusOK, wantIDs: []string{}},
		{name: "bad bool", path: "/api/seminars/s1/registrations?attended=lol", wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodGet, tt.path, apiKey, "")
			e.app.ServeHTTP(rec, req)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantIDs != nil {
				assert.Equal(t, tt.wantIDs, ids(rec))
			}
		})
	}
}

func TestSeminarApi_dispatch(t *testing.T) {
	tests := []struct {
		httpTest
		async     bool
		wantMails []string // recipients
		wantQueue map[string][]string
	}{
		{
			httpTest:  httpTest{name: "reminders inline", path: "/api/seminars/s1/reminders", wantCode: http.StatusOK, wantData: `{"dispatched":2}`},
			wantMails: []string{"amani@warsha.test", "baraka@warsha.test"},
		},
		{
			httpTest:  httpTest{name: "reminders queued", path: "/api/seminars/s1/reminders", wantCode: http.StatusOK, wantData: `{"dispatched":2}`},
			async:     true,
			wantQueue: map[string][]string{"seminar.reminder:u1": {"r1"}, "seminar.reminder:u2": {"r2"}},
		},
		{
			httpTest:  httpTest{name: "reminders forced sync", path: "/api/seminars/s1/reminders", body: `{"sync":true}`, wantCode: http.StatusOK, wantData: `{"dispatched":2}`},
			async:     true,
			wantMails: []string{"amani@warsha.test", "baraka@warsha.test"},
		},
		{
			httpTest: httpTest{name: "reminders out of window", path: "/api/seminars/s1/reminders", body: `{"window_hours":1}`, wantCode: http.StatusOK, wantData: `{"dispatched":0}`},
		},
		{
			httpTest: httpTest{name: "invalid window", path: "/api/seminars/s1/reminders", body: `{"window_hours":-1}`, wantCode: http.StatusBadRequest},
		},
		{
			httpTest: httpTest{name: "malformed body", path: "/api/seminars/s1/reminders", body: `{"sync":`, wantCode: http.StatusBadRequest},
		},
		{
			httpTest:  httpTest{name: "certificates", path: "/api/seminars/s2/certificates", wantCode: http.StatusOK, wantData: `{"dispatched":1}`},
			wantMails: []string{"amani@warsha.test"},
		},
		{
			httpTest:  httpTest{name: "certificates queued", path: "/api/seminars/s2/certificates", wantCode: http.StatusOK, wantData: `{"dispatched":1}`},
			async:     true,
			wantQueue: map[string][]string{"seminar.certificate:u1": {"r3"}},
		},
		{
			httpTest: httpTest{name: "unknown seminar", path: "/api/seminars/nope/certificates", wantCode: http.StatusNotFound},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := setup(t, tt.async)
			req, rec := newRequest(http.MethodPost, tt.path, apiKey, tt.body)
			e.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt.httpTest, rec)

			var got []string
			for _, msg := range e.mailbox.Messages() {
				got = append(got, msg.To[0].Address)
			}
			assert.Equal(t, tt.wantMails, got)
			if tt.wantQueue != nil {
				assert.Equal(t, tt.wantQueue, e.queue.calls)
			} else {
				assert.Empty(t, e.queue.calls)
			}
		})
	}
}

func TestSeminarApi_dispatchFailure(t *testing.T) {
	e := setup(t, false)
	e.mailbox.Err = assert.AnError

	req, rec := newRequest(http.MethodPost, "/api/seminars/s2/certificates", apiKey, "")
	e.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error"}`, rec.Body.String())
	assert.Len(t, e.logger.Errors, 1)

	// nothing was issued: the certificate is still pending
	regs, err := inmemdb.NewRegistrationRepository(e.db).QueryRegistrations(context.Background(), seminar.Certifiable("s2"))
	require.NoError(t, err)
	assert.Len(t, regs, 1)
}

// lostRepo fails like a repository whose database connection is gone.
type lostRepo struct {
	seminar.Repository
}

func (lostRepo) GetSeminar(context.Context, string, ...core.DBExecutor) (seminar.Seminar, error) {
	return seminar.Seminar{}, core.NewShutdownError("getting seminar: database connection lost")
}

func TestServer_shutdownOnConnectionLoss(t *testing.T) {
	conf := &core.Config{AppName: "Warsha", TestMode: true}
	conf.API.Key = apiKey
	validate, translator := core.NewValidator()
	logger := new(testutil.Logger)
	app := NewServer(conf, logger, &Deps{
		RegRepo:    lostRepo{},
		MailSvc:    new(testutil.Mailbox),
		Gatherer:   prometheus.NewRegistry(),
		Validate:   validate,
		Translator: translator,
	})

	req, rec := newRequest(http.MethodGet, "/api/seminars/s1/registrations", apiKey, "")
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Len(t, logger.Errors, 1)

	select {
	case <-app.ShutdownSignal():
	default:
		t.Fatal("server was not asked to shut down")
	}

	// a second failure does not block
	req, rec = newRequest(http.MethodGet, "/api/seminars/s1/registrations", apiKey, "")
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
