package database

import (
	"io/fs"
	"net/url"
	"strings"
	"testing"

	"github.com/trezcool/warsha/core"
	"github.com/trezcool/warsha/fs"
)

func Test_dsn(t *testing.T) {
	dbc := core.DatabaseConfig{
		Engine:        "postgres",
		Host:          "db.local",
		Port:          5433,
		User:          "app",
		Password:      "s3cr3t",
		AdminUser:     "root",
		AdminPassword: "toor",
		Name:          "warsha",
	}

	tests := []struct {
		name     string
		admin    bool
		tls      bool
		params   url.Values
		wantUser string
		wantSSL  string
		wantRO   bool
	}{
		{name: "app user", wantUser: "app", wantSSL: "require"},
		{name: "admin user", admin: true, wantUser: "root", wantSSL: "require"},
		{name: "tls disabled", tls: true, wantUser: "app", wantSSL: "disable"},
		{
			name:     "read only",
			params:   url.Values{"default_transaction_read_only": {"on"}},
			wantUser: "app",
			wantSSL:  "require",
			wantRO:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := dbc
			conf.DisableTLS = tt.tls
			u, err := url.Parse(dsn(conf, conf.Name, tt.admin, tt.params))
			if err != nil {
				t.Fatalf("url.Parse() error = %v", err)
			}
			if got := u.User.Username(); got != tt.wantUser {
				t.Errorf("dsn() user = %v, want %v", got, tt.wantUser)
			}
			if u.Host != "db.local:5433" || u.Path != "/warsha" {
				t.Errorf("dsn() host/path = %v%v", u.Host, u.Path)
			}
			q := u.Query()
			if got := q.Get("sslmode"); got != tt.wantSSL {
				t.Errorf("dsn() sslmode = %v, want %v", got, tt.wantSSL)
			}
			if got := q.Get("default_transaction_read_only") == "on"; got != tt.wantRO {
				t.Errorf("dsn() read only = %v, want %v", got, tt.wantRO)
			}
		})
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	files, err := fs.Glob(appfs.FS, migrationsDir+"/*.sql")
	if err != nil {
		t.Fatalf("fs.Glob() error = %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no migration embedded")
	}
	for _, f := range files {
		b, err := fs.ReadFile(appfs.FS, f)
		if err != nil {
			t.Fatalf("fs.ReadFile(%s) error = %v", f, err)
		}
		if !strings.Contains(string(b), "-- +goose Up") {
			t.Errorf("%s has no goose Up annotation", f)
		}
	}
}
