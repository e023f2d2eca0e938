package main

import (
	"fmt"
	"strings"

	"github.com/trezcool/warsha/core"
	"github.com/trezcool/warsha/core/migrate"
	"github.com/trezcool/warsha/core/seminar"
)

// keepColumns drops every column not listed.
func keepColumns(cols ...string) migrate.Transform {
	return func(r migrate.Record) migrate.Result {
		kept := make(migrate.Record, len(cols))
		for _, c := range cols {
			if v, ok := r[c]; ok {
				kept[c] = v
			}
		}
		return migrate.Keep(kept)
	}
}

// stringIDs turns the integer keys of the legacy schema into text ids, prefixed when prefix is set.
func stringIDs(prefix string, cols ...string) migrate.Transform {
	return func(r migrate.Record) migrate.Result {
		for _, c := range cols {
			if v, ok := r[c]; ok && v != nil {
				r[c] = prefix + fmt.Sprint(v)
			}
		}
		return migrate.Keep(r)
	}
}

func set(col string, val interface{}) migrate.Transform {
	return func(r migrate.Record) migrate.Result {
		r[col] = val
		return migrate.Keep(r)
	}
}

// requireEmail omits users without a usable email address.
func requireEmail(r migrate.Record) migrate.Result {
	email, _ := r["email"].(string)
	email = core.CleanString(email, true)
	if email == "" || !strings.Contains(email, "@") {
		return migrate.Omit()
	}
	r["email"] = email
	return migrate.Keep(r)
}

const workshopIDPrefix = "w"

// legacyPlanNames lists the built-in plans in the order -all runs them.
var legacyPlanNames = []string{"users", "seminars", "workshops", "registrations", "workshop_registrations"}

// legacyPlans describes how each legacy table lands in the current schema.
// Workshops and seminars share the seminars table; workshop ids are prefixed to keep them apart.
func legacyPlans() map[string]migrate.TableMigration {
	return map[string]migrate.TableMigration{
		"users": {
			Source:      "users",
			Destination: "users",
			FieldMap:    migrate.FieldMap{"full_name": "name", "active": "is_active", "created": "created_at", "modified": "updated_at"},
			Transform: migrate.Chain(
				keepColumns("id", "name", "email", "is_active", "created_at", "updated_at", "deleted_at"),
				requireEmail,
				stringIDs("", "id"),
			),
		},
		"seminars": {
			Source:      "seminars",
			Destination: "seminars",
			FieldMap:    migrate.FieldMap{"name": "title", "start_date": "starts_at", "end_date": "ends_at", "venue": "location"},
			Transform: migrate.Chain(
				keepColumns("id", "title", "starts_at", "ends_at", "location"),
				stringIDs("", "id"),
				set("kind", seminar.KindSeminar),
			),
		},
		"workshops": {
			Source:      "workshops",
			Destination: "seminars",
			FieldMap:    migrate.FieldMap{"name": "title", "start_date": "starts_at", "end_date": "ends_at", "venue": "location"},
			Transform: migrate.Chain(
				keepColumns("id", "title", "starts_at", "ends_at", "location"),
				stringIDs(workshopIDPrefix, "id"),
				set("kind", seminar.KindWorkshop),
			),
		},
		"registrations": {
			Source:      "seminar_user",
			Destination: "registrations",
			FieldMap:    migrate.FieldMap{"present": "attended", "certificate_sent_at": "certificate_issued_at", "created": "created_at"},
			Transform: migrate.Chain(
				keepColumns("id", "seminar_id", "user_id", "attended", "certificate_issued_at", "created_at"),
				stringIDs("", "id", "seminar_id", "user_id"),
			),
		},
		"workshop_registrations": {
			Source:      "user_workshop",
			Destination: "registrations",
			FieldMap:    migrate.FieldMap{"workshop_id": "seminar_id", "present": "attended", "certificate_sent_at": "certificate_issued_at", "created": "created_at"},
			Transform: migrate.Chain(
				keepColumns("id", "seminar_id", "user_id", "attended", "certificate_issued_at", "created_at"),
				stringIDs(workshopIDPrefix, "id", "seminar_id"),
				stringIDs("", "user_id"),
			),
		},
	}
}

// parseFieldMap parses "old:new,old2:new2".
func parseFieldMap(s string) (migrate.FieldMap, error) {
	fm := make(migrate.FieldMap)
	for _, pair := range core.SplitList(s) {
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 || core.CleanString(parts[0]) == "" || core.CleanString(parts[1]) == "" {
			return nil, fmt.Errorf("invalid field mapping %q, want old:new", pair)
		}
		fm[core.CleanString(parts[0])] = core.CleanString(parts[1])
	}
	return fm, nil
}
