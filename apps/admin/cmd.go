package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/warsha/core"
	"github.com/trezcool/warsha/core/dispatch"
	"github.com/trezcool/warsha/core/migrate"
	"github.com/trezcool/warsha/core/seminar"
	"github.com/trezcool/warsha/storage/database"
)

var (
	gooseRunFunc = database.Migrate // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf    *core.Config
	out     core.Output
	logger  core.Logger
	usage   io.Writer
	db      *sqlx.DB
	regRepo seminar.Repository
	mailSvc core.EmailService
	async   dispatch.Executor // nil when no queue is configured
	legacy  migrate.Reader
	current migrate.Writer
	now     func() time.Time
}

func (cli *commandLine) printUsage() {
	w := cli.usageOutput()
	_, _ = fmt.Fprintln(w, "Usage:")
	_, _ = fmt.Fprintln(w, "  migrate COMMAND [ARGS]   - run a schema migration command (up, down, status, version, redo, reset...)")
	_, _ = fmt.Fprintln(w, "  dispatch -job KIND       - send one job per user for the selected registrations")
	_, _ = fmt.Fprintln(w, "  migratelegacy            - copy tables of the legacy database into the current one")
}

func (cli *commandLine) usageOutput() io.Writer {
	if cli.usage == nil {
		return os.Stdout
	}
	return cli.usage
}

func (cli *commandLine) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.usageOutput())
	return fs
}

// parse maps -h to errHelp.
func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return errHelp
		}
		return err
	}
	return nil
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			_, _ = fmt.Fprintln(cli.usageOutput(), "Usage: migrate COMMAND [ARGS]")
			return errHelp
		}
		return cli.migrate(ctx, args[2:])

	case "dispatch":
		dispatchCmd := cli.flagSet("dispatch")
		job := dispatchCmd.String("job", "", "The job to dispatch: reminder|certificate.")
		seminars := dispatchCmd.String("seminar", "", "Comma separated seminar IDs. Defaults to every seminar.")
		sync := dispatchCmd.Bool("sync", cli.conf.Dispatch.Sync, "Run the jobs now instead of queueing them.")
		window := dispatchCmd.Duration("window", cli.conf.Dispatch.ReminderWindow, "Reminders only: how far ahead to look for upcoming seminars.")
		if err := parse(dispatchCmd, args[2:]); err != nil {
			return err
		}
		if *job == "" {
			dispatchCmd.Usage()
			return errHelp
		}
		return cli.dispatch(ctx, dispatchOptions{
			job:        *job,
			seminarIDs: core.SplitList(*seminars),
			sync:       *sync,
			window:     *window,
		})

	case "migratelegacy":
		legacyCmd := cli.flagSet("migratelegacy")
		all := legacyCmd.Bool("all", false, "Run every built-in plan: "+strings.Join(legacyPlanNames, ", ")+".")
		table := legacyCmd.String("table", "", "Run one built-in plan.")
		source := legacyCmd.String("source", "", "Legacy table to copy (ad-hoc copy).")
		dest := legacyCmd.String("dest", "", "Destination table (ad-hoc copy).")
		fieldMap := legacyCmd.String("map", "", "Column renames, e.g. old:new,old2:new2 (ad-hoc copy).")
		order := legacyCmd.String("order", migrate.DefaultOrderColumn, "Unique column to page on (ad-hoc copy).")
		pageSize := legacyCmd.Int("pagesize", cli.conf.Migrate.PageSize, "Rows per page.")
		if err := parse(legacyCmd, args[2:]); err != nil {
			return err
		}

		plan, err := cli.legacyPlan(*all, *table, *source, *dest, *fieldMap, *order)
		if err != nil {
			return err
		}
		if len(plan) == 0 {
			legacyCmd.Usage()
			return errHelp
		}
		return cli.migrateLegacy(ctx, *pageSize, plan)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) legacyPlan(all bool, table, source, dest, fieldMap, order string) ([]migrate.TableMigration, error) {
	plans := legacyPlans()
	switch {
	case all:
		plan := make([]migrate.TableMigration, 0, len(legacyPlanNames))
		for _, name := range legacyPlanNames {
			plan = append(plan, plans[name])
		}
		return plan, nil
	case table != "":
		tm, ok := plans[table]
		if !ok {
			names := make([]string, 0, len(plans))
			for name := range plans {
				names = append(names, name)
			}
			sort.Strings(names)
			return nil, fmt.Errorf("unknown table %q, want one of: %s", table, strings.Join(names, ", "))
		}
		return []migrate.TableMigration{tm}, nil
	case source != "" || dest != "":
		fm, err := parseFieldMap(fieldMap)
		if err != nil {
			return nil, err
		}
		if dest == "" {
			dest = source
		}
		return []migrate.TableMigration{{Source: source, Destination: dest, FieldMap: fm, OrderColumn: order}}, nil
	}
	return nil, nil
}
