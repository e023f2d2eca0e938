package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/trezcool/warsha/core"
	"github.com/trezcool/warsha/core/dispatch"
	"github.com/trezcool/warsha/services/email"
	"github.com/trezcool/warsha/services/logger"
	"github.com/trezcool/warsha/services/queue"
	"github.com/trezcool/warsha/storage/database"
	"github.com/trezcool/warsha/storage/database/sqlboiler"
	"github.com/trezcool/warsha/storage/database/sqlx"
)

var logger *logsvc.RollbarLogger

func main() {
	conf := core.NewConfig()
	logger = logsvc.NewRollbarLogger(logsvc.NewZerolog(os.Stderr, "ADMIN", conf), conf)
	logger.Enable(!conf.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, conf)
	stop()
	logger.Close()
	os.Exit(code)
}

func run(ctx context.Context, conf *core.Config) int {
	// set up DBs
	db, err := database.Open(conf)
	if err != nil {
		logger.Error("opening database", err)
		return 1
	}
	defer func() { _ = db.Close() }()
	if err = database.Ping(db); err != nil {
		logger.Error("pinging database", err)
		return 1
	}

	legacyDB, err := database.OpenLegacy(conf)
	if err != nil {
		logger.Error("opening legacy database", err)
		return 1
	}
	defer func() { _ = legacyDB.Close() }()

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(os.Stdout, conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf)
	}

	// enqueue only when a worker can pick the jobs up
	var async dispatch.Executor
	if conf.Queue.Backend == "nats" {
		backend, err := queue.NewNATS(conf.Queue, logsvc.NewWatermillAdapter(logger, conf.Debug), false)
		if err != nil {
			logger.Error("connecting to queue", err)
			return 1
		}
		defer func() { _ = backend.Close() }()
		async = queue.NewExecutor(backend.Publisher, conf.Queue.Topic, nil)
	}

	// start CLI
	cli := commandLine{
		conf:    conf,
		out:     core.NewWriterOutput(os.Stdout, term.IsTerminal(int(os.Stdout.Fd()))),
		logger:  logger,
		db:      db,
		regRepo: boiledrepos.NewRegistrationRepository(db),
		mailSvc: mailSvc,
		async:   async,
		legacy:  sqlxrepos.NewTableStore(legacyDB),
		current: sqlxrepos.NewTableStore(db),
		now:     func() time.Time { return time.Now().UTC() },
	}
	if err = cli.run(ctx, os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("admin %s", os.Args[1]), err)
			_, _ = fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		return 1
	}
	return 0
}
