package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/warsha/apps/api/echo"
	"github.com/trezcool/warsha/core"
	"github.com/trezcool/warsha/core/seminar"
	emailsvc "github.com/trezcool/warsha/services/email"
	logsvc "github.com/trezcool/warsha/services/logger"
	"github.com/trezcool/warsha/services/queue"
	"github.com/trezcool/warsha/storage/database"
	boiledrepos "github.com/trezcool/warsha/storage/database/sqlboiler"
)

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	depsParam struct {
		dig.In
		Conf       *core.Config
		Logger     core.Logger
		RegRepo    seminar.Repository
		MailSvc    core.EmailService
		Backend    *queue.Backend
		Registry   *prometheus.Registry
		Validate   *validator.Validate
		Translator ut.Translator
	}
)

func newLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(logsvc.NewZerolog(os.Stdout, "API", conf), conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(logsvc.NewZerolog(os.Stdout, "DB", conf), conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, core.DBExecutor) {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(context.Background(), db, loggerParam.Logger, "up"); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, db
}

func newEmailService(conf *core.Config) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(os.Stdout, conf)
	}
	return emailsvc.NewSendgridService(conf)
}

func newRegistrationRepository(exec core.DBExecutor) seminar.Repository {
	return boiledrepos.NewRegistrationRepository(exec)
}

// newQueueBackend connects to NATS; the in-memory backend has no worker to serve it, so none is returned.
func newQueueBackend(conf *core.Config, logger core.Logger) (*queue.Backend, error) {
	if conf.Queue.Backend != "nats" {
		return nil, nil
	}
	return queue.NewNATS(conf.Queue, logsvc.NewWatermillAdapter(logger, conf.Debug), false)
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

func newDeps(p depsParam) *echoapi.Deps {
	deps := &echoapi.Deps{
		RegRepo:    p.RegRepo,
		MailSvc:    p.MailSvc,
		Gatherer:   p.Registry,
		Validate:   p.Validate,
		Translator: p.Translator,
	}
	if p.Backend != nil {
		deps.Async = queue.NewExecutor(p.Backend.Publisher, p.Conf.Queue.Topic, queue.NewMetrics(p.Registry))
	}
	return deps
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newEmailService))
	must(c.Provide(newRegistrationRepository))
	must(c.Provide(newQueueBackend))
	must(c.Provide(newRegistry))
	must(c.Provide(core.NewValidator))
	must(c.Provide(newDeps))
	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
