package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/warsha/core"
	"github.com/trezcool/warsha/core/dispatch"
	"github.com/trezcool/warsha/core/seminar"
)

var errSemNotFoundInCtx = errors.New("seminar object not found in echo.Context")

type (
	// RegistrationQuery filters the registrations of a seminar.
	RegistrationQuery struct {
		Attended *bool
		Pending  bool
	}

	// DispatchRequest is the body of the dispatch endpoints; an empty body is valid.
	DispatchRequest struct {
		Sync bool `json:"sync"`
		// WindowHours overrides the configured reminder window; reminders only.
		WindowHours int `json:"window_hours" validate:"gte=0,lte=8760"`
	}

	DispatchResponse struct {
		Dispatched int `json:"dispatched"`
	}
)

func (q *RegistrationQuery) Bind(ctx echo.Context) error {
	b := echo.QueryParamsBinder(ctx).Bool("pending", &q.Pending)
	if ctx.QueryParam("attended") != "" {
		var attended bool
		b = b.Bool("attended", &attended)
		q.Attended = &attended
	}
	if err := b.BindError(); err != nil {
		return core.NewValidationError(err)
	}
	return nil
}

func (r DispatchRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

func (r DispatchRequest) window(def time.Duration) time.Duration {
	if r.WindowHours > 0 {
		return time.Duration(r.WindowHours) * time.Hour
	}
	return def
}

type seminarApi struct {
	conf     *core.Config
	repo     seminar.Repository
	mailSvc  core.EmailService
	async    dispatch.Executor
	validate *validator.Validate
	now      func() time.Time
}

func registerSeminarAPI(g *echo.Group, api *seminarApi) {
	sg := g.Group("/seminars/:id", seminarMiddleware(api.repo))
	sg.GET("/registrations", api.queryRegistrations)
	sg.POST("/reminders", api.dispatchReminders)
	sg.POST("/certificates", api.dispatchCertificates)
}

func contextSeminar(ctx echo.Context) (seminar.Seminar, error) {
	sem, ok := ctx.Get(contextObjectKey).(seminar.Seminar)
	if !ok {
		return seminar.Seminar{}, errors.Wrap(errSemNotFoundInCtx, "retrieving object from context")
	}
	return sem, nil
}

// Handlers

func (api *seminarApi) queryRegistrations(ctx echo.Context) error {
	sem, err := contextSeminar(ctx)
	if err != nil {
		return err
	}
	var q RegistrationQuery
	if err = q.Bind(ctx); err != nil {
		return err
	}

	regs, err := api.repo.QueryRegistrations(ctx.Request().Context(), seminar.RegistrationFilter{
		SeminarIDs:         []string{sem.ID},
		Attended:           q.Attended,
		CertificatePending: q.Pending,
	})
	if err != nil {
		return errors.Wrap(err, "querying registrations")
	}
	return ctx.JSON(http.StatusOK, regs)
}

func (api *seminarApi) bindDispatch(ctx echo.Context) (seminar.Seminar, DispatchRequest, error) {
	var data DispatchRequest
	sem, err := contextSeminar(ctx)
	if err != nil {
		return sem, data, err
	}
	if err = ctx.Bind(&data); err != nil {
		return sem, data, errors.Wrap(err, "binding to DispatchRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return sem, data, err
	}
	return sem, data, nil
}

func (api *seminarApi) dispatchReminders(ctx echo.Context) error {
	sem, data, err := api.bindDispatch(ctx)
	if err != nil {
		return err
	}
	batch := seminar.ReminderBatch(api.repo, api.mailSvc, api.conf, api.now(), data.window(api.conf.Dispatch.ReminderWindow), sem.ID)
	return api.dispatch(ctx, batch, data.Sync)
}

func (api *seminarApi) dispatchCertificates(ctx echo.Context) error {
	sem, data, err := api.bindDispatch(ctx)
	if err != nil {
		return err
	}
	return api.dispatch(ctx, seminar.CertificateBatch(api.repo, api.mailSvc, api.conf, sem.ID), data.Sync)
}

func (api *seminarApi) dispatch(ctx echo.Context, batch seminar.Batch, sync bool) error {
	d := dispatch.NewDispatcher(dispatch.SelectExecutor(sync, api.async), nil)
	n, err := batch.Dispatch(ctx.Request().Context(), api.repo, d)
	if err != nil {
		return errors.Wrapf(err, "dispatching %s", batch.Kind.Name())
	}
	return ctx.JSON(http.StatusOK, DispatchResponse{Dispatched: n})
}
