package echoapi

import (
	"crypto/subtle"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/warsha/core/seminar"
)

const (
	apiKeyHeader     = "X-API-Key"
	contextObjectKey = "object"
)

// apiKeyMiddleware rejects requests whose X-API-Key does not match key.
// An empty key rejects everything.
func apiKeyMiddleware(key string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			got := ctx.Request().Header.Get(apiKeyHeader)
			if got == "" {
				return errUnauthorized
			}
			if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}

// seminarMiddleware loads the seminar named by the :id param into the context.
func seminarMiddleware(repo seminar.Repository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			sem, err := repo.GetSeminar(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == seminar.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "getting seminar")
			}
			ctx.Set(contextObjectKey, sem)
			return next(ctx)
		}
	}
}
