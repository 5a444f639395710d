package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/twiced-technology-gmbh/taskorder/internal/clierr"
	"github.com/twiced-technology-gmbh/taskorder/internal/store"
)

// ErrorBody is the JSON body of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusOf maps a handler error to its HTTP status and error code.
func statusOf(err error) (int, string) {
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &httpErr):
		return httpErr.Code, strings.ToUpper(strings.ReplaceAll(http.StatusText(httpErr.Code), " ", "_"))
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, clierr.TaskNotFound
	case errors.Is(err, store.ErrStaleWrite):
		return http.StatusConflict, clierr.StaleWrite
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, clierr.Conflict
	case errors.Is(err, store.ErrValidation):
		return http.StatusUnprocessableEntity, clierr.InvalidInput
	}

	code := clierr.CodeOf(err)
	switch code {
	case clierr.InternalError:
		return http.StatusInternalServerError, code
	case clierr.PermissionDenied:
		return http.StatusForbidden, code
	case clierr.TaskNotFound:
		return http.StatusNotFound, code
	case clierr.Conflict:
		return http.StatusConflict, code
	default:
		return http.StatusBadRequest, code
	}
}

func errorHandler(logger log.FieldLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, code := statusOf(err)
		msg := err.Error()
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			if s, ok := httpErr.Message.(string); ok {
				msg = s
			}
		}
		if status >= http.StatusInternalServerError {
			logger.WithError(err).WithField("path", c.Request().URL.Path).Error("internal error")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, ErrorBody{Error: msg, Code: code})
		}
		if err != nil {
			logger.WithError(err).Warn("writing error response")
		}
	}
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return clierr.Newf(clierr.InvalidInput, "invalid body: %v", err)
	}
	return nil
}
