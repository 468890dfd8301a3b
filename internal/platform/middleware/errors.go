package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ErrorBody is the JSON shape of every non-2xx response.
type ErrorBody struct {
	Message string `json:"message"`
}

// HTTPErrorHandler renders errors as {"message": "..."}. Internal errors are
// logged and replaced with a generic message.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		msg := http.StatusText(code)

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			switch m := he.Message.(type) {
			case string:
				msg = m
			case error:
				msg = m.Error()
			default:
				msg = fmt.Sprintf("%v", m)
			}
			if he.Internal != nil {
				logger.Debug().Err(he.Internal).Int("status", code).Msg("http error")
			}
		} else {
			rid, _ := c.Get(requestIDKey).(string)
			logger.Error().Err(err).Str("request_id", rid).Msg("unhandled error")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, ErrorBody{Message: msg})
		}
		if err != nil {
			logger.Error().Err(err).Msg("write error response")
		}
	}
}
