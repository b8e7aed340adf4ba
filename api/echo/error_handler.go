package echo

import (
	stderrors "errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/ruicore/dingbridge/errors"
)

// HTTPErrorHandler maps errors onto the {errcode, errmsg} wire body. Gateway
// errors carry their own status code; everything else is an opaque 500.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var ge *errors.GatewayError
	if stderrors.As(err, &ge) {
		if writeErr := c.JSON(ge.Code, ge); writeErr != nil {
			log.Error().Err(writeErr).Msg("failed to write error response")
		}
		return
	}

	var he *echo.HTTPError
	if stderrors.As(err, &he) {
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		_ = c.JSON(he.Code, map[string]any{"errcode": he.Code, "errmsg": msg})
		return
	}

	log.Error().Err(err).Msg("unhandled error")
	_ = c.JSON(http.StatusInternalServerError, map[string]any{
		"errcode": http.StatusInternalServerError,
		"errmsg":  "internal error",
	})
}
