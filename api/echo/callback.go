// Package echo exposes the gateway's HTTP surface: the platform-facing
// callback endpoints, the shared-secret internal endpoints consumed by the
// local deployment, and the local-side IAM endpoints.
package echo

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/ruicore/dingbridge/domain"
	"github.com/ruicore/dingbridge/errors"
	"github.com/ruicore/dingbridge/handler"
	"github.com/ruicore/dingbridge/internal/dingcrypto"
	"github.com/ruicore/dingbridge/services"
)

// stateDelimiter separates the redirect target from the opaque token inside
// the OAuth state parameter.
const stateDelimiter = "::"

// CallbackAPI terminates the platform-facing endpoints: the encrypted event
// webhook and the user authorization redirect.
type CallbackAPI struct {
	codec      *dingcrypto.Codec
	dispatcher *handler.Dispatcher
	ding       *services.DingService
	repo       domain.Repository
}

// NewCallbackAPI initializes the callback API.
func NewCallbackAPI(codec *dingcrypto.Codec, dispatcher *handler.Dispatcher, ding *services.DingService, repo domain.Repository) *CallbackAPI {
	return &CallbackAPI{codec: codec, dispatcher: dispatcher, ding: ding, repo: repo}
}

// RegisterRoutes registers the callback routes.
func (a *CallbackAPI) RegisterRoutes(e *echo.Echo) {
	e.POST("/dingding/event/pushed", a.EventPushedHandler)
	e.GET("/dingding/auth/user/callback", a.AuthUserCallbackHandler)
}

type eventPushedRequest struct {
	Encrypt string `json:"encrypt"`
}

// EventPushedHandler handles the platform's encrypted event push. The body is
// authenticated and decrypted, routed through the dispatcher, and acknowledged
// with an encrypted "success" envelope. Per the platform contract any failure
// must produce an error response, never a crash.
func (a *CallbackAPI) EventPushedHandler(c echo.Context) error {
	signature := c.QueryParam("msg_signature")
	timestamp := c.QueryParam("timestamp")
	nonce := c.QueryParam("nonce")

	var req eventPushedRequest
	if err := c.Bind(&req); err != nil {
		return errors.NewBadRequest("malformed callback body")
	}

	msg, err := a.codec.Decrypt(signature, timestamp, nonce, req.Encrypt)
	if err != nil {
		log.Error().Err(err).Msg("callback authentication failed")
		return err
	}

	if err := a.dispatcher.Dispatch(c.Request().Context(), []byte(msg)); err != nil {
		log.Error().Err(err).Msg("event dispatch failed")
		return err
	}

	ack, err := a.codec.SignOutbound("success")
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ack)
}

// AuthUserCallbackHandler handles the redirect the platform issues after a
// user authorizes the suite. The auth code is exchanged for the user's
// identity, the record is stored under the code for a single later retrieval,
// and the browser is bounced back to the target encoded in state.
func (a *CallbackAPI) AuthUserCallbackHandler(c echo.Context) error {
	state := c.QueryParam("state")
	authCode := c.QueryParam("authCode")

	parts := strings.Split(state, stateDelimiter)
	if len(parts) != 2 {
		return errors.NewBadRequest("state must be target" + stateDelimiter + "token")
	}

	ctx := c.Request().Context()
	user, err := a.ding.UserInfo(ctx, authCode)
	if err != nil {
		return err
	}
	if err := a.repo.SaveUser(ctx, authCode, user); err != nil {
		return err
	}
	log.Info().Str("user_id", user.UserID).Msg("user authorized")

	redirect := parts[0] + "/profile?state=" + url.QueryEscape(state) + "&authCode=" + url.QueryEscape(authCode)
	return c.Redirect(http.StatusFound, redirect)
}
