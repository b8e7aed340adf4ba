package echo

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ruicore/dingbridge/domain"
	"github.com/ruicore/dingbridge/errors"
	"github.com/ruicore/dingbridge/services"
)

// InternalAPI exposes the shared-secret endpoints the local deployment calls
// on the cloud node: single-use user retrieval, corp and suite reads, and the
// notification send.
type InternalAPI struct {
	repo     domain.Repository
	ding     *services.DingService
	suiteKey string
	user     string
	password string
}

// NewInternalAPI initializes the internal API.
func NewInternalAPI(repo domain.Repository, ding *services.DingService, suiteKey, user, password string) *InternalAPI {
	return &InternalAPI{repo: repo, ding: ding, suiteKey: suiteKey, user: user, password: password}
}

// RegisterRoutes registers the internal routes behind basic auth.
func (a *InternalAPI) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/dingding/internal", middleware.BasicAuth(a.validate))
	g.GET("/user/:auth_code", a.UserByAuthCodeHandler)
	g.GET("/corp/:corp_id", a.CorpInfoHandler)
	g.GET("/suite/:suite_key", a.SuiteInfoHandler)
	g.POST("/send/messages", a.SendMessagesHandler)
}

func (a *InternalAPI) validate(user, password string, _ echo.Context) (bool, error) {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(a.user)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) == 1
	return userOK && passOK, nil
}

// UserByAuthCodeHandler returns the user stored under an auth code. The read
// consumes the record, a second call with the same code gets a 404.
func (a *InternalAPI) UserByAuthCodeHandler(c echo.Context) error {
	user, err := a.repo.GetUserByAuthCode(c.Request().Context(), c.Param("auth_code"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// CorpInfoHandler returns the authorization record of a corp.
func (a *InternalAPI) CorpInfoHandler(c echo.Context) error {
	auth, err := a.repo.GetOrgSuiteAuth(c.Request().Context(), c.Param("corp_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, auth)
}

// SuiteInfoHandler returns the broker's suite snapshot. There is a single
// suite per deployment, so the path key only gates the request.
func (a *InternalAPI) SuiteInfoHandler(c echo.Context) error {
	if c.Param("suite_key") != a.suiteKey {
		return errors.NewBadRequest("unknown suite key")
	}
	suite, err := a.ding.GetSuite(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, suite)
}

type sendMessagesRequest struct {
	CorpID  domain.CorpID   `json:"corp_id"`
	UserIDs []domain.UserID `json:"user_ids"`
	Message string          `json:"message"`
}

// SendMessagesHandler delivers a templated work notification to corp users.
func (a *InternalAPI) SendMessagesHandler(c echo.Context) error {
	var req sendMessagesRequest
	if err := c.Bind(&req); err != nil {
		return errors.NewBadRequest("malformed send body")
	}
	if err := a.ding.SendMessage(c.Request().Context(), req.UserIDs, req.Message, req.CorpID); err != nil {
		return err
	}
	return c.String(http.StatusOK, "success")
}
