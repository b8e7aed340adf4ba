package echo

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/ruicore/dingbridge/domain"
	"github.com/ruicore/dingbridge/errors"
	"github.com/ruicore/dingbridge/remote"
	"github.com/ruicore/dingbridge/services"
)

// LocalAPI is the intranet-side surface: it finishes the authorization flow by
// binding the DingTalk user to an IAM staff account, and pushes notifications
// addressed by staff id through the cloud node.
type LocalAPI struct {
	repo    domain.Repository
	iam     *services.IAMService
	cloud   *remote.Client
	siteURL string
}

// NewLocalAPI initializes the local API.
func NewLocalAPI(repo domain.Repository, iam *services.IAMService, cloud *remote.Client, siteURL string) *LocalAPI {
	return &LocalAPI{repo: repo, iam: iam, cloud: cloud, siteURL: siteURL}
}

// RegisterRoutes registers the local routes.
func (a *LocalAPI) RegisterRoutes(e *echo.Echo) {
	e.GET("/dingding/local/auth/user/callback", a.AuthUserCallbackHandler)
	e.POST("/dingding/local/send/messages", a.SendMessagesHandler)
}

// AuthUserCallbackHandler completes a user authorization on the intranet side.
// The single-use record is consumed from the cloud node, enriched with the IAM
// identifiers, persisted locally, and registered with IAM.
func (a *LocalAPI) AuthUserCallbackHandler(c echo.Context) error {
	staffID := c.QueryParam("staff_id")
	tenantID := c.QueryParam("tenant_id")
	authCode := c.QueryParam("authCode")

	ctx := c.Request().Context()
	user, err := a.repo.GetUserByAuthCode(ctx, authCode)
	if err != nil {
		return err
	}
	user.StaffID = staffID
	user.TenantID = tenantID

	if err := a.repo.SaveUser(ctx, authCode, user); err != nil {
		return err
	}

	input := services.BindDingUserInput{
		StaffID:    staffID,
		TenantID:   tenantID,
		DingDingID: user.UserID,
		Name:       user.Nick,
	}
	if err := a.iam.BindDingUser(ctx, input, c.Request().Header.Get("x-authenticated-userid")); err != nil {
		return err
	}
	log.Info().Str("staff_id", staffID).Str("user_id", user.UserID).Msg("user bound to iam account")
	return c.String(http.StatusOK, "success")
}

type localSendRequest struct {
	TenantID domain.TenantID  `json:"tenant_id"`
	StaffIDs []domain.StaffID `json:"staff_ids"`
	Data     string           `json:"data"`
	URL      string           `json:"url,omitempty"`
}

// SendMessagesHandler resolves staff ids to DingTalk users through IAM and
// relays the notification to the cloud node for delivery. Staff ids without a
// binding are logged and skipped; no resolvable user at all is a 404.
func (a *LocalAPI) SendMessagesHandler(c echo.Context) error {
	var req localSendRequest
	if err := c.Bind(&req); err != nil {
		return errors.NewBadRequest("malformed send body")
	}

	ctx := c.Request().Context()
	registered, err := a.iam.ListDingUsers(ctx, req.StaffIDs)
	if err != nil {
		return err
	}

	var userIDs []domain.UserID
	var missing []domain.StaffID
	for _, staffID := range req.StaffIDs {
		account, ok := registered[staffID]
		if !ok {
			missing = append(missing, staffID)
			continue
		}
		userIDs = append(userIDs, account.DingDingID)
	}
	if len(userIDs) == 0 {
		return errors.NewNotFound("no registered users among the given staff ids")
	}
	if len(missing) > 0 {
		log.Warn().Strs("staff_ids", missing).Msg("staff ids without a binding skipped")
	}

	// The corp id comes from the locally stored user records.
	users, err := a.repo.OfUserIDs(ctx, userIDs)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		return errors.NewNotFound("no corp id resolvable for the given users")
	}

	// The notification template expects message and url variables.
	message, err := json.Marshal(map[string]string{
		"message": req.Data + "\n" + time.Now().Format("2006-01-02 15:04:05"),
		"url":     a.targetURL(req.URL),
	})
	if err != nil {
		return err
	}

	if err := a.cloud.SendMessages(ctx, users[0].CorpID, userIDs, string(message)); err != nil {
		return err
	}
	return c.String(http.StatusOK, "success")
}

func (a *LocalAPI) targetURL(override string) string {
	if override != "" {
		return override
	}
	return a.siteURL
}
