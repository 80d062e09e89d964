package controllers

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/engageautomations/ghl-oauth-bridge/internal/config"
	"github.com/engageautomations/ghl-oauth-bridge/internal/ghl"
	"github.com/engageautomations/ghl-oauth-bridge/internal/models"
	"github.com/engageautomations/ghl-oauth-bridge/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// OAuthController terminates the marketplace authorization redirect and hands
// out install URLs
type OAuthController interface {
	// HandleCallback is the terminal endpoint of the OAuth redirect
	HandleCallback(ctx *gin.Context)
	// GetAuthorizeURL builds the marketplace install URL for the frontend
	GetAuthorizeURL(ctx *gin.Context)
}

// codeExchanger is the slice of the token exchanger the callback needs
type codeExchanger interface {
	ExchangeCode(ctx context.Context, code string) (*ghl.TokenSet, error)
}

type oauthController struct {
	exchanger codeExchanger
	store     store.InstallationStore
	cfg       *config.Config
	now       func() time.Time
}

// NewOAuthController creates a new instance of OAuthController
func NewOAuthController(exchanger codeExchanger, installations store.InstallationStore, cfg *config.Config) *oauthController {
	return &oauthController{
		exchanger: exchanger,
		store:     installations,
		cfg:       cfg,
		now:       time.Now,
	}
}

// HandleCallback godoc
// @Summary OAuth callback
// @Description Terminal endpoint of the authorization redirect: exchanges the code and persists a new installation
// @Tags oauth
// @Param code query string false "Authorization code"
// @Param state query string false "Anti-CSRF correlation token"
// @Param error query string false "Upstream authorization error"
// @Success 302
// @Failure 400 {object} models.APIError
// @Router /api/oauth/callback [get]
func (o *oauthController) HandleCallback(ctx *gin.Context) {
	if authErr := ctx.Query("error"); authErr != "" {
		// The user denied the install or upstream refused it; no exchange is
		// attempted
		log.WithField("error", authErr).Warn("OAuth callback received authorization error")
		o.redirectError(ctx, authErr)
		return
	}

	code := ctx.Query("code")
	if code == "" {
		ctx.JSON(http.StatusBadRequest, models.NewAPIError("missing_code", "Authorization code is required"))
		return
	}

	set, err := o.exchanger.ExchangeCode(ctx.Request.Context(), code)
	if err != nil {
		log.WithError(err).Error("OAuth code exchange failed")
		// Only the taxonomy code reaches the browser, never the upstream body
		o.redirectError(ctx, models.CodeForError(err))
		return
	}

	now := o.now()
	installation := &models.Installation{
		ID:           uuid.New().String(),
		AccessToken:  set.AccessToken,
		RefreshToken: set.RefreshToken,
		TokenType:    set.AuthClass,
		ExpiresAt:    set.ExpiresAt,
		LocationID:   set.LocationID,
		CompanyID:    set.CompanyID,
		Status:       models.StatusValid,
		CreatedAt:    now,
	}
	installation.SetScopes(set.ScopeList())

	if err := o.store.Save(ctx.Request.Context(), installation); err != nil {
		log.WithError(err).Error("Failed to persist new installation")
		o.redirectError(ctx, "internal_error")
		return
	}

	log.WithFields(log.Fields{
		"installation_id": installation.ID,
		"auth_class":      installation.TokenType,
		"location_id":     installation.LocationID,
	}).Info("New OAuth installation created")

	query := url.Values{}
	query.Set("installation_id", installation.ID)
	if state := ctx.Query("state"); state != "" {
		query.Set("state", state)
	}
	ctx.Redirect(http.StatusFound, o.cfg.SuccessRedirect+"?"+query.Encode())
}

func (o *oauthController) redirectError(ctx *gin.Context, code string) {
	query := url.Values{}
	query.Set("error", code)
	ctx.Redirect(http.StatusFound, o.cfg.ErrorRedirect+"?"+query.Encode())
}

// GetAuthorizeURL godoc
// @Summary Build install URL
// @Description Returns the marketplace authorization URL for starting a new install
// @Tags oauth
// @Produce json
// @Param state query string false "Opaque state passed back on the callback"
// @Success 200 {object} map[string]string
// @Router /api/oauth/authorize-url [get]
func (o *oauthController) GetAuthorizeURL(ctx *gin.Context) {
	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", o.cfg.ClientID)
	params.Set("redirect_uri", o.cfg.RedirectURI)
	params.Set("scope", o.cfg.OAuthScopes)
	if state := ctx.Query("state"); state != "" {
		params.Set("state", state)
	}
	ctx.JSON(http.StatusOK, gin.H{"authUrl": o.cfg.AuthorizeURL + "?" + params.Encode()})
}
