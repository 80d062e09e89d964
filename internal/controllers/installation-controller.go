package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/engageautomations/ghl-oauth-bridge/internal/models"
	"github.com/engageautomations/ghl-oauth-bridge/internal/store"
	"github.com/gin-gonic/gin"
)

// InstallationController exposes installation state. Responses carry derived
// status and expiry information only; raw tokens never leave through here.
type InstallationController interface {
	// ListInstallations returns all installations as summaries
	ListInstallations(ctx *gin.Context)
	// GetInstallation returns one installation summary
	GetInstallation(ctx *gin.Context)
	// RefreshInstallation forces an immediate token refresh
	RefreshInstallation(ctx *gin.Context)
}

// tokenRefresher is the slice of the API client used for operator-forced
// refreshes
type tokenRefresher interface {
	RefreshInstallation(ctx context.Context, installationID string) (*models.Installation, error)
}

type installationController struct {
	store     store.InstallationStore
	refresher tokenRefresher
	padding   time.Duration
	now       func() time.Time
}

// NewInstallationController creates a new instance of InstallationController
func NewInstallationController(installations store.InstallationStore, refresher tokenRefresher, padding time.Duration) *installationController {
	return &installationController{
		store:     installations,
		refresher: refresher,
		padding:   padding,
		now:       time.Now,
	}
}

// ListInstallations godoc
// @Summary List installations
// @Description List all OAuth installations with derived token status; tokens themselves are never returned
// @Tags installations
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} models.APIError
// @Router /installations [get]
func (i *installationController) ListInstallations(ctx *gin.Context) {
	installations, err := i.store.List(ctx.Request.Context())
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, models.NewAPIError("internal_error", "Failed to list installations"))
		return
	}

	now := i.now()
	summaries := make([]models.InstallationSummary, 0, len(installations))
	for _, installation := range installations {
		summaries = append(summaries, installation.Summary(i.padding, now))
	}
	ctx.JSON(http.StatusOK, gin.H{
		"installations": summaries,
		"count":         len(summaries),
	})
}

// GetInstallation godoc
// @Summary Get installation
// @Description Get one installation summary by id
// @Tags installations
// @Produce json
// @Param id path string true "Installation ID"
// @Success 200 {object} models.InstallationSummary
// @Failure 404 {object} models.APIError
// @Router /installations/{id} [get]
func (i *installationController) GetInstallation(ctx *gin.Context) {
	installation, err := i.store.Get(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondClientError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, installation.Summary(i.padding, i.now()))
}

// RefreshInstallation godoc
// @Summary Force token refresh
// @Description Trigger an immediate refresh of the installation's tokens
// @Tags installations
// @Produce json
// @Param id path string true "Installation ID"
// @Success 200 {object} models.InstallationSummary
// @Failure 401 {object} models.APIError
// @Failure 404 {object} models.APIError
// @Failure 502 {object} models.APIError
// @Router /installations/{id}/refresh [post]
func (i *installationController) RefreshInstallation(ctx *gin.Context) {
	installation, err := i.refresher.RefreshInstallation(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondClientError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, installation.Summary(i.padding, i.now()))
}
