package controllers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/engageautomations/ghl-oauth-bridge/internal/ghl"
	"github.com/engageautomations/ghl-oauth-bridge/internal/models"
	"github.com/gin-gonic/gin"
)

// upstreamClient is the slice of the authenticated API client the resource
// controllers use. Every upstream call goes through it; controllers never
// touch tokens or retry logic themselves.
type upstreamClient interface {
	Call(ctx context.Context, installationID, method, path string, body any) (*ghl.UpstreamResponse, error)
	CallMultipart(ctx context.Context, installationID, path, fileField, fileName string, file io.Reader, fields map[string]string) (*ghl.UpstreamResponse, error)
	Installation(ctx context.Context, installationID string) (*models.Installation, error)
}

// installationID pulls the tenant key from query or form, accepting both
// naming conventions the marketplace frontend has used
func installationID(ctx *gin.Context) string {
	if id := ctx.Query("installation_id"); id != "" {
		return id
	}
	if id := ctx.Query("installationId"); id != "" {
		return id
	}
	return ctx.PostForm("installation_id")
}

// respondClientError translates a taxonomy error from the token/API layer
// into an HTTP response. Upstream validation errors pass through verbatim;
// everything else gets a stable code and a human message.
func respondClientError(ctx *gin.Context, err error) {
	var upstreamErr *models.UpstreamError
	if errors.As(err, &upstreamErr) {
		ctx.Data(upstreamErr.StatusCode, "application/json", upstreamErr.Body)
		return
	}

	status := models.StatusForError(err)
	code := models.CodeForError(err)
	var message string
	switch {
	case errors.Is(err, models.ErrNotFound):
		message = "Installation not found"
	case errors.Is(err, models.ErrInvalidGrant), errors.Is(err, models.ErrRefreshFailed):
		message = "OAuth installation is no longer valid, please reinstall the app"
	case errors.Is(err, models.ErrUpstreamUnavailable):
		message = "Upstream CRM is temporarily unavailable, please try again shortly"
	default:
		message = "Unexpected error"
	}
	ctx.JSON(status, models.NewAPIError(code, message))
}

// respondUpstream relays a successful upstream response body and status
func respondUpstream(ctx *gin.Context, resp *ghl.UpstreamResponse) {
	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	if resp.StatusCode == http.StatusNoContent || len(resp.Body) == 0 {
		ctx.Status(resp.StatusCode)
		return
	}
	ctx.Data(resp.StatusCode, contentType, resp.Body)
}
