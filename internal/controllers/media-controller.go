package controllers

import (
	"net/http"
	"net/url"

	"github.com/engageautomations/ghl-oauth-bridge/internal/models"
	"github.com/gin-gonic/gin"
)

// MediaController maps media requests onto the upstream media library API.
// Uploads are multipart: a binary file part plus the tenant location field.
type MediaController interface {
	// UploadMedia uploads a file into the tenant's media library
	UploadMedia(ctx *gin.Context)
	// ListMedia lists the tenant's media files
	ListMedia(ctx *gin.Context)
}

type mediaController struct {
	client upstreamClient
}

// NewMediaController creates a new instance of MediaController
func NewMediaController(client upstreamClient) *mediaController {
	return &mediaController{client: client}
}

// UploadMedia godoc
// @Summary Upload media
// @Description Upload a file to the tenant's upstream media library
// @Tags medias
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "File to upload"
// @Param installation_id formData string true "Installation ID"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} models.APIError
// @Failure 401 {object} models.APIError
// @Failure 404 {object} models.APIError
// @Router /api/medias/upload [post]
func (m *mediaController) UploadMedia(ctx *gin.Context) {
	id := installationID(ctx)
	if id == "" {
		ctx.JSON(http.StatusBadRequest, models.NewAPIError("missing_installation_id", "installation_id is required"))
		return
	}

	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, models.NewAPIError("missing_file", "A file part named 'file' is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		ctx.JSON(http.StatusBadRequest, models.NewAPIError("invalid_file", "Could not read uploaded file"))
		return
	}
	defer file.Close()

	installation, err := m.client.Installation(ctx.Request.Context(), id)
	if err != nil {
		respondClientError(ctx, err)
		return
	}
	fields := map[string]string{}
	if installation.LocationID != "" {
		fields["locationId"] = installation.LocationID
	}

	resp, err := m.client.CallMultipart(ctx.Request.Context(), id, "/medias/upload-file", "file", fileHeader.Filename, file, fields)
	if err != nil {
		respondClientError(ctx, err)
		return
	}
	respondUpstream(ctx, resp)
}

// ListMedia godoc
// @Summary List media
// @Description List files in the tenant's upstream media library
// @Tags medias
// @Produce json
// @Param installation_id query string true "Installation ID"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} models.APIError
// @Failure 404 {object} models.APIError
// @Router /api/medias [get]
func (m *mediaController) ListMedia(ctx *gin.Context) {
	id := installationID(ctx)
	if id == "" {
		ctx.JSON(http.StatusBadRequest, models.NewAPIError("missing_installation_id", "installation_id is required"))
		return
	}

	installation, err := m.client.Installation(ctx.Request.Context(), id)
	if err != nil {
		respondClientError(ctx, err)
		return
	}
	query := url.Values{}
	if installation.LocationID != "" {
		query.Set("locationId", installation.LocationID)
	}

	resp, err := m.client.Call(ctx.Request.Context(), id, http.MethodGet, "/medias/?"+query.Encode(), nil)
	if err != nil {
		respondClientError(ctx, err)
		return
	}
	respondUpstream(ctx, resp)
}
