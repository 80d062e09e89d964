package controllers

import (
	"net/http"
	"net/url"

	"github.com/engageautomations/ghl-oauth-bridge/internal/models"
	"github.com/gin-gonic/gin"
)

// ProductController maps inbound product requests onto the upstream products
// API. Thin by design: validation of the product payload itself belongs to
// upstream, whose 4xx bodies pass through verbatim.
type ProductController interface {
	// CreateProduct creates a product in the tenant's CRM account
	CreateProduct(ctx *gin.Context)
	// ListProducts lists the tenant's products
	ListProducts(ctx *gin.Context)
	// GetProduct retrieves a single product
	GetProduct(ctx *gin.Context)
	// UpdateProduct updates a product
	UpdateProduct(ctx *gin.Context)
	// DeleteProduct deletes a product
	DeleteProduct(ctx *gin.Context)
}

type productController struct {
	client upstreamClient
}

// NewProductController creates a new instance of ProductController
func NewProductController(client upstreamClient) *productController {
	return &productController{client: client}
}

// resolvePayload binds the JSON body and extracts the installation id from it
// (falling back to the query string), stripping the key before the payload is
// forwarded upstream
func resolvePayload(ctx *gin.Context) (map[string]any, string, bool) {
	payload := map[string]any{}
	if ctx.Request.Body != nil && ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindJSON(&payload); err != nil {
			ctx.JSON(http.StatusBadRequest, models.NewAPIError("invalid_body", "Invalid request body"))
			return nil, "", false
		}
	}

	id, _ := payload["installation_id"].(string)
	delete(payload, "installation_id")
	if id == "" {
		id = installationID(ctx)
	}
	if id == "" {
		ctx.JSON(http.StatusBadRequest, models.NewAPIError("missing_installation_id", "installation_id is required"))
		return nil, "", false
	}
	return payload, id, true
}

// CreateProduct godoc
// @Summary Create product
// @Description Create a product in the tenant's upstream CRM account
// @Tags products
// @Accept json
// @Produce json
// @Param product body map[string]interface{} true "Product payload, including installation_id"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} models.APIError
// @Failure 401 {object} models.APIError
// @Failure 404 {object} models.APIError
// @Router /api/products [post]
func (p *productController) CreateProduct(ctx *gin.Context) {
	payload, id, ok := resolvePayload(ctx)
	if !ok {
		return
	}

	installation, err := p.client.Installation(ctx.Request.Context(), id)
	if err != nil {
		respondClientError(ctx, err)
		return
	}
	// The products API requires the tenant location on the payload; it is
	// tied to the token, not chosen by the caller
	if installation.LocationID != "" {
		payload["locationId"] = installation.LocationID
	}

	resp, err := p.client.Call(ctx.Request.Context(), id, http.MethodPost, "/products/", payload)
	if err != nil {
		respondClientError(ctx, err)
		return
	}
	respondUpstream(ctx, resp)
}

// ListProducts godoc
// @Summary List products
// @Description List the tenant's products from the upstream CRM
// @Tags products
// @Produce json
// @Param installation_id query string true "Installation ID"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} models.APIError
// @Failure 404 {object} models.APIError
// @Router /api/products [get]
func (p *productController) ListProducts(ctx *gin.Context) {
	id := installationID(ctx)
	if id == "" {
		ctx.JSON(http.StatusBadRequest, models.NewAPIError("missing_installation_id", "installation_id is required"))
		return
	}

	installation, err := p.client.Installation(ctx.Request.Context(), id)
	if err != nil {
		respondClientError(ctx, err)
		return
	}

	query := url.Values{}
	if installation.LocationID != "" {
		query.Set("locationId", installation.LocationID)
	}
	if limit := ctx.Query("limit"); limit != "" {
		query.Set("limit", limit)
	}
	if offset := ctx.Query("offset"); offset != "" {
		query.Set("offset", offset)
	}

	resp, err := p.client.Call(ctx.Request.Context(), id, http.MethodGet, "/products/?"+query.Encode(), nil)
	if err != nil {
		respondClientError(ctx, err)
		return
	}
	respondUpstream(ctx, resp)
}

// GetProduct godoc
// @Summary Get product
// @Description Get a single product by id from the upstream CRM
// @Tags products
// @Produce json
// @Param productId path string true "Product ID"
// @Param installation_id query string true "Installation ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} models.APIError
// @Router /api/products/{productId} [get]
func (p *productController) GetProduct(ctx *gin.Context) {
	id := installationID(ctx)
	if id == "" {
		ctx.JSON(http.StatusBadRequest, models.NewAPIError("missing_installation_id", "installation_id is required"))
		return
	}
	resp, err := p.client.Call(ctx.Request.Context(), id, http.MethodGet, "/products/"+ctx.Param("productId"), nil)
	if err != nil {
		respondClientError(ctx, err)
		return
	}
	respondUpstream(ctx, resp)
}

// UpdateProduct godoc
// @Summary Update product
// @Description Update a product in the upstream CRM
// @Tags products
// @Accept json
// @Produce json
// @Param productId path string true "Product ID"
// @Param product body map[string]interface{} true "Product payload"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} models.APIError
// @Failure 404 {object} models.APIError
// @Router /api/products/{productId} [put]
func (p *productController) UpdateProduct(ctx *gin.Context) {
	payload, id, ok := resolvePayload(ctx)
	if !ok {
		return
	}
	resp, err := p.client.Call(ctx.Request.Context(), id, http.MethodPut, "/products/"+ctx.Param("productId"), payload)
	if err != nil {
		respondClientError(ctx, err)
		return
	}
	respondUpstream(ctx, resp)
}

// DeleteProduct godoc
// @Summary Delete product
// @Description Delete a product from the upstream CRM
// @Tags products
// @Produce json
// @Param productId path string true "Product ID"
// @Param installation_id query string true "Installation ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} models.APIError
// @Router /api/products/{productId} [delete]
func (p *productController) DeleteProduct(ctx *gin.Context) {
	id := installationID(ctx)
	if id == "" {
		ctx.JSON(http.StatusBadRequest, models.NewAPIError("missing_installation_id", "installation_id is required"))
		return
	}
	resp, err := p.client.Call(ctx.Request.Context(), id, http.MethodDelete, "/products/"+ctx.Param("productId"), nil)
	if err != nil {
		respondClientError(ctx, err)
		return
	}
	respondUpstream(ctx, resp)
}
