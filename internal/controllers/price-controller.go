package controllers

import (
	"net/http"
	"net/url"

	"github.com/engageautomations/ghl-oauth-bridge/internal/models"
	"github.com/gin-gonic/gin"
)

// PriceController maps pricing requests onto the upstream product price
// sub-resource
type PriceController interface {
	CreatePrice(ctx *gin.Context)
	ListPrices(ctx *gin.Context)
	UpdatePrice(ctx *gin.Context)
	DeletePrice(ctx *gin.Context)
}

type priceController struct {
	client upstreamClient
}

// NewPriceController creates a new instance of PriceController
func NewPriceController(client upstreamClient) *priceController {
	return &priceController{client: client}
}

// CreatePrice godoc
// @Summary Create price
// @Description Attach a price to a product in the upstream CRM
// @Tags prices
// @Accept json
// @Produce json
// @Param productId path string true "Product ID"
// @Param price body map[string]interface{} true "Price payload, including installation_id"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} models.APIError
// @Failure 404 {object} models.APIError
// @Router /api/products/{productId}/price [post]
func (p *priceController) CreatePrice(ctx *gin.Context) {
	payload, id, ok := resolvePayload(ctx)
	if !ok {
		return
	}

	installation, err := p.client.Installation(ctx.Request.Context(), id)
	if err != nil {
		respondClientError(ctx, err)
		return
	}
	if installation.LocationID != "" {
		payload["locationId"] = installation.LocationID
	}

	resp, err := p.client.Call(ctx.Request.Context(), id, http.MethodPost, "/products/"+ctx.Param("productId")+"/price", payload)
	if err != nil {
		respondClientError(ctx, err)
		return
	}
	respondUpstream(ctx, resp)
}

// ListPrices godoc
// @Summary List prices
// @Description List a product's prices from the upstream CRM
// @Tags prices
// @Produce json
// @Param productId path string true "Product ID"
// @Param installation_id query string true "Installation ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} models.APIError
// @Router /api/products/{productId}/price [get]
func (p *priceController) ListPrices(ctx *gin.Context) {
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

	resp, err := p.client.Call(ctx.Request.Context(), id, http.MethodGet, "/products/"+ctx.Param("productId")+"/price?"+query.Encode(), nil)
	if err != nil {
		respondClientError(ctx, err)
		return
	}
	respondUpstream(ctx, resp)
}

// UpdatePrice godoc
// @Summary Update price
// @Description Update a product price in the upstream CRM
// @Tags prices
// @Accept json
// @Produce json
// @Param productId path string true "Product ID"
// @Param priceId path string true "Price ID"
// @Param price body map[string]interface{} true "Price payload"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} models.APIError
// @Router /api/products/{productId}/price/{priceId} [put]
func (p *priceController) UpdatePrice(ctx *gin.Context) {
	payload, id, ok := resolvePayload(ctx)
	if !ok {
		return
	}
	resp, err := p.client.Call(ctx.Request.Context(), id, http.MethodPut, "/products/"+ctx.Param("productId")+"/price/"+ctx.Param("priceId"), payload)
	if err != nil {
		respondClientError(ctx, err)
		return
	}
	respondUpstream(ctx, resp)
}

// DeletePrice godoc
// @Summary Delete price
// @Description Delete a product price from the upstream CRM
// @Tags prices
// @Produce json
// @Param productId path string true "Product ID"
// @Param priceId path string true "Price ID"
// @Param installation_id query string true "Installation ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} models.APIError
// @Router /api/products/{productId}/price/{priceId} [delete]
func (p *priceController) DeletePrice(ctx *gin.Context) {
	id := installationID(ctx)
	if id == "" {
		ctx.JSON(http.StatusBadRequest, models.NewAPIError("missing_installation_id", "installation_id is required"))
		return
	}
	resp, err := p.client.Call(ctx.Request.Context(), id, http.MethodDelete, "/products/"+ctx.Param("productId")+"/price/"+ctx.Param("priceId"), nil)
	if err != nil {
		respondClientError(ctx, err)
		return
	}
	respondUpstream(ctx, resp)
}
