package ghl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/engageautomations/ghl-oauth-bridge/internal/config"
	"github.com/engageautomations/ghl-oauth-bridge/internal/models"
	log "github.com/sirupsen/logrus"
)

// Exchanger turns an authorization code or a refresh token into a fresh token
// pair against the upstream token endpoint.
//
// The endpoint strictly validates the request body: any field beyond the
// standard OAuth ones fails the whole exchange, so only grant_type,
// client_id, client_secret and code+redirect_uri / refresh_token are ever
// sent. The token class is whatever the upstream app configuration grants.
type Exchanger struct {
	tokenURL     string
	clientID     string
	clientSecret string
	redirectURI  string
	httpClient   *http.Client
	now          func() time.Time
}

func NewExchanger(cfg *config.Config) *Exchanger {
	return &Exchanger{
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURI:  cfg.RedirectURI,
		httpClient:   &http.Client{Timeout: cfg.UpstreamTimeout},
		now:          time.Now,
	}
}

// ExchangeCode performs the authorization_code grant
func (e *Exchanger) ExchangeCode(ctx context.Context, code string) (*TokenSet, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", e.clientID)
	form.Set("client_secret", e.clientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", e.redirectURI)
	return e.post(ctx, form)
}

// Refresh performs the refresh_token grant
func (e *Exchanger) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", e.clientID)
	form.Set("client_secret", e.clientSecret)
	form.Set("refresh_token", refreshToken)
	return e.post(ctx, form)
}

// isGrantRejection reports whether a token endpoint status means the grant
// itself was rejected. Only 400/401/403 carry that meaning; any other 4xx is
// the endpoint refusing this particular request, not the credential.
func isGrantRejection(status int) bool {
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}

// tokenErrorResponse is the upstream OAuth error body (RFC 6749 §5.2)
type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"message"`
}

func (e *Exchanger) post(ctx context.Context, form url.Values) (*TokenSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		// Timeouts and connection failures are transient, not token failures
		return nil, fmt.Errorf("token endpoint unreachable: %w", models.ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading token response: %w", models.ErrUpstreamUnavailable)
	}

	switch {
	case resp.StatusCode >= 500:
		log.WithField("status", resp.StatusCode).Warn("Token endpoint returned server error")
		return nil, fmt.Errorf("token endpoint returned %d: %w", resp.StatusCode, models.ErrUpstreamUnavailable)
	case isGrantRejection(resp.StatusCode):
		var oauthErr tokenErrorResponse
		_ = json.Unmarshal(body, &oauthErr)
		reason := oauthErr.Error
		if reason == "" {
			reason = oauthErr.Message
		}
		log.WithFields(log.Fields{
			"status": resp.StatusCode,
			"reason": reason,
		}).Warn("Token exchange rejected by upstream")
		return nil, fmt.Errorf("token exchange rejected (%s): %w", reason, models.ErrInvalidGrant)
	case resp.StatusCode >= 400:
		// 429, 408 and the like are throttling, not a verdict on the grant;
		// treating them as transient keeps the installation retryable
		log.WithField("status", resp.StatusCode).Warn("Token endpoint throttled or refused the request")
		return nil, fmt.Errorf("token endpoint returned %d: %w", resp.StatusCode, models.ErrUpstreamUnavailable)
	}

	set, err := parseTokenResponse(body, e.now())
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"auth_class":  set.AuthClass,
		"location_id": set.LocationID,
		"expires_in":  set.ExpiresIn,
	}).Info("Token exchange succeeded")
	return set, nil
}
