package ghl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/engageautomations/ghl-oauth-bridge/internal/config"
	"github.com/engageautomations/ghl-oauth-bridge/internal/models"
	"github.com/engageautomations/ghl-oauth-bridge/internal/store"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// apiVersion is the fixed version header required on every upstream REST call
const apiVersion = "2021-07-28"

// UpstreamResponse is a successful upstream REST response passed back to the
// resource endpoints
type UpstreamResponse struct {
	StatusCode  int
	Body        []byte
	ContentType string
}

// Client is the single choke point for outbound calls to the upstream REST
// API. It loads the installation, refreshes the token when it is inside the
// padding window, attaches the bearer token and version header, and retries
// exactly once after a forced refresh on a 401.
type Client struct {
	store      store.InstallationStore
	exchanger  *Exchanger
	apiBase    string
	padding    time.Duration
	httpClient *http.Client

	// refreshGroup serializes refreshes per installation id: concurrent
	// callers share one upstream refresh instead of issuing duplicates
	refreshGroup singleflight.Group

	now func() time.Time
}

func NewClient(installations store.InstallationStore, exchanger *Exchanger, cfg *config.Config) *Client {
	return &Client{
		store:      installations,
		exchanger:  exchanger,
		apiBase:    strings.TrimRight(cfg.APIBase, "/"),
		padding:    cfg.RefreshPadding,
		httpClient: &http.Client{Timeout: cfg.UpstreamTimeout},
		now:        time.Now,
	}
}

// Installation exposes store lookups to the resource endpoints so they can
// resolve tenant identifiers without holding the store themselves
func (c *Client) Installation(ctx context.Context, installationID string) (*models.Installation, error) {
	return c.store.Get(ctx, installationID)
}

// Call dispatches an authenticated JSON request to the upstream REST API.
// body may be nil, a []byte payload, or any JSON-marshalable value.
func (c *Client) Call(ctx context.Context, installationID, method, path string, body any) (*UpstreamResponse, error) {
	installation, err := c.ensureFresh(ctx, installationID)
	if err != nil {
		return nil, err
	}

	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	resp, raw, err := c.dispatch(ctx, installation.AccessToken, method, path, payload, "application/json")
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		// One forced refresh and retry covers tokens invalidated before their
		// recorded expiry. A second 401 means the credential is genuinely
		// dead; surfacing it prevents a retry loop.
		log.WithField("installation_id", installationID).Info("Upstream returned 401, forcing token refresh")
		installation, err = c.RefreshInstallation(ctx, installationID)
		if err != nil {
			return nil, err
		}
		resp, raw, err = c.dispatch(ctx, installation.AccessToken, method, path, payload, "application/json")
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("still unauthorized after forced refresh: %w", models.ErrInvalidGrant)
		}
	}

	return classify(resp, raw)
}

// CallMultipart dispatches a multipart upload (file part plus form fields) to
// the upstream REST API, used for media uploads
func (c *Client) CallMultipart(ctx context.Context, installationID, path, fileField, fileName string, file io.Reader, fields map[string]string) (*UpstreamResponse, error) {
	installation, err := c.ensureFresh(ctx, installationID)
	if err != nil {
		return nil, err
	}

	// The body is buffered so the 401 retry can resend it
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(fileField, fileName)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, err
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	payload := buf.Bytes()
	contentType := writer.FormDataContentType()

	resp, raw, err := c.dispatch(ctx, installation.AccessToken, http.MethodPost, path, payload, contentType)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		log.WithField("installation_id", installationID).Info("Upstream returned 401 on upload, forcing token refresh")
		installation, err = c.RefreshInstallation(ctx, installationID)
		if err != nil {
			return nil, err
		}
		resp, raw, err = c.dispatch(ctx, installation.AccessToken, http.MethodPost, path, payload, contentType)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("still unauthorized after forced refresh: %w", models.ErrInvalidGrant)
		}
	}

	return classify(resp, raw)
}

// RefreshInstallation refreshes one installation's tokens, deduplicated per
// id: at most one upstream refresh is in flight for a given installation and
// concurrent callers await its result.
func (c *Client) RefreshInstallation(ctx context.Context, installationID string) (*models.Installation, error) {
	// The refresh outcome is shared by every concurrent waiter, so it must
	// not die with the first caller's request; the HTTP client timeout still
	// bounds it
	refreshCtx := context.WithoutCancel(ctx)
	result, err, _ := c.refreshGroup.Do(installationID, func() (any, error) {
		return c.doRefresh(refreshCtx, installationID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.Installation), nil
}

func (c *Client) doRefresh(ctx context.Context, installationID string) (*models.Installation, error) {
	installation, err := c.store.Get(ctx, installationID)
	if err != nil {
		return nil, err
	}

	if installation.RefreshToken == "" {
		// Without a refresh token the installation is terminal once the
		// access token expires; only a reinstall recovers it
		installation.Status = models.StatusRefreshFailed
		if saveErr := c.store.Save(ctx, installation); saveErr != nil {
			log.WithError(saveErr).Warn("Failed to record refresh_failed status")
		}
		return nil, fmt.Errorf("installation %s has no refresh token: %w", installationID, models.ErrRefreshFailed)
	}

	set, err := c.exchanger.Refresh(ctx, installation.RefreshToken)
	if err != nil {
		if errors.Is(err, models.ErrInvalidGrant) {
			installation.Status = models.StatusRefreshFailed
			if saveErr := c.store.Save(ctx, installation); saveErr != nil {
				log.WithError(saveErr).Warn("Failed to record refresh_failed status")
			}
		}
		// UpstreamUnavailable leaves the record untouched: the next tick or
		// request retries naturally
		return nil, err
	}

	now := c.now()
	installation.AccessToken = set.AccessToken
	if set.RefreshToken != "" {
		// Upstream occasionally omits the refresh token on a refresh grant;
		// the previous one stays valid in that case
		installation.RefreshToken = set.RefreshToken
	}
	installation.ExpiresAt = set.ExpiresAt
	installation.Status = models.StatusValid
	installation.LastRefreshedAt = &now
	if set.AuthClass != "" {
		installation.TokenType = set.AuthClass
	}
	if set.Scope != "" {
		installation.SetScopes(set.ScopeList())
	}

	if err := c.store.Save(ctx, installation); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"installation_id": installationID,
		"expires_at":      installation.ExpiresAt,
	}).Info("Installation tokens refreshed")
	return installation, nil
}

// ensureFresh loads the installation and refreshes it synchronously when the
// token is inside the padding window, covering the gap between scheduler
// ticks and an in-flight request
func (c *Client) ensureFresh(ctx context.Context, installationID string) (*models.Installation, error) {
	installation, err := c.store.Get(ctx, installationID)
	if err != nil {
		return nil, err
	}
	if !installation.NeedsRefresh(c.padding, c.now()) {
		return installation, nil
	}
	log.WithFields(log.Fields{
		"installation_id": installationID,
		"expires_at":      installation.ExpiresAt,
	}).Debug("Token inside refresh padding, refreshing before dispatch")
	return c.RefreshInstallation(ctx, installationID)
}

func (c *Client) dispatch(ctx context.Context, accessToken, method, path string, payload []byte, contentType string) (*http.Response, []byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, body)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Version", apiVersion)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("upstream call failed: %w", models.ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading upstream response: %w", models.ErrUpstreamUnavailable)
	}
	return resp, raw, nil
}

// classify maps the final upstream response onto the error taxonomy: 5xx is
// transient, non-auth 4xx is passed through verbatim, 2xx is success
func classify(resp *http.Response, raw []byte) (*UpstreamResponse, error) {
	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("upstream returned %d: %w", resp.StatusCode, models.ErrUpstreamUnavailable)
	case resp.StatusCode >= 400:
		return nil, &models.UpstreamError{StatusCode: resp.StatusCode, Body: raw}
	}
	return &UpstreamResponse{
		StatusCode:  resp.StatusCode,
		Body:        raw,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

func encodeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	default:
		payload, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		return payload, nil
	}
}
