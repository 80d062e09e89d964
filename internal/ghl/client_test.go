package ghl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/engageautomations/ghl-oauth-bridge/internal/config"
	"github.com/engageautomations/ghl-oauth-bridge/internal/models"
	"github.com/engageautomations/ghl-oauth-bridge/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clientFixture wires a Client against in-memory storage, a fake token
// endpoint and a fake REST API
type clientFixture struct {
	client       *Client
	store        store.InstallationStore
	apiCalls     atomic.Int32
	refreshCalls atomic.Int32
}

type fixtureOptions struct {
	apiHandler   http.HandlerFunc
	refreshDelay time.Duration
	tokenStatus  int
	tokenBody    string
}

func newClientFixture(t *testing.T, opts fixtureOptions) *clientFixture {
	t.Helper()
	f := &clientFixture{store: store.NewMemoryStore()}

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := f.refreshCalls.Add(1)
		if opts.refreshDelay > 0 {
			time.Sleep(opts.refreshDelay)
		}
		if opts.tokenStatus != 0 {
			w.WriteHeader(opts.tokenStatus)
			io.WriteString(w, opts.tokenBody)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-new-%d","refresh_token":"ref-new-%d","expires_in":3600,"scope":"products.write"}`, n, n)
	}))
	t.Cleanup(tokenSrv.Close)

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.apiCalls.Add(1)
		if opts.apiHandler != nil {
			opts.apiHandler(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"ok":true}`)
	}))
	t.Cleanup(apiSrv.Close)

	cfg := &config.Config{
		TokenURL:        tokenSrv.URL,
		APIBase:         apiSrv.URL,
		ClientID:        "client-id",
		ClientSecret:    "client-secret",
		RedirectURI:     "https://example.com/api/oauth/callback",
		RefreshPadding:  5 * time.Minute,
		UpstreamTimeout: 5 * time.Second,
	}
	f.client = NewClient(f.store, NewExchanger(cfg), cfg)
	return f
}

func (f *clientFixture) seed(t *testing.T, id string, expiresAt time.Time) *models.Installation {
	t.Helper()
	installation := &models.Installation{
		ID:           id,
		AccessToken:  "tok-original",
		RefreshToken: "ref-original",
		TokenType:    models.TokenClassLocation,
		ExpiresAt:    expiresAt,
		LocationID:   "loc_123",
		Status:       models.StatusValid,
	}
	require.NoError(t, f.store.Save(context.Background(), installation))
	return installation
}

func TestCallAttachesAuthAndVersionHeaders(t *testing.T) {
	var gotAuth, gotVersion string
	f := newClientFixture(t, fixtureOptions{apiHandler: func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotVersion = r.Header.Get("Version")
		io.WriteString(w, `{"ok":true}`)
	}})
	f.seed(t, "inst-1", time.Now().Add(time.Hour))

	resp, err := f.client.Call(context.Background(), "inst-1", http.MethodGet, "/products/", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "Bearer tok-original", gotAuth)
	assert.Equal(t, "2021-07-28", gotVersion)
	// Token well clear of expiry: no refresh
	assert.Equal(t, int32(0), f.refreshCalls.Load())
}

func TestCallExpiredTokenRefreshesExactlyOnceBeforeDispatch(t *testing.T) {
	var gotAuth string
	f := newClientFixture(t, fixtureOptions{apiHandler: func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		io.WriteString(w, `{"ok":true}`)
	}})
	seeded := f.seed(t, "inst-1", time.Now().Add(-time.Minute))

	_, err := f.client.Call(context.Background(), "inst-1", http.MethodGet, "/products/", nil)
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.refreshCalls.Load())
	assert.Equal(t, "Bearer tok-new-1", gotAuth)

	stored, err := f.store.Get(context.Background(), "inst-1")
	require.NoError(t, err)
	// A refresh always yields a different token and a later expiry
	assert.NotEqual(t, seeded.AccessToken, stored.AccessToken)
	assert.True(t, stored.ExpiresAt.After(seeded.ExpiresAt), "expiresAt must strictly increase after refresh")
	assert.Equal(t, models.StatusValid, stored.Status)
	assert.NotNil(t, stored.LastRefreshedAt)
}

func TestCall401RetriesOnceAfterForcedRefresh(t *testing.T) {
	f := newClientFixture(t, fixtureOptions{apiHandler: func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"message":"invalid token"}`)
	}})
	f.seed(t, "inst-1", time.Now().Add(time.Hour))

	_, err := f.client.Call(context.Background(), "inst-1", http.MethodGet, "/products/", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidGrant)

	// Exactly two upstream attempts (original + one retry) and one forced
	// refresh; never a third attempt
	assert.Equal(t, int32(2), f.apiCalls.Load())
	assert.Equal(t, int32(1), f.refreshCalls.Load())
}

func TestCall401RetrySucceedsWithFreshToken(t *testing.T) {
	var attempts atomic.Int32
	f := newClientFixture(t, fixtureOptions{apiHandler: func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "Bearer tok-new-1", r.Header.Get("Authorization"))
		io.WriteString(w, `{"ok":true}`)
	}})
	f.seed(t, "inst-1", time.Now().Add(time.Hour))

	resp, err := f.client.Call(context.Background(), "inst-1", http.MethodGet, "/products/", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), f.refreshCalls.Load())
}

func TestConcurrentCallsShareOneRefresh(t *testing.T) {
	f := newClientFixture(t, fixtureOptions{refreshDelay: 200 * time.Millisecond})
	f.seed(t, "inst-1", time.Now().Add(-time.Minute))

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = f.client.Call(context.Background(), "inst-1", http.MethodGet, "/products/", nil)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	// All five callers awaited the same in-flight refresh
	assert.Equal(t, int32(1), f.refreshCalls.Load())
}

func TestCallValidationErrorPassesBodyThroughVerbatim(t *testing.T) {
	upstreamBody := `{"message":"locationId is required","statusCode":422}`
	f := newClientFixture(t, fixtureOptions{apiHandler: func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		io.WriteString(w, upstreamBody)
	}})
	f.seed(t, "inst-1", time.Now().Add(time.Hour))

	_, err := f.client.Call(context.Background(), "inst-1", http.MethodPost, "/products/", map[string]any{"name": "x"})
	require.Error(t, err)

	var upstreamErr *models.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, http.StatusUnprocessableEntity, upstreamErr.StatusCode)
	assert.Equal(t, upstreamBody, string(upstreamErr.Body))
}

func TestCallUnknownInstallationSkipsUpstream(t *testing.T) {
	f := newClientFixture(t, fixtureOptions{})

	_, err := f.client.Call(context.Background(), "nope", http.MethodGet, "/products/", nil)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, int32(0), f.apiCalls.Load())
	assert.Equal(t, int32(0), f.refreshCalls.Load())
}

func TestRefreshInvalidGrantMarksInstallationTerminal(t *testing.T) {
	f := newClientFixture(t, fixtureOptions{
		tokenStatus: http.StatusBadRequest,
		tokenBody:   `{"error":"invalid_grant"}`,
	})
	f.seed(t, "inst-1", time.Now().Add(-time.Minute))

	_, err := f.client.Call(context.Background(), "inst-1", http.MethodGet, "/products/", nil)
	assert.ErrorIs(t, err, models.ErrInvalidGrant)

	stored, getErr := f.store.Get(context.Background(), "inst-1")
	require.NoError(t, getErr)
	assert.Equal(t, models.StatusRefreshFailed, stored.Status)
	// The expired token is never attempted upstream
	assert.Equal(t, int32(0), f.apiCalls.Load())
}

func TestRefreshWithoutRefreshTokenIsTerminal(t *testing.T) {
	f := newClientFixture(t, fixtureOptions{})
	installation := f.seed(t, "inst-1", time.Now().Add(-time.Minute))
	installation.RefreshToken = ""
	require.NoError(t, f.store.Save(context.Background(), installation))

	_, err := f.client.Call(context.Background(), "inst-1", http.MethodGet, "/products/", nil)
	assert.ErrorIs(t, err, models.ErrRefreshFailed)

	stored, getErr := f.store.Get(context.Background(), "inst-1")
	require.NoError(t, getErr)
	assert.Equal(t, models.StatusRefreshFailed, stored.Status)
	assert.Equal(t, int32(0), f.refreshCalls.Load())
}

func TestRefreshUpstreamOutageLeavesInstallationUntouched(t *testing.T) {
	f := newClientFixture(t, fixtureOptions{tokenStatus: http.StatusServiceUnavailable})
	seeded := f.seed(t, "inst-1", time.Now().Add(-time.Minute))

	_, err := f.client.Call(context.Background(), "inst-1", http.MethodGet, "/products/", nil)
	assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)

	// A transient outage is not a token failure: nothing is marked failed
	// and the next tick retries naturally
	stored, getErr := f.store.Get(context.Background(), "inst-1")
	require.NoError(t, getErr)
	assert.Equal(t, seeded.AccessToken, stored.AccessToken)
	assert.Equal(t, models.StatusValid, stored.Status)
}

func TestRefreshRateLimitLeavesInstallationRetryable(t *testing.T) {
	f := newClientFixture(t, fixtureOptions{
		tokenStatus: http.StatusTooManyRequests,
		tokenBody:   `{"message":"Rate limit exceeded"}`,
	})
	seeded := f.seed(t, "inst-1", time.Now().Add(-time.Minute))

	_, err := f.client.Call(context.Background(), "inst-1", http.MethodGet, "/products/", nil)
	assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)
	assert.NotErrorIs(t, err, models.ErrInvalidGrant)

	// A rate limit must never require a reinstall: the record stays valid
	// and the next tick retries
	stored, getErr := f.store.Get(context.Background(), "inst-1")
	require.NoError(t, getErr)
	assert.Equal(t, seeded.RefreshToken, stored.RefreshToken)
	assert.Equal(t, models.StatusValid, stored.Status)
}

func TestRefreshSurvivesInitiatingCallerCancellation(t *testing.T) {
	f := newClientFixture(t, fixtureOptions{refreshDelay: 200 * time.Millisecond})
	f.seed(t, "inst-1", time.Now().Add(-time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	var errFirst, errSecond error

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errFirst = f.client.RefreshInstallation(ctx, "inst-1")
	}()
	go func() {
		defer wg.Done()
		// Join the in-flight refresh, then cancel the caller that started it
		time.Sleep(50 * time.Millisecond)
		cancel()
		_, errSecond = f.client.RefreshInstallation(context.Background(), "inst-1")
	}()
	wg.Wait()

	// The refresh runs detached from the initiating request, so neither the
	// impatient caller nor its peers see a cancellation error
	require.NoError(t, errFirst)
	require.NoError(t, errSecond)
	assert.Equal(t, int32(1), f.refreshCalls.Load())

	stored, err := f.store.Get(context.Background(), "inst-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-new-1", stored.AccessToken)
}

func TestRefreshInstallationRotatesTokensEveryTime(t *testing.T) {
	f := newClientFixture(t, fixtureOptions{})
	f.seed(t, "inst-1", time.Now().Add(time.Hour))

	first, err := f.client.RefreshInstallation(context.Background(), "inst-1")
	require.NoError(t, err)
	second, err := f.client.RefreshInstallation(context.Background(), "inst-1")
	require.NoError(t, err)

	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	assert.False(t, second.ExpiresAt.Before(first.ExpiresAt))
	assert.Equal(t, int32(2), f.refreshCalls.Load())
}

func TestCallMultipartSendsFileAndLocationField(t *testing.T) {
	f := newClientFixture(t, fixtureOptions{apiHandler: func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1 << 20))
		assert.Equal(t, "loc_123", r.FormValue("locationId"))
		assert.Equal(t, "2021-07-28", r.Header.Get("Version"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		content, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "logo.png", header.Filename)
		assert.Equal(t, "fake image bytes", string(content))

		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"fileId":"media_1"}`)
	}})
	f.seed(t, "inst-1", time.Now().Add(time.Hour))

	resp, err := f.client.CallMultipart(
		context.Background(), "inst-1", "/medias/upload-file",
		"file", "logo.png", strings.NewReader("fake image bytes"),
		map[string]string{"locationId": "loc_123"},
	)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.Unmarshal(resp.Body, &body))
	assert.Equal(t, "media_1", body["fileId"])
}
