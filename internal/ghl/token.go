package ghl

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSet is the parsed result of one token endpoint exchange: the raw
// credentials plus the tenant identity decoded out of the access token.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
	// ExpiresAt is recomputed from ExpiresIn at parse time on every issuance
	ExpiresAt time.Time
	Scope     string

	// Claims decoded from the access token payload. The token class
	// (Location vs Company) is decided by the upstream app configuration and
	// only discoverable here.
	AuthClass  string
	LocationID string
	CompanyID  string
	UserID     string
}

// ScopeList splits the space-separated scope grant
func (t *TokenSet) ScopeList() []string {
	return strings.Fields(t.Scope)
}

// tokenResponse is the upstream token endpoint JSON body. locationId and
// companyId are present on some responses and absent on others, so the access
// token claims are the authoritative fallback.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	TokenType    string `json:"token_type"`
	LocationID   string `json:"locationId"`
	CompanyID    string `json:"companyId"`
	UserType     string `json:"userType"`
	UserID       string `json:"userId"`
}

// parseTokenResponse decodes a 2xx token endpoint body into a TokenSet,
// computing the absolute expiry and extracting tenant identity.
func parseTokenResponse(body []byte, now time.Time) (*TokenSet, error) {
	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("malformed token response: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}

	set := &TokenSet{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    resp.ExpiresIn,
		ExpiresAt:    now.Add(time.Duration(resp.ExpiresIn) * time.Second),
		Scope:        resp.Scope,
		AuthClass:    resp.UserType,
		LocationID:   resp.LocationID,
		CompanyID:    resp.CompanyID,
		UserID:       resp.UserID,
	}

	// The access token is a signed structured credential; its payload carries
	// the granted class and tenant ids. Decoding is pure parsing, not
	// verification: the claims are trusted because the token came straight
	// from the token endpoint over TLS.
	if claims, err := decodeAccessClaims(resp.AccessToken); err == nil {
		if set.AuthClass == "" {
			set.AuthClass = claims.AuthClass
		}
		if set.LocationID == "" {
			set.LocationID = claims.LocationID
		}
		if set.CompanyID == "" {
			set.CompanyID = claims.CompanyID
		}
		if set.UserID == "" {
			set.UserID = claims.UserID
		}
	}
	return set, nil
}

// accessClaims is the subset of access token payload fields this system reads
type accessClaims struct {
	AuthClass  string
	LocationID string
	CompanyID  string
	UserID     string
}

// decodeAccessClaims reads the claims out of the upstream access token without
// validating the signature
func decodeAccessClaims(accessToken string) (*accessClaims, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return nil, fmt.Errorf("decoding access token claims: %w", err)
	}
	return &accessClaims{
		AuthClass:  claimString(claims, "authClass"),
		LocationID: claimString(claims, "locationId", "location_id"),
		CompanyID:  claimString(claims, "companyId", "company_id"),
		UserID:     claimString(claims, "userId", "sub"),
	}, nil
}

// claimString returns the first non-empty string claim among the given keys
func claimString(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		if value, ok := claims[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}
