package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Token status values derived from expiry and refresh history
const (
	StatusValid         = "valid"
	StatusExpiring      = "expiring"
	StatusExpired       = "expired"
	StatusRefreshFailed = "refresh_failed"
)

// Token classes granted by the upstream OAuth server. The class is fixed at
// issuance by the app configuration and cannot be requested per-exchange.
const (
	TokenClassLocation = "Location"
	TokenClassCompany  = "Company"
)

// Installation is one tenant's completed OAuth authorization together with its
// token set. Created once per successful callback, mutated in place on every
// refresh, never hard-deleted (a reinstall produces a new record).
type Installation struct {
	ID string `gorm:"primaryKey" json:"id"`

	// Raw credentials are never serialized; only the API client reads them
	AccessToken  string `gorm:"not null" json:"-"`
	RefreshToken string `json:"-"`

	// TokenType is the upstream authClass (Location or Company)
	TokenType string    `json:"tokenType"`
	ExpiresAt time.Time `gorm:"not null" json:"expiresAt"`

	// LocationID is empty for Company-class tokens
	LocationID string         `json:"locationId,omitempty"`
	CompanyID  string         `json:"companyId,omitempty"`
	Scopes     datatypes.JSON `json:"scopes"`

	// Status holds the last recorded token status; reads derive the current
	// one from ExpiresAt instead of trusting this field
	Status          string     `json:"status"`
	LastRefreshedAt *time.Time `json:"lastRefreshedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Installation) TableName() string {
	return "installations"
}

// NeedsRefresh reports whether the access token is within the refresh padding
// of its expiry at the given instant
func (i *Installation) NeedsRefresh(padding time.Duration, now time.Time) bool {
	return i.ExpiresAt.Sub(now) < padding
}

// DerivedStatus computes the current token status. refresh_failed is sticky:
// it is only cleared by a successful refresh or a fresh install.
func (i *Installation) DerivedStatus(padding time.Duration, now time.Time) string {
	if i.Status == StatusRefreshFailed {
		return StatusRefreshFailed
	}
	switch {
	case !now.Before(i.ExpiresAt):
		return StatusExpired
	case i.NeedsRefresh(padding, now):
		return StatusExpiring
	default:
		return StatusValid
	}
}

// SetScopes stores a scope list on the JSON column
func (i *Installation) SetScopes(scopes []string) {
	raw, err := json.Marshal(scopes)
	if err != nil {
		return
	}
	i.Scopes = datatypes.JSON(raw)
}

// ScopeList returns the stored scopes as a slice
func (i *Installation) ScopeList() []string {
	var scopes []string
	if len(i.Scopes) == 0 {
		return scopes
	}
	_ = json.Unmarshal(i.Scopes, &scopes)
	return scopes
}

// InstallationSummary is the safe external view of an installation: status
// flags and identifiers only, never token material.
type InstallationSummary struct {
	ID              string     `json:"id"`
	TokenType       string     `json:"tokenType"`
	LocationID      string     `json:"locationId,omitempty"`
	CompanyID       string     `json:"companyId,omitempty"`
	Scopes          []string   `json:"scopes"`
	Status          string     `json:"status"`
	ExpiresAt       time.Time  `json:"expiresAt"`
	TimeUntilExpiry int64      `json:"timeUntilExpiry"`
	HasRefreshToken bool       `json:"hasRefreshToken"`
	LastRefreshedAt *time.Time `json:"lastRefreshedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Summary builds the external view, deriving status and time-until-expiry at
// call time (they are never stored)
func (i *Installation) Summary(padding time.Duration, now time.Time) InstallationSummary {
	remaining := i.ExpiresAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return InstallationSummary{
		ID:              i.ID,
		TokenType:       i.TokenType,
		LocationID:      i.LocationID,
		CompanyID:       i.CompanyID,
		Scopes:          i.ScopeList(),
		Status:          i.DerivedStatus(padding, now),
		ExpiresAt:       i.ExpiresAt,
		TimeUntilExpiry: int64(remaining.Seconds()),
		HasRefreshToken: i.RefreshToken != "",
		LastRefreshedAt: i.LastRefreshedAt,
		CreatedAt:       i.CreatedAt,
	}
}
