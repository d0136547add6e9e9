package models

import (
	"time"

	"github.com/google/uuid"
)

type LicenceStatus string

const (
	LicenceStatusPending LicenceStatus = "pending"
	LicenceStatusActive  LicenceStatus = "active"
	LicenceStatusExpired LicenceStatus = "expired"
	LicenceStatusRevoked LicenceStatus = "revoked"
)

// Label returns a human-readable label for the status.
func (s LicenceStatus) Label() string {
	switch s {
	case LicenceStatusPending:
		return "Pending Activation"
	case LicenceStatusActive:
		return "Active"
	case LicenceStatusExpired:
		return "Expired"
	case LicenceStatusRevoked:
		return "Revoked"
	}
	return string(s)
}

// Color returns the UI badge color associated with the status.
func (s LicenceStatus) Color() string {
	switch s {
	case LicenceStatusPending:
		return "warning"
	case LicenceStatusActive:
		return "success"
	case LicenceStatusExpired:
		return "danger"
	case LicenceStatusRevoked:
		return "secondary"
	}
	return "secondary"
}

func (s LicenceStatus) Valid() bool {
	switch s {
	case LicenceStatusPending, LicenceStatusActive, LicenceStatusExpired, LicenceStatusRevoked:
		return true
	}
	return false
}

func AllStatuses() []LicenceStatus {
	return []LicenceStatus{
		LicenceStatusPending,
		LicenceStatusActive,
		LicenceStatusExpired,
		LicenceStatusRevoked,
	}
}

type Licence struct {
	ID           uuid.UUID              `json:"id"`
	Refid        string                 `json:"refid"`
	Key          string                 `json:"key"`
	ProductID    uuid.UUID              `json:"product_id"`
	ClientID     *uuid.UUID             `json:"client_id,omitempty"`
	DurationDays *int                   `json:"duration_days,omitempty"`
	Status       LicenceStatus          `json:"status"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	ActivatedAt  *time.Time             `json:"activated_at,omitempty"`
	ExpiresAt    *time.Time             `json:"expires_at,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// IsActive reports whether the licence currently grants access: the stored
// status must be active and any expiry date must still be in the future.
func (l *Licence) IsActive() bool {
	if l.Status != LicenceStatusActive {
		return false
	}
	if l.ExpiresAt != nil && !l.ExpiresAt.After(time.Now()) {
		return false
	}
	return true
}

// IsExpired is derived: a licence counts as expired once its expiry date has
// passed, even if the expired status has not been persisted by a sweep yet.
func (l *Licence) IsExpired() bool {
	if l.Status == LicenceStatusExpired {
		return true
	}
	return l.ExpiresAt != nil && !l.ExpiresAt.After(time.Now())
}

func (l *Licence) IsPending() bool {
	return l.Status == LicenceStatusPending
}

type Product struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Client struct {
	ID        uuid.UUID  `json:"id"`
	OwnerID   *uuid.UUID `json:"owner_id,omitempty"`
	Name      string     `json:"name"`
	Email     string     `json:"email,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type MintingStats struct {
	Total    int                   `json:"total"`
	ByStatus map[LicenceStatus]int `json:"status"`
}

// TrendPoint is one time bucket of a trend series. Series are always ordered
// ascending by bucket.
type TrendPoint struct {
	Bucket string `json:"bucket"`
	Count  int    `json:"count"`
}
