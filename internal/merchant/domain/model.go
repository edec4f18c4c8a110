package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type MerchantStatus string

const (
	MerchantStatusActive    MerchantStatus = "active"
	MerchantStatusSuspended MerchantStatus = "suspended"
)

// Merchant is a tenant of the payment engine. Orders, refunds and API
// keys all hang off a merchant row.
type Merchant struct {
	ID        snowflake.ID   `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"size:255;not null" json:"name"`
	Email     string         `gorm:"size:255" json:"email"`
	Status    MerchantStatus `gorm:"size:32;not null;default:active" json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (Merchant) TableName() string { return "merchants" }

func (m *Merchant) IsActive() bool { return m.Status == MerchantStatusActive }

// APIKey authenticates a merchant's server-to-server calls. The secret
// is stored as an argon2id hash; the plaintext is shown once at issue
// time and never again.
type APIKey struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	MerchantID snowflake.ID `gorm:"index;not null" json:"merchant_id"`
	KeyID      string       `gorm:"size:64;uniqueIndex;not null" json:"key_id"`
	SecretHash string       `gorm:"size:255;not null" json:"-"`
	IsActive   bool         `gorm:"not null;default:true" json:"is_active"`
	ExpiresAt  *time.Time   `json:"expires_at,omitempty"`
	LastUsedAt *time.Time   `json:"last_used_at,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

func (APIKey) TableName() string { return "merchant_api_keys" }

func (k *APIKey) IsUsable(now time.Time) bool {
	if !k.IsActive {
		return false
	}
	if k.ExpiresAt != nil && !k.ExpiresAt.After(now) {
		return false
	}
	return true
}
