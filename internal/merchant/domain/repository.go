package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrMerchantNotFound = errors.New("merchant_not_found")
	ErrKeyNotFound      = errors.New("api_key_not_found")
	ErrInvalidKey       = errors.New("invalid_api_key")
)

type Repository interface {
	InsertMerchant(ctx context.Context, db *gorm.DB, merchant *Merchant) error
	UpdateMerchant(ctx context.Context, db *gorm.DB, merchant *Merchant) error
	FindMerchantByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Merchant, error)

	InsertKey(ctx context.Context, db *gorm.DB, key *APIKey) error
	UpdateKey(ctx context.Context, db *gorm.DB, key *APIKey) error
	FindKeyByKeyID(ctx context.Context, db *gorm.DB, keyID string) (*APIKey, error)
	ListKeys(ctx context.Context, db *gorm.DB, merchantID snowflake.ID) ([]APIKey, error)
}
