// Package seed bootstraps the default merchant for local development
// and self-hosted deployments.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	merchantdomain "github.com/smallbiznis/payflow/internal/merchant/domain"
	"gorm.io/gorm"
)

const (
	defaultMerchantName  = "Main"
	defaultMerchantEmail = "ops@payflow.local"
)

// EnsureDefaultMerchant creates the default merchant when the table is
// empty. Idempotent across restarts.
func EnsureDefaultMerchant(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var merchant merchantdomain.Merchant
		err := tx.WithContext(ctx).Where("name = ?", defaultMerchantName).First(&merchant).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := time.Now().UTC()
		merchant = merchantdomain.Merchant{
			ID:        node.Generate(),
			Name:      defaultMerchantName,
			Email:     defaultMerchantEmail,
			Status:    merchantdomain.MerchantStatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.WithContext(ctx).Create(&merchant).Error
	})
}
