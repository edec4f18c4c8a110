package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payflow/internal/clock"
	"github.com/smallbiznis/payflow/internal/merchant/domain"
	"github.com/smallbiznis/payflow/internal/merchant/repository"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupService(t *testing.T) *Service {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Merchant{}, &domain.APIKey{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	return New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.SystemClock{},
		Repo:  repository.Provide(),
	})
}

func TestIssueKeyAndAuthenticate(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	merchant, err := svc.CreateMerchant(ctx, "Acme Store", "ops@acme.example")
	if err != nil {
		t.Fatalf("create merchant: %v", err)
	}

	key, credential, err := svc.IssueKey(ctx, merchant.ID)
	if err != nil {
		t.Fatalf("issue key: %v", err)
	}
	if key.SecretHash == "" || key.KeyID == "" {
		t.Fatalf("issued key incomplete: %+v", key)
	}

	merchantID, err := svc.Authenticate(ctx, credential)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if merchantID != merchant.ID {
		t.Fatalf("expected merchant %s, got %s", merchant.ID, merchantID)
	}

	// Second call hits the cache; same outcome.
	if again, err := svc.Authenticate(ctx, credential); err != nil || again != merchant.ID {
		t.Fatalf("cached authenticate: %s %v", again, err)
	}
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	merchant, err := svc.CreateMerchant(ctx, "Acme Store", "")
	if err != nil {
		t.Fatalf("create merchant: %v", err)
	}
	key, _, err := svc.IssueKey(ctx, merchant.ID)
	if err != nil {
		t.Fatalf("issue key: %v", err)
	}

	cases := []string{
		"",
		"no-separator",
		key.KeyID + ".wrong-secret",
		"pk_unknown.whatever",
	}
	for _, credential := range cases {
		if _, err := svc.Authenticate(ctx, credential); !errors.Is(err, domain.ErrInvalidKey) {
			t.Fatalf("credential %q: expected ErrInvalidKey, got %v", credential, err)
		}
	}
}

func TestRevokedKeyStopsAuthenticating(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	merchant, err := svc.CreateMerchant(ctx, "Acme Store", "")
	if err != nil {
		t.Fatalf("create merchant: %v", err)
	}
	key, credential, err := svc.IssueKey(ctx, merchant.ID)
	if err != nil {
		t.Fatalf("issue key: %v", err)
	}

	if err := svc.RevokeKey(ctx, merchant.ID, key.KeyID); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	if _, err := svc.Authenticate(ctx, credential); !errors.Is(err, domain.ErrInvalidKey) {
		t.Fatalf("revoked key must not authenticate, got %v", err)
	}
}
