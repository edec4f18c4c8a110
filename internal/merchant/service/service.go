package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payflow/internal/cache"
	"github.com/smallbiznis/payflow/internal/clock"
	"github.com/smallbiznis/payflow/internal/merchant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// authCacheTTL bounds how long a verified credential skips the argon2
// check. Key revocation takes effect within this window.
const authCacheTTL = 5 * time.Minute

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	authCache cache.Cache[string, snowflake.ID]
}

func New(p Params) *Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("merchant.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		authCache: cache.NewTTLCache[string, snowflake.ID](),
	}
}

func (s *Service) CreateMerchant(ctx context.Context, name, email string) (*domain.Merchant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrMerchantNotFound
	}
	now := s.clock.Now()
	merchant := &domain.Merchant{
		ID:        s.genID.Generate(),
		Name:      name,
		Email:     strings.TrimSpace(email),
		Status:    domain.MerchantStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertMerchant(ctx, s.db, merchant); err != nil {
		return nil, err
	}
	return merchant, nil
}

// IssueKey mints an API key for the merchant. The returned secret is
// the only time the plaintext exists outside the caller.
func (s *Service) IssueKey(ctx context.Context, merchantID snowflake.ID) (*domain.APIKey, string, error) {
	if _, err := s.repo.FindMerchantByID(ctx, s.db, merchantID); err != nil {
		return nil, "", err
	}

	keyID, secret, err := domain.GenerateKey()
	if err != nil {
		return nil, "", err
	}
	hash, err := domain.HashSecret(secret)
	if err != nil {
		return nil, "", err
	}

	now := s.clock.Now()
	key := &domain.APIKey{
		ID:         s.genID.Generate(),
		MerchantID: merchantID,
		KeyID:      keyID,
		SecretHash: hash,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.InsertKey(ctx, s.db, key); err != nil {
		return nil, "", err
	}
	return key, keyID + "." + secret, nil
}

// RevokeKey deactivates a key. Cached authentications age out within
// authCacheTTL.
func (s *Service) RevokeKey(ctx context.Context, merchantID snowflake.ID, keyID string) error {
	key, err := s.repo.FindKeyByKeyID(ctx, s.db, keyID)
	if err != nil {
		return err
	}
	if key.MerchantID != merchantID {
		return domain.ErrKeyNotFound
	}
	key.IsActive = false
	key.UpdatedAt = s.clock.Now()
	return s.repo.UpdateKey(ctx, s.db, key)
}

// Authenticate resolves a "keyID.secret" credential to a merchant.
// Verified credentials are cached by digest so the argon2 derivation
// only runs on cache misses.
func (s *Service) Authenticate(ctx context.Context, token string) (snowflake.ID, error) {
	token = strings.TrimSpace(token)
	keyID, secret, ok := strings.Cut(token, ".")
	if !ok || keyID == "" || secret == "" {
		return 0, domain.ErrInvalidKey
	}

	digest := tokenDigest(token)
	if merchantID, ok := s.authCache.Get(digest); ok {
		return merchantID, nil
	}

	key, err := s.repo.FindKeyByKeyID(ctx, s.db, keyID)
	if err != nil {
		return 0, domain.ErrInvalidKey
	}
	now := s.clock.Now()
	if !key.IsUsable(now) {
		return 0, domain.ErrInvalidKey
	}
	if !domain.VerifySecret(secret, key.SecretHash) {
		return 0, domain.ErrInvalidKey
	}

	merchant, err := s.repo.FindMerchantByID(ctx, s.db, key.MerchantID)
	if err != nil || !merchant.IsActive() {
		return 0, domain.ErrInvalidKey
	}

	key.LastUsedAt = &now
	key.UpdatedAt = now
	if err := s.repo.UpdateKey(ctx, s.db, key); err != nil {
		s.log.Warn("last_used update failed", zap.String("key_id", keyID), zap.Error(err))
	}

	s.authCache.Set(digest, merchant.ID, authCacheTTL)
	return merchant.ID, nil
}

func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
