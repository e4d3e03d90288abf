package events

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/trackbeam/trackbeam-backend/pkg/config"
	"github.com/trackbeam/trackbeam-backend/pkg/db/models"
	"github.com/trackbeam/trackbeam-backend/pkg/enums"
	pkgerrors "github.com/trackbeam/trackbeam-backend/pkg/errors"
)

// ReceptionStrict rejects pixel events whose token does not match; the
// default lax mode accepts them with downgraded trust.
const ReceptionStrict = "strict"

// PixelTokenRepository loads the per-shop ingestion key.
type PixelTokenRepository interface {
	FindByShop(ctx context.Context, shopDomain string) (*models.PixelToken, error)
}

type pixelTokenRepository struct {
	db *gorm.DB
}

// NewPixelTokenRepository builds the gorm-backed token repository.
func NewPixelTokenRepository(db *gorm.DB) PixelTokenRepository {
	return &pixelTokenRepository{db: db}
}

func (r *pixelTokenRepository) FindByShop(ctx context.Context, shopDomain string) (*models.PixelToken, error) {
	var token models.PixelToken
	err := r.db.WithContext(ctx).
		Where("shop_domain = ?", shopDomain).
		First(&token).Error
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// TokenVerifier grades pixel requests by their ingestion key. A matching
// token (or the previous token inside the rotation grace window) marks the
// event trusted. A mismatch downgrades trust to partial in lax mode and
// rejects in strict mode.
type TokenVerifier struct {
	repo   PixelTokenRepository
	grace  time.Duration
	strict bool
	now    func() time.Time
}

// NewTokenVerifier builds the verifier from the ingest config.
func NewTokenVerifier(repo PixelTokenRepository, cfg config.IngestConfig) (*TokenVerifier, error) {
	if repo == nil {
		return nil, fmt.Errorf("pixel token repository required")
	}
	return &TokenVerifier{
		repo:   repo,
		grace:  cfg.PixelTokenGrace,
		strict: strings.EqualFold(cfg.ReceptionMode, ReceptionStrict),
		now:    time.Now,
	}, nil
}

// Verify returns the trust level the presented token earns for the shop.
func (v *TokenVerifier) Verify(ctx context.Context, shopDomain, presented string) (enums.TrustLevel, error) {
	stored, err := v.repo.FindByShop(ctx, strings.ToLower(shopDomain))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return v.mismatch("no pixel token provisioned")
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pixel token")
	}

	if presented != "" && tokenEqual(presented, stored.Token) {
		return enums.TrustTrusted, nil
	}
	if presented != "" && stored.PreviousToken != nil && stored.RotatedAt != nil {
		inGrace := v.now().Sub(*stored.RotatedAt) <= v.grace
		if inGrace && tokenEqual(presented, *stored.PreviousToken) {
			return enums.TrustTrusted, nil
		}
	}
	return v.mismatch("pixel token mismatch")
}

func (v *TokenVerifier) mismatch(reason string) (enums.TrustLevel, error) {
	if v.strict {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, reason)
	}
	return enums.TrustPartial, nil
}

func tokenEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
