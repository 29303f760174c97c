// This file implements concurrency-safe extension allocation. The allocator
// computes the lowest free number in the tenant's pool from a snapshot of the
// allocation set, then attempts to persist the reservation; the composite
// unique index on (tenant_id, number) is the authoritative arbiter. When a
// concurrent allocator wins the same candidate, the insert fails with a
// unique violation and the allocator recomputes against the now-updated set,
// bounded by a small retry ceiling.
//
// The optimistic read keeps the common (no-contention) path free of long-held
// locks while remaining correct under races.
package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/synergycall/go-pbx-backend/internal/domain"
	"github.com/synergycall/go-pbx-backend/internal/repo"
)

// defaultAllocRetries bounds insert attempts under contention before the
// allocator surfaces ErrAllocationContention.
const defaultAllocRetries = 5

// sipSecretBytes is the entropy fed into generated SIP credentials.
const sipSecretBytes = 16

// ExtensionStore defines the persistence contract required by the allocator.
// Implementations must enforce uniqueness of (tenant, number) on Create.
type ExtensionStore interface {
	// ListNumbers returns the tenant's allocated numbers in ascending order.
	ListNumbers(ctx context.Context, db *gorm.DB, tenantID string) ([]int, error)

	// Create persists a reservation of number for userID, returning
	// repo.ErrDuplicate when a concurrent allocator already took it.
	Create(ctx context.Context, db *gorm.DB, tenantID, userID string, number int, secret string) (*domain.Extension, error)
}

// ExtensionAllocator picks the lowest free extension number in a tenant's
// bounded pool without double-allocation under concurrent callers.
type ExtensionAllocator struct {
	// Store is the extension persistence backend.
	Store ExtensionStore

	// MaxRetries caps insert attempts under contention; defaults to 5.
	MaxRetries int
}

// NewExtensionAllocator constructs an allocator with the default retry ceiling.
func NewExtensionAllocator(store ExtensionStore) *ExtensionAllocator {
	return &ExtensionAllocator{Store: store, MaxRetries: defaultAllocRetries}
}

// Allocate reserves the smallest unused number in the tenant's pool for
// userID and returns the persisted extension. The reservation is recorded
// before Allocate returns. It fails with ErrPoolExhausted when no free number
// remains, and ErrAllocationContention when the retry ceiling is exceeded.
func (a *ExtensionAllocator) Allocate(ctx context.Context, db *gorm.DB, tenant *domain.Tenant, userID string) (*domain.Extension, error) {
	tr := otel.Tracer("services/ExtensionAllocator")
	ctx, span := tr.Start(ctx, "Allocate",
		trace.WithAttributes(
			attribute.String("tenant.id", tenant.ID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	retries := a.MaxRetries
	if retries <= 0 {
		retries = defaultAllocRetries
	}

	for attempt := 1; attempt <= retries; attempt++ {
		numbers, err := a.Store.ListNumbers(ctx, db, tenant.ID)
		if err != nil {
			return nil, err
		}

		candidate, ok := lowestFree(numbers, tenant.ExtMin, tenant.ExtMax)
		if !ok {
			log.Error().
				Str("tenant_id", tenant.ID).
				Int("ext_min", tenant.ExtMin).
				Int("ext_max", tenant.ExtMax).
				Msg("extension pool exhausted")
			return nil, fmt.Errorf("%w: no free number in range %d-%d",
				ErrPoolExhausted, tenant.ExtMin, tenant.ExtMax)
		}

		secret, err := NewSIPSecret()
		if err != nil {
			return nil, err
		}

		ext, err := a.Store.Create(ctx, db, tenant.ID, userID, candidate, secret)
		if err == nil {
			log.Info().
				Str("tenant_id", tenant.ID).
				Str("user_id", userID).
				Int("number", candidate).
				Int("attempt", attempt).
				Msg("allocated extension")
			return ext, nil
		}
		if !errors.Is(err, repo.ErrDuplicate) {
			return nil, err
		}

		// Another allocator won this number; recompute against the updated set.
		allocRetries.Inc()
		log.Warn().
			Str("tenant_id", tenant.ID).
			Str("user_id", userID).
			Int("number", candidate).
			Int("attempt", attempt).
			Int("max_retries", retries).
			Msg("extension number conflict, retrying")
	}

	log.Error().
		Str("tenant_id", tenant.ID).
		Str("user_id", userID).
		Int("max_retries", retries).
		Msg("extension allocation retry ceiling exceeded")
	return nil, fmt.Errorf("%w: gave up after %d attempts", ErrAllocationContention, retries)
}

// lowestFree returns the smallest integer in [min, max] absent from the
// ascending-sorted allocated set, or ok=false when the pool is saturated.
func lowestFree(allocated []int, min, max int) (int, bool) {
	candidate := min
	for _, n := range allocated {
		if n < candidate {
			continue
		}
		if n > candidate {
			break
		}
		candidate++
	}
	if candidate > max {
		return 0, false
	}
	return candidate, true
}

// NewSIPSecret returns a high-entropy, URL-safe credential for SIP
// authentication. Generated once at user creation and never regenerated
// implicitly.
func NewSIPSecret() (string, error) {
	buf := make([]byte, sipSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
