// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the durable apply-lock primitive.
//
// The lock is a single row keyed by tenant: acquiring it is an insert under
// the primary-key constraint, releasing it is a delete scoped to the holder.
// Because the token lives in the same store as the audit log, it survives a
// process crash and remains visible across independent portal instances.
// There is no automatic expiry; a lock abandoned by a dead holder is cleared
// with ForceReleaseApplyLock (operator runbook, not code path).
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/synergycall/go-pbx-backend/internal/domain"
)

// TryAcquireApplyLock attempts to take the tenant's apply lock without
// blocking. It returns ErrDuplicate when the lock row already exists, i.e.
// another apply holds it (or a crashed holder never released it).
func TryAcquireApplyLock(ctx context.Context, db *gorm.DB, tenantID, holderID, acquiredBy string) error {
	lock := &domain.ApplyLock{
		TenantID:   tenantID,
		HolderID:   holderID,
		AcquiredBy: acquiredBy,
		AcquiredAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(lock).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// ReleaseApplyLock deletes the tenant's lock row, but only when held by
// holderID. Releasing a lock that is absent or held by someone else returns
// ErrNotFound so a misbehaving coordinator cannot free another's token.
func ReleaseApplyLock(ctx context.Context, db *gorm.DB, tenantID, holderID string) error {
	res := db.WithContext(ctx).
		Where("tenant_id = ? AND holder_id = ?", tenantID, holderID).
		Delete(&domain.ApplyLock{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetApplyLock returns the current lock row for the tenant, or ErrNotFound
// when the lock is free.
func GetApplyLock(ctx context.Context, db *gorm.DB, tenantID string) (*domain.ApplyLock, error) {
	var lock domain.ApplyLock
	if err := db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&lock).Error; err != nil {
		return nil, err
	}
	return &lock, nil
}

// ForceReleaseApplyLock deletes the tenant's lock row regardless of holder.
// Reserved for operator intervention after a holder crashed uncleanly.
func ForceReleaseApplyLock(ctx context.Context, db *gorm.DB, tenantID string) error {
	return db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Delete(&domain.ApplyLock{}).Error
}
