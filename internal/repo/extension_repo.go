// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Extension
// model, including the constraint-arbitrated insert the allocator relies on.
//
// Error semantics:
//   - When a record is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - CreateExtension returns ErrDuplicate when the (tenant_id, number)
//     unique index rejects the insert, i.e. a concurrent allocator won the
//     same number.
//   - On other DB errors, the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/synergycall/go-pbx-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for consistency across the service
// layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates that an insert was rejected by a unique constraint.
var ErrDuplicate = errors.New("duplicate")

// isUniqueViolation reports whether err is a unique-constraint rejection.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}

// CreateExtension inserts a new Extension row binding number to userID within
// the tenant. It returns ErrDuplicate when the (tenant_id, number) or the
// user 1:1 unique index rejects the insert; the caller decides whether to
// recompute and retry.
func CreateExtension(ctx context.Context, db *gorm.DB, tenantID, userID string, number int, secret string) (*domain.Extension, error) {
	e := &domain.Extension{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Number:    number,
		UserID:    userID,
		Secret:    secret,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(e).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return e, nil
}

// ListExtensionNumbers returns the allocated numbers for a tenant in
// ascending order. The result is the allocator's view of the in-use set;
// it is a hint only, the unique index is the arbiter.
func ListExtensionNumbers(ctx context.Context, db *gorm.DB, tenantID string) ([]int, error) {
	var numbers []int
	err := db.WithContext(ctx).
		Model(&domain.Extension{}).
		Where("tenant_id = ?", tenantID).
		Order("number asc").
		Pluck("number", &numbers).Error
	return numbers, err
}

// GetExtensionByUser fetches the extension owned by userID, or ErrNotFound.
func GetExtensionByUser(ctx context.Context, db *gorm.DB, userID string) (*domain.Extension, error) {
	var e domain.Extension
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// DeleteExtensionByUser removes the extension owned by userID, returning its
// number to the tenant's immediately-reusable free set. Deleting a missing
// extension is not an error; user deletion may cascade it first.
func DeleteExtensionByUser(ctx context.Context, db *gorm.DB, userID string) error {
	return db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&domain.Extension{}).Error
}
