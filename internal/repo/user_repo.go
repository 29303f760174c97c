// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User and
// Tenant models.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/synergycall/go-pbx-backend/internal/domain"
)

// CreateUser inserts a new User row in the given tenant. The user ID is a
// randomly generated UUID (string), and CreatedAt is set to UTC. Returns
// ErrDuplicate when the email unique index rejects the insert.
func CreateUser(ctx context.Context, db *gorm.DB, tenantID, name, email string) (*domain.User, error) {
	u := &domain.User{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Name:      name,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return u, nil
}

// GetUser fetches a single user by ID within the tenant, preloading the
// owned extension. Returns ErrNotFound if missing.
func GetUser(ctx context.Context, db *gorm.DB, tenantID, id string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Preload("Extension").
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CountUsers returns the total number of users in the tenant.
func CountUsers(ctx context.Context, db *gorm.DB, tenantID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("tenant_id = ?", tenantID).
		Count(&total).Error
	return total, err
}

// ListUsersPage returns a paginated slice of users in the tenant, ordered by
// creation time descending, each with its extension preloaded.
//
// The caller is responsible for computing offset and limit (e.g., (page-1)*pageSize).
func ListUsersPage(ctx context.Context, db *gorm.DB, tenantID string, offset, limit int) ([]domain.User, error) {
	var out []domain.User
	err := db.WithContext(ctx).
		Preload("Extension").
		Where("tenant_id = ?", tenantID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListProvisionedUsers returns every user in the tenant that owns an
// extension, ordered by extension number ascending. This is the generator's
// input; the ordering makes repeated generation deterministic.
func ListProvisionedUsers(ctx context.Context, db *gorm.DB, tenantID string) ([]domain.User, error) {
	var out []domain.User
	err := db.WithContext(ctx).
		Preload("Extension").
		Joins("JOIN extensions ON extensions.user_id = users.id").
		Where("users.tenant_id = ?", tenantID).
		Order("extensions.number asc").
		Find(&out).Error
	return out, err
}

// DeleteUser removes a user by ID within the tenant. If no rows are affected
// it returns ErrNotFound. The owned extension row is removed in the same
// call so the number is freed together with the user.
func DeleteUser(ctx context.Context, db *gorm.DB, tenantID, id string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&domain.Extension{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ? AND tenant_id = ?", id, tenantID).Delete(&domain.User{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// GetTenant fetches a tenant by ID, or ErrNotFound.
func GetTenant(ctx context.Context, db *gorm.DB, id string) (*domain.Tenant, error) {
	var t domain.Tenant
	if err := db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// EnsureDefaultTenant returns the first tenant, creating one with the given
// name and pool bounds when the table is empty. The MVP runs single-tenant;
// this keeps bootstrap idempotent across restarts.
func EnsureDefaultTenant(ctx context.Context, db *gorm.DB, name string, extMin, extMax int) (*domain.Tenant, error) {
	var t domain.Tenant
	err := db.WithContext(ctx).Order("created_at asc").First(&t).Error
	if err == nil {
		return &t, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	t = domain.Tenant{
		ID:        uuid.NewString(),
		Name:      name,
		ExtMin:    extMin,
		ExtMax:    extMax,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}
