// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the append-only apply audit trail.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/synergycall/go-pbx-backend/internal/domain"
)

// CreateApplyAuditLog appends one audit row for an apply attempt. Rows are
// never updated or deleted; every attempt gets exactly one, whatever the
// outcome.
func CreateApplyAuditLog(ctx context.Context, db *gorm.DB, tenantID, triggeredBy, outcome, errorText, details string, triggeredAt time.Time) (*domain.ApplyAuditLog, error) {
	rec := &domain.ApplyAuditLog{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		TriggeredAt: triggeredAt,
		TriggeredBy: triggeredBy,
		Outcome:     outcome,
		ErrorText:   errorText,
		Details:     details,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, err
	}
	return rec, nil
}

// GetApplyAuditLog fetches one audit row by ID within the tenant, or
// ErrNotFound.
func GetApplyAuditLog(ctx context.Context, db *gorm.DB, tenantID, id string) (*domain.ApplyAuditLog, error) {
	var rec domain.ApplyAuditLog
	err := db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CountApplyAuditLogs returns the total number of audit rows for the tenant.
func CountApplyAuditLogs(ctx context.Context, db *gorm.DB, tenantID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.ApplyAuditLog{}).
		Where("tenant_id = ?", tenantID).
		Count(&total).Error
	return total, err
}

// ListApplyAuditLogsPage returns a page of audit rows for the tenant,
// newest first.
func ListApplyAuditLogsPage(ctx context.Context, db *gorm.DB, tenantID string, offset, limit int) ([]domain.ApplyAuditLog, error) {
	var out []domain.ApplyAuditLog
	err := db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("triggered_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
