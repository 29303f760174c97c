package repo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/synergycall/go-pbx-backend/internal/domain"
)

func newLockRepoDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("lock_repo_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if err := db.AutoMigrate(&domain.ApplyLock{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestTryAcquireApplyLock_SecondAcquireContended(t *testing.T) {
	db := newLockRepoDB(t)
	ctx := context.Background()

	if err := TryAcquireApplyLock(ctx, db, "t1", "h1", "alice"); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	err := TryAcquireApplyLock(ctx, db, "t1", "h2", "bob")
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate on contended acquire, got %v", err)
	}
}

func TestTryAcquireApplyLock_IndependentTenants(t *testing.T) {
	db := newLockRepoDB(t)
	ctx := context.Background()

	if err := TryAcquireApplyLock(ctx, db, "t1", "h1", "alice"); err != nil {
		t.Fatalf("tenant 1: %v", err)
	}
	if err := TryAcquireApplyLock(ctx, db, "t2", "h2", "bob"); err != nil {
		t.Fatalf("tenant 2 should be independent: %v", err)
	}
}

func TestReleaseApplyLock_WrongHolderRefused(t *testing.T) {
	db := newLockRepoDB(t)
	ctx := context.Background()

	if err := TryAcquireApplyLock(ctx, db, "t1", "h1", "alice"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := ReleaseApplyLock(ctx, db, "t1", "h2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for wrong holder, got %v", err)
	}

	// Lock must still be held by the original holder.
	lock, err := GetApplyLock(ctx, db, "t1")
	if err != nil {
		t.Fatalf("lock vanished: %v", err)
	}
	if lock.HolderID != "h1" {
		t.Fatalf("holder changed: %+v", lock)
	}
}

func TestReleaseApplyLock_ThenReacquire(t *testing.T) {
	db := newLockRepoDB(t)
	ctx := context.Background()

	if err := TryAcquireApplyLock(ctx, db, "t1", "h1", "alice"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := ReleaseApplyLock(ctx, db, "t1", "h1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := TryAcquireApplyLock(ctx, db, "t1", "h2", "bob"); err != nil {
		t.Fatalf("reacquire after release: %v", err)
	}
}

func TestGetApplyLock_FreeLockNotFound(t *testing.T) {
	db := newLockRepoDB(t)

	_, err := GetApplyLock(context.Background(), db, "t1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for free lock, got %v", err)
	}
}

func TestGetApplyLock_ReturnsHolderFields(t *testing.T) {
	db := newLockRepoDB(t)
	ctx := context.Background()

	before := time.Now().UTC().Add(-time.Minute)
	if err := TryAcquireApplyLock(ctx, db, "t1", "h1", "alice"); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	lock, err := GetApplyLock(ctx, db, "t1")
	if err != nil {
		t.Fatalf("GetApplyLock: %v", err)
	}
	if lock.TenantID != "t1" || lock.HolderID != "h1" || lock.AcquiredBy != "alice" {
		t.Fatalf("unexpected lock fields: %+v", lock)
	}
	if lock.AcquiredAt.Before(before) {
		t.Fatalf("AcquiredAt not set: %v", lock.AcquiredAt)
	}
}

func TestForceReleaseApplyLock_IgnoresHolder(t *testing.T) {
	db := newLockRepoDB(t)
	ctx := context.Background()

	if err := TryAcquireApplyLock(ctx, db, "t1", "h1", "alice"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := ForceReleaseApplyLock(ctx, db, "t1"); err != nil {
		t.Fatalf("force release: %v", err)
	}
	if _, err := GetApplyLock(ctx, db, "t1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("lock should be gone, got %v", err)
	}
}

func TestForceReleaseApplyLock_FreeLockIsNoop(t *testing.T) {
	db := newLockRepoDB(t)

	if err := ForceReleaseApplyLock(context.Background(), db, "t1"); err != nil {
		t.Fatalf("force release of free lock: %v", err)
	}
}
