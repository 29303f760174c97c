package services

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
	"github.com/synergycall/go-pbx-backend/internal/repo"
)

func newUserSvcDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("user_service_test_%d.db", time.Now().UnixNano()))
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

	if err := db.AutoMigrate(&domain.Tenant{}, &domain.User{}, &domain.Extension{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// dbExtStore backs the allocator with the real repository functions. The
// *gorm.DB passed through Allocate is the transaction handle, so the
// shim mirrors the wiring in the HTTP router.
type dbExtStore struct{}

func (dbExtStore) ListNumbers(ctx context.Context, db *gorm.DB, tenantID string) ([]int, error) {
	return repo.ListExtensionNumbers(ctx, db, tenantID)
}

func (dbExtStore) Create(ctx context.Context, db *gorm.DB, tenantID, userID string, number int, secret string) (*domain.Extension, error) {
	return repo.CreateExtension(ctx, db, tenantID, userID, number, secret)
}

func newTestUserService(t *testing.T) (*UserService, *domain.Tenant) {
	t.Helper()
	db := newUserSvcDB(t)
	svc := NewUserService(db, NewExtensionAllocator(dbExtStore{}))
	tenant := &domain.Tenant{ID: "t1", Name: "default", ExtMin: 1000, ExtMax: 1999}
	return svc, tenant
}

func TestUserCreate_AllocatesLowestExtension(t *testing.T) {
	svc, tenant := newTestUserService(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, tenant, "Alice", "alice@example.com")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.Extension == nil {
		t.Fatal("extension not allocated")
	}
	if u.Extension.Number != 1000 {
		t.Fatalf("number = %d, want 1000", u.Extension.Number)
	}
	if u.Extension.Secret == "" {
		t.Fatal("secret not generated")
	}

	u2, err := svc.Create(ctx, tenant, "Bob", "bob@example.com")
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if u2.Extension.Number != 1001 {
		t.Fatalf("second number = %d, want 1001", u2.Extension.Number)
	}
}

func TestUserCreate_InvalidInputRejected(t *testing.T) {
	svc, tenant := newTestUserService(t)
	ctx := context.Background()

	cases := []struct {
		name, userName, email string
	}{
		{"empty name", "", "a@example.com"},
		{"blank name", "   ", "a@example.com"},
		{"empty email", "Alice", ""},
		{"malformed email", "Alice", "not-an-email"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, tenant, tc.userName, tc.email); !errors.Is(err, ErrInvalidUser) {
				t.Fatalf("expected ErrInvalidUser, got %v", err)
			}
		})
	}
}

func TestUserCreate_DuplicateEmail(t *testing.T) {
	svc, tenant := newTestUserService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, tenant, "Alice", "alice@example.com"); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := svc.Create(ctx, tenant, "Alice Again", "alice@example.com")
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}

	// The failed create must not leak a user row or burn an extension.
	total, err := repo.CountUsers(ctx, svc.DB, tenant.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 1 {
		t.Fatalf("user count = %d, want 1", total)
	}
	numbers, _ := repo.ListExtensionNumbers(ctx, svc.DB, tenant.ID)
	if len(numbers) != 1 {
		t.Fatalf("extension count = %d, want 1", len(numbers))
	}
}

func TestUserCreate_PoolExhausted_RollsBackUserRow(t *testing.T) {
	svc, _ := newTestUserService(t)
	tenant := &domain.Tenant{ID: "t1", ExtMin: 1000, ExtMax: 1000}
	ctx := context.Background()

	if _, err := svc.Create(ctx, tenant, "Alice", "alice@example.com"); err != nil {
		t.Fatalf("first create: %v", err)
	}

	_, err := svc.Create(ctx, tenant, "Bob", "bob@example.com")
	if !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("expected ErrPoolExhausted, got %v", err)
	}

	// Transaction must roll the user row back with the failed allocation.
	total, err := repo.CountUsers(ctx, svc.DB, tenant.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 1 {
		t.Fatalf("user count = %d, want 1 after rollback", total)
	}
}

func TestUserGet_NotFound(t *testing.T) {
	svc, tenant := newTestUserService(t)

	if _, err := svc.Get(context.Background(), tenant.ID, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUserListPage_DefaultsAndTotals(t *testing.T) {
	svc, tenant := newTestUserService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Create(ctx, tenant, fmt.Sprintf("User %d", i), fmt.Sprintf("u%d@example.com", i)); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	items, total, err := svc.ListPage(ctx, tenant.ID, 0, 0) // invalid, defaults apply
	if err != nil {
		t.Fatalf("ListPage: %v", err)
	}
	if total != 3 || len(items) != 3 {
		t.Fatalf("total = %d, page len = %d", total, len(items))
	}
	for _, u := range items {
		if u.Extension == nil {
			t.Fatalf("extension not preloaded for %s", u.Email)
		}
	}
}

func TestUserDelete_FreesNumberForNextCreate(t *testing.T) {
	svc, tenant := newTestUserService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, tenant, "Alice", "alice@example.com")
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	if _, err := svc.Create(ctx, tenant, "Bob", "bob@example.com"); err != nil {
		t.Fatalf("create bob: %v", err)
	}

	if err := svc.Delete(ctx, tenant.ID, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	// Alice held 1000; the next allocation takes the freed low number.
	c, err := svc.Create(ctx, tenant, "Carol", "carol@example.com")
	if err != nil {
		t.Fatalf("create carol: %v", err)
	}
	if c.Extension.Number != 1000 {
		t.Fatalf("number = %d, want freed 1000", c.Extension.Number)
	}
}

func TestUserDelete_NotFound(t *testing.T) {
	svc, tenant := newTestUserService(t)

	if err := svc.Delete(context.Background(), tenant.ID, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
