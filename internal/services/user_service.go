// This file implements user provisioning. Creating a user allocates the
// lowest free extension in the tenant's pool (with its generated SIP
// credential) inside the same transaction as the user row, so a failed
// allocation never leaves a user without an extension. Deleting a user
// releases its number back to the immediately-reusable free set.
//
// None of these operations touch the daemon; changes become effective only
// on the next Apply.
package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/synergycall/go-pbx-backend/internal/domain"
	"github.com/synergycall/go-pbx-backend/internal/repo"
)

// ErrInvalidUser is returned when a user-creation request is missing a name
// or carries a malformed email address.
var ErrInvalidUser = errors.New("user name or email is invalid")

// UserService provides user lifecycle operations scoped to one tenant.
type UserService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Allocator reserves extension numbers for new users.
	Allocator *ExtensionAllocator
}

// NewUserService constructs a UserService bound to the given allocator.
func NewUserService(db *gorm.DB, allocator *ExtensionAllocator) *UserService {
	return &UserService{DB: db, Allocator: allocator}
}

// Create provisions a new user in the tenant: it inserts the user row and
// allocates the lowest free extension (with a freshly generated SIP secret)
// in one transaction. Returns ErrDuplicateEmail, ErrPoolExhausted, or
// ErrAllocationContention on the predictable failure cases.
func (s *UserService) Create(ctx context.Context, tenant *domain.Tenant, name, email string) (*domain.User, error) {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.String("tenant.id", tenant.ID)),
	)
	defer span.End()

	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" {
		return nil, ErrInvalidUser
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidUser
	}

	var created *domain.User
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := repo.CreateUser(ctx, tx, tenant.ID, name, email)
		if err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return ErrDuplicateEmail
			}
			return err
		}

		ext, err := s.Allocator.Allocate(ctx, tx, tenant, u.ID)
		if err != nil {
			return err
		}
		u.Extension = ext
		created = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("tenant_id", tenant.ID).
		Str("user_id", created.ID).
		Int("number", created.Extension.Number).
		Msg("provisioned user")
	return created, nil
}

// Get fetches a user by ID with its extension, or ErrUserNotFound.
func (s *UserService) Get(ctx context.Context, tenantID, id string) (*domain.User, error) {
	u, err := repo.GetUser(ctx, s.DB, tenantID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// ListPage returns a page of the tenant's users and the total count.
// It applies defaults for invalid page/pageSize.
func (s *UserService) ListPage(ctx context.Context, tenantID string, page, pageSize int) ([]domain.User, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountUsers(ctx, s.DB, tenantID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.User{}, 0, nil
	}

	items, err := repo.ListUsersPage(ctx, s.DB, tenantID, offset, pageSize)
	return items, total, err
}

// Delete removes a user and releases its extension number back to the pool.
// Returns ErrUserNotFound when the user does not exist in the tenant. The
// freed number is immediately reusable; there is no quarantine period.
func (s *UserService) Delete(ctx context.Context, tenantID, id string) error {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("user.id", id),
		),
	)
	defer span.End()

	if err := repo.DeleteUser(ctx, s.DB, tenantID, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	log.Info().
		Str("tenant_id", tenantID).
		Str("user_id", id).
		Msg("deleted user, extension released")
	return nil
}
