// User HTTP handlers.
//
// This file exposes REST endpoints for the user lifecycle:
//   - POST   /users        (create + allocate extension)
//   - GET    /users        (list, paginated)
//   - GET    /users/{id}   (fetch one, with extension)
//   - DELETE /users/{id}   (delete, frees the extension)
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/synergycall/go-pbx-backend/internal/domain"
	"github.com/synergycall/go-pbx-backend/internal/services"
	"github.com/synergycall/go-pbx-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// UserService defines user lifecycle operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type UserService interface {
	// Create provisions a user and allocates the lowest free extension.
	Create(ctx context.Context, tenant *domain.Tenant, name, email string) (*domain.User, error)
	// Get returns one user with its extension preloaded.
	Get(ctx context.Context, tenantID, id string) (*domain.User, error)
	// ListPage returns a page of users and the total count.
	ListPage(ctx context.Context, tenantID string, page, pageSize int) ([]domain.User, int64, error)
	// Delete removes a user and frees its extension number.
	Delete(ctx context.Context, tenantID, id string) error
}

// ApplyService defines configuration apply operations consumed by HTTP
// handlers.
type ApplyService interface {
	// Apply runs the full generate/write/reload pipeline for a tenant.
	Apply(ctx context.Context, tenantID, triggeredBy string) (*domain.ApplyAuditLog, error)
	// History returns a page of audit rows, newest first, and the total count.
	History(ctx context.Context, tenantID string, page, pageSize int) ([]domain.ApplyAuditLog, int64, error)
	// Attempt returns a single audit row by id.
	Attempt(ctx context.Context, tenantID, id string) (*domain.ApplyAuditLog, error)
	// LockStatus returns the current apply lock row, if held.
	LockStatus(ctx context.Context, tenantID string) (*domain.ApplyLock, error)
	// ClearLock force-releases a stale apply lock.
	ClearLock(ctx context.Context, tenantID string) error
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for users and applies. It depends on
// abstract service interfaces to keep transport concerns separate from
// business logic, and is bound to a single tenant resolved at startup.
type Handlers struct {
	userSvc  UserService
	applySvc ApplyService
	tenant   *domain.Tenant
}

// New constructs a Handlers instance bound to the given services and tenant.
func New(userSvc UserService, applySvc ApplyService, tenant *domain.Tenant) *Handlers {
	return &Handlers{userSvc: userSvc, applySvc: applySvc, tenant: tenant}
}

// operator extracts the acting operator identity from the X-Operator header.
// Falls back to "api" when absent so audit rows always carry an actor.
func operator(c *gin.Context) string {
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-Operator")); h != "" {
			return h
		}
	}
	return "api"
}

//
// DTOs
//

// CreateUserRequest is the JSON payload for provisioning a user.
type CreateUserRequest struct {
	// Name is the display name that ends up in the endpoint caller ID.
	Name string `json:"name" binding:"required,min=1,max=255"`
	// Email must be unique within the portal.
	Email string `json:"email" binding:"required"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListUsersResponse wraps a page of users and pagination information.
type ListUsersResponse struct {
	Users      []domain.User `json:"users"`
	Pagination Pagination    `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

func paginationFor(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

//
// Handlers
//

// CreateUser provisions a new user and allocates the lowest free extension
// in the tenant pool. Returns 201 with the user (extension included), 409
// when the email is taken, 409 pool_exhausted when no extension is free, and
// 503 when allocation retries were exhausted by concurrent contention.
func (h *Handlers) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	u, err := h.userSvc.Create(c.Request.Context(), h.tenant, req.Name, req.Email)
	switch {
	case err == nil:
		ok(c, http.StatusCreated, u)
	case errors.Is(err, services.ErrInvalidUser):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrDuplicateEmail):
		fail(c, http.StatusConflict, ErrCodeConflict, "email already registered")
	case errors.Is(err, services.ErrPoolExhausted):
		fail(c, http.StatusConflict, ErrCodePoolExhausted, "no free extensions in the pool")
	case errors.Is(err, services.ErrAllocationContention):
		fail(c, http.StatusServiceUnavailable, ErrCodeAllocConflict, "extension allocation contended, retry")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
	}
}

// ListUsers returns a page of the tenant's users with their extensions.
func (h *Handlers) ListUsers(c *gin.Context) {
	page, pageSize := clampPagination(c)

	items, total, err := h.userSvc.ListPage(c.Request.Context(), h.tenant.ID, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	ok(c, http.StatusOK, ListUsersResponse{
		Users:      items,
		Pagination: paginationFor(page, pageSize, total),
	})
}

// GetUser returns a single user, extension preloaded.
func (h *Handlers) GetUser(c *gin.Context) {
	id := c.Param("id")

	u, err := h.userSvc.Get(c.Request.Context(), h.tenant.ID, id)
	switch {
	case err == nil:
		ok(c, http.StatusOK, u)
	case errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// DeleteUser removes a user and frees its extension number for reuse. The
// running PBX keeps the old configuration until the next apply.
func (h *Handlers) DeleteUser(c *gin.Context) {
	id := c.Param("id")

	err := h.userSvc.Delete(c.Request.Context(), h.tenant.ID, id)
	switch {
	case err == nil:
		noContent(c)
	case errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
