// Apply HTTP handlers.
//
// This file exposes REST endpoints for the configuration apply pipeline and
// its audit trail:
//   - POST   /apply            (run the pipeline)
//   - GET    /apply/logs       (audit history, paginated, newest first)
//   - GET    /apply/logs/{id}  (one audit row)
//   - GET    /apply/lock       (current lock holder, if any)
//   - DELETE /apply/lock       (operator force-release of a stale lock)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/synergycall/go-pbx-backend/internal/domain"
	"github.com/synergycall/go-pbx-backend/internal/services"
)

// ListApplyLogsResponse wraps a page of audit rows and pagination info.
type ListApplyLogsResponse struct {
	Logs       []domain.ApplyAuditLog `json:"logs"`
	Pagination Pagination             `json:"pagination"`
}

// Apply runs the full generate/write/reload pipeline for the tenant.
//
// Status mapping:
//   - 200: pipeline ran; inspect the returned audit row's outcome, which is
//     "success" or "partial_failure" (artifacts written, a reload failed).
//   - 409: another apply holds the lock; the attempt is still audited.
//   - 500: artifact generation or write failed; the PBX was not reloaded.
func (h *Handlers) Apply(c *gin.Context) {
	rec, err := h.applySvc.Apply(c.Request.Context(), h.tenant.ID, operator(c))
	switch {
	case err == nil:
		ok(c, http.StatusOK, rec)
	case errors.Is(err, services.ErrApplyInProgress):
		fail(c, http.StatusConflict, ErrCodeApplyInProgress, "an apply is already running for this tenant")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeApplyFailed, err.Error())
	}
}

// ListApplyLogs returns a page of apply audit rows, newest first.
func (h *Handlers) ListApplyLogs(c *gin.Context) {
	page, pageSize := clampPagination(c)

	items, total, err := h.applySvc.History(c.Request.Context(), h.tenant.ID, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	ok(c, http.StatusOK, ListApplyLogsResponse{
		Logs:       items,
		Pagination: paginationFor(page, pageSize, total),
	})
}

// GetApplyLog returns a single apply audit row by id.
func (h *Handlers) GetApplyLog(c *gin.Context) {
	id := c.Param("id")

	rec, err := h.applySvc.Attempt(c.Request.Context(), h.tenant.ID, id)
	switch {
	case err == nil:
		ok(c, http.StatusOK, rec)
	case errors.Is(err, services.ErrAuditNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "apply log not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// GetApplyLock reports the current apply lock holder, or 404 when no apply
// is running.
func (h *Handlers) GetApplyLock(c *gin.Context) {
	lock, err := h.applySvc.LockStatus(c.Request.Context(), h.tenant.ID)
	switch {
	case err == nil:
		ok(c, http.StatusOK, lock)
	case errors.Is(err, services.ErrLockNotHeld):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "no apply lock held")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// ClearApplyLock force-releases the apply lock. This is the crash-recovery
// runbook step: only use it after confirming no apply process is alive.
func (h *Handlers) ClearApplyLock(c *gin.Context) {
	err := h.applySvc.ClearLock(c.Request.Context(), h.tenant.ID)
	switch {
	case err == nil:
		noContent(c)
	case errors.Is(err, services.ErrLockNotHeld):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "no apply lock held")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
