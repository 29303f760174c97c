// This file implements the apply coordinator: it reconciles the database
// record of provisioned users into the daemon's two configuration artifacts
// and triggers a reload. One apply proceeds at a time per tenant, serialized
// by a durable lock row that survives process crashes; concurrent attempts
// fail fast with ErrApplyInProgress instead of queuing. Every attempt that
// reaches lock acquisition, including the rejected ones, leaves exactly one
// audit row carrying the structured result of each step.
//
// Step order within one apply: acquire lock → read state → generate both
// artifacts → write endpoint artifact → write routing artifact → reload both
// subsystems → record audit row → release lock. A write failure aborts
// before any reload is issued (outcome "failure"); reload failures are
// captured rather than raised, so the pipeline always reaches the audit
// step (outcome "partial_failure" when a reload fails after clean writes).
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/synergycall/go-pbx-backend/internal/asterisk"
	"github.com/synergycall/go-pbx-backend/internal/domain"
	"github.com/synergycall/go-pbx-backend/internal/pbxconf"
	"github.com/synergycall/go-pbx-backend/internal/repo"
)

// Reloader abstracts the daemon's reload channel so tests can observe the
// pipeline without a local Asterisk install.
type Reloader interface {
	// Reload issues both subsystem reload directives and reports each
	// outcome independently.
	Reload(ctx context.Context) []asterisk.ReloadResult
}

// ApplyService coordinates the apply pipeline for a tenant.
type ApplyService struct {
	// DB is the GORM handle backing state reads, the lock, and the audit log.
	DB *gorm.DB
	// Reloader triggers the daemon to pick up freshly written artifacts.
	Reloader Reloader

	// EndpointPath / RoutingPath are the artifact targets. Their parent
	// directories must exist and be writable.
	EndpointPath string
	RoutingPath  string

	// WriteFile replaces an artifact atomically; defaults to
	// pbxconf.WriteFileAtomic. Tests substitute it to simulate I/O failures.
	WriteFile func(path string, data []byte) error
}

// NewApplyService constructs an ApplyService with the atomic file writer.
func NewApplyService(db *gorm.DB, reloader Reloader, endpointPath, routingPath string) *ApplyService {
	return &ApplyService{
		DB:           db,
		Reloader:     reloader,
		EndpointPath: endpointPath,
		RoutingPath:  routingPath,
		WriteFile:    pbxconf.WriteFileAtomic,
	}
}

// applyStep records one pipeline step's outcome inside the audit details.
type applyStep struct {
	Step  string `json:"step"`
	OK    bool   `json:"ok"`
	Path  string `json:"path,omitempty"`
	Error string `json:"error,omitempty"`
}

// applyDetails is the structured audit payload for one attempt.
type applyDetails struct {
	LockAcquired        bool                    `json:"lock_acquired"`
	UsersApplied        int                     `json:"users_applied"`
	ExtensionsGenerated int                     `json:"extensions_generated"`
	FilesWritten        []string                `json:"files_written,omitempty"`
	Steps               []applyStep             `json:"steps,omitempty"`
	Reloads             []asterisk.ReloadResult `json:"reloads,omitempty"`
}

// Apply regenerates both artifacts from current database state, writes them
// atomically, reloads the daemon, and appends one audit row.
//
// Returns the audit row together with a nil error for outcomes "success" and
// "partial_failure" (callers inspect Outcome); a non-nil error accompanies
// the audit row when the lock was contended (ErrApplyInProgress) or a write
// failed. Apply is not cancellable mid-flight: once past lock acquisition it
// runs to the audit step even if the caller goes away, because a half-applied
// configuration is worse than a completed one.
func (s *ApplyService) Apply(ctx context.Context, tenantID, triggeredBy string) (*domain.ApplyAuditLog, error) {
	tr := otel.Tracer("services/ApplyService")
	ctx, span := tr.Start(ctx, "Apply",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("triggered_by", triggeredBy),
		),
	)
	defer span.End()

	triggeredAt := time.Now().UTC()
	holderID := uuid.NewString()
	details := applyDetails{}

	// LockAcquiring: fail fast on contention, no queuing.
	if err := repo.TryAcquireApplyLock(ctx, s.DB, tenantID, holderID, triggeredBy); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			log.Warn().
				Str("tenant_id", tenantID).
				Str("triggered_by", triggeredBy).
				Msg("apply lock contended")
			rec := s.record(ctx, tenantID, triggeredBy, triggeredAt,
				domain.OutcomeFailure, ErrApplyInProgress.Error(), details)
			return rec, ErrApplyInProgress
		}
		return nil, fmt.Errorf("acquire apply lock: %w", err)
	}
	details.LockAcquired = true

	// Past this point the attempt runs to the audit step even if the caller
	// disconnects; only the per-command reload timeout bounds it.
	ctx = context.WithoutCancel(ctx)

	defer func() {
		if err := repo.ReleaseApplyLock(ctx, s.DB, tenantID, holderID); err != nil {
			// Manual cleanup required: see ForceReleaseApplyLock runbook.
			log.Error().
				Err(err).
				Str("tenant_id", tenantID).
				Str("holder_id", holderID).
				Msg("failed to release apply lock")
		}
	}()

	start := time.Now()
	defer func() { applyDuration.Observe(time.Since(start).Seconds()) }()

	// Generating: read current state and derive both artifacts. Pure;
	// nothing on disk or in the daemon has been touched yet.
	users, err := repo.ListProvisionedUsers(ctx, s.DB, tenantID)
	if err != nil {
		rec := s.record(ctx, tenantID, triggeredBy, triggeredAt,
			domain.OutcomeFailure, err.Error(), details)
		return rec, fmt.Errorf("read provisioned users: %w", err)
	}

	entries := make([]pbxconf.Entry, 0, len(users))
	for _, u := range users {
		if u.Extension == nil {
			continue
		}
		entries = append(entries, pbxconf.Entry{
			Number:      u.Extension.Number,
			Secret:      u.Extension.Secret,
			DisplayName: u.Name,
		})
	}
	details.UsersApplied = len(users)
	details.ExtensionsGenerated = len(entries)

	endpointConf := pbxconf.Endpoints(entries)
	routingConf := pbxconf.Routing(entries)

	// WritingEndpoints / WritingRouting: each artifact is an independent
	// atomic unit. A failed write aborts before any reload is issued.
	for _, artifact := range []struct {
		step string
		path string
		data string
	}{
		{"write_endpoints", s.EndpointPath, endpointConf},
		{"write_routing", s.RoutingPath, routingConf},
	} {
		if err := s.writeFile(artifact.path, []byte(artifact.data)); err != nil {
			details.Steps = append(details.Steps, applyStep{
				Step: artifact.step, Path: artifact.path, Error: err.Error(),
			})
			rec := s.record(ctx, tenantID, triggeredBy, triggeredAt,
				domain.OutcomeFailure, err.Error(), details)
			return rec, fmt.Errorf("%s: %w", artifact.step, err)
		}
		details.Steps = append(details.Steps, applyStep{
			Step: artifact.step, Path: artifact.path, OK: true,
		})
		details.FilesWritten = append(details.FilesWritten, artifact.path)
	}

	// Reloading: per-subsystem failures are captured, not raised, so the
	// pipeline always reaches the audit step.
	details.Reloads = s.Reloader.Reload(ctx)

	outcome := domain.OutcomeSuccess
	errText := ""
	for _, r := range details.Reloads {
		result := "ok"
		if !r.OK {
			result = "failed"
			outcome = domain.OutcomePartialFailure
			if errText != "" {
				errText += "; "
			}
			errText += fmt.Sprintf("%s reload failed: %s", r.Subsystem, firstNonEmpty(r.Stderr, r.Stdout, "unknown error"))
		}
		reloadCommands.WithLabelValues(r.Subsystem, result).Inc()
	}

	// Recording: exactly once per attempt that acquired the lock.
	rec := s.record(ctx, tenantID, triggeredBy, triggeredAt, outcome, errText, details)

	log.Info().
		Str("tenant_id", tenantID).
		Str("triggered_by", triggeredBy).
		Str("outcome", outcome).
		Int("users_applied", details.UsersApplied).
		Int("extensions_generated", details.ExtensionsGenerated).
		Msg("apply completed")
	return rec, nil
}

// writeFile dispatches to the configured writer, defaulting to the atomic
// implementation.
func (s *ApplyService) writeFile(path string, data []byte) error {
	if s.WriteFile != nil {
		return s.WriteFile(path, data)
	}
	return pbxconf.WriteFileAtomic(path, data)
}

// record appends the audit row for one attempt and bumps the outcome
// counter. An audit insert failure is logged, never raised: it must not
// mask the attempt's own outcome, and the lock release in Apply's defer
// still runs.
func (s *ApplyService) record(ctx context.Context, tenantID, triggeredBy string, triggeredAt time.Time, outcome, errText string, details applyDetails) *domain.ApplyAuditLog {
	applyAttempts.WithLabelValues(outcome).Inc()

	payload, err := json.Marshal(details)
	if err != nil {
		payload = []byte("{}")
	}

	rec, err := repo.CreateApplyAuditLog(context.WithoutCancel(ctx), s.DB,
		tenantID, triggeredBy, outcome, errText, string(payload), triggeredAt)
	if err != nil {
		log.Error().
			Err(err).
			Str("tenant_id", tenantID).
			Str("outcome", outcome).
			Msg("failed to append apply audit row")
		return nil
	}
	return rec
}

// History returns a page of apply attempts for the tenant, newest first,
// along with the total count.
func (s *ApplyService) History(ctx context.Context, tenantID string, page, pageSize int) ([]domain.ApplyAuditLog, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountApplyAuditLogs(ctx, s.DB, tenantID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.ApplyAuditLog{}, 0, nil
	}

	items, err := repo.ListApplyAuditLogsPage(ctx, s.DB, tenantID, offset, pageSize)
	return items, total, err
}

// Attempt fetches one audit row by ID.
func (s *ApplyService) Attempt(ctx context.Context, tenantID, id string) (*domain.ApplyAuditLog, error) {
	rec, err := repo.GetApplyAuditLog(ctx, s.DB, tenantID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAuditNotFound
		}
		return nil, err
	}
	return rec, nil
}

// LockStatus returns the current holder of the tenant's apply lock, or
// ErrLockNotHeld when the lock is free.
func (s *ApplyService) LockStatus(ctx context.Context, tenantID string) (*domain.ApplyLock, error) {
	lock, err := repo.GetApplyLock(ctx, s.DB, tenantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLockNotHeld
		}
		return nil, err
	}
	return lock, nil
}

// ClearLock force-releases the tenant's apply lock regardless of holder.
// Operator intervention for the crashed-holder case; never called by the
// pipeline itself.
func (s *ApplyService) ClearLock(ctx context.Context, tenantID string) error {
	if _, err := s.LockStatus(ctx, tenantID); err != nil {
		return err
	}
	log.Warn().Str("tenant_id", tenantID).Msg("force-releasing apply lock")
	return repo.ForceReleaseApplyLock(ctx, s.DB, tenantID)
}

// firstNonEmpty returns the first non-empty string from the list.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
