// Package domain defines the persistence models for tenants, users,
// extensions, and apply bookkeeping. These types are mapped with GORM and
// form the core data layer of the provisioning portal.
package domain

import (
	"time"
)

// Apply outcome values recorded on ApplyAuditLog rows.
const (
	OutcomeSuccess        = "success"
	OutcomePartialFailure = "partial_failure"
	OutcomeFailure        = "failure"
)

// Tenant is the scoping unit for users and extension pools. The MVP runs with
// a single tenant, but every allocation and generation query is tenant-scoped
// so the schema does not need a rewrite when more are added.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Name: human-readable tenant name.
//   - ExtMin / ExtMax: inclusive bounds of the tenant's extension pool.
//   - CreatedAt: timestamp managed by GORM.
type Tenant struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Name      string    `json:"name"       gorm:"type:varchar(255);not null"`
	ExtMin    int       `json:"ext_min"    gorm:"not null;default:1000"`
	ExtMax    int       `json:"ext_max"    gorm:"not null;default:1999"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Tenant.
func (Tenant) TableName() string { return "tenants" }

// User represents a person provisioned on the PBX. Each user owns exactly one
// Extension, allocated at creation time and released when the user is deleted
// (hard delete; the freed number returns to the pool immediately).
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - TenantID: owning tenant (indexed).
//   - Name: display name, also embedded in the generated caller ID.
//   - Email: contact address, unique across the portal.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - Extension: owned 1:1 association, cascade-deleted with the user.
type User struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	TenantID  string    `json:"tenant_id"  gorm:"type:char(36);not null;index:idx_tenant_users"`
	Name      string    `json:"name"       gorm:"type:varchar(255);not null"`
	Email     string    `json:"email"      gorm:"type:varchar(255);not null;uniqueIndex"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Extension *Extension `json:"extension,omitempty" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Extension is a short numeric address allocated to one user from the
// tenant's bounded pool. The composite unique index on (tenant_id, number)
// is the authoritative arbiter for concurrent allocation: the allocator's
// "lowest free number" read is only a hint, the constraint is the safety net.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - TenantID / Number: unique together within a tenant.
//   - UserID: owning user, unique (1:1), cascade-deleted with the user.
//   - Secret: generated SIP credential, never regenerated implicitly.
//   - CreatedAt: timestamp managed by GORM.
type Extension struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	TenantID  string    `json:"tenant_id"  gorm:"type:char(36);not null;uniqueIndex:ux_tenant_number"`
	Number    int       `json:"number"     gorm:"not null;uniqueIndex:ux_tenant_number"`
	UserID    string    `json:"user_id"    gorm:"type:char(36);not null;uniqueIndex"`
	Secret    string    `json:"-"          gorm:"type:varchar(255);not null"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Extension.
func (Extension) TableName() string { return "extensions" }

// ApplyAuditLog is the append-only record of one Apply attempt. Exactly one
// row is written per Apply call regardless of outcome, including attempts
// that failed to acquire the apply lock. Details holds the structured
// per-step results (artifact writes, reload commands) as JSON.
type ApplyAuditLog struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	TenantID    string    `json:"tenant_id"    gorm:"type:char(36);not null;index"`
	TriggeredAt time.Time `json:"triggered_at" gorm:"not null;index"`
	TriggeredBy string    `json:"triggered_by" gorm:"type:varchar(255);not null"`
	Outcome     string    `json:"outcome"      gorm:"type:varchar(32);not null;check:outcome IN ('success','partial_failure','failure')"`
	ErrorText   string    `json:"error_text,omitempty" gorm:"type:text"`
	Details     string    `json:"details"      gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the database table name for ApplyAuditLog.
func (ApplyAuditLog) TableName() string { return "apply_audit_logs" }

// ApplyLock is the durable mutual-exclusion token serializing Apply attempts
// for a tenant. At most one row exists per tenant (primary key); acquiring
// the lock is an insert, releasing it is a delete. The row survives a crash
// of the holder, so a wedged lock stays visible and is cleared by an
// operator rather than silently expiring.
type ApplyLock struct {
	TenantID   string    `json:"tenant_id"   gorm:"type:char(36);primaryKey"`
	HolderID   string    `json:"holder_id"   gorm:"type:char(36);not null"`
	AcquiredBy string    `json:"acquired_by" gorm:"type:varchar(255);not null"`
	AcquiredAt time.Time `json:"acquired_at" gorm:"not null"`
}

// TableName returns the database table name for ApplyLock.
func (ApplyLock) TableName() string { return "apply_locks" }
