package storage

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Visitor lifecycle states. Transitions are enforced by the visitor service;
// the store only guards them with conditional writes.
type VisitorStatus string

const (
	VisitorStatusPending  VisitorStatus = "pending"
	VisitorStatusApproved VisitorStatus = "approved"
	VisitorStatusDenied   VisitorStatus = "denied"
	VisitorStatusEntered  VisitorStatus = "entered"
	VisitorStatusExited   VisitorStatus = "exited"
)

// StringList is stored as a JSON array in a TEXT column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	}
	return fmt.Errorf("cannot scan %T into StringList", src)
}

// Metadata is an opaque key/value bag stored as a JSON object.
type Metadata map[string]string

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *Metadata) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	}
	return fmt.Errorf("cannot scan %T into Metadata", src)
}

// VisitorRecord is one gate visit attempt. Owned by the visitor service;
// nobody else mutates it.
type VisitorRecord struct {
	ID            string        `db:"id"`
	SocietyID     string        `db:"society_id"`
	FlatNumber    string        `db:"flat_number"`
	VisitorName   string        `db:"visitor_name"`
	VisitorPhone  string        `db:"visitor_phone"`
	Purpose       string        `db:"purpose"`
	VehicleNumber string        `db:"vehicle_number"`
	PhotoRef      string        `db:"photo_ref"`
	Status        VisitorStatus `db:"status"`
	CreatedBy     string        `db:"created_by"`
	CreatedAt     time.Time     `db:"created_at"`
	ApprovedAt    *time.Time    `db:"approved_at"`
	ApprovedBy    *string       `db:"approved_by"`
	DeniedAt      *time.Time    `db:"denied_at"`
	DeniedBy      *string       `db:"denied_by"`
	DenyReason    *string       `db:"deny_reason"`
	EnteredAt     *time.Time    `db:"entered_at"`
	ExitedAt      *time.Time    `db:"exited_at"`
	RiskScore     int           `db:"risk_score"`
	RiskLevel     string        `db:"risk_level"`
	RiskFactors   StringList    `db:"risk_factors"`
}

// Credential is a time-bounded, scan-limited digital pass. Never deleted,
// only retired via is_active=false. The integrity token is not stored; it is
// re-derivable from (pass_id, visitor_phone, created_at) with the secret.
type Credential struct {
	PassID        string     `db:"pass_id"`
	VisitorName   string     `db:"visitor_name"`
	VisitorPhone  string     `db:"visitor_phone"`
	FlatNumber    string     `db:"flat_number"`
	ResidentRef   string     `db:"resident_ref"`
	Purpose       string     `db:"purpose"`
	ValidFrom     time.Time  `db:"valid_from"`
	ValidUntil    time.Time  `db:"valid_until"`
	MaxScans      int        `db:"max_scans"` // -1 means unlimited
	ScansUsed     int        `db:"scans_used"`
	IsActive      bool       `db:"is_active"`
	CreatedAt     time.Time  `db:"created_at"`
	LastScannedAt *time.Time `db:"last_scanned_at"`
}

// Unlimited is the max_scans sentinel for passes without a scan limit.
const UnlimitedScans = -1

type BlacklistEntry struct {
	Phone   string    `db:"phone"`
	Reason  string    `db:"reason"`
	AddedBy string    `db:"added_by"`
	AddedAt time.Time `db:"added_at"`
	Active  bool      `db:"active"`
}

// AuditLogEntry is append-only; rows are never updated or deleted.
type AuditLogEntry struct {
	ID         string    `db:"id" json:"id"`
	ActionType string    `db:"action_type" json:"action_type"`
	ActorID    string    `db:"actor_id" json:"actor_id"`
	TargetID   string    `db:"target_id" json:"target_id"`
	SocietyID  string    `db:"society_id" json:"society_id"`
	Metadata   Metadata  `db:"metadata" json:"metadata,omitempty"`
	Timestamp  time.Time `db:"timestamp" json:"timestamp"`
}

// VisitorTransition is a conditional status change request. The write only
// lands if the record is still in From when it executes.
type VisitorTransition struct {
	ID      string
	From    VisitorStatus
	To      VisitorStatus
	ActorID string
	Reason  string
	At      time.Time
}
