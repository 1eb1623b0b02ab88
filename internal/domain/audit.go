package domain

import "github.com/google/uuid"

// AuditRecord is one entry in the append-only diagnostic trail. Audit records
// are written, never read, by this core; they carry no control flow.
type AuditRecord struct {
	UserID     uuid.UUID
	Type       string
	Successful bool
	EventUUID  uuid.UUID
	Extra      map[string]interface{}
}

// NewAuditRecord builds an audit entry with a fresh event uuid.
func NewAuditRecord(userID uuid.UUID, auditType string, successful bool, extra map[string]interface{}) *AuditRecord {
	return &AuditRecord{
		UserID:     userID,
		Type:       auditType,
		Successful: successful,
		EventUUID:  uuid.New(),
		Extra:      extra,
	}
}
