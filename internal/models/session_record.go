package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// SessionRecord is the persisted snapshot of a session between turns. The
// engine state is stored as an opaque JSON document; the indexed columns
// exist only for listing and lookups.
type SessionRecord struct {
	ID        string         `gorm:"primaryKey;size:64" json:"id"`
	Role      string         `gorm:"size:128;not null" json:"role"`
	Company   string         `gorm:"size:128;not null" json:"company"`
	Progress  string         `gorm:"size:32;not null;index" json:"progress"`
	Snapshot  datatypes.JSON `gorm:"not null" json:"snapshot"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewSessionRecord serializes a session into its persisted form.
func NewSessionRecord(session Session) (SessionRecord, error) {
	snapshot, err := json.Marshal(session)
	if err != nil {
		return SessionRecord{}, err
	}

	return SessionRecord{
		ID:       session.ID,
		Role:     session.Role,
		Company:  session.Company,
		Progress: string(session.Progress),
		Snapshot: datatypes.JSON(snapshot),
	}, nil
}

// ToSession restores the engine state from the stored snapshot.
func (r SessionRecord) ToSession() (Session, error) {
	var session Session
	if err := json.Unmarshal(r.Snapshot, &session); err != nil {
		return Session{}, err
	}
	return session, nil
}
