package models

import (
	"encoding/json"
	"time"
)

// TimelineEvent is an immutable audit log entry (spec §3, GLOSSARY).
type TimelineEvent struct {
	ID        string
	AssetID   string
	SessionID string // optional, empty when asset-scoped only
	Type      string
	Payload   json.RawMessage
	Timestamp time.Time
	AnalystID string
}
