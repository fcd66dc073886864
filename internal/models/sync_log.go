package models

import (
	"time"
	"unicode/utf8"
)

const (
	// MaxErrorLength bounds the error text stored in the warehouse log table, in characters
	MaxErrorLength = 999
	// MaxErrorBytes is the widest UTF-8 encoding of MaxErrorLength characters
	MaxErrorBytes = MaxErrorLength * utf8.UTFMax
)

// SyncLogEntry is the write-once outcome of one contact sync attempt
type SyncLogEntry struct {
	RunID      string    `db:"run_id"`
	MobilizeID int64     `db:"mobilizeid"`
	ExternalID *string   `db:"actionnetworkid"`
	Synced     bool      `db:"synced"`
	Error      *string   `db:"errors"`
	Timestamp  time.Time `db:"date"`
}

// Values returns the entry in the column order of mapper.SyncLogColumns
func (e SyncLogEntry) Values() []any {
	var externalID, errMsg any
	if e.ExternalID != nil {
		externalID = *e.ExternalID
	}
	if e.Error != nil {
		errMsg = *e.Error
	}
	return []any{e.MobilizeID, externalID, e.Synced, errMsg, e.Timestamp, e.RunID}
}

// SyncEvent is the JSON message published to the broker for each entry
type SyncEvent struct {
	EventID    string    `json:"event_id"`
	RunID      string    `json:"run_id"`
	MobilizeID int64     `json:"mobilize_id"`
	ExternalID *string   `json:"external_id"`
	Synced     bool      `json:"synced"`
	Error      *string   `json:"error"`
	Timestamp  time.Time `json:"timestamp"`
}

// TruncateError cuts msg to at most MaxErrorLength characters without splitting a rune
func TruncateError(msg string) string {
	if utf8.RuneCountInString(msg) <= MaxErrorLength {
		return msg
	}
	n := 0
	for i := range msg {
		if n == MaxErrorLength {
			return msg[:i]
		}
		n++
	}
	return msg
}
