package models

import (
	"time"

	"github.com/amm-analytics/internal/types"
)

// SyncStatusID is the id of the worker's ingest cursor
const SyncStatusID = "ingest"

// SyncStatus records the last event applied by the sync worker. It is written in
// the same commit as that event's updates, so a restart never re-applies an event.
type SyncStatus struct {
	ID              string    `json:"id"`
	LastSyncedBlock uint64    `json:"lastSyncedBlock"`
	LastLogIndex    uint      `json:"lastLogIndex"`
	HasEvent        bool      `json:"hasEvent"`       // False until the first event is applied
	ScannedToBlock  uint64    `json:"scannedToBlock"` // Every event up to this block is applied
	LastSyncAt      time.Time `json:"lastSyncAt"`
}

// Cursor returns the position of the last applied event
func (s *SyncStatus) Cursor() types.Cursor {
	return types.Cursor{BlockNumber: s.LastSyncedBlock, LogIndex: s.LastLogIndex}
}

// Seen reports whether the event at c was already applied
func (s *SyncStatus) Seen(c types.Cursor) bool {
	return s.HasEvent && !s.Cursor().Before(c)
}
