package model

import (
	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// NewCollectionID mints a sortable, unique collection id. ksuid already
// carries a timestamp, which keeps history naturally ordered by arrival
// without an extra column.
func NewCollectionID() string {
	return ksuid.New().String()
}

// NewHistoryDupeID mints an id for a compact dupe-info placeholder, kept
// distinct from NewCollectionID so a restored "return-to-queue" history
// entry never collides with a live collection id minted afterwards.
func NewHistoryDupeID() string {
	return uuid.NewString()
}
