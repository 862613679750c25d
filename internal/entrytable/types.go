package entrytable

import (
	"time"

	"github.com/hupe1980/kvgo/core"
	"github.com/hupe1980/kvgo/quantization"
)

// EntryInfo is a point-in-time copy of an entry's metadata. Gen identifies
// the observed slot installation; conditional commits require it to still
// match.
type EntryInfo struct {
	Key        core.Key
	Gen        uint64
	Tier       quantization.Tier
	Slot       uint32
	Salience   float32
	Mass       float32
	LastAccess uint64
	ObservedAt time.Time
	Dirty      bool
	Pinned     bool
}

// Update carries the fields written by an upsert.
type Update struct {
	Tier     quantization.Tier
	Slot     uint32
	Salience float32
	Mass     float32
	Tick     uint64
	Now      time.Time
}

// Removed identifies a removed entry and the storage it occupied, so the
// caller can free the slot and release budget.
type Removed struct {
	Key  core.Key
	Tier quantization.Tier
	Slot uint32
}

// CommitResult reports the outcome of a conditional commit.
type CommitResult int

const (
	// CommitOK means the entry matched and the change was applied.
	CommitOK CommitResult = iota
	// CommitMissing means the entry no longer exists.
	CommitMissing
	// CommitConflict means the entry moved since it was observed.
	CommitConflict
)

// String implements fmt.Stringer.
func (r CommitResult) String() string {
	switch r {
	case CommitOK:
		return "ok"
	case CommitMissing:
		return "missing"
	case CommitConflict:
		return "conflict"
	default:
		return "unknown"
	}
}
