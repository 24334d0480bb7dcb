package tracker

import "github.com/mmynk/gasbottle/internal/models"

// ChangeKind identifies the mutation behind a Change.
type ChangeKind int

const (
	ChangeAdd ChangeKind = iota + 1
	ChangeRemove
	ChangeClear
	ChangeSettings
	ChangeReplace
	// ChangeRemote is a merge of remote data. It is never mirrored.
	ChangeRemote
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdd:
		return "add"
	case ChangeRemove:
		return "remove"
	case ChangeClear:
		return "clear"
	case ChangeSettings:
		return "settings"
	case ChangeReplace:
		return "replace"
	case ChangeRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Change describes one applied mutation.
type Change struct {
	Kind ChangeKind

	// Connection is the record added or removed.
	Connection models.Connection

	// RemovedIDs lists the records that a clear or replace dropped.
	RemovedIDs []int64

	// State is a copy of the full state after the mutation.
	State *models.State
}

// Mirror receives local changes for best-effort remote replication.
// Mirror must not block and must not call back into the Tracker
// synchronously.
type Mirror interface {
	Mirror(Change)
}
