package sync

import "time"

// ConflictWinner names the side whose values a paired item keeps
type ConflictWinner string

const (
	WinnerLocal  ConflictWinner = "local"
	WinnerRemote ConflictWinner = "remote"
)

// ResolveConflict applies last-writer-wins per record. The local side wins only
// when strictly newer; missing timestamps compare as the zero time. No field-level
// merge is attempted.
func ResolveConflict(local, remote *time.Time) ConflictWinner {
	if toMillis(local).After(toMillis(remote)) {
		return WinnerLocal
	}
	return WinnerRemote
}

func toMillis(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC().Truncate(time.Millisecond)
}
