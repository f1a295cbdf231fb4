package core

import "fmt"

// RunKey is the composite identity of a run: one room plus one thread within
// it. Keys compare by value and are used directly as registry map keys. A key
// is never shared by two live runs; re-registering for an occupied key
// supersedes the previous run.
type RunKey struct {
	RoomID   string
	ThreadID string
}

// NewRunKey constructs a RunKey from its parts.
func NewRunKey(roomID, threadID string) RunKey {
	return RunKey{RoomID: roomID, ThreadID: threadID}
}

// String renders the key for logs and error messages.
func (k RunKey) String() string {
	return fmt.Sprintf("%s/%s", k.RoomID, k.ThreadID)
}
