package event

import "github.com/dayplan-ai/dayplan/pkg/types"

// Type identifies the kind of engine event.
type Type string

const (
	// SessionCreated fires when a fresh session is created for an id.
	SessionCreated Type = "session.created"
	// SessionSaved fires after a successful atomic save.
	SessionSaved Type = "session.saved"
	// TransitionRejected fires when a proposed state transition from the
	// completion service is discarded.
	TransitionRejected Type = "transition.rejected"
	// CorruptionDetected fires when a session file fails to parse.
	CorruptionDetected Type = "corruption.detected"
	// CorruptionArchived fires after the corrupted file is renamed aside.
	CorruptionArchived Type = "corruption.archived"
	// StorageWarning fires when a save could not be completed; the turn
	// result is still returned but may not have persisted.
	StorageWarning Type = "storage.warning"
	// TimestampRepaired fires when a load corrected timestamp ordering.
	TimestampRepaired Type = "timestamp.repaired"
)

// Event is a single engine notification.
type Event struct {
	Type Type `json:"type"`
	Data any  `json:"data"`
}

// SessionCreatedData accompanies SessionCreated.
type SessionCreatedData struct {
	SessionID string `json:"sessionId"`
}

// SessionSavedData accompanies SessionSaved.
type SessionSavedData struct {
	SessionID string `json:"sessionId"`
	Path      string `json:"path"`
}

// TransitionRejectedData accompanies TransitionRejected.
type TransitionRejectedData struct {
	SessionID string      `json:"sessionId"`
	From      types.State `json:"from"`
	To        types.State `json:"to"`
}

// CorruptionDetectedData accompanies CorruptionDetected.
type CorruptionDetectedData struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
}

// CorruptionArchivedData accompanies CorruptionArchived.
type CorruptionArchivedData struct {
	SessionID   string `json:"sessionId"`
	ArchivePath string `json:"archivePath"`
	// Recovered reports whether any conversation or plan data was salvaged
	// from the corrupted file.
	Recovered bool `json:"recovered"`
}

// StorageWarningData accompanies StorageWarning.
type StorageWarningData struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
}

// TimestampRepairedData accompanies TimestampRepaired.
type TimestampRepairedData struct {
	SessionID string `json:"sessionId"`
}
