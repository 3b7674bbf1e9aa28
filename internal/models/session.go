package models

// SessionStatus represents the status of a scene conversion session.
type SessionStatus string

const (
	SessionStatusPending    SessionStatus = "pending"
	SessionStatusConverting SessionStatus = "converting"
	SessionStatusComplete   SessionStatus = "complete"
	SessionStatusError      SessionStatus = "error"
)

// SceneSession represents one markup-to-scene conversion run. Conversion
// happens in the background; callers poll or stream this record until it
// reaches a terminal status, then fetch the scene itself.
type SceneSession struct {
	ID               string        `json:"id"`
	FileID           string        `json:"fileId"`
	Status           SessionStatus `json:"status"`
	Progress         float64       `json:"progress"`        // 0-100
	Stage            string        `json:"stage,omitempty"` // current pipeline stage
	SceneID          string        `json:"sceneId,omitempty"`
	Stats            *SceneStats   `json:"stats,omitempty"`
	FromCache        bool          `json:"fromCache,omitempty"`
	Calibration      string        `json:"calibration,omitempty"` // tolerance profile name
	ProcessingTimeMs int64         `json:"processingTimeMs,omitempty"`
	StartTime        int64         `json:"startTime,omitempty"` // Unix ms
	EndTime          int64         `json:"endTime,omitempty"`   // Unix ms
	Error            string        `json:"error,omitempty"`
}

// NewSceneSession creates a new SceneSession in pending status.
func NewSceneSession(id, fileID string) *SceneSession {
	return &SceneSession{
		ID:       id,
		FileID:   fileID,
		Status:   SessionStatusPending,
		Progress: 0,
	}
}
