package models

import "time"

type CommandAction string

const (
	CommandStart CommandAction = "start"
	CommandStop  CommandAction = "stop"
)

// SourceKind выбирает реализацию источника кадров и часы кулдауна
type SourceKind string

const (
	SourceFile   SourceKind = "file"
	SourceLive   SourceKind = "live"
	SourceBucket SourceKind = "bucket"
)

type SessionState string

const (
	StateRunning SessionState = "running"
	StateStopped SessionState = "stopped"
)

type EventType string

const (
	EventStarted   EventType = "started"
	EventHeartbeat EventType = "heartbeat"
	EventTriggered EventType = "triggered"
	EventStopped   EventType = "stopped"
)

// Frame is one JPEG-encoded frame read from a source.
type Frame struct {
	Data []byte
	Seq  uint64
}

// Detection представляет структуру одного обнаруженного объекта
type Detection struct {
	Class string    `json:"class"`
	Score float64   `json:"score"`
	Box   []float64 `json:"box"` // [x1, y1, x2, y2]
}

// PersonBox is the centroid of a detected person in frame pixels.
type PersonBox struct {
	X float64
	Y float64
}

// TriggerEvent is raised by the trigger gate at most once per cooldown window.
type TriggerEvent struct {
	SessionID     string
	Frame         Frame
	StreamTime    time.Duration
	NotifyAddress string
}

// SourceSpec describes which frames a session should read.
type SourceSpec struct {
	Kind SourceKind `json:"kind"`
	// Location is a file name for SourceFile, a device or URL for SourceLive
	// and s3://bucket/prefix for SourceBucket.
	Location string `json:"location"`
}

type SessionCommand struct {
	Action CommandAction `json:"action"`
	Source SourceSpec    `json:"source"`
	Email  string        `json:"email,omitempty"`
}

type SessionEvent struct {
	SessionID string    `json:"session_id"`
	Type      EventType `json:"type"`
	Frame     uint64    `json:"frame"`
	Record    string    `json:"record,omitempty"`
	Action    bool      `json:"action_required,omitempty"`
	TimeStamp time.Time `json:"timestamp"`
}

// SessionInfo describes a monitoring run, both live and in the audit index.
type SessionInfo struct {
	ID            string       `json:"id"`
	Source        SourceSpec   `json:"source"`
	State         SessionState `json:"state"`
	NotifyAddress string       `json:"notify_address,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Alert is what the notifier delivers when an analysis requires action.
type Alert struct {
	Recipient   string
	Subject     string
	Body        string
	Attachments []string
}
