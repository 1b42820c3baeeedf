package speech

// EventKind 识别会话回调的类型
type EventKind string

const (
	EventResult EventKind = "result"
	EventError  EventKind = "error"
	EventEnd    EventKind = "end"
)

// Event 识别会话的一次回调
type Event struct {
	Kind       EventKind `json:"kind"`
	Transcript string    `json:"transcript,omitempty"`
	IsFinal    bool      `json:"isFinal,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	Error      string    `json:"error,omitempty"`
}
