package audit

import "time"

// Event is one security-relevant outcome. Seq is assigned by the
// [Dispatcher]; a gap in a sink's sequence means events were dropped.
type Event struct {
	Seq       uint64            `json:"seq"`
	Timestamp time.Time         `json:"timestamp"`
	Type      string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	Provider  string            `json:"provider,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
