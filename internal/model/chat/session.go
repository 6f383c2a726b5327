package chat

import "time"

// Session captures a transient anonymous conversation. Records live only in
// memory and are evicted once they go quiet for longer than the retention
// window.
type Session struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	MessageCount int       `json:"messageCount"`
}
