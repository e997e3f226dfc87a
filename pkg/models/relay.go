package models

import "time"

// ConnectionStats represents relay connection statistics
type ConnectionStats struct {
	ClientID         string    `json:"client_id"`
	RemoteAddr       string    `json:"remote_addr"`
	ConnectedAt      time.Time `json:"connected_at"`
	MessagesSent     int64     `json:"messages_sent"`
	MessagesReceived int64     `json:"messages_received"`
	LastMessageAt    time.Time `json:"last_message_at"`
}

// ErrorMessage represents an HTTP error body
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
