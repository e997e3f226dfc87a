package models

import "time"

// Feed sources
const (
	SourceTelegram = "telegram"
	SourceStream   = "redis"
	SourceHTTP     = "http"
)

// RawMessage represents a tip notification as delivered by a feed
type RawMessage struct {
	ID         int64     `json:"id"`
	Source     string    `json:"source"`
	ChatID     int64     `json:"chat_id,omitempty"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

// ExtractedFields are the raw fields pulled out of a tip before normalization.
// MarketLabel carries the timeframe prefix followed by the market name
// (e.g. "1st Half Asian Handicap"), MarketBody the participant, line and odds.
type ExtractedFields struct {
	TeamA       string
	TeamB       string
	ScoreHome   int
	ScoreAway   int
	MarketLabel string
	MarketBody  string
}

// Match returns the ordered team pair
func (f ExtractedFields) Match() Match {
	return NewMatch(f.TeamA, f.TeamB)
}

// Score returns the extracted score
func (f ExtractedFields) Score() Score {
	return Score{f.ScoreHome, f.ScoreAway}
}
