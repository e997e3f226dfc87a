package models

import (
	"encoding/json"
	"fmt"
)

// Timeframe is the portion of the match a bet applies to
type Timeframe string

const (
	TimeframeFullTime   Timeframe = "FullTime"
	TimeframeFirstHalf  Timeframe = "FirstHalf"
	TimeframeSecondHalf Timeframe = "SecondHalf"
)

// Match is the ordered pair of team names as they appear in the tip.
// It is also the dedup key.
type Match [2]string

// NewMatch builds a match from the home and away team names
func NewMatch(teamA, teamB string) Match {
	return Match{teamA, teamB}
}

// String returns "A vs B"
func (m Match) String() string {
	return fmt.Sprintf("%s vs %s", m[0], m[1])
}

// Score is the live score (home, away) at the time the tip was sent
type Score [2]int

// AsianHandicap holds the fields of an asian handicap market.
// Line has one value, or two for split lines (e.g. -0.5,-1.0).
type AsianHandicap struct {
	Line  []float64 `json:"line"`
	Score Score     `json:"score"`
	Team  string    `json:"team"`
}

// Market is a closed set of variants: exactly one field is set
type Market struct {
	Result        *string        `json:"result,omitempty"`
	AsianHandicap *AsianHandicap `json:"asian_hcp,omitempty"`
}

// ResultMarket builds a match result market on the given participant
func ResultMarket(participant string) Market {
	return Market{Result: &participant}
}

// AsianHandicapMarket builds an asian handicap market
func AsianHandicapMarket(team string, lines []float64, score Score) Market {
	return Market{AsianHandicap: &AsianHandicap{
		Line:  lines,
		Score: score,
		Team:  team,
	}}
}

// Kind returns "result", "asian_hcp" or "" for an empty market
func (m Market) Kind() string {
	switch {
	case m.Result != nil:
		return "result"
	case m.AsianHandicap != nil:
		return "asian_hcp"
	default:
		return ""
	}
}

// Bet is the wager part of a place_bet command
type Bet struct {
	Market    Market    `json:"market"`
	Match     Match     `json:"match"`
	Odds      float64   `json:"odds"`
	Timeframe Timeframe `json:"tf"`
}

// BetCommand is the canonical place_bet instruction relayed downstream.
// It is never mutated after construction.
type BetCommand struct {
	Bet   Bet     `json:"bet"`
	Host  string  `json:"host"`
	ID    string  `json:"id"`
	Stake float64 `json:"stake"`
}

// Envelope is the wire document wrapping a command
type Envelope struct {
	PlaceBet *BetCommand `json:"place_bet"`
}

// Encode serializes the command into its wire form:
// {"place_bet":{"bet":{...},"host":...,"id":...,"stake":...}}
func (c *BetCommand) Encode() ([]byte, error) {
	data, err := json.Marshal(Envelope{PlaceBet: c})
	if err != nil {
		return nil, fmt.Errorf("failed to encode command %s: %w", c.ID, err)
	}
	return data, nil
}

// DecodeEnvelope parses a wire document back into a command
func DecodeEnvelope(data []byte) (*BetCommand, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if env.PlaceBet == nil {
		return nil, fmt.Errorf("envelope has no place_bet")
	}
	return env.PlaceBet, nil
}
