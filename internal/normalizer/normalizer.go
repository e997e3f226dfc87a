package normalizer

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/XavierBriggs/fortuna/services/tip-relay/pkg/models"
	"github.com/google/uuid"
)

// Reason explains why a command could not be built
type Reason string

const (
	ReasonUnsupportedMarket  Reason = "UnsupportedMarket"
	ReasonMalformedOdds      Reason = "MalformedOdds"
	ReasonMalformedHandicap  Reason = "MalformedHandicap"
	ReasonMissingParticipant Reason = "MissingParticipant"
)

// NormalizationError is returned when extracted fields cannot form a command
type NormalizationError struct {
	Reason Reason
	Detail string
}

func (e *NormalizationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("normalize failed: %s", e.Reason)
	}
	return fmt.Sprintf("normalize failed: %s: %s", e.Reason, e.Detail)
}

// Supported market names
const (
	MarketResult        = "Result"
	MarketAsianHandicap = "Asian Handicap"
	MarketUnknown       = "Unknown"
)

// timeframePrefixes are tested in order, first match wins
var timeframePrefixes = []struct {
	label     string
	timeframe models.Timeframe
}{
	{"Fulltime", models.TimeframeFullTime},
	{"1st Half", models.TimeframeFirstHalf},
	{"2nd Half", models.TimeframeSecondHalf},
}

var handicapPattern = regexp.MustCompile(`^(.*?)([+-]?\d+\.\d+(?:\s*,\s*[+-]?\d+\.\d+)?)`)

// Normalizer builds place_bet commands from extracted fields
type Normalizer struct {
	host  string
	stake float64
	newID func() string
}

// NewNormalizer creates a normalizer stamping every command with the
// configured host and stake
func NewNormalizer(host string, stake float64) *Normalizer {
	return &Normalizer{
		host:  host,
		stake: stake,
		newID: func() string { return uuid.New().String() },
	}
}

// Normalize turns extracted fields into a command with a fresh id
func (n *Normalizer) Normalize(fields models.ExtractedFields) (*models.BetCommand, error) {
	timeframe, marketName := SplitLabel(fields.MarketLabel)

	if marketName != MarketResult && marketName != MarketAsianHandicap {
		return nil, &NormalizationError{Reason: ReasonUnsupportedMarket, Detail: marketName}
	}

	selection, odds, err := splitOdds(fields.MarketBody)
	if err != nil {
		return nil, err
	}

	var market models.Market
	switch marketName {
	case MarketResult:
		if selection == "" {
			return nil, &NormalizationError{Reason: ReasonMissingParticipant, Detail: fields.MarketBody}
		}
		market = models.ResultMarket(selection)

	case MarketAsianHandicap:
		team, lines, err := parseHandicap(selection)
		if err != nil {
			return nil, err
		}
		market = models.AsianHandicapMarket(team, lines, fields.Score())
	}

	return &models.BetCommand{
		Bet: models.Bet{
			Market:    market,
			Match:     fields.Match(),
			Odds:      odds,
			Timeframe: timeframe,
		},
		Host:  n.host,
		ID:    n.newID(),
		Stake: n.stake,
	}, nil
}

// SplitLabel separates the timeframe prefix from the market name.
// A label without a known prefix is FullTime with an Unknown market.
func SplitLabel(label string) (models.Timeframe, string) {
	for _, p := range timeframePrefixes {
		if strings.HasPrefix(label, p.label) {
			name := strings.Trim(strings.TrimPrefix(label, p.label), " :\t")
			return p.timeframe, name
		}
	}
	return models.TimeframeFullTime, MarketUnknown
}

// splitOdds splits "<selection> @ <odds>" on the last '@'
func splitOdds(body string) (string, float64, error) {
	idx := strings.LastIndex(body, "@")
	if idx < 0 {
		return "", 0, &NormalizationError{Reason: ReasonMalformedOdds, Detail: body}
	}

	odds, err := strconv.ParseFloat(strings.TrimSpace(body[idx+1:]), 64)
	if err != nil || math.IsNaN(odds) || math.IsInf(odds, 0) || odds <= 0 {
		return "", 0, &NormalizationError{Reason: ReasonMalformedOdds, Detail: body}
	}

	return strings.TrimSpace(body[:idx]), odds, nil
}

// parseHandicap splits "Team B -0.5,-1.0" into the team and its lines
func parseHandicap(selection string) (string, []float64, error) {
	m := handicapPattern.FindStringSubmatch(selection)
	if m == nil {
		return "", nil, &NormalizationError{Reason: ReasonMalformedHandicap, Detail: selection}
	}

	team := strings.TrimSpace(m[1])
	if team == "" {
		return "", nil, &NormalizationError{Reason: ReasonMissingParticipant, Detail: selection}
	}

	parts := strings.Split(m[2], ",")
	lines := make([]float64, 0, len(parts))
	for _, part := range parts {
		line, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return "", nil, &NormalizationError{Reason: ReasonMalformedHandicap, Detail: selection}
		}
		lines = append(lines, line)
	}

	return team, lines, nil
}
