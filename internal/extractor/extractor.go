package extractor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/XavierBriggs/fortuna/services/tip-relay/pkg/models"
)

// Stage identifies the field group that failed to match
type Stage string

const (
	StageTeams   Stage = "teams"
	StageScore   Stage = "score"
	StageBetLine Stage = "bet_line"
)

// ParseError is returned when a required pattern is absent from a message
type ParseError struct {
	Stage Stage
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse failed: no %s found in message", e.Stage)
}

var (
	teamsPattern   = regexp.MustCompile(`(?m)🆚\s+(.*)\s+vs\.?\s+(.*)`)
	scorePattern   = regexp.MustCompile(`📣\s*(\d+)\s+-\s+(\d+)`)
	betStart       = regexp.MustCompile(`Bet:\s*`)
	betLinePattern = regexp.MustCompile(`^(.*):\s+(.*)$`)
)

// Extract pulls teams, score and the bet line out of a tip.
// Every group is required: a missing one fails the whole message.
func Extract(text string) (models.ExtractedFields, error) {
	var fields models.ExtractedFields

	// Tips are usually sent in bold
	text = strings.ReplaceAll(text, "*", "")

	teams := teamsPattern.FindStringSubmatch(text)
	if teams == nil {
		return fields, &ParseError{Stage: StageTeams}
	}
	fields.TeamA = strings.TrimSpace(teams[1])
	fields.TeamB = strings.TrimSpace(teams[2])
	if fields.TeamA == "" || fields.TeamB == "" {
		return fields, &ParseError{Stage: StageTeams}
	}

	score := scorePattern.FindStringSubmatch(text)
	if score == nil {
		return fields, &ParseError{Stage: StageScore}
	}
	home, errHome := strconv.Atoi(score[1])
	away, errAway := strconv.Atoi(score[2])
	if errHome != nil || errAway != nil {
		return fields, &ParseError{Stage: StageScore}
	}
	fields.ScoreHome = home
	fields.ScoreAway = away

	label, body, ok := splitBetLine(text)
	if !ok {
		return fields, &ParseError{Stage: StageBetLine}
	}
	fields.MarketLabel = label
	fields.MarketBody = body

	return fields, nil
}

// splitBetLine returns the label and body of the "Bet: <label>: <body>" line.
// The body may sit on the line following the label, so the section runs from
// "Bet:" to the first line holding an odds price ("@").
func splitBetLine(text string) (label, body string, ok bool) {
	loc := betStart.FindStringIndex(text)
	if loc == nil {
		return "", "", false
	}

	lines := strings.Split(text[loc[1]:], "\n")
	section := make([]string, 0, 2)
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" && i > 0 {
			continue
		}
		section = append(section, line)
		if strings.Contains(line, "@") {
			break
		}
	}
	if !strings.Contains(section[len(section)-1], "@") {
		section = section[:1]
	}

	m := betLinePattern.FindStringSubmatch(strings.Join(section, ": "))
	if m == nil {
		return "", "", false
	}
	label = strings.TrimSpace(m[1])
	body = strings.TrimSpace(m[2])
	if label == "" || body == "" {
		return "", "", false
	}
	return label, body, true
}
