// Package risk scores manually-registered visitors with independent,
// additive rules. Scoring is advisory: a high score raises an alert but
// never blocks entry, and a failed historical read understates risk instead
// of failing visitor creation.
package risk

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"visitor-access-control/internal/notify"
)

// Rule weights. Factors combine; the score is uncapped.
const (
	WeightLateNight       = 20
	WeightRepeatedDenials = 40
	WeightMultiFlat       = 30
	WeightBlacklisted     = 100
)

// Factor names, stable identifiers carried on the record and in alerts.
const (
	FactorLateNight       = "late_night_entry"
	FactorRepeatedDenials = "repeated_denials"
	FactorMultiFlat       = "multi_flat_pattern"
	FactorBlacklisted     = "blacklisted"
)

const (
	LevelLow    = "low"
	LevelMedium = "medium"
	LevelHigh   = "high"
)

const (
	highThreshold   = 70
	mediumThreshold = 40

	// Repeated denials: at least this many denied records in the trailing window.
	denialThreshold = 3
	denialWindow    = 24 * time.Hour

	// Multi-flat pattern: at least this many distinct approved flats today.
	multiFlatThreshold = 5

	lateNightStartHour = 22
	lateNightEndHour   = 6
)

// Assessment is a transient value; it is embedded into the visitor record at
// creation time and never persisted on its own.
type Assessment struct {
	Score   int
	Level   string
	Factors []string
}

// Input is a snapshot of the visit attempt being scored. At carries the
// local wall-clock time of the attempt; scoring is deterministic given Input
// and the historical reads.
type Input struct {
	VisitorName  string
	VisitorPhone string
	FlatNumber   string
	SocietyID    string
	At           time.Time
}

// History provides the eventually-consistent aggregate reads. Counts may lag
// under write load; that staleness is accepted, not a security boundary.
type History interface {
	CountDeniedSince(ctx context.Context, phone string, since time.Time) (int, error)
	CountDistinctFlatsApprovedSince(ctx context.Context, phone string, since time.Time) (int, error)
}

// Blacklist is the read-only set of flagged phone numbers.
type Blacklist interface {
	IsBlacklisted(ctx context.Context, phone string) (bool, error)
}

// Engine is stateless; it holds its collaborators and nothing per-request.
type Engine struct {
	history   History
	blacklist Blacklist
	notifier  notify.Gateway
	logger    *slog.Logger
}

func NewEngine(history History, blacklist Blacklist, notifier notify.Gateway) *Engine {
	return &Engine{
		history:   history,
		blacklist: blacklist,
		notifier:  notifier,
		logger:    slog.With("component", "risk"),
	}
}

// Score evaluates every rule and sums the triggered weights. It never
// returns an error and never mutates anything: a failed read contributes
// zero to the score (fail-open by design).
func (e *Engine) Score(ctx context.Context, input Input) Assessment {
	var score int
	var factors []string

	if isLateNight(input.At) {
		score += WeightLateNight
		factors = append(factors, FactorLateNight)
	}

	denied, err := e.history.CountDeniedSince(ctx, input.VisitorPhone, input.At.Add(-denialWindow))
	if err != nil {
		e.logger.Warn("Denial count read failed, scoring without it", "phone", input.VisitorPhone, "error", err)
	} else if denied >= denialThreshold {
		score += WeightRepeatedDenials
		factors = append(factors, FactorRepeatedDenials)
	}

	flats, err := e.history.CountDistinctFlatsApprovedSince(ctx, input.VisitorPhone, startOfDay(input.At))
	if err != nil {
		e.logger.Warn("Distinct flat count read failed, scoring without it", "phone", input.VisitorPhone, "error", err)
	} else if flats >= multiFlatThreshold {
		score += WeightMultiFlat
		factors = append(factors, FactorMultiFlat)
	}

	listed, err := e.blacklist.IsBlacklisted(ctx, input.VisitorPhone)
	if err != nil {
		e.logger.Warn("Blacklist read failed, scoring without it", "phone", input.VisitorPhone, "error", err)
	} else if listed {
		score += WeightBlacklisted
		factors = append(factors, FactorBlacklisted)
	}

	assessment := Assessment{
		Score:   score,
		Level:   LevelFor(score),
		Factors: factors,
	}

	if assessment.Level == LevelHigh {
		e.alert(ctx, input, assessment)
	}

	return assessment
}

// LevelFor maps a score to a level: high at 70, medium at 40.
func LevelFor(score int) string {
	switch {
	case score >= highThreshold:
		return LevelHigh
	case score >= mediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// alert dispatches a high-priority notification with the triggered factor
// list. Advisory only; the visit attempt proceeds regardless.
func (e *Engine) alert(ctx context.Context, input Input, a Assessment) {
	e.logger.Warn("High risk visitor",
		"phone", input.VisitorPhone,
		"flat", input.FlatNumber,
		"score", a.Score,
		"factors", a.Factors,
	)

	e.notifier.Dispatch(ctx, notify.Dispatch{
		Recipient: "guards",
		Title:     "High risk visitor at gate",
		Body:      "Visitor " + input.VisitorName + " flagged: " + strings.Join(a.Factors, ", "),
		Data: map[string]string{
			"priority": notify.PriorityHigh,
			"phone":    input.VisitorPhone,
			"flat":     input.FlatNumber,
			"factors":  strings.Join(a.Factors, ","),
		},
	})
}

func isLateNight(at time.Time) bool {
	hour := at.Hour()
	return hour >= lateNightStartHour || hour < lateNightEndHour
}

func startOfDay(at time.Time) time.Time {
	y, m, d := at.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, at.Location())
}
