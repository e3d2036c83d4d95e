package risk

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"visitor-access-control/internal/notify"
)

type fakeHistory struct {
	denied    int
	deniedErr error
	flats     int
	flatsErr  error
}

func (h *fakeHistory) CountDeniedSince(ctx context.Context, phone string, since time.Time) (int, error) {
	return h.denied, h.deniedErr
}

func (h *fakeHistory) CountDistinctFlatsApprovedSince(ctx context.Context, phone string, since time.Time) (int, error) {
	return h.flats, h.flatsErr
}

type fakeBlacklist struct {
	listed bool
	err    error
}

func (b *fakeBlacklist) IsBlacklisted(ctx context.Context, phone string) (bool, error) {
	return b.listed, b.err
}

type captureGateway struct {
	mu         sync.Mutex
	dispatches []notify.Dispatch
}

func (g *captureGateway) Dispatch(ctx context.Context, d notify.Dispatch) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dispatches = append(g.dispatches, d)
}

func (g *captureGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.dispatches)
}

// daytime is a fixed 14:00 local timestamp, outside the late-night window.
var daytime = time.Date(2025, 6, 15, 14, 0, 0, 0, time.Local)

func testInput(at time.Time) Input {
	return Input{
		VisitorName:  "Test Visitor",
		VisitorPhone: "+911234567890",
		FlatNumber:   "A-101",
		SocietyID:    "soc1",
		At:           at,
	}
}

func TestScoreCleanVisitor(t *testing.T) {
	gw := &captureGateway{}
	engine := NewEngine(&fakeHistory{}, &fakeBlacklist{}, gw)

	a := engine.Score(context.Background(), testInput(daytime))
	if a.Score != 0 {
		t.Fatalf("expected score 0, got %d", a.Score)
	}
	if a.Level != LevelLow {
		t.Fatalf("expected level low, got %s", a.Level)
	}
	if len(a.Factors) != 0 {
		t.Fatalf("expected no factors, got %v", a.Factors)
	}
	if gw.count() != 0 {
		t.Fatalf("expected no alert for clean visitor")
	}
}

func TestLateNightBoundaries(t *testing.T) {
	engine := NewEngine(&fakeHistory{}, &fakeBlacklist{}, &captureGateway{})

	cases := []struct {
		hour     int
		expected int
	}{
		{21, 0},
		{22, WeightLateNight},
		{23, WeightLateNight},
		{0, WeightLateNight},
		{5, WeightLateNight},
		{6, 0},
		{14, 0},
	}

	for _, tc := range cases {
		at := time.Date(2025, 6, 15, tc.hour, 0, 0, 0, time.Local)
		a := engine.Score(context.Background(), testInput(at))
		if a.Score != tc.expected {
			t.Errorf("hour %d: expected score %d, got %d", tc.hour, tc.expected, a.Score)
		}
	}
}

func TestRepeatedDenialsThreshold(t *testing.T) {
	engine := NewEngine(&fakeHistory{denied: 2}, &fakeBlacklist{}, &captureGateway{})
	a := engine.Score(context.Background(), testInput(daytime))
	if a.Score != 0 {
		t.Fatalf("2 denials should not trigger, got score %d", a.Score)
	}

	engine = NewEngine(&fakeHistory{denied: 3}, &fakeBlacklist{}, &captureGateway{})
	a = engine.Score(context.Background(), testInput(daytime))
	if a.Score != WeightRepeatedDenials {
		t.Fatalf("3 denials should score %d, got %d", WeightRepeatedDenials, a.Score)
	}
	if len(a.Factors) != 1 || a.Factors[0] != FactorRepeatedDenials {
		t.Fatalf("expected factor %s, got %v", FactorRepeatedDenials, a.Factors)
	}
}

func TestMultiFlatThreshold(t *testing.T) {
	engine := NewEngine(&fakeHistory{flats: 4}, &fakeBlacklist{}, &captureGateway{})
	a := engine.Score(context.Background(), testInput(daytime))
	if a.Score != 0 {
		t.Fatalf("4 flats should not trigger, got score %d", a.Score)
	}

	engine = NewEngine(&fakeHistory{flats: 5}, &fakeBlacklist{}, &captureGateway{})
	a = engine.Score(context.Background(), testInput(daytime))
	if a.Score != WeightMultiFlat {
		t.Fatalf("5 flats should score %d, got %d", WeightMultiFlat, a.Score)
	}
}

// Scenario: 3 denials in the trailing 24h, attempt at 23:00.
func TestDenialsPlusLateNightIsMedium(t *testing.T) {
	gw := &captureGateway{}
	engine := NewEngine(&fakeHistory{denied: 3}, &fakeBlacklist{}, gw)

	at := time.Date(2025, 6, 15, 23, 0, 0, 0, time.Local)
	a := engine.Score(context.Background(), testInput(at))
	if a.Score != 60 {
		t.Fatalf("expected score 60, got %d", a.Score)
	}
	if a.Level != LevelMedium {
		t.Fatalf("expected level medium, got %s", a.Level)
	}
	if gw.count() != 0 {
		t.Fatalf("medium risk must not alert")
	}
}

// Same as above plus an active blacklist match.
func TestBlacklistPushesHighAndAlerts(t *testing.T) {
	gw := &captureGateway{}
	engine := NewEngine(&fakeHistory{denied: 3}, &fakeBlacklist{listed: true}, gw)

	at := time.Date(2025, 6, 15, 23, 0, 0, 0, time.Local)
	a := engine.Score(context.Background(), testInput(at))
	if a.Score != 160 {
		t.Fatalf("expected score 160, got %d", a.Score)
	}
	if a.Level != LevelHigh {
		t.Fatalf("expected level high, got %s", a.Level)
	}

	if gw.count() != 1 {
		t.Fatalf("expected exactly one alert, got %d", gw.count())
	}
	d := gw.dispatches[0]
	if d.Data["priority"] != notify.PriorityHigh {
		t.Fatalf("alert should be high priority, got %q", d.Data["priority"])
	}
	if d.Data["factors"] == "" {
		t.Fatalf("alert should carry the factor list")
	}
}

func TestLevelBoundaries(t *testing.T) {
	cases := []struct {
		score int
		level string
	}{
		{0, LevelLow},
		{39, LevelLow},
		{40, LevelMedium},
		{69, LevelMedium},
		{70, LevelHigh},
		{160, LevelHigh},
	}

	for _, tc := range cases {
		if got := LevelFor(tc.score); got != tc.level {
			t.Errorf("score %d: expected %s, got %s", tc.score, tc.level, got)
		}
	}
}

// A failed historical read contributes zero instead of failing the scoring.
func TestFailOpenOnReadErrors(t *testing.T) {
	history := &fakeHistory{
		denied:    10,
		deniedErr: errors.New("db down"),
		flats:     10,
		flatsErr:  errors.New("db down"),
	}
	blacklist := &fakeBlacklist{listed: true, err: errors.New("db down")}
	engine := NewEngine(history, blacklist, &captureGateway{})

	at := time.Date(2025, 6, 15, 23, 0, 0, 0, time.Local)
	a := engine.Score(context.Background(), testInput(at))
	if a.Score != WeightLateNight {
		t.Fatalf("only the late-night rule should score, got %d", a.Score)
	}
	if a.Level != LevelLow {
		t.Fatalf("expected level low, got %s", a.Level)
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	engine := NewEngine(&fakeHistory{denied: 3, flats: 5}, &fakeBlacklist{}, &captureGateway{})

	at := time.Date(2025, 6, 15, 23, 30, 0, 0, time.Local)
	first := engine.Score(context.Background(), testInput(at))
	second := engine.Score(context.Background(), testInput(at))

	if first.Score != second.Score || first.Level != second.Level {
		t.Fatalf("assessments differ: %+v vs %+v", first, second)
	}
	if len(first.Factors) != len(second.Factors) {
		t.Fatalf("factor lists differ: %v vs %v", first.Factors, second.Factors)
	}
}
