package refresher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamdash/internal/collector"
	"streamdash/internal/config"
	"streamdash/internal/model"
	"streamdash/internal/recorder"
	"streamdash/internal/store"
)

func newTestCoordinator(t *testing.T, symbols []string, intervalSec int) (*Coordinator, *collector.MockFetcher, *store.Store) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Watch.Symbols = symbols
	cfg.Watch.RefreshIntervalSeconds = intervalSec
	cfg.Watch.AutoRefresh = true
	cfg.Watch.HistoricalPeriod = "1d"
	cfg.Watch.HistoricalInterval = "5m"

	st := store.NewStore(100)
	f := collector.NewMockFetcher()
	return NewCoordinator(st, f, recorder.NewNoopRecorder(), cfg), f, st
}

func barsFor(n int, base float64) []model.Bar {
	start := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	bars := make([]model.Bar, n)
	for i := range bars {
		bars[i] = model.Bar{Time: start.Add(time.Duration(i) * time.Minute), Close: base + float64(i), Volume: 10}
	}
	return bars
}

func TestTickIfDue_IntervalGating(t *testing.T) {
	c, f, _ := newTestCoordinator(t, []string{"AAPL"}, 5)
	t0 := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)

	require.NotNil(t, c.TickIfDue(t0), "first tick should refresh immediately")
	assert.Nil(t, c.TickIfDue(t0.Add(2*time.Second)), "2s later: not due")
	assert.Nil(t, c.TickIfDue(t0.Add(4*time.Second)), "4s later: still not due")
	require.NotNil(t, c.TickIfDue(t0.Add(6*time.Second)), "6s later: exactly one more cycle")
	assert.Equal(t, 2, f.QuoteCalls)
}

func TestTickIfDue_AutoRefreshOff(t *testing.T) {
	c, f, _ := newTestCoordinator(t, []string{"AAPL"}, 1)
	c.SetAutoRefresh(false)

	assert.Nil(t, c.TickIfDue(time.Now()))
	assert.Equal(t, 0, f.QuoteCalls)

	// Manual refresh still works with auto-refresh off.
	require.NotNil(t, c.RefreshNow())
	assert.Equal(t, 1, f.QuoteCalls)
}

func TestRunCycle_BackfillOncePerSymbol(t *testing.T) {
	c, f, st := newTestCoordinator(t, []string{"AAPL"}, 1)
	f.History["AAPL"] = barsFor(5, 150)

	c.RefreshNow()
	assert.Equal(t, 1, f.HistoryCalls["AAPL"])
	assert.True(t, st.Backfilled("AAPL"))
	assert.Equal(t, 6, st.Len("AAPL"), "5 historical + 1 live")

	c.RefreshNow()
	assert.Equal(t, 1, f.HistoryCalls["AAPL"], "backfill must not re-run")
	assert.Equal(t, 7, st.Len("AAPL"))
}

func TestRunCycle_BackfillFailureRetriedNextCycle(t *testing.T) {
	c, f, st := newTestCoordinator(t, []string{"AAPL"}, 1)
	f.FailHistory["AAPL"] = true

	report := c.RefreshNow()
	require.NotNil(t, report)
	assert.Empty(t, report.Backfilled)
	assert.False(t, st.Backfilled("AAPL"))
	// Live append still happened despite the failed backfill.
	assert.Equal(t, 1, st.Len("AAPL"))

	f.FailHistory["AAPL"] = false
	f.History["AAPL"] = barsFor(3, 150)
	report = c.RefreshNow()
	assert.Equal(t, []string{"AAPL"}, report.Backfilled)
	assert.True(t, st.Backfilled("AAPL"))
	assert.Equal(t, 2, f.HistoryCalls["AAPL"])
}

func TestRunCycle_HistoricalBeforeLive(t *testing.T) {
	c, f, st := newTestCoordinator(t, []string{"SPY"}, 1)
	f.History["SPY"] = barsFor(5, 400)

	c.RefreshNow()

	got := st.SymbolSnapshot("SPY")
	require.Len(t, got, 6)
	for i := 0; i < 5; i++ {
		assert.True(t, got[i].Historical)
	}
	assert.False(t, got[5].Historical, "live point appended after seeded history")
	assert.False(t, got[5].Timestamp.Before(got[4].Timestamp))
}

func TestRunCycle_PerSymbolFailureIsolation(t *testing.T) {
	c, f, st := newTestCoordinator(t, []string{"GOOD", "BAD"}, 1)
	f.History["GOOD"] = barsFor(2, 100)
	f.History["BAD"] = barsFor(2, 100)
	f.FailQuotes["BAD"] = true

	before := c.Status().LastRefresh
	report := c.RefreshNow()
	require.NotNil(t, report)

	assert.Equal(t, []string{"GOOD"}, report.LiveSucceeded)
	assert.Equal(t, []string{"BAD"}, report.LiveFailed)
	assert.Equal(t, 3, st.Len("GOOD"), "GOOD gains its live point")
	assert.Equal(t, 2, st.Len("BAD"), "BAD's buffer unchanged this cycle")
	assert.True(t, c.Status().LastRefresh.After(before) || before.IsZero(),
		"cycle completion time advances despite the failure")
}

func TestRunCycle_MalformedQuoteDropped(t *testing.T) {
	c, f, st := newTestCoordinator(t, []string{"AAPL"}, 1)
	f.History["AAPL"] = barsFor(2, 150)
	f.Quotes["AAPL"] = model.Quote{Price: 0}

	report := c.RefreshNow()
	assert.Equal(t, []string{"AAPL"}, report.LiveFailed)
	assert.Equal(t, 0, report.Appended)
	assert.Equal(t, 2, st.Len("AAPL"), "zero-price quote never reaches the store")
}

func TestRunCycle_AllFailedStillAdvancesLastRefresh(t *testing.T) {
	c, f, _ := newTestCoordinator(t, []string{"AAPL", "SPY"}, 5)
	f.FailQuotes["AAPL"] = true
	f.FailQuotes["SPY"] = true
	f.FailHistory["AAPL"] = true
	f.FailHistory["SPY"] = true

	t0 := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	report := c.TickIfDue(t0)
	require.NotNil(t, report)
	assert.Len(t, report.LiveFailed, 2)
	assert.Equal(t, t0.UTC(), c.Status().LastRefresh.UTC())

	assert.Nil(t, c.TickIfDue(t0.Add(2*time.Second)), "no retry storm after an all-failed cycle")
}

func TestRunCycle_NormalizesLivePoint(t *testing.T) {
	c, f, st := newTestCoordinator(t, []string{"AAPL"}, 1)
	f.History["AAPL"] = barsFor(1, 150)
	f.Quotes["AAPL"] = model.Quote{Price: 151.23456, Volume: 42}

	c.RefreshNow()
	got := st.SymbolSnapshot("AAPL")
	require.Len(t, got, 2)
	live := got[1]
	assert.Equal(t, 151.23, live.Price, "price rounded to 2 decimals at ingestion")
	assert.Equal(t, time.UTC, live.Timestamp.Location())
	assert.Equal(t, int64(42), live.Volume)
}

func TestSetSymbols_ResetForcesFreshBackfill(t *testing.T) {
	c, f, st := newTestCoordinator(t, []string{"AAPL", "SPY"}, 1)
	f.History["AAPL"] = barsFor(3, 150)
	f.History["SPY"] = barsFor(3, 400)

	c.RefreshNow()
	require.True(t, st.Backfilled("SPY"))

	require.NoError(t, c.SetSymbols([]string{"AAPL"}))
	assert.False(t, st.Backfilled("SPY"), "dropped symbol loses its backfill flag")
	assert.Equal(t, 0, st.Len("SPY"))

	require.NoError(t, c.SetSymbols([]string{"AAPL", "SPY"}))
	c.RefreshNow()
	assert.Equal(t, 2, f.HistoryCalls["SPY"], "re-added symbol backfills again")
	assert.True(t, st.Backfilled("SPY"))
}

func TestSetSymbols_RejectsEmptySet(t *testing.T) {
	c, _, _ := newTestCoordinator(t, []string{"AAPL"}, 1)
	assert.Error(t, c.SetSymbols(nil))
	assert.Error(t, c.SetSymbols([]string{" ", ""}))
	assert.Equal(t, []string{"AAPL"}, c.Symbols())
}

func TestSetInterval_Clamps(t *testing.T) {
	c, _, _ := newTestCoordinator(t, []string{"AAPL"}, 5)
	c.SetInterval(0)
	assert.Equal(t, 1, c.Status().IntervalSeconds)
	c.SetInterval(500)
	assert.Equal(t, 60, c.Status().IntervalSeconds)
}

func TestNormalizeHistoricalRange(t *testing.T) {
	tests := []struct {
		period, interval string
		wantPeriod       string
		wantInterval     string
	}{
		{"1d", "5m", "1d", "5m"},
		{"1y", "1wk", "1y", "1wk"},
		{"1d", "1d", "1d", "1m"},
		{"3mo", "1m", "3mo", "1d"},
		{"bogus", "5m", "1d", "5m"},
		{"", "", "1d", "5m"},
	}
	for _, tt := range tests {
		p, iv := NormalizeHistoricalRange(tt.period, tt.interval)
		assert.Equal(t, tt.wantPeriod, p, "period for %s/%s", tt.period, tt.interval)
		assert.Equal(t, tt.wantInterval, iv, "interval for %s/%s", tt.period, tt.interval)
	}
}

// gatedFetcher blocks FetchQuotes until released, holding a cycle in flight.
type gatedFetcher struct {
	*collector.MockFetcher
	entered chan struct{}
	release chan struct{}
}

func (g *gatedFetcher) FetchQuotes(symbols []string) (map[string]model.Quote, error) {
	close(g.entered)
	<-g.release
	return g.MockFetcher.FetchQuotes(symbols)
}

func TestTriggerDuringInFlightCycleIsDropped(t *testing.T) {
	cfg := &config.Config{}
	cfg.Watch.Symbols = []string{"AAPL"}
	cfg.Watch.RefreshIntervalSeconds = 1
	cfg.Watch.AutoRefresh = true

	f := &gatedFetcher{
		MockFetcher: collector.NewMockFetcher(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	st := store.NewStore(100)
	c := NewCoordinator(st, f, recorder.NewNoopRecorder(), cfg)

	done := make(chan *CycleReport, 1)
	go func() { done <- c.RefreshNow() }()

	<-f.entered
	assert.Equal(t, "refreshing", c.Status().State)
	assert.Nil(t, c.RefreshNow(), "manual trigger during in-flight cycle must be dropped")
	assert.Nil(t, c.TickIfDue(time.Now().Add(time.Hour)), "poll tick during in-flight cycle must be dropped")

	close(f.release)
	report := <-done
	require.NotNil(t, report)
	assert.Equal(t, []string{"AAPL"}, report.LiveSucceeded)
	assert.Equal(t, "idle", c.Status().State)
	assert.Equal(t, 1, f.QuoteCalls, "the dropped triggers must not have run cycles")
}

func TestRunCycle_EmptyTrackedSetStillAdvancesLastRefresh(t *testing.T) {
	c, f, st := newTestCoordinator(t, nil, 5)
	t0 := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)

	report := c.TickIfDue(t0)
	require.NotNil(t, report)
	assert.Equal(t, 0, report.Appended)
	assert.Equal(t, 0, f.QuoteCalls, "no batched fetch for an empty set")
	assert.Empty(t, st.Symbols())
	assert.Equal(t, t0, c.Status().LastRefresh)
	assert.Nil(t, c.TickIfDue(t0.Add(2*time.Second)), "empty cycle still gates the next tick")
}

func TestOnCycle_ReceivesReportAndFreshObservations(t *testing.T) {
	c, f, _ := newTestCoordinator(t, []string{"AAPL"}, 1)
	f.History["AAPL"] = barsFor(2, 150)

	var gotReport *CycleReport
	var gotFresh []model.Observation
	c.OnCycle = func(r *CycleReport, fresh []model.Observation) {
		gotReport = r
		gotFresh = fresh
	}

	c.RefreshNow()
	require.NotNil(t, gotReport)
	assert.Equal(t, "manual", gotReport.Trigger)
	assert.Len(t, gotFresh, 3, "2 backfilled + 1 live")
}
