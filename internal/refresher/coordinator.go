package refresher

import (
	"fmt"
	"log"
	"sync"
	"time"

	"streamdash/internal/collector"
	"streamdash/internal/config"
	"streamdash/internal/model"
	"streamdash/internal/recorder"
	"streamdash/internal/store"
)

// CycleReport summarizes one completed refresh cycle.
type CycleReport struct {
	Trigger       string    `json:"trigger"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Backfilled    []string  `json:"backfilled"`
	LiveSucceeded []string  `json:"live_succeeded"`
	LiveFailed    []string  `json:"live_failed"`
	Appended      int       `json:"appended"`
}

// Status is a read-only view of the coordinator for the presentation layer.
type Status struct {
	State              string       `json:"state"`
	AutoRefresh        bool         `json:"auto_refresh"`
	IntervalSeconds    int          `json:"interval_seconds"`
	Symbols            []string     `json:"symbols"`
	HistoricalPeriod   string       `json:"historical_period"`
	HistoricalInterval string       `json:"historical_interval"`
	LastRefresh        time.Time    `json:"last_refresh"`
	LastReport         *CycleReport `json:"last_report,omitempty"`
}

// Coordinator decides when a refresh cycle is due and orchestrates
// backfill-then-live fetching into the store. Cycles are not re-entrant: a
// trigger arriving while a cycle is in flight is dropped and the next poll
// tick re-evaluates the elapsed check.
type Coordinator struct {
	mu           sync.Mutex
	store        *store.Store
	fetcher      collector.Fetcher
	rec          recorder.Recorder
	symbols      []string
	interval     time.Duration
	autoRefresh  bool
	period       string
	histInterval string
	refreshing   bool
	lastRefresh  time.Time
	lastReport   *CycleReport

	// OnCycle, when set, receives every finished cycle report along with the
	// observations the cycle added.
	OnCycle func(report *CycleReport, fresh []model.Observation)
}

// NewCoordinator creates a coordinator from validated configuration.
func NewCoordinator(st *store.Store, fetcher collector.Fetcher, rec recorder.Recorder, cfg *config.Config) *Coordinator {
	period, histInterval := NormalizeHistoricalRange(cfg.Watch.HistoricalPeriod, cfg.Watch.HistoricalInterval)
	return &Coordinator{
		store:        st,
		fetcher:      fetcher,
		rec:          rec,
		symbols:      model.NormalizeSymbols(cfg.Watch.Symbols),
		interval:     time.Duration(cfg.Watch.RefreshIntervalSeconds) * time.Second,
		autoRefresh:  cfg.Watch.AutoRefresh,
		period:       period,
		histInterval: histInterval,
	}
}

// TickIfDue runs one refresh cycle if auto-refresh is on, no cycle is in
// flight, and at least the configured interval has elapsed since the last
// completed cycle. Returns nil when no cycle ran.
func (c *Coordinator) TickIfDue(now time.Time) *CycleReport {
	c.mu.Lock()
	if !c.autoRefresh || c.refreshing {
		c.mu.Unlock()
		return nil
	}
	if !c.lastRefresh.IsZero() && now.Sub(c.lastRefresh) < c.interval {
		c.mu.Unlock()
		return nil
	}
	c.refreshing = true
	symbols, period, interval := c.snapshotParamsLocked()
	c.mu.Unlock()

	return c.runCycle("interval", now, symbols, period, interval)
}

// RefreshNow runs a cycle immediately regardless of the elapsed check. A
// trigger during an in-flight cycle is dropped.
func (c *Coordinator) RefreshNow() *CycleReport {
	c.mu.Lock()
	if c.refreshing {
		c.mu.Unlock()
		log.Println("[INFO] refresh already in flight, manual trigger dropped")
		return nil
	}
	c.refreshing = true
	symbols, period, interval := c.snapshotParamsLocked()
	c.mu.Unlock()

	return c.runCycle("manual", time.Now(), symbols, period, interval)
}

func (c *Coordinator) snapshotParamsLocked() ([]string, string, string) {
	symbols := make([]string, len(c.symbols))
	copy(symbols, c.symbols)
	return symbols, c.period, c.histInterval
}

// runCycle performs backfill for never-seen symbols, then one batched live
// fetch, then records the cycle. The completion time advances even when every
// symbol failed, so presentation sees "stale" rather than a retry storm.
func (c *Coordinator) runCycle(trigger string, now time.Time, symbols []string, period, interval string) *CycleReport {
	report := &CycleReport{
		Trigger:       trigger,
		StartedAt:     now.UTC(),
		Backfilled:    []string{},
		LiveSucceeded: []string{},
		LiveFailed:    []string{},
	}
	var fresh []model.Observation

	// Step 1: historical backfill for symbols never seeded. Failures leave
	// the symbol un-backfilled so the next cycle retries.
	for _, sym := range symbols {
		if c.store.Backfilled(sym) {
			continue
		}
		bars, err := c.fetcher.FetchHistory(sym, period, interval)
		if err != nil {
			log.Printf("[WARN] backfill %s: %v", sym, err)
			continue
		}
		hist := make([]model.Observation, 0, len(bars))
		for _, b := range bars {
			if b.Close <= 0 {
				continue
			}
			hist = append(hist, model.NewObservation(sym, b.Time, b.Close, b.Volume, true))
		}
		if c.store.BackfillIfNeeded(sym, hist) {
			report.Backfilled = append(report.Backfilled, sym)
			fresh = append(fresh, c.store.SymbolSnapshot(sym)...)
		}
	}

	// Step 2: one batched live fetch for every tracked symbol.
	if len(symbols) > 0 {
		quotes, err := c.fetcher.FetchQuotes(symbols)
		if err != nil {
			log.Printf("[ERROR] live fetch: %v", err)
			report.LiveFailed = append(report.LiveFailed, symbols...)
		} else {
			for _, sym := range symbols {
				q, ok := quotes[sym]
				if !ok || q.Price <= 0 {
					// Malformed or missing quote: the buffer stays
					// untouched for this cycle.
					report.LiveFailed = append(report.LiveFailed, sym)
					continue
				}
				obs := model.NewObservation(sym, now, q.Price, q.Volume, false)
				c.store.Append(obs)
				fresh = append(fresh, obs)
				report.LiveSucceeded = append(report.LiveSucceeded, sym)
				report.Appended++
			}
		}
	}

	report.FinishedAt = time.Now().UTC()

	if len(fresh) > 0 {
		if err := c.rec.RecordObservations(fresh); err != nil {
			log.Printf("[ERROR] record observations: %v", err)
		}
	}
	if err := c.rec.RecordCycle(&recorder.CycleEvent{
		Trigger:    trigger,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Backfilled: len(report.Backfilled),
		Succeeded:  len(report.LiveSucceeded),
		Failed:     len(report.LiveFailed),
		Appended:   report.Appended,
	}); err != nil {
		log.Printf("[ERROR] record cycle: %v", err)
	}

	c.mu.Lock()
	c.lastRefresh = now
	c.lastReport = report
	c.refreshing = false
	onCycle := c.OnCycle
	c.mu.Unlock()

	if onCycle != nil {
		onCycle(report, fresh)
	}
	log.Printf("[INFO] refresh cycle done (%s): %d backfilled, %d live, %d failed",
		trigger, len(report.Backfilled), len(report.LiveSucceeded), len(report.LiveFailed))
	return report
}

// SetSymbols replaces the tracked symbol set. Symbols dropped from the set
// are reset in the store so a later re-add triggers a fresh backfill.
func (c *Coordinator) SetSymbols(symbols []string) error {
	normalized := model.NormalizeSymbols(symbols)
	if len(normalized) == 0 {
		return fmt.Errorf("tracked symbol set must not be empty")
	}

	c.mu.Lock()
	old := c.symbols
	c.symbols = normalized
	c.mu.Unlock()

	kept := make(map[string]bool, len(normalized))
	for _, sym := range normalized {
		kept[sym] = true
	}
	for _, sym := range old {
		if !kept[sym] {
			c.store.Reset(sym)
			log.Printf("[INFO] symbol %s untracked, buffer reset", sym)
		}
	}
	return nil
}

// SetInterval updates the refresh interval, clamped to [1,60] seconds.
func (c *Coordinator) SetInterval(seconds int) {
	if seconds < 1 {
		seconds = 1
	}
	if seconds > 60 {
		seconds = 60
	}
	c.mu.Lock()
	c.interval = time.Duration(seconds) * time.Second
	c.mu.Unlock()
}

// SetAutoRefresh toggles interval-driven refreshes. Manual triggers keep
// working either way.
func (c *Coordinator) SetAutoRefresh(enabled bool) {
	c.mu.Lock()
	c.autoRefresh = enabled
	c.mu.Unlock()
}

// SetHistoricalRange updates the (period, interval) pair used for backfills,
// coercing unsupported pairings to a valid combination.
func (c *Coordinator) SetHistoricalRange(period, interval string) {
	period, interval = NormalizeHistoricalRange(period, interval)
	c.mu.Lock()
	c.period = period
	c.histInterval = interval
	c.mu.Unlock()
}

// Status returns a consistent view of the coordinator state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := "idle"
	if c.refreshing {
		state = "refreshing"
	}
	symbols := make([]string, len(c.symbols))
	copy(symbols, c.symbols)
	return Status{
		State:              state,
		AutoRefresh:        c.autoRefresh,
		IntervalSeconds:    int(c.interval / time.Second),
		Symbols:            symbols,
		HistoricalPeriod:   c.period,
		HistoricalInterval: c.histInterval,
		LastRefresh:        c.lastRefresh,
		LastReport:         c.lastReport,
	}
}

// Symbols returns a copy of the tracked symbol set.
func (c *Coordinator) Symbols() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.symbols))
	copy(out, c.symbols)
	return out
}
