package signal

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/msoriano-dev/updown-cycle-bot/pkg/types"
)

const retention = 60 * time.Second

// Detection is the result of a dump check.
type Detection struct {
	Side    types.Side
	DropPct float64
	MaxSeen float64
	Current float64
}

// pricePoint is one observed ask price for a side.
type pricePoint struct {
	price float64
	at    time.Time
}

// Tracker records recent ask prices per side and detects sharp drawdowns.
// A side that has fired stays latched until Reset, so a single dump cannot
// trigger more than one entry.
type Tracker struct {
	mu            sync.Mutex
	logger        *zap.Logger
	minValidPrice float64
	history       map[types.Side][]pricePoint
	latched       map[types.Side]bool
}

// New creates a price signal tracker. Prices below minValidPrice are treated
// as empty-book placeholders and never recorded.
func New(minValidPrice float64, logger *zap.Logger) *Tracker {
	return &Tracker{
		logger:        logger,
		minValidPrice: minValidPrice,
		history:       make(map[types.Side][]pricePoint),
		latched:       make(map[types.Side]bool),
	}
}

// AddSnapshot records one observed ask price for a side. Zero, negative and
// below-floor prices are dropped. Entries older than the retention horizon
// are pruned on every insert.
func (t *Tracker) AddSnapshot(side types.Side, price float64, now time.Time) {
	if price <= 0 || price < t.minValidPrice {
		InvalidPricesTotal.WithLabelValues(string(side)).Inc()
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	points := append(t.history[side], pricePoint{price: price, at: now})

	cutoff := now.Add(-retention)
	for len(points) > 0 && points[0].at.Before(cutoff) {
		points = points[1:]
	}

	t.history[side] = points
	SnapshotsTotal.WithLabelValues(string(side)).Inc()
}

// DetectDump evaluates both sides in fixed order (UP first, then DOWN) and
// returns the first side whose drawdown within the window meets the
// threshold. The winning side is latched. Returns SideNone when nothing
// fires.
func (t *Tracker) DetectDump(moveThreshold float64, window time.Duration, now time.Time) Detection {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, side := range types.Sides {
		if t.latched[side] {
			continue
		}

		maxSeen, current, ok := t.windowExtremes(side, window, now)
		if !ok {
			continue
		}

		dropPct := (maxSeen - current) / maxSeen
		if dropPct >= moveThreshold {
			t.latched[side] = true
			DumpsDetectedTotal.WithLabelValues(string(side)).Inc()

			t.logger.Info("dump-detected",
				zap.String("side", string(side)),
				zap.Float64("drop-pct", dropPct),
				zap.Float64("max-seen", maxSeen),
				zap.Float64("current", current))

			return Detection{
				Side:    side,
				DropPct: dropPct,
				MaxSeen: maxSeen,
				Current: current,
			}
		}
	}

	return Detection{Side: types.SideNone}
}

// Unlatch clears one side's latch. Called when a detection did not result
// in an executed entry (rejected buy, empty book), so the side may fire
// again; price history is untouched.
func (t *Tracker) Unlatch(side types.Side) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.latched, side)
}

// IsTriggered reports whether a side has already latched a detection.
func (t *Tracker) IsTriggered(side types.Side) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latched[side]
}

// Reset clears history and latches, typically on market rotation.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.history = make(map[types.Side][]pricePoint)
	t.latched = make(map[types.Side]bool)
}

// SideStatus is the instantaneous drawdown for one side.
type SideStatus struct {
	DropPct   float64 `json:"dropPct"`
	MaxSeen   float64 `json:"maxSeen"`
	Current   float64 `json:"current"`
	Points    int     `json:"points"`
	Triggered bool    `json:"triggered"`
}

// Status reports the instantaneous drawdown per side, ignoring latches.
// Used by the status endpoint.
func (t *Tracker) Status(window time.Duration, now time.Time) map[types.Side]SideStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[types.Side]SideStatus, len(types.Sides))
	for _, side := range types.Sides {
		st := SideStatus{
			Points:    len(t.history[side]),
			Triggered: t.latched[side],
		}

		maxSeen, current, ok := t.windowExtremes(side, window, now)
		if ok {
			st.DropPct = (maxSeen - current) / maxSeen
			st.MaxSeen = maxSeen
			st.Current = current
		}

		out[side] = st
	}

	return out
}

// windowExtremes returns the max price inside the window and the latest
// price. Needs at least two points inside the window; callers hold the lock.
func (t *Tracker) windowExtremes(side types.Side, window time.Duration, now time.Time) (maxSeen, current float64, ok bool) {
	cutoff := now.Add(-window)

	var inWindow []pricePoint
	for _, p := range t.history[side] {
		if !p.at.Before(cutoff) {
			inWindow = append(inWindow, p)
		}
	}

	if len(inWindow) < 2 {
		return 0, 0, false
	}

	maxSeen = inWindow[0].price
	for _, p := range inWindow[1:] {
		if p.price > maxSeen {
			maxSeen = p.price
		}
	}

	current = inWindow[len(inWindow)-1].price
	return maxSeen, current, true
}
