package types

import (
	"encoding/json"
	"time"
)

// Side identifies one of the two outcome tokens in an up/down market.
type Side string

const (
	SideUp   Side = "UP"
	SideDown Side = "DOWN"
	SideNone Side = ""
)

// Sides lists both sides in evaluation order. Dump detection walks this
// slice front to back, so UP wins ties when both sides cross the threshold
// in the same tick.
var Sides = []Side{SideUp, SideDown}

// Opposite returns the complementary side.
func (s Side) Opposite() Side {
	if s == SideUp {
		return SideDown
	}
	return SideUp
}

// MarketStatus tracks where a market is in its lifecycle.
type MarketStatus string

const (
	MarketUpcoming MarketStatus = "upcoming"
	MarketLive     MarketStatus = "live"
	MarketEnded    MarketStatus = "ended"
	MarketResolved MarketStatus = "resolved"
)

// Market is a 15-minute up/down market pair. Built on discovery, its timing
// fields are immutable once the market has ended.
type Market struct {
	Slug        string
	Question    string
	UpTokenID   string
	DownTokenID string
	StartTime   time.Time
	EndTime     time.Time
	Status      MarketStatus
}

// TokenID returns the outcome token for a side.
func (m *Market) TokenID(side Side) string {
	if side == SideUp {
		return m.UpTokenID
	}
	return m.DownTokenID
}

// SideForToken maps a token ID back to its side, or SideNone if the token
// does not belong to this market.
func (m *Market) SideForToken(tokenID string) Side {
	switch tokenID {
	case m.UpTokenID:
		return SideUp
	case m.DownTokenID:
		return SideDown
	default:
		return SideNone
	}
}

// GammaMarket is the raw market shape returned by the Gamma API. Outcomes
// and clobTokenIds arrive as JSON-encoded strings inside the JSON document.
type GammaMarket struct {
	ID         string    `json:"id"`
	Question   string    `json:"question"`
	Slug       string    `json:"slug"`
	Closed     bool      `json:"closed"`
	Active     bool      `json:"active"`
	StartDate  time.Time `json:"startDate"`
	EndDate    time.Time `json:"endDate"`
	Outcomes   string    `json:"outcomes"`
	ClobTokens string    `json:"clobTokenIds"`
}

// ToMarket resolves the UP/DOWN token pair out of the Gamma payload.
// Returns false when the market is not a two-outcome up/down pair.
func (g *GammaMarket) ToMarket(now time.Time) (*Market, bool) {
	var outcomes, tokenIDs []string
	if err := json.Unmarshal([]byte(g.Outcomes), &outcomes); err != nil {
		return nil, false
	}
	if err := json.Unmarshal([]byte(g.ClobTokens), &tokenIDs); err != nil {
		return nil, false
	}
	if len(outcomes) != 2 || len(tokenIDs) != 2 {
		return nil, false
	}

	m := &Market{
		Slug:      g.Slug,
		Question:  g.Question,
		StartTime: g.StartDate,
		EndTime:   g.EndDate,
	}
	for i, outcome := range outcomes {
		switch outcome {
		case "Up", "UP":
			m.UpTokenID = tokenIDs[i]
		case "Down", "DOWN":
			m.DownTokenID = tokenIDs[i]
		}
	}
	if m.UpTokenID == "" || m.DownTokenID == "" {
		return nil, false
	}

	switch {
	case g.Closed || !now.Before(m.EndTime):
		m.Status = MarketEnded
	case now.Before(m.StartTime):
		m.Status = MarketUpcoming
	default:
		m.Status = MarketLive
	}

	return m, true
}
