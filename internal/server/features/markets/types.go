package markets

import (
	"encoding/json"
	"time"
)

// RankingItem is one row of a ranking board response. Payload is only
// populated when include_payload is requested.
type RankingItem struct {
	Rank       int             `json:"rank"`
	SymbolCode string          `json:"symbol_code"`
	Name       string          `json:"name"`
	TradePrice *float64        `json:"trade_price"`
	ChangeRate *float64        `json:"change_rate"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// TodayResponse carries the three boards of the latest snapshot at or
// before the requested date.
type TodayResponse struct {
	Market       string        `json:"market"`
	AsOf         string        `json:"asof"`
	TopMarketCap []RankingItem `json:"top_market_cap"`
	TopGainers   []RankingItem `json:"top_gainers"`
	TopDrawdown  []RankingItem `json:"top_drawdown"`
}

// SuggestItem is one symbol autocomplete hit.
type SuggestItem struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Market string `json:"market"`
}

// SuggestResponse is the autocomplete result set for one snapshot day.
type SuggestResponse struct {
	Market  string        `json:"market"`
	AsOf    *string       `json:"asof"`
	Results []SuggestItem `json:"results"`
}

// SessionPayload describes one market's trading session state.
type SessionPayload struct {
	Status       string     `json:"status"`
	AsOf         time.Time  `json:"asof"`
	CalendarCode string     `json:"calendar_code"`
	Reason       string     `json:"reason"`
	NextOpenAt   *time.Time `json:"next_open_at"`
	PrevCloseAt  *time.Time `json:"prev_close_at"`
}

// SessionsResponse maps each requested market to its session state.
type SessionsResponse struct {
	AsOf              time.Time                 `json:"asof"`
	PreOpenGraceMin   int                       `json:"pre_open_grace_min"`
	PostCloseGraceMin int                       `json:"post_close_grace_min"`
	Sessions          map[string]SessionPayload `json:"sessions"`
}
