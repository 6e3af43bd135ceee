// Package markets serves the ranking boards, symbol autocomplete and
// trading session status APIs.
package markets

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/marketlens/marketlens/internal/market"
	"github.com/marketlens/marketlens/internal/server/features/common"
	"github.com/marketlens/marketlens/internal/store"
)

const (
	defaultBoardLimit = 5
	maxBoardLimit     = 200

	defaultSuggestLimit = 10
	maxSuggestLimit     = 50

	defaultPreGraceMin  = 5
	maxPreGraceMin      = 120
	defaultPostGraceMin = 10
	maxPostGraceMin     = 240
)

var allowedExchanges = map[string]bool{
	"KOSPI":  true,
	"KOSDAQ": true,
	"NASDAQ": true,
}

// Handlers provides the market API handlers.
type Handlers struct {
	store    *store.Store
	calendar *market.Calendar
}

func NewHandlers(st *store.Store, cal *market.Calendar) *Handlers {
	return &Handlers{store: st, calendar: cal}
}

// Today returns the three ranking boards (market cap, gainers,
// drawdown) from the latest snapshot at or before the requested date.
func (h *Handlers) Today(w http.ResponseWriter, r *http.Request) {
	exchange := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("market")))
	if exchange == "" {
		exchange = "KOSPI"
	}
	if !allowedExchanges[exchange] {
		common.Error(w, http.StatusBadRequest, "market must be one of KOSPI, KOSDAQ, NASDAQ")
		return
	}

	limit, ok := common.ParseLimit(r.URL.Query().Get("limit"), defaultBoardLimit, maxBoardLimit)
	if !ok {
		common.Error(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	includePayload := isTruthy(r.URL.Query().Get("include_payload"))

	target, ok := common.ParseDate(r.URL.Query().Get("date"))
	if !ok {
		common.Error(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	asof, err := h.store.LatestAsOf(r.Context(), exchange, target)
	if err != nil {
		common.Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := TodayResponse{
		Market:       exchange,
		AsOf:         target.Format("2006-01-02"),
		TopMarketCap: []RankingItem{},
		TopGainers:   []RankingItem{},
		TopDrawdown:  []RankingItem{},
	}
	if asof.IsZero() {
		common.JSON(w, http.StatusOK, resp)
		return
	}
	resp.AsOf = asof.Format("2006-01-02")

	boards := []struct {
		typ  store.RankingType
		dest *[]RankingItem
	}{
		{store.RankingMarketCap, &resp.TopMarketCap},
		{store.RankingRise, &resp.TopGainers},
		{store.RankingFall, &resp.TopDrawdown},
	}
	for _, b := range boards {
		entries, err := h.store.ListRanking(r.Context(), asof, exchange, b.typ, limit, includePayload)
		if err != nil {
			common.Error(w, http.StatusInternalServerError, err.Error())
			return
		}
		for _, e := range entries {
			item := RankingItem{
				Rank:       e.Rank,
				SymbolCode: e.Symbol,
				Name:       e.Name,
				TradePrice: e.Price,
				ChangeRate: e.ChangeRate,
			}
			if includePayload {
				item.Payload = e.Payload
			}
			*b.dest = append(*b.dest, item)
		}
	}
	common.JSON(w, http.StatusOK, resp)
}

// Suggest autocompletes symbols and names against the latest ranking
// snapshot, deduplicated by symbol.
func (h *Handlers) Suggest(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		common.JSON(w, http.StatusOK, SuggestResponse{Market: "ALL", Results: []SuggestItem{}})
		return
	}

	exchange := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("market")))
	if exchange == "" {
		exchange = "ALL"
	}
	if exchange != "ALL" && !allowedExchanges[exchange] {
		common.Error(w, http.StatusBadRequest, "market must be one of KOSPI, KOSDAQ, NASDAQ, ALL")
		return
	}

	limit, ok := common.ParseLimit(r.URL.Query().Get("limit"), defaultSuggestLimit, maxSuggestLimit)
	if !ok {
		common.Error(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	target, ok := common.ParseDate(r.URL.Query().Get("date"))
	if !ok {
		common.Error(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	filter := ""
	if exchange != "ALL" {
		filter = exchange
	}

	asof, err := h.store.LatestAsOf(r.Context(), filter, target)
	if err != nil {
		common.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	if asof.IsZero() {
		date := target.Format("2006-01-02")
		common.JSON(w, http.StatusOK, SuggestResponse{Market: exchange, AsOf: &date, Results: []SuggestItem{}})
		return
	}

	entries, err := h.store.SuggestRanked(r.Context(), asof, filter, q, limit)
	if err != nil {
		common.Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	date := asof.Format("2006-01-02")
	resp := SuggestResponse{Market: exchange, AsOf: &date, Results: []SuggestItem{}}
	for _, e := range entries {
		resp.Results = append(resp.Results, SuggestItem{
			Symbol: e.Symbol,
			Name:   e.Name,
			Market: e.Market,
		})
	}
	common.JSON(w, http.StatusOK, resp)
}

// Sessions reports each requested market's current trading session
// state with configurable grace windows.
func (h *Handlers) Sessions(w http.ResponseWriter, r *http.Request) {
	pre := parseGrace(r.URL.Query().Get("pre_open_grace_min"), defaultPreGraceMin, maxPreGraceMin)
	post := parseGrace(r.URL.Query().Get("post_close_grace_min"), defaultPostGraceMin, maxPostGraceMin)

	exchanges := []string{"KOSPI", "KOSDAQ", "NASDAQ"}
	if raw := strings.TrimSpace(r.URL.Query().Get("markets")); raw != "" {
		var requested []string
		for _, m := range strings.Split(raw, ",") {
			m = strings.ToUpper(strings.TrimSpace(m))
			if allowedExchanges[m] {
				requested = append(requested, m)
			}
		}
		if len(requested) == 0 {
			common.Error(w, http.StatusBadRequest, "markets must be comma-separated KOSPI,KOSDAQ,NASDAQ")
			return
		}
		exchanges = requested
	}

	now := time.Now()
	resp := SessionsResponse{
		AsOf:              now,
		PreOpenGraceMin:   pre,
		PostCloseGraceMin: post,
		Sessions:          make(map[string]SessionPayload, len(exchanges)),
	}
	for _, ex := range exchanges {
		info, err := h.calendar.Session(ex, now, pre, post)
		if err != nil {
			common.Error(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Sessions[ex] = SessionPayload{
			Status:       string(info.Status),
			AsOf:         info.AsOf,
			CalendarCode: info.CalendarCode,
			Reason:       info.Reason,
			NextOpenAt:   info.NextOpenAt,
			PrevCloseAt:  info.PrevCloseAt,
		}
	}
	common.JSON(w, http.StatusOK, resp)
}

// parseGrace falls back to the default on bad input instead of
// erroring, matching the lenient session endpoint contract.
func parseGrace(raw string, def, max int) int {
	n := def
	if raw != "" {
		if v, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			n = v
		}
	}
	if n < 0 {
		n = 0
	}
	if n > max {
		n = max
	}
	return n
}

func isTruthy(raw string) bool {
	switch strings.TrimSpace(raw) {
	case "1", "true", "True":
		return true
	}
	return false
}
