package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Market identifies the exchange universe a stock belongs to.
type Market string

const (
	MarketKR Market = "KR"
	MarketUS Market = "US"

	// MarketAll is a combined scope used by daily theme picks only;
	// stocks and trend keywords always carry KR or US.
	MarketAll Market = "ALL"
)

// NewsMarket identifies where an article was published.
type NewsMarket string

const (
	NewsMarketKorea         NewsMarket = "Korea"
	NewsMarketInternational NewsMarket = "International"
)

// Theme classifies an article into one of the fixed investment themes.
type Theme string

const (
	ThemeSemiconductorAI Theme = "SEMICONDUCTOR_AI"
	ThemeBattery         Theme = "BATTERY"
	ThemeGreenEnergy     Theme = "GREEN_ENERGY"
	ThemeFinanceHolding  Theme = "FINANCE_HOLDING"
	ThemeICTPlatform     Theme = "ICT_PLATFORM"
	ThemeBioHealth       Theme = "BIO_HEALTH"
	ThemeAuto            Theme = "AUTO"
	ThemeETC             Theme = "ETC"
)

// ValidTheme reports whether s is one of the known themes.
func ValidTheme(s string) bool {
	switch Theme(s) {
	case ThemeSemiconductorAI, ThemeBattery, ThemeGreenEnergy, ThemeFinanceHolding,
		ThemeICTPlatform, ThemeBioHealth, ThemeAuto, ThemeETC:
		return true
	}
	return false
}

// CoerceTheme returns s as a Theme if known, otherwise ThemeETC.
func CoerceTheme(s string) Theme {
	if ValidTheme(s) {
		return Theme(s)
	}
	return ThemeETC
}

// RankingType identifies a daily ranking board.
type RankingType string

const (
	RankingRise      RankingType = "RISE"
	RankingFall      RankingType = "FALL"
	RankingMarketCap RankingType = "MARKET_CAP"
	RankingVolume    RankingType = "VOLUME"
)

// Stock is a tracked instrument in the KR or US universe.
type Stock struct {
	ID        int64
	Market    Market
	Symbol    string
	Name      string
	Currency  string
	Exchange  string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DailySnapshot captures one stock's end-of-day or intraday state.
// Pointer fields are nullable columns.
type DailySnapshot struct {
	ID            int64
	StockID       int64
	Date          time.Time
	Open          *float64
	Close         *float64
	PrevClose     *float64
	ChangePct     *float64
	IntradayPct   *float64
	MarketCap     *int64
	Volume        *int64
	Volatility20d *float64
}

// RankingEntry is one row of a daily ranking board.
type RankingEntry struct {
	ID         int64
	AsOf       time.Time
	Market     string
	Type       RankingType
	Rank       int
	Symbol     string
	Name       string
	Price      *float64
	ChangeRate *float64
	Volume     *int64
	MarketCap  *int64
	Payload    json.RawMessage
}

// NewsArticle is a crawled article, optionally embedded for retrieval.
type NewsArticle struct {
	ID           int64
	URL          string
	Title        string
	Summary      string
	Content      string
	Source       string
	ImageURL     string
	Market       NewsMarket
	Theme        Theme
	PublishedAt  *time.Time
	HasEmbedding bool
	CreatedAt    time.Time
}

// NewsAnalysis is a per-level reading of an article produced by the LLM.
type NewsAnalysis struct {
	ID        int64
	ArticleID int64
	Level     int
	Theme     Theme
	Analysis  json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TrendKeyword is one of the day's top keywords for a scope.
type TrendKeyword struct {
	ID      int64
	Date    time.Time
	Scope   Market
	Rank    int
	Keyword string
	Reason  string
}

// TrendNews is an article collected for a trend keyword.
type TrendNews struct {
	ID            int64
	KeywordID     int64
	URL           string
	Title         string
	Summary       string
	Content       string
	Source        string
	ImageURL      string
	PublishedAt   *time.Time
	AnalysisFull  json.RawMessage
	AnalyzedAt    *time.Time
	NeedsImageGen bool
}

// TrendNewsAnalysis is a per-level reading of a trend article.
type TrendNewsAnalysis struct {
	ID       int64
	NewsID   int64
	Level    int
	Analysis json.RawMessage
}

// ThemePick is one of the day's recommended theme and symbol pairs.
type ThemePick struct {
	ID     int64
	Date   time.Time
	Scope  Market
	Rank   int
	Theme  string
	Symbol string
	Name   string
	Reason string
}

// User is an account created through Google sign-in.
type User struct {
	ID          int64
	GoogleSub   string
	Email       string
	Name        string
	Picture     string
	IsSuperuser bool
	CreatedAt   time.Time
	LastLoginAt *time.Time
}

// UserProfile holds investment preferences used for personalization.
type UserProfile struct {
	ID             int64
	UserID         int64
	AssetType      string
	Sectors        []string
	Portfolio      []string
	RiskProfile    string
	KnowledgeLevel int
	UpdatedAt      time.Time
}

// ChatSession is one conversation thread.
type ChatSession struct {
	ID        uuid.UUID
	UserID    int64
	Title     string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChatMessage is a single turn in a session.
type ChatMessage struct {
	ID        int64
	SessionID uuid.UUID
	Role      string
	Content   string
	CreatedAt time.Time
}

// PromptTemplate is a stored system prompt for the chatbot. Templates
// are resolved by id first, then key, then the newest active one.
// UserPrompt wraps the incoming message with a {message} placeholder.
type PromptTemplate struct {
	ID          int64
	Key         string
	Name        string
	Description string
	Content     string
	UserPrompt  string
	IsActive    bool
	CreatedAt   time.Time
}
