package models

// MarketGroup is a discovery-tree node: either a super-group (root) or a
// group beneath one. JSON field names are the venue's own PascalCase, as
// returned by GetMarketSuperGroup/GetMarketGroup.
type MarketGroup struct {
	ID                        int    `json:"ID"`
	Name                      string `json:"Name"`
	IsSuperGroup              bool   `json:"IsSuperGroup"`
	IsWhiteLabelPopularMarket bool   `json:"IsWhiteLabelPopularMarket"`
	HasSubscription           bool   `json:"HasSubscription"`
}

// Market is a single tradable instrument as returned by GetMarketQuote.
type Market struct {
	MarketID               int     `json:"MarketID"`
	QuoteID                int     `json:"QuoteID"`
	AtQuoteAtMarket        int     `json:"AtQuoteAtMarket"`
	ExchangeID             int     `json:"ExchangeID"`
	PrcGenFractionalPrice  int     `json:"PrcGenFractionalPrice"`
	PrcGenDecimalPlaces    int     `json:"PrcGenDecimalPlaces"`
	High                   float64 `json:"High"`
	Low                    float64 `json:"Low"`
	DailyChange            float64 `json:"DailyChange"`
	Bid                    float64 `json:"Bid"`
	Ask                    float64 `json:"Ask"`
	BetPer                 float64 `json:"BetPer"`
	IsGslPercent           int     `json:"IsGslPercent"`
	GslDis                 float64 `json:"GslDis"`
	MinCloseOrderDisTicks  float64 `json:"MinCloseOrderDisTicks"`
	MinOpenOrderDisTicks   float64 `json:"MinOpenOrderDisTicks"`
	DisplayBetPer          float64 `json:"DisplayBetPer"`
	IsInPortfolio          bool    `json:"IsInPortfolio"`
	Tradable               bool    `json:"Tradable"`
	TradeOnWeb             bool    `json:"TradeOnWeb"`
	CallOnly               bool    `json:"CallOnly"`
	MarketName             string  `json:"MarketName"`
	TradeStartTime         string  `json:"TradeStartTime"`
	Currency               string  `json:"Currency"`
	AllowGtdsStops         int     `json:"AllowGtdsStops"`
	ForceOpen              bool    `json:"ForceOpen"`
	Margin                 float64 `json:"Margin"`
	MarginType             bool    `json:"MarginType"`
	GslCharge              float64 `json:"GslCharge"`
	IsGslChargePercent     int     `json:"IsGslChargePercent"`
	Spread                 float64 `json:"Spread"`
	TradeRateType          int     `json:"TradeRateType"`
	OpenTradeRate          float64 `json:"OpenTradeRate"`
	CloseTradeRate         float64 `json:"CloseTradeRate"`
	MinOpenTradeRate       float64 `json:"MinOpenTradeRate"`
	MinCloseTradeRate      float64 `json:"MinCloseTradeRate"`
	PriceDecimal           float64 `json:"PriceDecimal"`
	Subscription           bool    `json:"Subscription"`
	SuperGroupID           int     `json:"SuperGroupID"`
}

// WebInfo carries per-account defaults returned alongside market details.
type WebInfo struct {
	MinStake     float64 `json:"MinStake"`
	MaxStake     float64 `json:"MaxStake"`
	OneClickMode bool    `json:"OneClickMode"`
	DefaultStake float64 `json:"DefaultStake"`
	Currency     string  `json:"Currency"`
}

// MarketDetailsData is the per-market configuration returned by
// GetMarketDetails (margin requirements, stake bounds, etc.).
type MarketDetailsData struct {
	MarketID             int     `json:"MarketID"`
	MinStake             float64 `json:"MinStake"`
	MaxStake             float64 `json:"MaxStake"`
	MinLimit             float64 `json:"MinLimit"`
	MinStop              float64 `json:"MinStop"`
	GuaranteedStopCharge float64 `json:"GuaranteedStopCharge"`
}

// MarketDetailsResponse is the decoded `d` payload of GetMarketDetails.
type MarketDetailsResponse struct {
	MarketDetailsData MarketDetailsData `json:"MarketDetailsData"`
	WebInfo           WebInfo           `json:"WebInfo"`
}
