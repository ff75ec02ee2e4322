package models

// AccountSummary is the venue's periodic account snapshot, delivered over
// the WS "accountSummary" frame. PlatformID == 0 is a non-trading
// placeholder the venue emits that carries no useful data; the WS client
// filters those out before they reach the consumer (see wsclient).
type AccountSummary struct {
	PlatformID       int     `json:"PlatformID"`
	TradingAccountID int     `json:"TradingAccountID"`
	Balance          float64 `json:"Balance"`
	Equity           float64 `json:"Equity"`
	Margin           float64 `json:"Margin"`
	MarginLevel      float64 `json:"MarginLevel"`
	OpenPnl          float64 `json:"OpenPnl"`
	Currency         string  `json:"Currency"`
}

// Alert is one entry of AccountDetails.Alerts.
type Alert struct {
	MarketID int     `json:"MarketID"`
	Price    float64 `json:"Price"`
	Type     string  `json:"Type"`
}

// AccountCurrency is one entry of AccountDetails.Currencies.
type AccountCurrency struct {
	Currency string  `json:"Currency"`
	Balance  float64 `json:"Balance"`
}

// OpeningOrder is one entry of AccountDetails.OpeningOrders.
type OpeningOrder struct {
	OrderID  int     `json:"OrderID"`
	MarketID int     `json:"MarketID"`
	Price    float64 `json:"Price"`
	Stake    float64 `json:"Stake"`
}

// Position is one entry of AccountDetails.Positions.
type Position struct {
	PositionID int     `json:"PositionID"`
	MarketID   int     `json:"MarketID"`
	Direction  string  `json:"Direction"`
	Stake      float64 `json:"Stake"`
	OpenPrice  float64 `json:"OpenPrice"`
	Pnl        float64 `json:"Pnl"`
}

// AccountDetails is the venue's fuller account state, delivered over the
// WS "accountDetails" frame. The four container fields default to empty
// slices (never nil) when the venue omits them.
type AccountDetails struct {
	TradingAccountID int               `json:"TradingAccountID"`
	Alerts           []Alert           `json:"Alerts"`
	Currencies       []AccountCurrency `json:"Currencies"`
	OpeningOrders    []OpeningOrder    `json:"OpeningOrders"`
	Positions        []Position        `json:"Positions"`
}

// UnmarshalJSON fills the four optional containers with empty slices
// instead of nil when the venue's payload omits them.
func (a *AccountDetails) UnmarshalJSON(data []byte) error {
	type raw AccountDetails
	var r raw
	if err := jsonUnmarshal(data, &r); err != nil {
		return err
	}
	*a = AccountDetails(r)
	if a.Alerts == nil {
		a.Alerts = []Alert{}
	}
	if a.Currencies == nil {
		a.Currencies = []AccountCurrency{}
	}
	if a.OpeningOrders == nil {
		a.OpeningOrders = []OpeningOrder{}
	}
	if a.Positions == nil {
		a.Positions = []Position{}
	}
	return nil
}
