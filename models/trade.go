package models

import (
	"github.com/shopspring/decimal"

	"td365/enum"
)

// TradeRequest is the caller's intent to open a position. Key is the tick
// hash observed when the decision was taken; the venue uses it for quote
// freshness checks on RequestTrade/RequestTradeSimulate.
type TradeRequest struct {
	Dir      enum.TradeSide
	MarketID int
	QuoteID  int
	Price    decimal.Decimal
	Stake    decimal.Decimal
	Stop     decimal.Decimal
	Limit    decimal.Decimal
	Key      string
}

// TradeResponse is the venue's reply to RequestTrade/RequestTradeSimulate.
type TradeResponse struct {
	Success      bool   `json:"Success"`
	OrderID      int    `json:"OrderID"`
	PositionID   int    `json:"PositionID"`
	ErrorMessage string `json:"ErrorMessage"`
}

// TradeDetails describes an established position, as carried on the WS
// "tradeEstablished" frame.
type TradeDetails struct {
	PositionID int     `json:"PositionID"`
	MarketID   int     `json:"MarketID"`
	Direction  string  `json:"Direction"`
	Stake      float64 `json:"Stake"`
	OpenPrice  float64 `json:"OpenPrice"`
	Stop       float64 `json:"Stop"`
	Limit      float64 `json:"Limit"`
}
