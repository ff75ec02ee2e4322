package models

import "time"

// Candle is one OHLCV bar, second resolution.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}
