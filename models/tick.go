package models

import (
	"time"

	"td365/enum"
)

// Tick is a single price event for one quote stream. field13 is carried
// through unparsed: its purpose is unknown to this client and is preserved
// verbatim per the wire contract rather than interpreted.
type Tick struct {
	QuoteID     int
	Bid         float64
	Ask         float64
	DailyChange float64
	Dir         enum.Direction
	Tradable    bool
	High        float64
	Low         float64
	Hash        string // base64, opaque; used as trade_request.Key
	CallOnly    bool
	MidPrice    float64
	Timestamp   time.Time // nanosecond resolution
	Field13     int
	Group       enum.Grouping
	Latency     time.Duration // now - Timestamp, computed at decode time
}
