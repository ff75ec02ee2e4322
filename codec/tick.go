package codec

import (
	"strconv"
	"strings"
	"time"

	"td365/enum"
	"td365/models"
)

// WindowsTicksToUnixEpoch and TicksPerNanosecond convert a .NET-style
// Windows tick count (100ns intervals since 0001-01-01 UTC) to a Unix
// nanosecond epoch. See GLOSSARY "Windows ticks".
const (
	WindowsTicksToUnixEpoch int64 = 621355968000000000
	TicksPerNanosecond      int64 = 100
)

// WindowsTicksToUnix converts a raw .NET tick count into a UTC time.Time
// with nanosecond resolution.
func WindowsTicksToUnix(windowsTicks int64) time.Time {
	unixNs := (windowsTicks - WindowsTicksToUnixEpoch) * TicksPerNanosecond
	return time.Unix(0, unixNs).UTC()
}

const tickFieldCount = 13

// ParseTick decodes one tick CSV line. The line always carries exactly 13
// comma-separated fields in the fixed order documented in the wire codec
// spec; group is supplied externally by the caller (the containing JSON
// key), not present in the line itself. now is injected so callers (and
// tests) control latency computation instead of relying on the wall clock.
func ParseTick(line string, group enum.Grouping, now time.Time) (models.Tick, error) {
	fields := strings.Split(line, ",")
	if len(fields) != tickFieldCount {
		return models.Tick{}, fail(line, nil)
	}

	quoteID, err := strconv.Atoi(fields[0])
	if err != nil {
		return models.Tick{}, fail(line, err)
	}
	bid, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return models.Tick{}, fail(line, err)
	}
	ask, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return models.Tick{}, fail(line, err)
	}
	dailyChange, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return models.Tick{}, fail(line, err)
	}
	dir := enum.DirectionFromToken(fields[4])
	tradable := fields[5] == "1"
	high, err := strconv.ParseFloat(fields[6], 64)
	if err != nil {
		return models.Tick{}, fail(line, err)
	}
	low, err := strconv.ParseFloat(fields[7], 64)
	if err != nil {
		return models.Tick{}, fail(line, err)
	}
	hash := fields[8]
	callOnly := fields[9] == "1"
	midPrice, err := strconv.ParseFloat(fields[10], 64)
	if err != nil {
		return models.Tick{}, fail(line, err)
	}
	windowsTicks, err := strconv.ParseInt(fields[11], 10, 64)
	if err != nil {
		return models.Tick{}, fail(line, err)
	}
	field13, err := strconv.Atoi(fields[12])
	if err != nil {
		return models.Tick{}, fail(line, err)
	}

	timestamp := WindowsTicksToUnix(windowsTicks)

	return models.Tick{
		QuoteID:     quoteID,
		Bid:         bid,
		Ask:         ask,
		DailyChange: dailyChange,
		Dir:         dir,
		Tradable:    tradable,
		High:        high,
		Low:         low,
		Hash:        hash,
		CallOnly:    callOnly,
		MidPrice:    midPrice,
		Timestamp:   timestamp,
		Field13:     field13,
		Group:       group,
		Latency:     now.Sub(timestamp),
	}, nil
}
