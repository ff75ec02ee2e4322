package codec

import (
	"strconv"
	"strings"
	"time"

	"td365/models"
)

// candleTimestampWidth is the fixed width of the candle CSV's timestamp
// field: "YYYY-MM-DDThh:mm:ss±HH:MM".
const candleTimestampWidth = 25

// ParseCandle decodes one candle CSV line:
// "iso8601_with_offset,open,high,low,close,volume". The timestamp is
// parsed arithmetically off its fixed-width layout rather than through a
// general-purpose strftime-style parser, then the offset is applied to
// land on UTC, truncated to seconds.
func ParseCandle(line string) (models.Candle, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 6 {
		return models.Candle{}, fail(line, nil)
	}

	ts, err := parseCandleTimestamp(fields[0])
	if err != nil {
		return models.Candle{}, fail(line, err)
	}

	open, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return models.Candle{}, fail(line, err)
	}
	high, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return models.Candle{}, fail(line, err)
	}
	low, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return models.Candle{}, fail(line, err)
	}
	closePrice, err := strconv.ParseFloat(fields[4], 64)
	if err != nil {
		return models.Candle{}, fail(line, err)
	}
	volume, err := strconv.ParseFloat(fields[5], 64)
	if err != nil {
		return models.Candle{}, fail(line, err)
	}

	return models.Candle{
		Timestamp: ts,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
	}, nil
}

// parseCandleTimestamp reads "YYYY-MM-DDThh:mm:ss±HH:MM" by fixed offset
// rather than a format string, then shifts by the parsed UTC offset and
// truncates to seconds.
func parseCandleTimestamp(s string) (time.Time, error) {
	if len(s) != candleTimestampWidth {
		return time.Time{}, fail(s, nil)
	}

	atoi := func(sub string) (int, error) { return strconv.Atoi(sub) }

	year, err := atoi(s[0:4])
	if err != nil {
		return time.Time{}, err
	}
	month, err := atoi(s[5:7])
	if err != nil {
		return time.Time{}, err
	}
	day, err := atoi(s[8:10])
	if err != nil {
		return time.Time{}, err
	}
	hour, err := atoi(s[11:13])
	if err != nil {
		return time.Time{}, err
	}
	minute, err := atoi(s[14:16])
	if err != nil {
		return time.Time{}, err
	}
	second, err := atoi(s[17:19])
	if err != nil {
		return time.Time{}, err
	}

	sign := s[19]
	if sign != '+' && sign != '-' {
		return time.Time{}, fail(s, nil)
	}
	offHour, err := atoi(s[20:22])
	if err != nil {
		return time.Time{}, err
	}
	offMinute, err := atoi(s[23:25])
	if err != nil {
		return time.Time{}, err
	}

	offsetSeconds := offHour*3600 + offMinute*60
	if sign == '-' {
		offsetSeconds = -offsetSeconds
	}

	local := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	return local.Add(-time.Duration(offsetSeconds) * time.Second).Truncate(time.Second), nil
}
