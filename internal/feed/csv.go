package feed

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"candle-trade-lab/internal/domain"
)

// LoadCSV reads a candle CSV with headers time|timestamp, open, high,
// low, close, volume. Headers are case-insensitive, unknown columns are
// ignored, and the time column accepts RFC3339, unix seconds, or unix
// milliseconds. The result is sorted ascending.
func LoadCSV(path string) ([]domain.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open candle csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var out []domain.Candle
	var headers []string

	for row := 0; ; row++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read candle csv: %w", err)
		}
		if row == 0 {
			headers = rec
			continue
		}

		cols := map[string]string{}
		for j, h := range headers {
			if j < len(rec) {
				cols[strings.ToLower(strings.TrimSpace(h))] = strings.TrimSpace(rec[j])
			}
		}

		tsRaw := firstNonEmpty(cols, "time", "timestamp")
		if tsRaw == "" || cols["open"] == "" || cols["close"] == "" {
			continue
		}
		ts, err := parseTimeFlexible(tsRaw)
		if err != nil {
			continue
		}

		o, _ := strconv.ParseFloat(cols["open"], 64)
		h, _ := strconv.ParseFloat(cols["high"], 64)
		l, _ := strconv.ParseFloat(cols["low"], 64)
		c, _ := strconv.ParseFloat(cols["close"], 64)
		v, _ := strconv.ParseFloat(firstNonEmpty(cols, "volume", "vol"), 64)

		out = append(out, domain.Candle{
			TimestampMs: ts,
			Open:        o,
			High:        h,
			Low:         l,
			Close:       c,
			Volume:      v,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].TimestampMs < out[j].TimestampMs })
	if err := Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

// parseTimeFlexible accepts RFC3339, unix seconds, or unix milliseconds
// and returns milliseconds since epoch.
func parseTimeFlexible(s string) (int64, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UnixMilli(), nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad time value: %s", s)
	}
	// Heuristic: values past year 2603 in seconds are milliseconds.
	if n > 20_000_000_000 {
		return n, nil
	}
	return n * 1000, nil
}

func firstNonEmpty(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := m[k]; v != "" {
			return v
		}
	}
	return ""
}
