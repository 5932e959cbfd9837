package utils

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRedact(t *testing.T) {
	assert.Equal(t, "abc", Redact("abc", 8))
	assert.Equal(t, "fGx3k9Qa...", Redact("fGx3k9Qa:APA91bHPRgkF", 8))
	assert.Equal(t, "12345678...", Redact("1234567890", 0))
}

func TestToInt(t *testing.T) {
	tables := []struct {
		in interface{}
		ok bool
		n  int
	}{
		{400, true, 400},
		{float64(401), true, 401},
		{int64(7), true, 7},
		{json.Number("600"), true, 600},
		{json.Number("400.0"), true, 400},
		{json.Number("4e2"), true, 400},
		{json.Number("4.5e2"), true, 450},
		{"700", true, 700},
		{" 701 ", true, 701},
		{"12.0", true, 12},
		{"abc", false, 0},
		{nil, false, 0},
		{true, false, 0},
	}

	for _, table := range tables {
		n, ok := ToInt(table.in)
		assert.Equal(t, table.ok, ok, "input %v", table.in)
		assert.Equal(t, table.n, n, "input %v", table.in)
	}
}

func TestMillisRoundTrip(t *testing.T) {
	now := time.Unix(1700000000, 123000000)
	assert.Equal(t, int64(1700000000123), TimeToMillis(now))
	assert.True(t, MillisToTime(TimeToMillis(now)).Equal(now))
}

func TestISOTimestamp(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 5*int(time.Millisecond), time.FixedZone("CEST", 2*60*60))
	assert.Equal(t, "2024-05-01T08:00:00.005Z", ISOTimestamp(ts))
}

func TestNormalizeNumbers(t *testing.T) {
	in := map[string]interface{}{
		"Stability": map[string]interface{}{
			"Errors": map[string]interface{}{"EVT": json.Number("400")},
			"Temp":   json.Number("21.5"),
		},
		"list": []interface{}{json.Number("1"), "a"},
	}

	assert.Equal(t, map[string]interface{}{
		"Stability": map[string]interface{}{
			"Errors": map[string]interface{}{"EVT": int64(400)},
			"Temp":   21.5,
		},
		"list": []interface{}{int64(1), "a"},
	}, NormalizeNumbers(in))
}
