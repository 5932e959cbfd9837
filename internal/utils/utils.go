package utils

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/go-playground/validator.v9"
)

//Validate -_-
var Validate *validator.Validate

func init() {
	Validate = validator.New()
}

// GetTimeNow Gets current time
func GetTimeNow() time.Time {
	return time.Now()
}

// Redact shortens a token or id to a prefix safe to log. Full delivery tokens never end up in logs.
func Redact(s string, keep int) string {
	if keep <= 0 {
		keep = 8
	}
	if len(s) <= keep {
		return s
	}
	return s[:keep] + "..."
}

// ToInt converts a decoded JSON scalar (number, integer or numeric string) to int.
func ToInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float32:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return 0, false
			}
			return int(f), true
		}
		return int(i), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			f, ferr := strconv.ParseFloat(strings.TrimSpace(n), 64)
			if ferr != nil {
				return 0, false
			}
			return int(f), true
		}
		return i, true
	default:
		return 0, false
	}
}

// MillisToTime converts epoch milliseconds to time.
func MillisToTime(ms int64) time.Time {
	return time.Unix(0, ms*int64(time.Millisecond))
}

// TimeToMillis converts time to epoch milliseconds.
func TimeToMillis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}

// ISOTimestamp formats time as UTC ISO-8601 with millisecond precision, e.g. 2024-05-01T08:00:00.000Z.
func ISOTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// NormalizeNumbers returns a copy of a decoded JSON value with json.Number replaced by int64 (or float64
// when not integral), so stores see numbers rather than strings.
func NormalizeNumbers(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = NormalizeNumbers(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = NormalizeNumbers(e)
		}
		return out
	default:
		return v
	}
}

// Describe formats an arbitrary feed value for logs.
func Describe(v interface{}) string {
	if v == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%v", v)
}
