package db

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Row is a single result row keyed by column name.
type Row map[string]any

func (r Row) Has(key string) bool {
	v, ok := r[key]
	return ok && v != nil
}

func (r Row) Int64(key string) int64 {
	n, _ := toInt64(r[key])
	return n
}

func (r Row) NullInt64(key string) *int64 {
	if !r.Has(key) {
		return nil
	}
	n, ok := toInt64(r[key])
	if !ok {
		return nil
	}
	return &n
}

func (r Row) Int(key string) int {
	return int(r.Int64(key))
}

func (r Row) Float64(key string) float64 {
	f, _ := toFloat64(r[key])
	return f
}

func (r Row) NullFloat64(key string) *float64 {
	if !r.Has(key) {
		return nil
	}
	f, ok := toFloat64(r[key])
	if !ok {
		return nil
	}
	return &f
}

func (r Row) String(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

func (r Row) NullString(key string) *string {
	if !r.Has(key) {
		return nil
	}
	s := r.String(key)
	return &s
}

func (r Row) Bool(key string) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		n, ok := toInt64(v)
		return ok && n != 0
	}
}

func (r Row) Time(key string) time.Time {
	t := r.NullTime(key)
	if t == nil {
		return time.Time{}
	}
	return *t
}

func (r Row) NullTime(key string) *time.Time {
	switch v := r[key].(type) {
	case time.Time:
		return &v
	case *time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil
		}
		return &t
	default:
		return nil
	}
}

// UUID accepts the forms pgx returns for uuid columns as well as strings.
func (r Row) UUID(key string) uuid.UUID {
	switch v := r[key].(type) {
	case uuid.UUID:
		return v
	case [16]byte:
		return uuid.UUID(v)
	case pgtype.UUID:
		if v.Valid {
			return uuid.UUID(v.Bytes)
		}
	case string:
		if id, err := uuid.Parse(v); err == nil {
			return id
		}
	}
	return uuid.Nil
}

// Map decodes a JSON(B) column. pgx hands back decoded maps; text and byte
// forms are unmarshalled.
func (r Row) Map(key string) map[string]any {
	switch v := r[key].(type) {
	case map[string]any:
		return v
	case []byte:
		return decodeMap(v)
	case string:
		return decodeMap([]byte(v))
	default:
		return nil
	}
}

func (r Row) Strings(key string) []string {
	switch v := r[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case []byte:
		return decodeStrings(v)
	case string:
		return decodeStrings([]byte(v))
	default:
		return nil
	}
}

func decodeStrings(b []byte) []string {
	var out []string
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}

func decodeMap(b []byte) map[string]any {
	if len(b) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int16:
		return int64(n), true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case float32:
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	case pgtype.Numeric:
		f, err := n.Float64Value()
		return f.Float64, err == nil && f.Valid
	default:
		return 0, false
	}
}
