package db

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
)

func TestRowAccessors(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := Row{
		"id":          int32(42),
		"building_id": int64(5),
		"value":       float32(0.5),
		"title":       "Low power factor",
		"enabled":     true,
		"created_at":  now,
		"metadata":    []byte(`{"parameter":"power_factor"}`),
		"emails":      []any{"ops@example.com"},
		"missing":     nil,
	}

	assert.Equal(t, int64(42), r.Int64("id"))
	assert.Equal(t, int64(5), *r.NullInt64("building_id"))
	assert.Nil(t, r.NullInt64("missing"))
	assert.Nil(t, r.NullInt64("absent"))
	assert.InDelta(t, 0.5, r.Float64("value"), 1e-9)
	assert.Equal(t, "Low power factor", r.String("title"))
	assert.True(t, r.Bool("enabled"))
	assert.Equal(t, now, r.Time("created_at"))
	assert.Nil(t, r.NullTime("missing"))
	assert.Equal(t, "power_factor", r.Map("metadata")["parameter"])
	assert.Equal(t, []string{"ops@example.com"}, r.Strings("emails"))
}

func TestIsUndefinedTable(t *testing.T) {
	err := fmt.Errorf("query failed: %w", &pgconn.PgError{Code: "42P01"})
	assert.True(t, IsUndefinedTable(err))
	assert.False(t, IsUndefinedTable(errors.New("connection refused")))
}

func TestRowUUID(t *testing.T) {
	id := uuid.MustParse("5b0c2b6e-2f0f-4c52-9a44-5d7a1f0f4c11")
	r := Row{
		"raw":  [16]byte(id),
		"text": id.String(),
		"pg":   pgtype.UUID{Bytes: id, Valid: true},
		"bad":  "not-a-uuid",
	}
	assert.Equal(t, id, r.UUID("raw"))
	assert.Equal(t, id, r.UUID("text"))
	assert.Equal(t, id, r.UUID("pg"))
	assert.Equal(t, uuid.Nil, r.UUID("bad"))
	assert.Equal(t, uuid.Nil, r.UUID("absent"))
}
