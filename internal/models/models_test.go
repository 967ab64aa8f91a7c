package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverityRank(t *testing.T) {
	assert.Greater(t, SeverityRank(SeverityCritical), SeverityRank(SeverityHigh))
	assert.Greater(t, SeverityRank(SeverityHigh), SeverityRank(SeverityMedium))
	assert.Greater(t, SeverityRank(SeverityMedium), SeverityRank(SeverityLow))
	assert.False(t, ValidSeverity("urgent"))
}

func TestParseInt(t *testing.T) {
	cases := []struct {
		in   any
		want int64
		ok   bool
	}{
		{float64(5), 5, true},
		{"12", 12, true},
		{int64(3), 3, true},
		{5.5, 0, false},
		{"abc", 0, false},
		{nil, 0, false},
		{float64(1 << 53), 1 << 53, true},
		{-float64(1 << 53), -(1 << 53), true},
		{1e30, 0, false},
		{-1e19, 0, false},
	}
	for _, c := range cases {
		got, ok := ParseInt(c.in)
		assert.Equal(t, c.ok, ok, "%v", c.in)
		assert.Equal(t, c.want, got, "%v", c.in)
	}
}

func TestParseDate(t *testing.T) {
	d, ok := ParseDate("2026-01-31")
	assert.True(t, ok)
	assert.Equal(t, 31, d.Day())

	_, ok = ParseDate("2026-01-31T10:00:00Z")
	assert.True(t, ok)

	_, ok = ParseDate("2026-02-30")
	assert.False(t, ok)

	_, ok = ParseDate(20260131)
	assert.False(t, ok)
}

func TestPaginationNormalize(t *testing.T) {
	assert.Equal(t, Pagination{Limit: DefaultPageSize}, Pagination{}.Normalize())
	assert.Equal(t, Pagination{Limit: MaxPageSize, Offset: 0}, Pagination{Limit: 10000, Offset: -4}.Normalize())
}

func TestJobParamsAccessors(t *testing.T) {
	p := JobParams{"building_id": float64(5), "include_baseline": true, "metric": "consumption_kwh", "gone": nil}
	assert.True(t, p.Has("building_id"))
	assert.False(t, p.Has("gone"))
	assert.Equal(t, 5, p.IntOr("building_id", 0))
	assert.Equal(t, 30, p.IntOr("horizon_days", 30))
	assert.True(t, p.Bool("include_baseline"))
	assert.Equal(t, "consumption_kwh", p.String("metric"))
}
