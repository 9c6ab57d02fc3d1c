package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	cases := map[string]string{
		"rfc3339":      "2024-10-10T10:10:10Z",
		"offset":       "2024-10-10T07:10:10-03:00",
		"unix seconds": strconv.FormatInt(want.Unix(), 10),
		"unix millis":  strconv.FormatInt(want.UnixMilli(), 10),
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			got, ok := ParseTime(in)
			assert.True(t, ok)
			assert.True(t, want.Equal(got), got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}

	_, ok := ParseTime("yesterday")
	assert.False(t, ok)
	_, ok = ParseTime("")
	assert.False(t, ok)
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	assert.Equal(t, def, ParseTimeDefault("", def))
	assert.Equal(t, def, ParseTimeDefault("nope", def))
}
