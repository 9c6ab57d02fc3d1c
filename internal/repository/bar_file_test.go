package repository

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domrepo "MarketCore/internal/domain/repository"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestReadBarsCSVWithHeader(t *testing.T) {
	body := "timestamp,open,high,low,close,volume\n" +
		"2024-01-10T00:00:00Z,100,101,99,100.5,10\n" +
		"1704845700,100.5,102,100,101.5,12\n" +
		"garbage,1,2,3,4,5\n" +
		"1704846600000,101.5,103,101,102,\n"
	bars, err := ReadBarsCSV(strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), bars[0].Time)
	assert.Equal(t, 101.5, bars[1].Close)
	assert.Equal(t, time.Date(2024, 1, 10, 0, 30, 0, 0, time.UTC), bars[2].Time)
	assert.Zero(t, bars[2].Volume)
}

func TestReadBarsCSVWithoutHeader(t *testing.T) {
	bars, err := ReadBarsCSV(strings.NewReader("1704844800,1,2,0.5,1.5,3\n"))
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 2.0, bars[0].High)
}

func TestOpenBarFileFormats(t *testing.T) {
	jsonPath := writeFile(t, "bars.json", `[{"t":"2024-01-10T00:15:00Z","o":2,"h":3,"l":1,"c":2.5,"v":1},{"t":1704844800,"o":1,"h":2,"l":0.5,"c":1.5,"v":1}]`)
	src, err := OpenBarFile(jsonPath)
	require.NoError(t, err)
	require.Len(t, src.Bars(), 2)
	assert.True(t, src.Bars()[0].Time.Before(src.Bars()[1].Time), "rows are sorted")

	jsonl := writeFile(t, "bars.jsonl", "{\"t\":1704844800,\"o\":1,\"h\":2,\"l\":0.5,\"c\":1.5}\n\nnot json\n{\"t\":1704844800,\"o\":1,\"h\":2,\"l\":0.5,\"c\":1.5}\n")
	src, err = OpenBarFile(jsonl)
	require.NoError(t, err)
	assert.Len(t, src.Bars(), 1, "duplicate timestamp dropped")

	_, err = OpenBarFile(writeFile(t, "bars.txt", ""))
	assert.Error(t, err)
	_, err = OpenBarFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestFileBarSourceResamples(t *testing.T) {
	var b strings.Builder
	b.WriteString("t,o,h,l,c,v\n")
	start := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 8; i++ {
		ts := start.Add(time.Duration(i) * 15 * time.Minute)
		b.WriteString(ts.Format(time.RFC3339) + ",1,2,0.5,1.5,1\n")
	}
	bars, err := ReadBarsCSV(strings.NewReader(b.String()))
	require.NoError(t, err)
	src := NewFileBarSource(bars)
	ctx := context.Background()

	native, err := src.GetLatestNBars(ctx, "X", 3, domrepo.TF15m)
	require.NoError(t, err)
	assert.Len(t, native, 3)

	hourly, err := src.GetLatestNBars(ctx, "X", 10, domrepo.TF1h)
	require.NoError(t, err)
	require.Len(t, hourly, 2)
	assert.Equal(t, 4.0, hourly[0].Volume)

	ranged, err := src.GetBars(ctx, "X", start.Add(30*time.Minute), start.Add(time.Hour), domrepo.TF15m)
	require.NoError(t, err)
	assert.Len(t, ranged, 3)

	_, err = src.GetBars(ctx, "X", start, start, domrepo.Interval("7m"))
	assert.Error(t, err)
}
