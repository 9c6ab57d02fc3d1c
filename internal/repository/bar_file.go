package repository

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"MarketCore/internal/domain/models"
	domrepo "MarketCore/internal/domain/repository"
	"MarketCore/internal/services/features"
	xutil "MarketCore/pkg/util"
)

// FileBarSource serves bars recorded in a local file. It holds one series;
// the symbol argument of its methods is ignored.
type FileBarSource struct {
	bars []models.Bar
}

var _ domrepo.BarSource = (*FileBarSource)(nil)

// OpenBarFile loads a .csv, .json (array) or .jsonl file. Rows that are
// malformed or out of order are dropped.
func OpenBarFile(path string) (*FileBarSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var bars []models.Bar
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		bars, err = ReadBarsCSV(f)
	case ".json":
		var rows []fileBar
		if err = json.NewDecoder(f).Decode(&rows); err == nil {
			for _, r := range rows {
				if b, ok := r.bar(); ok {
					bars = append(bars, b)
				}
			}
		}
	case ".jsonl", ".ndjson":
		bars, err = readBarsJSONL(f)
	default:
		return nil, fmt.Errorf("unsupported bar file %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return NewFileBarSource(bars), nil
}

func NewFileBarSource(bars []models.Bar) *FileBarSource {
	sorted := append([]models.Bar(nil), bars...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })
	return &FileBarSource{bars: models.CleanBars(sorted)}
}

// Bars returns the native series.
func (s *FileBarSource) Bars() []models.Bar { return s.bars }

// GetBars returns bars in [from, to] aggregated to iv. Bars finer than the
// file's native spacing cannot be produced and come back unchanged.
func (s *FileBarSource) GetBars(_ context.Context, _ string, from, to time.Time, iv domrepo.Interval) ([]models.Bar, error) {
	if !domrepo.IsValidInterval(iv) {
		return nil, fmt.Errorf("unsupported interval: %s", iv)
	}
	var out []models.Bar
	for _, b := range s.resampled(iv) {
		if !b.Time.Before(from) && !b.Time.After(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *FileBarSource) GetLatestNBars(_ context.Context, _ string, n int, iv domrepo.Interval) ([]models.Bar, error) {
	if !domrepo.IsValidInterval(iv) {
		return nil, fmt.Errorf("unsupported interval: %s", iv)
	}
	if n <= 0 {
		return nil, nil
	}
	bars := s.resampled(iv)
	if len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	return append([]models.Bar(nil), bars...), nil
}

func (s *FileBarSource) resampled(iv domrepo.Interval) []models.Bar {
	if len(s.bars) < 2 || s.bars[1].Time.Sub(s.bars[0].Time) >= iv.Duration() {
		return s.bars
	}
	return features.Resample(s.bars, iv.Duration(), false)
}

// ReadBarsCSV reads time,open,high,low,close,volume rows. A header row is
// optional; when present its column names select the fields.
func ReadBarsCSV(r io.Reader) ([]models.Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	cols := map[string]int{"t": 0, "o": 1, "h": 2, "l": 3, "c": 4, "v": 5}
	var out []models.Bar
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if line == 1 {
			if hdr, ok := csvHeader(rec); ok {
				cols = hdr
				continue
			}
		}
		b, ok := csvBar(rec, cols)
		if !ok {
			continue
		}
		out = append(out, b)
	}
}

var csvAliases = map[string]string{
	"t": "t", "time": "t", "timestamp": "t", "date": "t", "open_time": "t",
	"o": "o", "open": "o",
	"h": "h", "high": "h",
	"l": "l", "low": "l",
	"c": "c", "close": "c",
	"v": "v", "volume": "v", "vol": "v",
}

func csvHeader(rec []string) (map[string]int, bool) {
	cols := make(map[string]int)
	for i, name := range rec {
		if k, ok := csvAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
			cols[k] = i
		}
	}
	for _, k := range []string{"t", "o", "h", "l", "c"} {
		if _, ok := cols[k]; !ok {
			return nil, false
		}
	}
	return cols, true
}

func csvBar(rec []string, cols map[string]int) (models.Bar, bool) {
	field := func(k string) string {
		i, ok := cols[k]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	t, ok := xutil.ParseTime(field("t"))
	if !ok {
		return models.Bar{}, false
	}
	var vals [5]float64
	for i, k := range []string{"o", "h", "l", "c", "v"} {
		s := field(k)
		if s == "" && k == "v" {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return models.Bar{}, false
		}
		vals[i] = v
	}
	return models.Bar{Time: t, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4]}, true
}

func readBarsJSONL(r io.Reader) ([]models.Bar, error) {
	var out []models.Bar
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var row fileBar
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			continue
		}
		if b, ok := row.bar(); ok {
			out = append(out, b)
		}
	}
	return out, sc.Err()
}

// fileBar is the JSON row shape; t may be RFC3339 or unix seconds/milliseconds.
type fileBar struct {
	T json.RawMessage `json:"t"`
	O float64         `json:"o"`
	H float64         `json:"h"`
	L float64         `json:"l"`
	C float64         `json:"c"`
	V float64         `json:"v"`
}

func (r fileBar) bar() (models.Bar, bool) {
	t, ok := xutil.ParseTime(strings.Trim(string(r.T), `"`))
	if !ok {
		return models.Bar{}, false
	}
	return models.Bar{Time: t, Open: r.O, High: r.H, Low: r.L, Close: r.C, Volume: r.V}, true
}
