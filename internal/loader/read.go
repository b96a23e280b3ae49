package loader

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/OCAP2/framereplay/internal/geo"
	"github.com/OCAP2/framereplay/pkg/core"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DefaultLayouts are tried in order when Config.TimestampLayouts is empty.
var DefaultLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2006-01-02",
}

type columnIndex struct {
	lat, lon, ts, indicator, id int
}

// Read parses a CSV stream into a sorted dataset without caching.
func Read(r io.Reader, cfg Config) (core.Dataset, error) {
	cfg = cfg.withDefaults()

	dec, err := decoder(cfg.Encoding)
	if err != nil {
		return core.Dataset{}, err
	}

	br := bufio.NewReader(r)
	if prefix, _ := br.Peek(len(utf8BOM)); bytes.Equal(prefix, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	var src io.Reader = br
	if dec != nil {
		src = dec.Reader(br)
	}

	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return core.Dataset{}, fmt.Errorf("%w: empty input", ErrHeader)
	}
	if err != nil {
		return core.Dataset{}, fmt.Errorf("%w: %v", ErrHeader, err)
	}

	idx, err := indexColumns(header, cfg.Columns)
	if err != nil {
		return core.Dataset{}, err
	}

	var ds core.Dataset
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return core.Dataset{}, fmt.Errorf("%w: %v", ErrHeader, err)
		}
		ds.Rows++
		line, _ := cr.FieldPos(0)

		lat, latErr := geo.ParseCoordinate(field(row, idx.lat))
		lon, lonErr := geo.ParseCoordinate(field(row, idx.lon))
		if latErr != nil || lonErr != nil {
			ds.Dropped++
			continue
		}

		raw := field(row, idx.ts)
		ts, err := parseTimestamp(raw, cfg.TimestampLayouts, cfg.Location)
		if err != nil {
			return core.Dataset{}, fmt.Errorf("%w: line %d: %q", ErrTimestamp, line, raw)
		}

		ds.Records = append(ds.Records, core.Record{
			ID:        strings.TrimSpace(field(row, idx.id)),
			Latitude:  lat,
			Longitude: lon,
			Timestamp: ts,
			Indicator: field(row, idx.indicator),
			Line:      line,
		})
	}

	if len(ds.Records) == 0 {
		return ds, fmt.Errorf("%w: %d rows read, %d dropped", ErrEmpty, ds.Rows, ds.Dropped)
	}

	Sort(ds.Records)
	return ds, nil
}

// Sort orders records by (Timestamp, ID), keeping row order for full ties.
// IDs compare as numbers only when every id in records is a finite number.
func Sort(records []core.Record) {
	numeric := NumericIDs(records)
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return CompareIDs(a.ID, b.ID, numeric) < 0
	})
}

// NumericIDs reports whether every record id parses as a finite number.
func NumericIDs(records []core.Record) bool {
	if len(records) == 0 {
		return false
	}
	for _, r := range records {
		if _, ok := parseID(r.ID); !ok {
			return false
		}
	}
	return true
}

// CompareIDs compares ids as numbers when numeric is set, falling back to
// the text for equal values such as "1" and "1.0". Without numeric, or for
// ids that are not finite numbers, the comparison is plain text.
func CompareIDs(a, b string, numeric bool) int {
	if numeric {
		fa, okA := parseID(a)
		fb, okB := parseID(b)
		if okA && okB {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
		}
	}
	return strings.Compare(a, b)
}

func parseID(id string) (float64, bool) {
	f, err := strconv.ParseFloat(id, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func decoder(name string) (*encoding.Decoder, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "", "UTF-8", "UTF8":
		return nil, nil
	case "ISO-8859-1", "LATIN1", "LATIN-1":
		return charmap.ISO8859_1.NewDecoder(), nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("%w: %q", ErrEncoding, name)
	}
	return enc.NewDecoder(), nil
}

func indexColumns(header []string, cols Columns) (columnIndex, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if _, dup := pos[name]; !dup {
			pos[name] = i
		}
	}

	lookup := func(name string) (int, error) {
		i, ok := pos[name]
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrMissingColumn, name)
		}
		return i, nil
	}

	var idx columnIndex
	var err error
	if idx.lat, err = lookup(cols.Latitude); err != nil {
		return idx, err
	}
	if idx.lon, err = lookup(cols.Longitude); err != nil {
		return idx, err
	}
	if idx.ts, err = lookup(cols.Timestamp); err != nil {
		return idx, err
	}
	if idx.indicator, err = lookup(cols.Indicator); err != nil {
		return idx, err
	}
	if idx.id, err = lookup(cols.ID); err != nil {
		return idx, err
	}
	return idx, nil
}

// field returns "" for short rows.
func field(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return row[i]
}

func parseTimestamp(raw string, layouts []string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	var lastErr error
	for _, layout := range layouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
