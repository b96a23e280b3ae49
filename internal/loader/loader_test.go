package loader

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/framereplay/internal/cache"
	"github.com/OCAP2/framereplay/pkg/core"
)

var (
	t1 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	t2 = time.Date(2024, 5, 1, 10, 0, 5, 0, time.UTC)
)

const header = "id,Coordy,Coordx,timestamp,predominant_color\n"

func read(t *testing.T, body string) core.Dataset {
	t.Helper()
	ds, err := Read(strings.NewReader(body), DefaultConfig())
	require.NoError(t, err)
	return ds
}

func ids(records []core.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestRead_Scenario(t *testing.T) {
	f, err := os.Open("testdata/scenario.csv")
	require.NoError(t, err)
	defer f.Close()

	ds, err := Read(f, DefaultConfig())
	require.NoError(t, err)

	require.Len(t, ds.Records, 3)
	assert.Equal(t, []string{"1", "2", "3"}, ids(ds.Records))
	assert.Equal(t, 3, ds.Rows)
	assert.Equal(t, 0, ds.Dropped)

	first := ds.Records[0]
	assert.Equal(t, 10.0, first.Latitude)
	assert.Equal(t, 20.0, first.Longitude)
	assert.True(t, first.Timestamp.Equal(t1))
	assert.Equal(t, "red", first.Indicator)
	assert.Equal(t, 4, first.Line)
	assert.True(t, ds.Records[2].Timestamp.Equal(t2))
}

func TestRead_DropsRowsWithoutBothCoordinates(t *testing.T) {
	ds := read(t, header+
		"1,10.0,20.0,2024-05-01 10:00:00,red\n"+
		"4,9.0,bad,2024-05-01 10:00:00,red\n"+
		"5,,20.0,2024-05-01 10:00:00,red\n"+
		"6,NaN,20.0,2024-05-01 10:00:00,red\n"+
		"7,10.0,Inf,2024-05-01 10:00:00,red\n"+
		"8, 11.5 , -3 ,2024-05-01 10:00:00,red\n")

	assert.Equal(t, []string{"1", "8"}, ids(ds.Records))
	assert.Equal(t, 6, ds.Rows)
	assert.Equal(t, 4, ds.Dropped)
	for _, r := range ds.Records {
		assert.False(t, math.IsNaN(r.Latitude) || math.IsInf(r.Longitude, 0))
	}
}

func TestRead_InvalidCoordinateRowSkipsTimestampCheck(t *testing.T) {
	ds := read(t, header+
		"1,10.0,20.0,2024-05-01 10:00:00,red\n"+
		"2,x,20.0,not a time,red\n")

	assert.Len(t, ds.Records, 1)
	assert.Equal(t, 1, ds.Dropped)
}

func TestRead_SortedByTimestampThenID(t *testing.T) {
	ds := read(t, header+
		"10,1,1,2024-05-01 10:00:05,red\n"+
		"9,1,1,2024-05-01 10:00:00,red\n"+
		"11,1,1,2024-05-01 10:00:00,red\n"+
		"2,1,1,2024-05-01 10:00:05,red\n")

	assert.Equal(t, []string{"9", "11", "2", "10"}, ids(ds.Records))
	assertSorted(t, ds.Records)
}

func TestRead_MixedIDsSortAsText(t *testing.T) {
	ds := read(t, header+
		"10,1,1,2024-05-01 10:00:05,red\n"+
		"9,1,1,2024-05-01 10:00:00,red\n"+
		"b,1,1,2024-05-01 10:00:00,red\n"+
		"a,1,1,2024-05-01 10:00:00,red\n"+
		"2,1,1,2024-05-01 10:00:05,red\n")

	assert.Equal(t, []string{"9", "a", "b", "10", "2"}, ids(ds.Records))
	assertSorted(t, ds.Records)
}

func TestRead_OrderIndependentOfRowOrder(t *testing.T) {
	rows := []string{
		"1a,1,1,2024-05-01 10:00:00,red\n",
		"2,1,1,2024-05-01 10:00:00,red\n",
		"10,1,1,2024-05-01 10:00:00,red\n",
		"NaN,1,1,2024-05-01 10:00:00,red\n",
		"9,1,1,2024-05-01 10:00:00,red\n",
		"2b,1,1,2024-05-01 10:00:00,red\n",
		"100,1,1,2024-05-01 10:00:00,red\n",
	}
	forward := read(t, header+strings.Join(rows, ""))

	reversed := make([]string, len(rows))
	for i, r := range rows {
		reversed[len(rows)-1-i] = r
	}
	backward := read(t, header+strings.Join(reversed, ""))

	want := []string{"10", "100", "1a", "2", "2b", "9", "NaN"}
	assert.Equal(t, want, ids(forward.Records))
	assert.Equal(t, want, ids(backward.Records))
	assertSorted(t, forward.Records)
}

func TestRead_NumericIDsWithEqualValues(t *testing.T) {
	forward := read(t, header+
		"1.0,1,1,2024-05-01 10:00:00,red\n"+
		"1,1,1,2024-05-01 10:00:00,red\n"+
		"-3,1,1,2024-05-01 10:00:00,red\n")
	backward := read(t, header+
		"-3,1,1,2024-05-01 10:00:00,red\n"+
		"1,1,1,2024-05-01 10:00:00,red\n"+
		"1.0,1,1,2024-05-01 10:00:00,red\n")

	assert.Equal(t, []string{"-3", "1", "1.0"}, ids(forward.Records))
	assert.Equal(t, ids(forward.Records), ids(backward.Records))
}

// assertSorted checks every pair, not just neighbours.
func assertSorted(t *testing.T, records []core.Record) {
	t.Helper()
	numeric := NumericIDs(records)
	for i := range records {
		for j := i + 1; j < len(records); j++ {
			a, b := records[i], records[j]
			if a.Timestamp.Equal(b.Timestamp) {
				assert.LessOrEqual(t, CompareIDs(a.ID, b.ID, numeric), 0, "%s before %s", a.ID, b.ID)
			} else {
				assert.True(t, a.Timestamp.Before(b.Timestamp), "%s before %s", a.ID, b.ID)
			}
		}
	}
}

func TestRead_StableForFullTies(t *testing.T) {
	ds := read(t, header+
		"1,1,1,2024-05-01 10:00:00,first\n"+
		"1,2,2,2024-05-01 10:00:00,second\n"+
		"1,3,3,2024-05-01 10:00:00,third\n")

	require.Len(t, ds.Records, 3)
	assert.Equal(t, "first", ds.Records[0].Indicator)
	assert.Equal(t, "second", ds.Records[1].Indicator)
	assert.Equal(t, "third", ds.Records[2].Indicator)
}

func TestCompareIDs(t *testing.T) {
	assert.Equal(t, -1, CompareIDs("2", "10", true))
	assert.Equal(t, 1, CompareIDs("10", "2", true))
	assert.Equal(t, -1, CompareIDs("1", "1.0", true))
	assert.Equal(t, 0, CompareIDs("7", "7", true))
	assert.Equal(t, -1, CompareIDs("10", "2", false))
	assert.Equal(t, 0, CompareIDs("abc", "abc", false))
}

func TestNumericIDs(t *testing.T) {
	rec := func(ids ...string) []core.Record {
		out := make([]core.Record, len(ids))
		for i, id := range ids {
			out[i] = core.Record{ID: id}
		}
		return out
	}
	assert.True(t, NumericIDs(rec("1", "2.5", "-3")))
	assert.False(t, NumericIDs(rec("1", "2a")))
	assert.False(t, NumericIDs(rec("1", "NaN")))
	assert.False(t, NumericIDs(rec("1", "Inf")))
	assert.False(t, NumericIDs(rec("1", "")))
	assert.False(t, NumericIDs(nil))
}

func TestRead_TimestampFailureFailsLoad(t *testing.T) {
	_, err := Read(strings.NewReader(header+
		"1,10.0,20.0,2024-05-01 10:00:00,red\n"+
		"2,10.0,20.0,yesterday,red\n"), DefaultConfig())

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimestamp))
	assert.Contains(t, err.Error(), "line 3")
}

func TestRead_EmptyTimestampFailsLoad(t *testing.T) {
	_, err := Read(strings.NewReader(header+"1,10.0,20.0,,red\n"), DefaultConfig())
	assert.ErrorIs(t, err, ErrTimestamp)
}

func TestRead_TimestampLayouts(t *testing.T) {
	for _, raw := range []string{
		"2024-05-01T10:00:00Z",
		"2024-05-01T10:00:00.000Z",
		"2024-05-01 10:00:00",
		"2024-05-01T10:00:00",
		"2024-05-01 10:00",
		"2024/05/01 10:00:00",
	} {
		ds := read(t, header+"1,1,1,"+raw+",red\n")
		assert.True(t, ds.Records[0].Timestamp.Equal(t1), raw)
	}

	ds := read(t, header+"1,1,1,2024-05-01,red\n")
	assert.True(t, ds.Records[0].Timestamp.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)))
}

func TestRead_CustomLayoutAndLocation(t *testing.T) {
	loc := time.FixedZone("UTC-3", -3*60*60)
	cfg := DefaultConfig()
	cfg.TimestampLayouts = []string{"02/01/2006 15:04"}
	cfg.Location = loc

	ds, err := Read(strings.NewReader(header+"1,1,1,01/05/2024 07:00,red\n"), cfg)
	require.NoError(t, err)
	assert.True(t, ds.Records[0].Timestamp.Equal(t1))
}

func TestRead_MissingColumn(t *testing.T) {
	_, err := Read(strings.NewReader("id,Coordy,timestamp,predominant_color\n1,1,2024-05-01,red\n"), DefaultConfig())
	require.ErrorIs(t, err, ErrMissingColumn)
	assert.Contains(t, err.Error(), "Coordx")
}

func TestRead_CustomColumns(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Columns = Columns{Latitude: "lat", Longitude: "lon", Timestamp: "ts", Indicator: "state", ID: "key"}

	ds, err := Read(strings.NewReader("key,lat,lon,ts,state\nx,1,2,2024-05-01,green\n"), cfg)
	require.NoError(t, err)
	assert.Equal(t, "x", ds.Records[0].ID)
	assert.Equal(t, "green", ds.Records[0].Indicator)
}

func TestRead_EmptyInput(t *testing.T) {
	_, err := Read(strings.NewReader(""), DefaultConfig())
	assert.ErrorIs(t, err, ErrHeader)
}

func TestRead_NoSurvivingRows(t *testing.T) {
	ds, err := Read(strings.NewReader(header+"1,a,b,2024-05-01,red\n"), DefaultConfig())
	assert.ErrorIs(t, err, ErrEmpty)
	assert.Equal(t, 1, ds.Dropped)

	_, err = Read(strings.NewReader(header), DefaultConfig())
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestRead_ShortRowsAreDropped(t *testing.T) {
	ds := read(t, header+
		"1,10.0,20.0,2024-05-01 10:00:00,red\n"+
		"2,10.0\n")

	assert.Len(t, ds.Records, 1)
	assert.Equal(t, 1, ds.Dropped)
}

func TestRead_ShortRowKeepsMissingIndicatorEmpty(t *testing.T) {
	ds := read(t, header+"1,10.0,20.0,2024-05-01 10:00:00\n")
	assert.Equal(t, "", ds.Records[0].Indicator)
}

func TestRead_Latin1(t *testing.T) {
	body := "id,Coordy,Coordx,timestamp,predominant_color\n1,1,1,2024-05-01,S\xe3o\n"
	ds := read(t, body)
	assert.Equal(t, "São", ds.Records[0].Indicator)
}

func TestRead_UTF8WithBOM(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Encoding = "UTF-8"
	body := "\xEF\xBB\xBF" + header + "1,1,1,2024-05-01,São\n"

	ds, err := Read(strings.NewReader(body), cfg)
	require.NoError(t, err)
	assert.Equal(t, "São", ds.Records[0].Indicator)
}

func TestRead_IANAEncodingAndUnknown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Encoding = "windows-1252"
	ds, err := Read(strings.NewReader(header+"1,1,1,2024-05-01,\x80\n"), cfg)
	require.NoError(t, err)
	assert.Equal(t, "€", ds.Records[0].Indicator)

	cfg.Encoding = "klingon"
	_, err = Read(strings.NewReader(header), cfg)
	assert.ErrorIs(t, err, ErrEncoding)
}

func writeCSV(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "points.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

type recordingLogger struct {
	warnings []string
}

func (l *recordingLogger) Debug(string, ...any)       {}
func (l *recordingLogger) Warn(msg string, _ ...any) { l.warnings = append(l.warnings, msg) }

func TestLoad_Idempotent(t *testing.T) {
	path := writeCSV(t, t.TempDir(), header+
		"3,11.0,21.0,2024-05-01 10:00:05,green\n"+
		"2,12.0,22.0,2024-05-01 10:00:00,blue\n"+
		"1,10.0,20.0,2024-05-01 10:00:00,red\n")

	l := New(DefaultConfig())
	first, err := l.Load(path)
	require.NoError(t, err)
	second, err := l.Load(path)
	require.NoError(t, err)

	assert.Equal(t, first.Records, second.Records)
	assert.Equal(t, path, first.Source)
	assert.False(t, first.ModTime.IsZero())
}

func TestLoad_LogsDroppedRows(t *testing.T) {
	path := writeCSV(t, t.TempDir(), header+
		"1,10.0,20.0,2024-05-01 10:00:00,red\n"+
		"4,9.0,bad,2024-05-01 10:00:00,red\n")

	logger := &recordingLogger{}
	ds, err := New(DefaultConfig(), WithLogger(logger)).Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1, ds.Dropped)
	require.Len(t, logger.warnings, 1)
	assert.Contains(t, logger.warnings[0], "Dropped rows")
}

func TestLoad_OpenErrors(t *testing.T) {
	l := New(DefaultConfig())

	_, err := l.Load(filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, ErrOpen)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = l.Load(t.TempDir())
	assert.ErrorIs(t, err, ErrOpen)
}

func TestLoad_MemoCache(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, header+"1,10.0,20.0,2024-05-01 10:00:00,red\n")

	memo := cache.NewDatasets()
	l := New(DefaultConfig(), WithCache(memo))

	_, err := l.Load(path)
	require.NoError(t, err)
	_, err = l.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, memo.Hits.Value())

	// a rewrite with a new mtime is parsed again
	require.NoError(t, os.WriteFile(path, []byte(header+
		"1,10.0,20.0,2024-05-01 10:00:00,red\n"+
		"2,10.0,20.0,2024-05-01 10:00:00,red\n"), 0644))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	ds, err := l.Load(path)
	require.NoError(t, err)
	assert.Len(t, ds.Records, 2)

	l.Invalidate(path)
	assert.Equal(t, 0, memo.Len())
	ds, err = l.Load(path)
	require.NoError(t, err)
	assert.Len(t, ds.Records, 2)
	assert.Equal(t, 1, memo.Hits.Value())

	stats := l.CacheStats()
	assert.True(t, stats.Enabled)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, 1, stats.Hits)
	assert.Equal(t, memo.Misses.Value(), stats.Misses)
	assert.Equal(t, CacheStats{}, New(DefaultConfig()).CacheStats())
}

func TestLoad_DiskCache(t *testing.T) {
	disk, err := cache.OpenInMemoryDisk()
	require.NoError(t, err)
	defer disk.Close()

	path := writeCSV(t, t.TempDir(), header+"1,10.0,20.0,2024-05-01 10:00:00,red\n")

	first, err := New(DefaultConfig(), WithDiskCache(disk)).Load(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	stored, ok, err := disk.Get(cache.Key{Path: path, ModTime: info.ModTime(), Size: info.Size()})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.Records[0].ID, stored.Records[0].ID)

	// a fresh loader with an empty memo is served from disk
	memo := cache.NewDatasets()
	second, err := New(DefaultConfig(), WithCache(memo), WithDiskCache(disk)).Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, memo.Len())
	assert.True(t, second.Records[0].Timestamp.Equal(first.Records[0].Timestamp))

	New(DefaultConfig(), WithDiskCache(disk)).Invalidate(path)
	_, ok, err = disk.Get(cache.Key{Path: path, ModTime: info.ModTime(), Size: info.Size()})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConfigFrom(t *testing.T) {
	def := DefaultConfig()
	cfg, err := ConfigFrom(configSource(def, "UTC"))
	require.NoError(t, err)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.Equal(t, def.Columns, cfg.Columns)

	_, err = ConfigFrom(configSource(def, "Nowhere/Special"))
	assert.Error(t, err)
}
