package metrics

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestTruncate(t *testing.T) {
	at := ts("2026-04-15T13:47:12Z") // a Wednesday

	assert.Equal(t, ts("2026-04-15T13:00:00Z"), Truncate(at, Hourly))
	assert.Equal(t, ts("2026-04-15T00:00:00Z"), Truncate(at, Daily))
	assert.Equal(t, ts("2026-04-13T00:00:00Z"), Truncate(at, Weekly))
	assert.Equal(t, ts("2026-04-01T00:00:00Z"), Truncate(at, Monthly))

	sunday := ts("2026-04-19T23:00:00Z")
	assert.Equal(t, ts("2026-04-13T00:00:00Z"), Truncate(sunday, Weekly))

	offset := time.FixedZone("plus3", 3*3600)
	local := time.Date(2026, 4, 16, 1, 30, 0, 0, offset)
	assert.Equal(t, ts("2026-04-15T00:00:00Z"), Truncate(local, Daily))
}

func TestBuckets(t *testing.T) {
	b, err := Buckets(ts("2026-01-01T00:00:00Z"), ts("2026-01-03T00:00:00Z"), Daily, 100)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		ts("2026-01-01T00:00:00Z"),
		ts("2026-01-02T00:00:00Z"),
		ts("2026-01-03T00:00:00Z"),
	}, b)

	b, err = Buckets(ts("2026-01-31T10:00:00Z"), ts("2026-03-02T00:00:00Z"), Monthly, 100)
	require.NoError(t, err)
	assert.Len(t, b, 3)

	_, err = Buckets(ts("2026-01-03T00:00:00Z"), ts("2026-01-01T00:00:00Z"), Daily, 100)
	assert.Error(t, err)

	_, err = Buckets(ts("2026-01-01T00:00:00Z"), ts("2026-02-01T00:00:00Z"), Hourly, 24)
	assert.Error(t, err)
}

func TestCanRollInto(t *testing.T) {
	assert.True(t, Hourly.CanRollInto(Daily))
	assert.True(t, Daily.CanRollInto(Monthly))
	assert.True(t, Weekly.CanRollInto(Weekly))
	assert.False(t, Weekly.CanRollInto(Monthly))
	assert.False(t, Daily.CanRollInto(Hourly))
	assert.False(t, Period("yearly").CanRollInto(Daily))
}

func TestParseInterval(t *testing.T) {
	p, err := ParseInterval("")
	require.NoError(t, err)
	assert.Equal(t, Daily, p)
	p, err = ParseInterval("week")
	require.NoError(t, err)
	assert.Equal(t, Weekly, p)
	_, err = ParseInterval("fortnight")
	assert.Error(t, err)
}

func TestDimensionKeyIsCanonical(t *testing.T) {
	assert.Equal(t, "{}", DimensionKey(nil))
	a := DimensionKey(map[string]string{"platform": "ios", "country": "JP"})
	b := DimensionKey(map[string]string{"country": "JP", "platform": "ios"})
	assert.Equal(t, a, b)
	assert.Equal(t, `{"country":"JP","platform":"ios"}`, a)
	assert.Equal(t, `{"q":"a\"b"}`, DimensionKey(map[string]string{"q": `a"b`}))
}

func TestCombine(t *testing.T) {
	assert.Equal(t, 5.0, Sum.Apply(2, 3))
	assert.Equal(t, 3.0, Replace.Apply(2, 3))
	assert.Equal(t, 7.0, Max.Apply(7, 3))
	assert.Equal(t, 9.0, Max.Apply(7, 9))
}

func TestSumAndMaxAreOrderIndependent(t *testing.T) {
	deltas := []float64{1, 4, 2.5, 8, 0.5, 3, 3, 11}
	for _, c := range []Combine{Sum, Max} {
		want := 0.0
		for _, d := range deltas {
			want = c.Apply(want, d)
		}
		rng := rand.New(rand.NewSource(42))
		for i := 0; i < 20; i++ {
			shuffled := append([]float64(nil), deltas...)
			rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
			got := 0.0
			for _, d := range shuffled {
				got = c.Apply(got, d)
			}
			assert.InDelta(t, want, got, 1e-9, string(c))
		}
	}
}

func TestRegistryDefaultsAndFile(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, Sum, r.Policy(EventCount))
	assert.Equal(t, Replace, r.Policy(ActiveDevices))
	assert.Equal(t, Sum, r.Policy("custom_counter"))

	path := filepath.Join(t.TempDir(), "metrics.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"metrics":[{"type":"peak_memory","combine":"max"},{"type":"event_count","combine":"sum"}]}`), 0o600))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, Max, loaded.Policy("peak_memory"))
	assert.Equal(t, Replace, loaded.Policy(NewDevices))
}

func TestRegistryFileErrors(t *testing.T) {
	r, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, len(defaultPolicies), r.Len())

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"metrics":[{"type":"x","combine":"avg"}]}`), 0o600))
	_, err = LoadFromFile(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o600))
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestFoldGapFill(t *testing.T) {
	buckets, err := Buckets(ts("2026-01-01T00:00:00Z"), ts("2026-01-03T00:00:00Z"), Daily, 10)
	require.NoError(t, err)

	samples := []Sample{
		{PeriodStart: ts("2026-01-02T09:00:00Z"), Value: 2},
		{PeriodStart: ts("2026-01-02T17:00:00Z"), Value: 3},
		{PeriodStart: ts("2026-01-09T00:00:00Z"), Value: 100},
	}
	points := Fold(buckets, Daily, samples, Sum)

	require.Len(t, points, 3)
	assert.Equal(t, 0.0, points[0].Value)
	assert.Equal(t, 5.0, points[1].Value)
	assert.Equal(t, 0.0, points[2].Value)
}

func TestFoldReplaceKeepsLatest(t *testing.T) {
	buckets := []time.Time{ts("2026-01-01T00:00:00Z")}
	samples := []Sample{
		{PeriodStart: ts("2026-01-01T20:00:00Z"), Value: 9},
		{PeriodStart: ts("2026-01-01T02:00:00Z"), Value: 4},
	}
	points := Fold(buckets, Daily, samples, Replace)
	assert.Equal(t, 9.0, points[0].Value)

	points = Fold(buckets, Daily, samples, Max)
	assert.Equal(t, 9.0, points[0].Value)
}
