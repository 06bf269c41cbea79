package pvs

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVarStore(t *testing.T) (*fakePVS, *VarStore) {
	t.Helper()
	f, srv := newFakePVS(t)
	tr := NewTransport(srv.URL, time.Second, nil)
	s := NewSession(tr, "A1B2C", 0, nil)
	return f, NewVarStore(tr, s, nil)
}

func TestVarStore_QueryEstablishesAndReusesCache(t *testing.T) {
	f, v := newTestVarStore(t)
	f.set(func(f *fakePVS) {
		f.vars = map[string]any{"/sys/devices/meter/0/p3phsumKw": 1.5}
	})
	ctx := context.Background()

	first, err := v.Query(ctx, "meter")
	require.NoError(t, err)
	assert.Equal(t, 1.5, first["/sys/devices/meter/0/p3phsumKw"])
	id1, ok := v.Cached("meter")
	require.True(t, ok)

	f.set(func(f *fakePVS) {
		f.vars["/sys/devices/meter/0/p3phsumKw"] = 2.75
	})

	second, err := v.Query(ctx, "meter")
	require.NoError(t, err)
	assert.Equal(t, 2.75, second["/sys/devices/meter/0/p3phsumKw"], "values are live")
	id2, _ := v.Cached("meter")
	assert.Equal(t, id1, id2)

	qs := f.queries()
	require.Len(t, qs, 2)
	firstQ, _ := url.ParseQuery(qs[0])
	secondQ, _ := url.ParseQuery(qs[1])
	assert.Equal(t, "meter", firstQ.Get("match"))
	assert.Equal(t, id1, firstQ.Get("cache"))
	assert.Equal(t, "obj", firstQ.Get("fmt"))
	assert.Empty(t, secondQ.Get("match"))
	assert.Equal(t, id1, secondQ.Get("cache"))
}

func TestVarStore_ReestablishesDroppedCache(t *testing.T) {
	f, v := newTestVarStore(t)
	f.set(func(f *fakePVS) {
		f.vars = map[string]any{"/sys/info/model": "PVS6"}
	})
	ctx := context.Background()

	_, err := v.Query(ctx, "info")
	require.NoError(t, err)

	f.set(func(f *fakePVS) { f.dropCaches = true })
	values, err := v.Query(ctx, "info")
	require.NoError(t, err)
	assert.Equal(t, "PVS6", values["/sys/info/model"])

	_, vars, _ := f.counts()
	assert.Equal(t, 3, vars, "cache hit failed once, then match re-established it")
}

func TestVarStore_MalformedQueryNotRetryable(t *testing.T) {
	f, v := newTestVarStore(t)
	f.set(func(f *fakePVS) { f.varsStatus = http.StatusBadRequest })

	_, err := v.Query(context.Background(), "meter")

	require.ErrorIs(t, err, ErrMalformedQuery)
	assert.False(t, IsTransient(err))
	_, ok := v.Cached("meter")
	assert.False(t, ok)
}

func TestVarStore_ServerErrorIsTransient(t *testing.T) {
	f, v := newTestVarStore(t)
	f.set(func(f *fakePVS) { f.varsStatus = http.StatusServiceUnavailable })

	_, err := v.Query(context.Background(), "meter")

	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestVarStore_EmptyPattern(t *testing.T) {
	_, v := newTestVarStore(t)
	_, err := v.Query(context.Background(), " ")
	assert.ErrorIs(t, err, ErrMalformedQuery)
}

func TestCacheID(t *testing.T) {
	assert.Equal(t, "pvsmon_meter", CacheID("meter"))
	assert.Equal(t, "pvsmon__sys_info", CacheID("/sys/info"))
	assert.Equal(t, CacheID("inverter"), CacheID("inverter"))
}

func TestGroupByIndex(t *testing.T) {
	values := map[string]any{
		"/sys/devices/inverter/10/sn":      "INV10",
		"/sys/devices/inverter/2/sn":       "INV2",
		"/sys/devices/inverter/2/freqHz":   60.0,
		"/sys/devices/inverter/0/sn":       "INV0",
		"/sys/devices/meter/0/sn":          "M0",
		"/sys/devices/inverter/3":          "no field",
		"/sys/devices/inverter/4/nested/x": 1,
		"/sys/info/model":                  "PVS6",
	}

	groups := GroupByIndex(values, "inverter")

	require.Len(t, groups, 3)
	assert.Equal(t, "0", groups[0].Index)
	assert.Equal(t, "2", groups[1].Index)
	assert.Equal(t, "10", groups[2].Index)
	assert.Equal(t, map[string]any{"sn": "INV2", "freqHz": 60.0}, groups[1].Fields)
}

func TestGroupByIndex_NoMatches(t *testing.T) {
	assert.Nil(t, GroupByIndex(map[string]any{"/sys/info/model": "PVS6"}, "bms"))
	assert.Nil(t, GroupByIndex(nil, "ess"))
}
