package pvs

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakePVS emulates both protocol generations of the gateway.
type fakePVS struct {
	t *testing.T

	mu sync.Mutex

	build      any
	serial     string
	swver      string
	infoStatus int // non-zero replaces the supervisor/info answer

	suffix      string // accepted login suffix
	loginStatus int    // non-zero forces a login failure
	tokenSeq    int
	token       string
	rejectVars  int // upcoming /vars requests answered with 401
	varsStatus  int // non-zero answers every /vars request with this status
	dropCaches  bool

	vars   map[string]any
	caches map[string]string // cache id -> match pattern

	deviceList []map[string]any
	essStatus  map[string]any // nil answers 404

	// intercept, when set, answers a request before the fake does.
	intercept func(w http.ResponseWriter, r *http.Request) bool

	delay       atomic.Int64 // per-request latency in nanoseconds
	active      atomic.Int32
	maxActive   atomic.Int32
	paths       []string
	authCalls   int
	varsCalls   int
	legacyCalls int
	varsQueries []string // raw queries
}

func newFakePVS(t *testing.T) (*fakePVS, *httptest.Server) {
	t.Helper()
	f := &fakePVS{
		t:      t,
		build:  61845,
		serial: "ZT01234567890A1B2C",
		swver:  "2025.06, Build 61845",
		suffix: "A1B2C",
		vars:   map[string]any{},
		caches: map[string]string{},
	}
	srv := httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakePVS) handle(w http.ResponseWriter, r *http.Request) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		peak := f.maxActive.Load()
		if n <= peak || f.maxActive.CompareAndSwap(peak, n) {
			break
		}
	}
	if d := f.delay.Load(); d > 0 {
		time.Sleep(time.Duration(d))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, r.URL.Path)
	if f.intercept != nil && f.intercept(w, r) {
		return
	}

	switch r.URL.Path {
	case pathSupervisorInfo:
		f.legacyCalls++
		if f.infoStatus != 0 {
			w.WriteHeader(f.infoStatus)
			return
		}
		writeJSON(w, map[string]any{"supervisor": map[string]any{
			"SERIAL": f.serial,
			"BUILD":  f.build,
			"SWVER":  f.swver,
		}})
	case "/cgi-bin/dl_cgi":
		f.legacyCalls++
		if r.URL.Query().Get("Command") != "DeviceList" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{"devices": f.deviceList})
	case pathESSStatus:
		f.legacyCalls++
		if f.essStatus == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, f.essStatus)
	case "/auth":
		f.authCalls++
		f.login(w, r)
	case pathVars:
		f.varsCalls++
		f.varsQueries = append(f.varsQueries, r.URL.RawQuery)
		f.serveVars(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakePVS) login(w http.ResponseWriter, r *http.Request) {
	if _, ok := r.URL.Query()["login"]; !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if f.loginStatus != 0 {
		w.WriteHeader(f.loginStatus)
		return
	}
	want := "basic " + base64.StdEncoding.EncodeToString([]byte("ssm_owner:"+f.suffix))
	if r.Header.Get("Authorization") != want {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	f.tokenSeq++
	f.token = "tok-" + strconv.Itoa(f.tokenSeq)
	writeJSON(w, map[string]any{"session": f.token})
}

func (f *fakePVS) serveVars(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie("session")
	if err != nil || f.token == "" || c.Value != f.token {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if f.rejectVars > 0 {
		f.rejectVars--
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if f.varsStatus != 0 {
		w.WriteHeader(f.varsStatus)
		return
	}
	if f.dropCaches {
		f.caches = map[string]string{}
		f.dropCaches = false
	}

	q := r.URL.Query()
	match, cache := q.Get("match"), q.Get("cache")
	switch {
	case match != "":
		if cache != "" {
			f.caches[cache] = match
		}
	case cache != "":
		p, ok := f.caches[cache]
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		match = p
	default:
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	out := map[string]any{}
	for path, v := range f.vars {
		if strings.Contains(path, match) {
			out[path] = v
		}
	}
	writeJSON(w, out)
}

func (f *fakePVS) set(fn func(f *fakePVS)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakePVS) counts() (auth, vars, legacy int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authCalls, f.varsCalls, f.legacyCalls
}

func (f *fakePVS) requestPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

func (f *fakePVS) queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.varsQueries...)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func fastRetry() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

// twoMeterVars is a PV-only local-API system with a production and a consumption meter.
func twoMeterVars() map[string]any {
	return map[string]any{
		"/sys/info/serialnum": "ZT01234567890A1B2C",
		"/sys/info/model":     "PV-only",
		"/sys/info/sw_rev":    "2025.06",

		"/sys/devices/meter/0/sn":               "PVS6M0400p",
		"/sys/devices/meter/0/prodMdlNm":        "PVS6M0400p",
		"/sys/devices/meter/0/netLtea3phsumKwh": 1234.5,
		"/sys/devices/meter/0/p3phsumKw":        3.2,
		"/sys/devices/meter/0/freqHz":           60.0,
		"/sys/devices/meter/0/ctSclFctr":        100,

		"/sys/devices/meter/1/sn":               "PVS6M0400c",
		"/sys/devices/meter/1/prodMdlNm":        "PVS6M0400c",
		"/sys/devices/meter/1/netLtea3phsumKwh": 222.0,
		"/sys/devices/meter/1/p3phsumKw":        -1.1,
		"/sys/devices/meter/1/i1A":              4.5,
		"/sys/devices/meter/1/i2A":              4.1,

		"/sys/devices/inverter/0/sn":            "E00122200000001",
		"/sys/devices/inverter/0/prodMdlNm":     "AC_Module_Type_H",
		"/sys/devices/inverter/0/ltea3phsumKwh": 100.5,
		"/sys/devices/inverter/0/pMppt1Kw":      0.25,
		"/sys/devices/inverter/0/freqHz":        60.0,
		"/sys/devices/inverter/0/vln3phavgV":    240.0,

		"/sys/devices/inverter/1/sn":            "E00122200000002",
		"/sys/devices/inverter/1/prodMdlNm":     "AC_Module_Type_H",
		"/sys/devices/inverter/1/ltea3phsumKwh": 99.5,
		"/sys/devices/inverter/1/pMppt1Kw":      0.21,
		"/sys/devices/inverter/1/freqHz":        59.8,
		"/sys/devices/inverter/1/vln3phavgV":    242.0,
	}
}
