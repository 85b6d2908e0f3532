package stats

import (
	"encoding/json"
	"expvar"
	"net/http"
	"sync"
	"time"
)

type StatsProvider interface {
	Incr(name string)
	Decr(name string)
	RegisterMetric(name string)
	Run()
}

// StatsUpdater keeps the server's counters. Updates are applied by a single
// goroutine started with Run. Updates sent after Stop are dropped.
type StatsUpdater struct {
	vars       *expvar.Map
	updateChan chan *metricsUpdateReq
	mu         sync.RWMutex
	stopped    bool
	stopOnce   sync.Once
	done       chan struct{}
}

type metricsUpdateReq struct {
	name  string
	value int
}

// NewStatsUpdater creates a new stats updater and serves its counters on mux
// at GET /debug/vars.
func NewStatsUpdater(mux *http.ServeMux) *StatsUpdater {
	su := &StatsUpdater{
		vars:       new(expvar.Map).Init(),
		updateChan: make(chan *metricsUpdateReq, 512),
		done:       make(chan struct{}),
	}
	mux.Handle("GET /debug/vars", http.HandlerFunc(su.expvarHandler))
	su.initializeMetrics()

	return su
}

func (su *StatsUpdater) expvarHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(su.Snapshot())
}

func (su *StatsUpdater) initializeMetrics() {
	startTime := time.Now()
	su.vars.Set("Uptime", expvar.Func(func() any {
		return time.Since(startTime).Milliseconds()
	}))
}

// Snapshot returns the current value of every metric.
func (su *StatsUpdater) Snapshot() map[string]any {
	data := make(map[string]any)
	su.vars.Do(func(kv expvar.KeyValue) {
		var value any
		json.Unmarshal([]byte(kv.Value.String()), &value)
		data[kv.Key] = value
	})

	return data
}

func (su *StatsUpdater) updateMetrics() {
	defer close(su.done)
	for req := range su.updateChan {
		metric, ok := su.vars.Get(req.name).(*expvar.Int)
		if !ok {
			panic("metric not found: " + req.name)
		}

		metric.Add(int64(req.value))
	}
}

func (su *StatsUpdater) Incr(name string) {
	su.update(name, 1)
}

func (su *StatsUpdater) Decr(name string) {
	su.update(name, -1)
}

func (su *StatsUpdater) update(name string, value int) {
	su.mu.RLock()
	defer su.mu.RUnlock()

	if su.stopped {
		return
	}
	su.updateChan <- &metricsUpdateReq{name: name, value: value}
}

func (su *StatsUpdater) RegisterMetric(name string) {
	su.vars.Set(name, new(expvar.Int))
}

func (su *StatsUpdater) Run() {
	go su.updateMetrics()
}

// Stop drains pending updates and stops the updater.
func (su *StatsUpdater) Stop() {
	su.stopOnce.Do(func() {
		su.mu.Lock()
		su.stopped = true
		close(su.updateChan)
		su.mu.Unlock()

		<-su.done
	})
}
