package metrics

import (
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// PullRecord summarizes one reconciliation for the recent list.
type PullRecord struct {
	WalletID string    `json:"wallet_id"`
	At       time.Time `json:"at"`
	Answered int       `json:"answered"`
	Failed   int       `json:"failed"`
	Copies   int       `json:"copies"`
	Txns     int       `json:"txns"`
	Error    string    `json:"error,omitempty"`
}

type Snapshot struct {
	GeneratedAt  time.Time         `json:"generated_at"`
	Pull         PullMetrics       `json:"pull"`
	Push         PushMetrics       `json:"push"`
	Server       ServerMetrics     `json:"server"`
	DropByReason map[string]uint64 `json:"drop_by_reason"`
	Recent       []PullRecord      `json:"recent"`
}

type PullMetrics struct {
	Answered   uint64 `json:"answered"`
	Failed     uint64 `json:"failed"`
	Timeouts   uint64 `json:"timeouts"`
	Empty      uint64 `json:"empty"`
	Copies     uint64 `json:"copies"`
	MergedTxns uint64 `json:"merged_txns"`
}

type PushMetrics struct {
	OK     uint64 `json:"ok"`
	Failed uint64 `json:"failed"`
}

type ServerMetrics struct {
	Requests    uint64            `json:"requests"`
	ByType      map[string]uint64 `json:"by_type"`
	CurrentConn int64             `json:"current_conns"`
}

type Metrics struct {
	pullAnswered atomic.Uint64
	pullFailed   atomic.Uint64
	pullTimeouts atomic.Uint64
	pullEmpty    atomic.Uint64
	copies       atomic.Uint64
	mergedTxns   atomic.Uint64
	pushOK       atomic.Uint64
	pushFailed   atomic.Uint64
	requests     atomic.Uint64
	conns        atomic.Int64

	byType   counterMap
	byReason counterMap
	recent   *Recent
}

func New() *Metrics {
	return &Metrics{recent: NewRecent(64)}
}

func (m *Metrics) Recent() *Recent {
	return m.recent
}

func (m *Metrics) IncPullAnswered() {
	m.pullAnswered.Add(1)
}

func (m *Metrics) IncPullFailed() {
	m.pullFailed.Add(1)
}

func (m *Metrics) IncPullTimeout() {
	m.pullTimeouts.Add(1)
}

func (m *Metrics) IncPullEmpty() {
	m.pullEmpty.Add(1)
}

func (m *Metrics) AddCopies(n int) {
	m.copies.Add(uint64(n))
}

func (m *Metrics) AddMerged(n int) {
	m.mergedTxns.Add(uint64(n))
}

func (m *Metrics) IncPushOK() {
	m.pushOK.Add(1)
}

func (m *Metrics) IncPushFailed() {
	m.pushFailed.Add(1)
}

func (m *Metrics) AddConns(delta int64) {
	m.conns.Add(delta)
}

func (m *Metrics) IncRequest(kind string) {
	m.requests.Add(1)
	m.byType.inc(kind)
}

func (m *Metrics) IncDrop(reason string) {
	m.byReason.inc(reason)
}

func (m *Metrics) Snapshot() Snapshot {
	recent := []PullRecord{}
	if m.recent != nil {
		recent = m.recent.List()
	}
	return Snapshot{
		GeneratedAt: time.Now().UTC(),
		Pull: PullMetrics{
			Answered:   m.pullAnswered.Load(),
			Failed:     m.pullFailed.Load(),
			Timeouts:   m.pullTimeouts.Load(),
			Empty:      m.pullEmpty.Load(),
			Copies:     m.copies.Load(),
			MergedTxns: m.mergedTxns.Load(),
		},
		Push: PushMetrics{
			OK:     m.pushOK.Load(),
			Failed: m.pushFailed.Load(),
		},
		Server: ServerMetrics{
			Requests:    m.requests.Load(),
			ByType:      m.byType.snapshot(),
			CurrentConn: m.conns.Load(),
		},
		DropByReason: m.byReason.snapshot(),
		Recent:       recent,
	}
}

func (m *Metrics) WriteSnapshot(path string) error {
	if path == "" {
		return nil
	}
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

type counterMap struct {
	mu sync.Mutex
	m  map[string]uint64
}

func (c *counterMap) inc(key string) {
	if key == "" {
		key = "unknown"
	}
	c.mu.Lock()
	if c.m == nil {
		c.m = make(map[string]uint64)
	}
	c.m[key]++
	c.mu.Unlock()
}

func (c *counterMap) snapshot() map[string]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]uint64, len(c.m))
	for k, v := range c.m {
		out[k] = v
	}
	return out
}

// Recent is a bounded ring of the latest pulls.
type Recent struct {
	mu   sync.Mutex
	cap  int
	list []PullRecord
}

func NewRecent(capacity int) *Recent {
	if capacity <= 0 {
		capacity = 64
	}
	return &Recent{cap: capacity}
}

func (r *Recent) Add(rec PullRecord) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.list) >= r.cap {
		copy(r.list, r.list[1:])
		r.list[len(r.list)-1] = rec
		return
	}
	r.list = append(r.list, rec)
}

func (r *Recent) List() []PullRecord {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PullRecord, len(r.list))
	copy(out, r.list)
	return out
}
