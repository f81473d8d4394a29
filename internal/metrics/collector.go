// Package metrics keeps in-memory runtime statistics for the chat pipeline.
package metrics

import (
	"sync"
	"time"
)

// Operation names for the collector.
const (
	OpEmbedding   = "embedding"
	OpLLMComplete = "llm_complete"
	OpSummarize   = "summarize"
	OpFAQSearch   = "faq_search"
	OpStoreAppend = "store_append"
	OpStoreRecent = "store_recent"
)

// Counter names for the collector.
const (
	CounterEscalation = "escalation"
	CounterDegraded   = "degraded_reply"
)

// OperationSnapshot summarizes the calls of one operation.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`

	// Tokens is set for model calls that reported usage.
	Tokens *TokenSnapshot `json:"tokens,omitempty"`
}

// TokenSnapshot is the token usage of a model operation.
type TokenSnapshot struct {
	Input     int64   `json:"input"`
	Output    int64   `json:"output"`
	AvgInput  float64 `json:"avg_input"`
	AvgOutput float64 `json:"avg_output"`
}

// Snapshot is what GET /stats returns.
type Snapshot struct {
	UptimeSeconds float64            `json:"uptime_seconds"`
	Embedding     *OperationSnapshot `json:"embedding,omitempty"`
	LLMComplete   *OperationSnapshot `json:"llm_complete,omitempty"`
	Summarize     *OperationSnapshot `json:"summarize,omitempty"`
	FAQSearch     *OperationSnapshot `json:"faq_search,omitempty"`
	StoreAppend   *OperationSnapshot `json:"store_append,omitempty"`
	StoreRecent   *OperationSnapshot `json:"store_recent,omitempty"`
	Escalations   int64              `json:"escalations"`
	Degraded      int64              `json:"degraded_replies"`
}

type opStats struct {
	count         int64
	total         time.Duration
	min, max      time.Duration
	input, output int64
}

func (s *opStats) observe(d time.Duration) {
	if s.count == 0 || d < s.min {
		s.min = d
	}
	if d > s.max {
		s.max = d
	}
	s.count++
	s.total += d
}

func (s *opStats) snapshot() *OperationSnapshot {
	if s == nil || s.count == 0 {
		return nil
	}
	snap := &OperationSnapshot{
		Count:       s.count,
		TotalTimeMs: s.total.Milliseconds(),
		AvgTimeMs:   float64(s.total.Milliseconds()) / float64(s.count),
		MinTimeMs:   s.min.Milliseconds(),
		MaxTimeMs:   s.max.Milliseconds(),
	}
	if s.input > 0 || s.output > 0 {
		snap.Tokens = &TokenSnapshot{
			Input:     s.input,
			Output:    s.output,
			AvgInput:  float64(s.input) / float64(s.count),
			AvgOutput: float64(s.output) / float64(s.count),
		}
	}
	return snap
}

// Collector aggregates runtime statistics. All methods are goroutine-safe,
// and a nil Collector discards everything.
type Collector struct {
	mu        sync.Mutex
	startTime time.Time
	ops       map[string]*opStats
	counters  map[string]int64
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*opStats),
		counters:  make(map[string]int64),
	}
}

// op returns the stats for name, creating them. Caller holds mu.
func (c *Collector) op(name string) *opStats {
	s, ok := c.ops[name]
	if !ok {
		s = &opStats{}
		c.ops[name] = s
	}
	return s
}

// RecordTiming records one call of op.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.op(op).observe(duration)
	c.mu.Unlock()
}

// RecordLLMUsage records one model call of op with its token usage.
func (c *Collector) RecordLLMUsage(op string, duration time.Duration, inputTokens, outputTokens int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	s := c.op(op)
	s.observe(duration)
	s.input += inputTokens
	s.output += outputTokens
	c.mu.Unlock()
}

// Increment bumps a named event counter.
func (c *Collector) Increment(name string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.counters[name]++
	c.mu.Unlock()
}

// Snapshot returns a point-in-time copy of all statistics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Embedding:     c.ops[OpEmbedding].snapshot(),
		LLMComplete:   c.ops[OpLLMComplete].snapshot(),
		Summarize:     c.ops[OpSummarize].snapshot(),
		FAQSearch:     c.ops[OpFAQSearch].snapshot(),
		StoreAppend:   c.ops[OpStoreAppend].snapshot(),
		StoreRecent:   c.ops[OpStoreRecent].snapshot(),
		Escalations:   c.counters[CounterEscalation],
		Degraded:      c.counters[CounterDegraded],
	}
}
