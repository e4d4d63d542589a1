// Package budget tracks accumulated provider spend for a session and
// gates further paid operations once the cap is reached.
package budget

import (
	"errors"
	"sync"

	"github.com/supai/backend/internal/provider"
)

// ErrBudgetExceeded is returned before any provider call is made once the
// session cap is reached. Recoverable only by starting a new session.
var ErrBudgetExceeded = errors.New("session budget exceeded")

// Rates converts provider-reported token usage into currency units.
type Rates struct {
	EmbeddingPerToken        float64
	CompletionInputPerToken  float64
	CompletionOutputPerToken float64
}

func (r Rates) EmbeddingCost(usage provider.TokenUsage) float64 {
	return float64(usage.TotalTokens) * r.EmbeddingPerToken
}

func (r Rates) CompletionCost(usage provider.TokenUsage) float64 {
	return float64(usage.PromptTokens)*r.CompletionInputPerToken +
		float64(usage.CompletionTokens)*r.CompletionOutputPerToken
}

// Ledger is a monotonically non-decreasing cost accumulator with a fixed
// cap. Safe for concurrent use.
type Ledger struct {
	mu    sync.Mutex
	total float64
	cap   float64
}

func NewLedger(cap float64) *Ledger {
	return &Ledger{cap: cap}
}

// Charge adds amount to the accumulated total and returns the new total.
// Negative amounts are ignored; the ledger never decreases.
func (l *Ledger) Charge(amount float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if amount > 0 {
		l.total += amount
	}
	return l.total
}

func (l *Ledger) Total() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

func (l *Ledger) Cap() float64 {
	return l.cap
}

func (l *Ledger) Exceeded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total >= l.cap
}
