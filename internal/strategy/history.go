package strategy

import (
	"sync"

	"github.com/sablesearch/sable-search/internal/analyzer"
)

// personalizeThreshold is how many successful uses of a strategy for an
// intent it takes before history overrides the selection table.
const personalizeThreshold = 3

type historyKey struct {
	userID string
	intent analyzer.Intent
}

// outcomeHistory counts successful strategy uses per (user, intent).
type outcomeHistory struct {
	mu     sync.RWMutex
	counts map[historyKey]map[Strategy]int
}

func newOutcomeHistory() *outcomeHistory {
	return &outcomeHistory{counts: make(map[historyKey]map[Strategy]int)}
}

func (h *outcomeHistory) record(o Outcome) {
	if o.UserID == "" || !o.Success {
		return
	}
	key := historyKey{o.UserID, o.Intent}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.counts[key] == nil {
		h.counts[key] = make(map[Strategy]int)
	}
	h.counts[key][o.Strategy]++
}

// preferred returns the strategy with the most successes for the
// (user, intent) pair, if any reached the threshold. Ties break on
// strategy name for determinism.
func (h *outcomeHistory) preferred(userID string, intent analyzer.Intent) (Strategy, bool) {
	if userID == "" {
		return "", false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	var best Strategy
	bestCount := 0
	for s, n := range h.counts[historyKey{userID, intent}] {
		if n > bestCount || (n == bestCount && s < best) {
			best, bestCount = s, n
		}
	}
	if bestCount < personalizeThreshold {
		return "", false
	}
	return best, true
}
