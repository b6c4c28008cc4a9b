package optimizer

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sablesearch/sable-search/internal/search/result"
)

// Interaction outcomes.
const (
	ActionClicked = "clicked"
	ActionIgnored = "ignored"
	ActionRefined = "refined"
)

// Personalization tuning constants.
const (
	termReinforcement = 0.1
	sessionDecay      = 0.9
	minTermWeight     = 0.01
	sessionGap        = 30 * time.Minute
)

// Interaction is one observed user action on a served result set.
type Interaction struct {
	UserID string `json:"user_id"`
	DocID  string `json:"doc_id,omitempty"`
	Action string `json:"action"`
}

// feedbackEvent is one recorded feedback submission.
type feedbackEvent struct {
	Query        string
	Interactions []Interaction
	At           time.Time
}

// feedbackBuffer is a bounded ring of recent feedback events.
type feedbackBuffer struct {
	mu     sync.Mutex
	events []feedbackEvent
	next   int
	filled bool
}

func newFeedbackBuffer(size int) *feedbackBuffer {
	if size <= 0 {
		size = 1000
	}
	return &feedbackBuffer{events: make([]feedbackEvent, size)}
}

func (b *feedbackBuffer) add(e feedbackEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[b.next] = e
	b.next = (b.next + 1) % len(b.events)
	if b.next == 0 {
		b.filled = true
	}
}

func (b *feedbackBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.filled {
		return len(b.events)
	}
	return b.next
}

// ProvideFeedback records interaction outcomes and updates the
// affected user profiles: clicked results reinforce their query
// terms, and a session gap decays old weights first.
func (o *Optimizer) ProvideFeedback(ctx context.Context, query string, results []result.Optimized, interactions []Interaction) error {
	now := time.Now()
	o.feedback.add(feedbackEvent{Query: query, Interactions: interactions, At: now})

	// Without a profile store there is nothing to update.
	if o.profiles == nil {
		return nil
	}

	byDoc := make(map[string]*result.Optimized, len(results))
	for i := range results {
		byDoc[results[i].ID] = &results[i]
	}
	terms := strings.Fields(strings.ToLower(query))

	for _, in := range interactions {
		if in.Action != ActionClicked || in.UserID == "" {
			continue
		}
		profile, err := o.profiles.Get(ctx, in.UserID)
		if err != nil {
			return err
		}
		if profile == nil {
			profile = newProfile(in.UserID)
		}

		profile.decayForInactivity(now)
		profile.recordClick(in.DocID, clickTerms(terms, byDoc[in.DocID]), now)

		if err := o.profiles.Put(ctx, profile); err != nil {
			return err
		}
	}
	return nil
}

// clickTerms are the query terms that actually appear in the clicked
// result, falling back to the full query.
func clickTerms(queryTerms []string, r *result.Optimized) []string {
	if r == nil {
		return queryTerms
	}
	text := strings.ToLower(r.Title + " " + r.Content)
	var out []string
	for _, t := range queryTerms {
		if strings.Contains(text, t) {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return queryTerms
	}
	return out
}

// FeedbackCount reports how many feedback events are buffered, for
// diagnostics.
func (o *Optimizer) FeedbackCount() int {
	return o.feedback.len()
}
