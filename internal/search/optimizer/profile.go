package optimizer

import (
	"context"
	"sync"
	"time"
)

// Click is one recorded click on a result.
type Click struct {
	DocID string    `json:"doc_id"`
	Terms []string  `json:"terms,omitempty"`
	At    time.Time `json:"at"`
}

// Profile is one user's accumulated interaction state.
type Profile struct {
	UserID       string             `json:"user_id"`
	TermWeights  map[string]float64 `json:"term_weights,omitempty"`
	Clicks       []Click            `json:"clicks,omitempty"`
	SessionCount int                `json:"session_count"`
	LastActivity time.Time          `json:"last_activity"`
}

// maxProfileClicks bounds the click history kept per profile.
const maxProfileClicks = 100

// newProfile creates an empty profile for a user.
func newProfile(userID string) *Profile {
	return &Profile{
		UserID:      userID,
		TermWeights: make(map[string]float64),
	}
}

// recordClick reinforces the clicked terms and appends to the bounded
// click history.
func (p *Profile) recordClick(docID string, terms []string, now time.Time) {
	for _, t := range terms {
		w := p.TermWeights[t] + termReinforcement
		if w > 1.0 {
			w = 1.0
		}
		p.TermWeights[t] = w
	}
	p.Clicks = append(p.Clicks, Click{DocID: docID, Terms: terms, At: now})
	if len(p.Clicks) > maxProfileClicks {
		p.Clicks = p.Clicks[len(p.Clicks)-maxProfileClicks:]
	}
}

// decayForInactivity ages term weights when a new session starts after
// a gap of inactivity.
func (p *Profile) decayForInactivity(now time.Time) {
	if p.LastActivity.IsZero() {
		p.SessionCount = 1
		p.LastActivity = now
		return
	}
	if now.Sub(p.LastActivity) > sessionGap {
		p.SessionCount++
		for t, w := range p.TermWeights {
			decayed := w * sessionDecay
			if decayed < minTermWeight {
				delete(p.TermWeights, t)
			} else {
				p.TermWeights[t] = decayed
			}
		}
	}
	p.LastActivity = now
}

// ProfileStore persists user profiles.
type ProfileStore interface {
	// Get loads a user's profile, or nil when none exists.
	Get(ctx context.Context, userID string) (*Profile, error)

	// Put saves a profile.
	Put(ctx context.Context, profile *Profile) error
}

// MemoryProfileStore keeps profiles in process memory.
type MemoryProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

// NewMemoryProfileStore creates an in-memory profile store.
func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{profiles: make(map[string]*Profile)}
}

func (s *MemoryProfileStore) Get(ctx context.Context, userID string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	clone := *p
	clone.TermWeights = make(map[string]float64, len(p.TermWeights))
	for t, w := range p.TermWeights {
		clone.TermWeights[t] = w
	}
	clone.Clicks = append([]Click(nil), p.Clicks...)
	return &clone, nil
}

func (s *MemoryProfileStore) Put(ctx context.Context, profile *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.UserID] = profile
	return nil
}
