// Package optimizer applies model re-ranking, diversification and
// personalization on top of base-processed results.
package optimizer

import (
	"context"
	"math"
	"time"

	"github.com/sablesearch/sable-search/internal/config"
	"github.com/sablesearch/sable-search/internal/pkg/logger"
	"github.com/sablesearch/sable-search/internal/search/result"
)

// ModelFunc scores a feature vector. The default is a deterministic
// placeholder; a trained model can be plugged in without touching the
// pipeline.
type ModelFunc func(FeatureVector) float64

// Options configure one optimization run.
type Options struct {
	// Query drives term-overlap features and personalization.
	Query string

	// UserID enables personalization when set.
	UserID string

	// Algorithm overrides the configured diversification algorithm.
	Algorithm string
}

// Optimizer is the advanced ranking stage.
type Optimizer struct {
	cfg      config.OptimizerConfig
	model    ModelFunc
	profiles ProfileStore
	feedback *feedbackBuffer
	log      *logger.Logger
}

// New creates an optimizer. A nil model uses the built-in placeholder
// scorer; a nil store disables personalization.
func New(cfg config.OptimizerConfig, model ModelFunc, profiles ProfileStore, log *logger.Logger) *Optimizer {
	if model == nil {
		model = defaultModel
	}
	return &Optimizer{
		cfg:      cfg,
		model:    model,
		profiles: profiles,
		feedback: newFeedbackBuffer(cfg.FeedbackBuffer),
		log:      log.WithComponent("optimizer"),
	}
}

// Optimize re-ranks, diversifies and personalizes processed results.
// An optimizer-level failure returns the input unoptimized rather
// than failing the search.
func (o *Optimizer) Optimize(ctx context.Context, rows []result.Ranked, opts Options) (out []result.Optimized) {
	base := convert(rows)
	if len(base) == 0 {
		return base
	}

	defer func() {
		if r := recover(); r != nil {
			o.log.Error("optimization failed, returning base ranking", "panic", r)
			out = convert(rows)
		}
	}()

	out = convert(rows)
	now := time.Now()
	queryTerms := queryTermSet(opts.Query)

	// Model re-rank: blend the prior score with the model's score.
	features := make([]FeatureVector, len(out))
	modelWeight := o.cfg.ModelWeight
	if modelWeight < 0 || modelWeight > 1 {
		modelWeight = 0.3
	}
	for i := range out {
		features[i] = extractFeatures(&out[i].Ranked, queryTerms, now)
		out[i].ModelScore = o.model(features[i])
		out[i].FinalScore = (1.0-modelWeight)*out[i].FinalScore + modelWeight*out[i].ModelScore
	}

	if o.cfg.Personalization && opts.UserID != "" && o.profiles != nil {
		o.personalize(ctx, out, opts.UserID, queryTerms, now)
	}

	sortByScore(out)

	algorithm := opts.Algorithm
	if algorithm == "" {
		algorithm = o.cfg.Diversification
	}
	out = diversify(algorithm, out, features, o.cfg.DiversityAlpha)

	for i := range out {
		out[i].Rank = i + 1
		out[i].RankDelta = out[i].OriginalRank - out[i].Rank
	}
	return out
}

// personalize applies each result's profile boost. A store failure
// degrades to unpersonalized scores.
func (o *Optimizer) personalize(ctx context.Context, rows []result.Optimized, userID string, queryTerms map[string]bool, now time.Time) {
	profile, err := o.profiles.Get(ctx, userID)
	if err != nil {
		o.log.Warn("profile load failed, skipping personalization", "user_id", userID, "error", err.Error())
		return
	}
	if profile == nil {
		return
	}

	for i := range rows {
		boost := profileBoost(profile, &rows[i], now)
		rows[i].PersonalizationBoost = boost
		rows[i].FinalScore *= 1.0 + boost
	}
}

// profileBoost combines click-history, session, term-profile and
// time-decay signals into a boost bounded to [0, 1].
func profileBoost(p *Profile, r *result.Optimized, now time.Time) float64 {
	tokens := resultTokens(r)

	var termScore float64
	matched := 0
	for t, w := range p.TermWeights {
		if tokens[t] {
			termScore += w
			matched++
		}
	}
	if matched > 0 {
		termScore /= float64(matched)
	}

	clickScore := 0.0
	for _, c := range p.Clicks {
		if c.DocID == r.ID {
			clickScore = 1.0
			break
		}
	}

	// Session and recency signals only amplify an actual affinity;
	// they never boost a result the profile knows nothing about.
	if matched == 0 && clickScore == 0 {
		return 0
	}

	sessionScore := math.Min(float64(p.SessionCount)/10.0, 1.0)

	decay := 0.0
	if !p.LastActivity.IsZero() && !p.LastActivity.After(now) {
		idle := now.Sub(p.LastActivity)
		decay = math.Exp2(-float64(idle) / float64(7*24*time.Hour))
	}

	boost := 0.4*termScore + 0.3*clickScore + 0.2*sessionScore + 0.1*decay
	return math.Max(0, math.Min(boost, 1.0))
}

func convert(rows []result.Ranked) []result.Optimized {
	out := make([]result.Optimized, len(rows))
	for i, r := range rows {
		out[i] = result.Optimized{
			Ranked:       r,
			OriginalRank: r.Rank,
		}
	}
	return out
}
