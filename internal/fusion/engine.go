package fusion

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"go-card-matcher/internal/config"
	"go-card-matcher/internal/enrich"
	apperrors "go-card-matcher/internal/errors"
	"go-card-matcher/internal/imaging"
	"go-card-matcher/internal/logger"
	"go-card-matcher/internal/matcher"
	"go-card-matcher/internal/region"
)

// Routing outcomes for a fused decision.
const (
	DecisionAutoApproved = "auto_approved"
	DecisionNeedsML      = "needs_ml"
	DecisionRejected     = "rejected"
)

// Decision is the engine's final verdict for one image.
type Decision struct {
	RequestID          string                    `json:"request_id"`
	Matched            bool                      `json:"matched"`
	Confidence         float64                   `json:"confidence"`
	Decision           string                    `json:"decision"`
	Best               *matcher.Candidate        `json:"best,omitempty"`
	CanonicalKey       string                    `json:"canonical_key,omitempty"`
	StrategiesRun      []string                  `json:"strategies_run"`
	StrategyConfidence map[string]float64        `json:"strategy_confidence"`
	Results            map[string]matcher.Result `json:"-"`
	Card               *enrich.CardRecord        `json:"card,omitempty"`
	Price              *enrich.PriceData         `json:"price,omitempty"`
	CacheHit           bool                      `json:"cache_hit"`
	ProcessingTime     time.Duration             `json:"processing_time_ns"`
}

// Engine runs the configured matchers in order, fuses their outputs
// into a single confidence, and routes the result according to the
// operating mode.
type Engine struct {
	cfg      *config.Config
	matchers map[string]matcher.Matcher
	synth    *matcher.Synthesizer
	cache    *DecisionCache
	refDB    enrich.ReferenceDatabase
	prices   enrich.PriceService
	log      *logrus.Entry
}

// NewEngine wires the engine. refDB and prices may be nil; enrichment
// is then skipped entirely.
func NewEngine(cfg *config.Config, matchers []matcher.Matcher, synth *matcher.Synthesizer,
	cache *DecisionCache, refDB enrich.ReferenceDatabase, prices enrich.PriceService) *Engine {
	byName := make(map[string]matcher.Matcher, len(matchers))
	for _, m := range matchers {
		byName[m.Name()] = m
	}
	return &Engine{
		cfg:      cfg,
		matchers: byName,
		synth:    synth,
		cache:    cache,
		refDB:    refDB,
		prices:   prices,
		log:      logger.WithComponent("fusion_engine"),
	}
}

// Match identifies the card in the given image bytes. Matcher-local
// failures degrade to zero-confidence signals; only decode failures and
// fatal configuration errors surface as errors.
func (e *Engine) Match(ctx context.Context, data []byte, hints region.Hints) (Decision, error) {
	start := time.Now()

	fingerprint := FingerprintBytes(data)
	if e.cache != nil {
		if cached, ok := e.cache.Get(fingerprint); ok {
			cached.CacheHit = true
			e.log.WithFields(logrus.Fields{
				"request_id": cached.RequestID,
				"key":        cached.CanonicalKey,
			}).Debug("Decision served from cache")
			return cached, nil
		}
	}

	img, err := imaging.Decode(data)
	if err != nil {
		return Decision{}, err
	}

	decision := Decision{
		RequestID:          uuid.NewString(),
		StrategyConfidence: make(map[string]float64),
		Results:            make(map[string]matcher.Result),
	}
	req := matcher.Request{Img: img, Hints: hints}

	for _, name := range e.cfg.MatcherOrder {
		m, ok := e.matchers[name]
		if !ok {
			continue
		}
		if !m.IsReady() {
			e.log.WithField("matcher", name).Warn("Skipping matcher that is not ready")
			continue
		}

		res := m.Match(ctx, req)
		decision.StrategiesRun = append(decision.StrategiesRun, name)
		decision.StrategyConfidence[name] = res.Confidence
		decision.Results[name] = res

		if name == matcher.MethodHash && res.Confidence >= e.cfg.HashEarlyExit {
			e.log.WithFields(logrus.Fields{
				"request_id": decision.RequestID,
				"confidence": res.Confidence,
			}).Debug("Hash early exit, skipping remaining matchers")
			break
		}
	}

	best, confidence := e.fuse(decision.Results)

	if best == nil || confidence < e.cfg.MinConfidence {
		if composite := e.synth.Synthesize(decision.Results); composite != nil && composite.Confidence > confidence {
			best = composite
			confidence = composite.Confidence
			decision.StrategiesRun = append(decision.StrategiesRun, matcher.MethodSynthesized)
			decision.StrategyConfidence[matcher.MethodSynthesized] = composite.Confidence
		}
	}

	decision.Best = best
	decision.Confidence = matcher.Clamp(confidence)
	if best != nil {
		decision.CanonicalKey = best.CanonicalKey()
	}
	decision.Matched = best != nil && decision.Confidence >= e.cfg.MinConfidence
	decision.Decision = e.route(best, decision.Confidence)

	if best != nil && decision.Confidence >= 0.5 {
		e.enrichDecision(ctx, &decision)
	}

	decision.ProcessingTime = time.Since(start)
	if e.cache != nil {
		e.cache.Add(fingerprint, decision)
	}

	e.log.WithFields(logrus.Fields{
		"request_id": decision.RequestID,
		"decision":   decision.Decision,
		"confidence": decision.Confidence,
		"key":        decision.CanonicalKey,
		"strategies": decision.StrategiesRun,
		"duration":   decision.ProcessingTime,
	}).Info("Match decision")
	return decision, nil
}

// route applies the operating-mode policy to the fused confidence.
// ML mode forwards everything downstream, even images with no local
// signal at all; the floor only gates the local and hybrid modes.
func (e *Engine) route(best *matcher.Candidate, confidence float64) string {
	if e.cfg.Mode == config.ModeML {
		return DecisionNeedsML
	}
	if best == nil || confidence < e.cfg.NeedsMLFloor {
		return DecisionRejected
	}
	if confidence >= e.cfg.MinConfidence {
		return DecisionAutoApproved
	}
	if e.cfg.Mode == config.ModeLocal {
		return DecisionRejected
	}
	return DecisionNeedsML
}

func (e *Engine) fuse(results map[string]matcher.Result) (*matcher.Candidate, float64) {
	switch e.cfg.FusionStrategy {
	case "max":
		return fuseMax(results)
	case "consensus":
		return fuseConsensus(results)
	default:
		return e.fuseWeighted(results)
	}
}

// fuseWeighted computes the weight-normalized mean confidence over the
// strategies that produced a candidate. The fused candidate is the one
// from the single strongest strategy; weights break ties.
func (e *Engine) fuseWeighted(results map[string]matcher.Result) (*matcher.Candidate, float64) {
	type contribution struct {
		weight float64
		res    matcher.Result
	}
	var contribs []contribution
	for name, res := range results {
		if res.Best == nil {
			continue
		}
		w, ok := e.cfg.MethodWeights[name]
		if !ok {
			w = 0.1
		}
		contribs = append(contribs, contribution{weight: w, res: res})
	}
	if len(contribs) == 0 {
		return nil, 0
	}

	sort.Slice(contribs, func(i, j int) bool {
		if contribs[i].res.Confidence != contribs[j].res.Confidence {
			return contribs[i].res.Confidence > contribs[j].res.Confidence
		}
		if contribs[i].weight != contribs[j].weight {
			return contribs[i].weight > contribs[j].weight
		}
		return contribs[i].res.Method < contribs[j].res.Method
	})

	var weightSum, confSum float64
	for _, c := range contribs {
		weightSum += c.weight
		confSum += c.weight * c.res.Confidence
	}
	return contribs[0].res.Best, confSum / weightSum
}

func fuseMax(results map[string]matcher.Result) (*matcher.Candidate, float64) {
	var best *matcher.Candidate
	bestConf := 0.0
	bestMethod := ""
	for name, res := range results {
		if res.Best == nil {
			continue
		}
		if res.Confidence > bestConf || (res.Confidence == bestConf && name < bestMethod) {
			bestConf = res.Confidence
			best = res.Best
			bestMethod = name
		}
	}
	return best, bestConf
}

// fuseConsensus groups candidates by exact (set, number, name)
// identity. The largest agreeing group's mean confidence, scaled down
// by the share of ran strategies outside the group, is the fused score.
// With fewer than two strategies ran, or no group of at least two, it
// degrades to the max rule. Wildcarded partial candidates rarely agree
// exactly, so in practice partial evidence falls through to max.
func fuseConsensus(results map[string]matcher.Result) (*matcher.Candidate, float64) {
	if len(results) < 2 {
		return fuseMax(results)
	}

	type group struct {
		members []matcher.Result
	}
	groups := make(map[[3]string]*group)
	for _, res := range results {
		if res.Best == nil {
			continue
		}
		set, number, name := res.Best.IdentityFields()
		key := [3]string{set, number, name}
		g, ok := groups[key]
		if !ok {
			g = &group{}
			groups[key] = g
		}
		g.members = append(g.members, res)
	}

	var winner *group
	for _, g := range groups {
		if len(g.members) < 2 {
			continue
		}
		if winner == nil || len(g.members) > len(winner.members) {
			winner = g
		}
	}
	if winner == nil {
		return fuseMax(results)
	}

	var sum float64
	best := winner.members[0].Best
	for _, res := range winner.members {
		sum += res.Confidence
		if res.Confidence > best.Confidence {
			best = res.Best
		}
	}
	mean := sum / float64(len(winner.members))
	scale := float64(len(winner.members)) / float64(len(results))
	return best, matcher.Clamp(mean * scale)
}

// enrichDecision decorates the winning candidate with reference-database
// and pricing data. Lookup failures never affect the match outcome.
func (e *Engine) enrichDecision(ctx context.Context, d *Decision) {
	if e.refDB != nil {
		record, err := e.refDB.FindExact(ctx, d.Best.Name, d.Best.Set, d.Best.Number)
		if err != nil {
			e.log.WithError(apperrors.NewEnrichmentError("card lookup failed", err)).
				WithField("request_id", d.RequestID).Warn("Skipping card enrichment")
		} else {
			d.Card = record
		}
	}
	if e.prices != nil {
		price, err := e.prices.Lookup(ctx, d.Best.Name, d.Best.Set, d.Best.Number)
		if err != nil {
			e.log.WithError(apperrors.NewEnrichmentError("price lookup failed", err)).
				WithField("request_id", d.RequestID).Warn("Skipping price enrichment")
		} else {
			d.Price = price
		}
	}
}
