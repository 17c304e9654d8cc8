package fusion

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"
	"time"

	"go-card-matcher/internal/config"
	"go-card-matcher/internal/enrich"
	apperrors "go-card-matcher/internal/errors"
	"go-card-matcher/internal/matcher"
	"go-card-matcher/internal/region"
)

// stubMatcher returns a canned result and records whether it ran.
type stubMatcher struct {
	name   string
	ready  bool
	result matcher.Result
	calls  int
}

func (s *stubMatcher) Name() string  { return s.name }
func (s *stubMatcher) IsReady() bool { return s.ready }
func (s *stubMatcher) Match(ctx context.Context, req matcher.Request) matcher.Result {
	s.calls++
	return s.result
}

func stubResult(method string, c *matcher.Candidate) matcher.Result {
	res := matcher.NewResult(method)
	if c != nil {
		res.Best = c
		res.Candidates = []matcher.Candidate{*c}
		res.Confidence = c.Confidence
	}
	return res
}

func testConfig(mode config.OperatingMode) *config.Config {
	return &config.Config{
		Mode:           mode,
		MinConfidence:  0.85,
		NeedsMLFloor:   0.3,
		FusionStrategy: "weighted",
		MatcherOrder:   []string{"hash", "icon", "number", "text"},
		MethodWeights: map[string]float64{
			"hash":   0.35,
			"icon":   0.35,
			"number": 0.20,
			"text":   0.10,
		},
		HashEarlyExit: 0.95,
		SetGate:       0.60,
		NumberGate:    0.60,
		NameGate:      0.70,
		CacheTTL:      time.Minute,
		CacheCapacity: 16,
	}
}

func pngBytes(t *testing.T, seed uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x*4) + seed, G: uint8(y * 4), B: seed, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newTestEngine(cfg *config.Config, matchers ...matcher.Matcher) *Engine {
	synth := matcher.NewSynthesizer(cfg.SetGate, cfg.NumberGate, cfg.NameGate)
	cache := NewDecisionCache(cfg.CacheCapacity, cfg.CacheTTL)
	return NewEngine(cfg, matchers, synth, cache, nil, nil)
}

func TestExactHashHitShortCircuits(t *testing.T) {
	hash := &stubMatcher{name: matcher.MethodHash, ready: true, result: stubResult(matcher.MethodHash, &matcher.Candidate{
		Set: "BS", Number: "025", SetSize: "102", Name: "Pikachu", Confidence: 0.98,
	})}
	icon := &stubMatcher{name: matcher.MethodIcon, ready: true}
	engine := newTestEngine(testConfig(config.ModeHybrid), hash, icon)

	d, err := engine.Match(context.Background(), pngBytes(t, 1), region.Hints{})
	if err != nil {
		t.Fatal(err)
	}

	if d.Decision != DecisionAutoApproved || !d.Matched {
		t.Errorf("decision = %s matched=%v, want auto_approved match", d.Decision, d.Matched)
	}
	if d.Confidence != 0.98 {
		t.Errorf("Confidence = %v, want 0.98", d.Confidence)
	}
	if icon.calls != 0 {
		t.Error("icon matcher ran despite hash early exit")
	}
	if len(d.StrategiesRun) != 1 || d.StrategiesRun[0] != matcher.MethodHash {
		t.Errorf("StrategiesRun = %v, want [hash]", d.StrategiesRun)
	}
	if d.CanonicalKey != "BS|025/102|*|Pikachu" {
		t.Errorf("CanonicalKey = %q", d.CanonicalKey)
	}
	if d.RequestID == "" {
		t.Error("missing request id")
	}
}

func TestWeightedFusionAgreementApproves(t *testing.T) {
	hash := &stubMatcher{name: matcher.MethodHash, ready: true, result: stubResult(matcher.MethodHash, nil)}
	icon := &stubMatcher{name: matcher.MethodIcon, ready: true, result: stubResult(matcher.MethodIcon, &matcher.Candidate{
		Set: "PAL", Confidence: 0.95,
	})}
	number := &stubMatcher{name: matcher.MethodNumber, ready: true, result: stubResult(matcher.MethodNumber, &matcher.Candidate{
		Number: "015", SetSize: "102", Confidence: 0.95,
	})}
	engine := newTestEngine(testConfig(config.ModeHybrid), hash, icon, number)

	d, err := engine.Match(context.Background(), pngBytes(t, 2), region.Hints{})
	if err != nil {
		t.Fatal(err)
	}

	// Weights renormalize over the strategies that produced a candidate.
	if math.Abs(d.Confidence-0.95) > 1e-9 {
		t.Errorf("Confidence = %v, want 0.95", d.Confidence)
	}
	if d.Decision != DecisionAutoApproved {
		t.Errorf("decision = %s, want auto_approved", d.Decision)
	}
	// Equal confidences; the heavier icon weight breaks the tie.
	if d.Best == nil || d.Best.Set != "PAL" {
		t.Errorf("Best = %+v, want icon candidate PAL", d.Best)
	}
	if d.CanonicalKey != "PAL|*|*|*" {
		t.Errorf("CanonicalKey = %q", d.CanonicalKey)
	}
}

func TestAllSignalsWeakIsRejected(t *testing.T) {
	hash := &stubMatcher{name: matcher.MethodHash, ready: true, result: stubResult(matcher.MethodHash, nil)}
	icon := &stubMatcher{name: matcher.MethodIcon, ready: true, result: stubResult(matcher.MethodIcon, nil)}
	text := &stubMatcher{name: matcher.MethodText, ready: true, result: stubResult(matcher.MethodText, nil)}
	engine := newTestEngine(testConfig(config.ModeHybrid), hash, icon, text)

	d, err := engine.Match(context.Background(), pngBytes(t, 3), region.Hints{})
	if err != nil {
		t.Fatal(err)
	}

	if d.Decision != DecisionRejected || d.Matched {
		t.Errorf("decision = %s matched=%v, want rejection", d.Decision, d.Matched)
	}
	if d.Best != nil || d.Confidence != 0 {
		t.Errorf("Best = %+v conf = %v, want empty", d.Best, d.Confidence)
	}
	if len(d.StrategiesRun) != 3 {
		t.Errorf("StrategiesRun = %v, want all three", d.StrategiesRun)
	}
}

func TestMidConfidenceRoutingPerMode(t *testing.T) {
	tests := []struct {
		mode config.OperatingMode
		want string
	}{
		{config.ModeHybrid, DecisionNeedsML},
		{config.ModeLocal, DecisionRejected},
		{config.ModeML, DecisionNeedsML},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			text := &stubMatcher{name: matcher.MethodText, ready: true, result: stubResult(matcher.MethodText, &matcher.Candidate{
				Name: "Pikachu", Confidence: 0.5,
			})}
			engine := newTestEngine(testConfig(tt.mode), text)

			d, err := engine.Match(context.Background(), pngBytes(t, 4), region.Hints{})
			if err != nil {
				t.Fatal(err)
			}
			if d.Decision != tt.want {
				t.Errorf("decision = %s, want %s", d.Decision, tt.want)
			}
			if d.Matched {
				t.Error("Matched = true below the confidence bar")
			}
		})
	}
}

func TestMLModeForwardsWeakSignals(t *testing.T) {
	tests := []struct {
		name   string
		result matcher.Result
	}{
		{"Below rejection floor", stubResult(matcher.MethodText, &matcher.Candidate{
			Name: "Pikachu", Confidence: 0.2,
		})},
		{"No candidate at all", stubResult(matcher.MethodText, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := &stubMatcher{name: matcher.MethodText, ready: true, result: tt.result}
			engine := newTestEngine(testConfig(config.ModeML), text)

			d, err := engine.Match(context.Background(), pngBytes(t, 10), region.Hints{})
			if err != nil {
				t.Fatal(err)
			}
			if d.Decision != DecisionNeedsML {
				t.Errorf("decision = %s at confidence %v, want needs_ml", d.Decision, d.Confidence)
			}
			if d.Matched {
				t.Error("Matched = true below the confidence bar")
			}
		})
	}
}

func TestSynthesizerUpgradesWeakFusion(t *testing.T) {
	// A low-confidence raw-text name drags the weighted mean below the
	// bar; the synthesizer drops it and rescues the strong fields.
	icon := &stubMatcher{name: matcher.MethodIcon, ready: true, result: stubResult(matcher.MethodIcon, &matcher.Candidate{
		Set: "PAL", Confidence: 0.90,
	})}
	number := &stubMatcher{name: matcher.MethodNumber, ready: true, result: stubResult(matcher.MethodNumber, &matcher.Candidate{
		Number: "007", SetSize: "018", Confidence: 0.95,
	})}
	text := &stubMatcher{name: matcher.MethodText, ready: true, result: stubResult(matcher.MethodText, &matcher.Candidate{
		Name: "Xyzzy", Confidence: 0.30,
	})}
	engine := newTestEngine(testConfig(config.ModeHybrid), icon, number, text)

	d, err := engine.Match(context.Background(), pngBytes(t, 5), region.Hints{})
	if err != nil {
		t.Fatal(err)
	}

	if d.Confidence != 0.90 {
		t.Errorf("Confidence = %v, want synthesized 0.90", d.Confidence)
	}
	if d.Decision != DecisionAutoApproved {
		t.Errorf("decision = %s, want auto_approved", d.Decision)
	}
	if d.Best == nil || d.Best.Name != "" || d.Best.Set != "PAL" || d.Best.Number != "007" {
		t.Errorf("Best = %+v, want gated composite without the weak name", d.Best)
	}
	found := false
	for _, s := range d.StrategiesRun {
		if s == matcher.MethodSynthesized {
			found = true
		}
	}
	if !found {
		t.Errorf("StrategiesRun = %v, want synthesized step recorded", d.StrategiesRun)
	}
}

func TestRepeatedMatchServedFromCache(t *testing.T) {
	hash := &stubMatcher{name: matcher.MethodHash, ready: true, result: stubResult(matcher.MethodHash, &matcher.Candidate{
		Set: "BS", Number: "025", Name: "Pikachu", Confidence: 0.98,
	})}
	engine := newTestEngine(testConfig(config.ModeHybrid), hash)
	data := pngBytes(t, 6)

	first, err := engine.Match(context.Background(), data, region.Hints{})
	if err != nil {
		t.Fatal(err)
	}
	second, err := engine.Match(context.Background(), data, region.Hints{})
	if err != nil {
		t.Fatal(err)
	}

	if first.CacheHit {
		t.Error("first match reported a cache hit")
	}
	if !second.CacheHit {
		t.Error("second match did not hit the cache")
	}
	if second.RequestID != first.RequestID || second.Confidence != first.Confidence ||
		second.CanonicalKey != first.CanonicalKey {
		t.Errorf("cached decision diverged: %+v vs %+v", second, first)
	}
	if hash.calls != 1 {
		t.Errorf("hash matcher ran %d times, want 1", hash.calls)
	}
}

func TestNotReadyMatchersAreSkipped(t *testing.T) {
	hash := &stubMatcher{name: matcher.MethodHash, ready: false}
	text := &stubMatcher{name: matcher.MethodText, ready: true, result: stubResult(matcher.MethodText, &matcher.Candidate{
		Name: "Pikachu", Confidence: 0.95,
	})}
	engine := newTestEngine(testConfig(config.ModeHybrid), hash, text)

	d, err := engine.Match(context.Background(), pngBytes(t, 7), region.Hints{})
	if err != nil {
		t.Fatal(err)
	}
	if hash.calls != 0 {
		t.Error("not-ready matcher was invoked")
	}
	if len(d.StrategiesRun) != 1 || d.StrategiesRun[0] != matcher.MethodText {
		t.Errorf("StrategiesRun = %v, want [text]", d.StrategiesRun)
	}
}

func TestUndecodableImageIsAnError(t *testing.T) {
	engine := newTestEngine(testConfig(config.ModeHybrid))

	_, err := engine.Match(context.Background(), []byte("not an image"), region.Hints{})
	if err == nil {
		t.Fatal("expected decode error")
	}
	if !apperrors.IsType(err, apperrors.ErrorTypeDecode) {
		t.Errorf("error type = %v, want decode", err)
	}
}

type fakeRefDB struct {
	record *enrich.CardRecord
	err    error
}

func (f *fakeRefDB) FindExact(ctx context.Context, name, set, number string) (*enrich.CardRecord, error) {
	return f.record, f.err
}

type fakePrices struct {
	price *enrich.PriceData
	err   error
}

func (f *fakePrices) Lookup(ctx context.Context, name, set, number string) (*enrich.PriceData, error) {
	return f.price, f.err
}

func TestEnrichmentDecoratesConfidentMatches(t *testing.T) {
	cfg := testConfig(config.ModeHybrid)
	hash := &stubMatcher{name: matcher.MethodHash, ready: true, result: stubResult(matcher.MethodHash, &matcher.Candidate{
		Set: "BS", Number: "025", Name: "Pikachu", Confidence: 0.98,
	})}
	refDB := &fakeRefDB{record: &enrich.CardRecord{Name: "Pikachu", Set: "BS", Number: "025", Rarity: "Common"}}
	prices := &fakePrices{price: &enrich.PriceData{Currency: "USD", Market: 12.5, Source: "test"}}
	synth := matcher.NewSynthesizer(cfg.SetGate, cfg.NumberGate, cfg.NameGate)
	engine := NewEngine(cfg, []matcher.Matcher{hash}, synth, NewDecisionCache(4, time.Minute), refDB, prices)

	d, err := engine.Match(context.Background(), pngBytes(t, 8), region.Hints{})
	if err != nil {
		t.Fatal(err)
	}
	if d.Card == nil || d.Card.Rarity != "Common" {
		t.Errorf("Card = %+v, want enriched record", d.Card)
	}
	if d.Price == nil || d.Price.Market != 12.5 {
		t.Errorf("Price = %+v, want enriched price", d.Price)
	}
}

func TestEnrichmentFailureIsNonFatal(t *testing.T) {
	cfg := testConfig(config.ModeHybrid)
	hash := &stubMatcher{name: matcher.MethodHash, ready: true, result: stubResult(matcher.MethodHash, &matcher.Candidate{
		Set: "BS", Number: "025", Name: "Pikachu", Confidence: 0.98,
	})}
	refDB := &fakeRefDB{err: errors.New("database offline")}
	prices := &fakePrices{err: errors.New("service timeout")}
	synth := matcher.NewSynthesizer(cfg.SetGate, cfg.NumberGate, cfg.NameGate)
	engine := NewEngine(cfg, []matcher.Matcher{hash}, synth, NewDecisionCache(4, time.Minute), refDB, prices)

	d, err := engine.Match(context.Background(), pngBytes(t, 9), region.Hints{})
	if err != nil {
		t.Fatal(err)
	}
	if d.Decision != DecisionAutoApproved {
		t.Errorf("decision = %s, enrichment failure must not change the outcome", d.Decision)
	}
	if d.Card != nil || d.Price != nil {
		t.Errorf("expected no enrichment data, got card=%+v price=%+v", d.Card, d.Price)
	}
}

func TestFuseMaxPicksStrongestStrategy(t *testing.T) {
	results := map[string]matcher.Result{
		matcher.MethodIcon: stubResult(matcher.MethodIcon, &matcher.Candidate{Set: "PAL", Confidence: 0.7}),
		matcher.MethodText: stubResult(matcher.MethodText, &matcher.Candidate{Name: "Pikachu", Confidence: 0.9}),
	}
	best, conf := fuseMax(results)
	if best == nil || best.Name != "Pikachu" || conf != 0.9 {
		t.Errorf("fuseMax = %+v / %v, want text candidate at 0.9", best, conf)
	}
}

func TestFuseConsensusScalesAgreementByCoverage(t *testing.T) {
	agree := matcher.Candidate{Set: "BS", Number: "025", Name: "Pikachu"}
	a := agree
	a.Confidence = 0.8
	b := agree
	b.Confidence = 0.7
	results := map[string]matcher.Result{
		matcher.MethodHash: stubResult(matcher.MethodHash, &a),
		matcher.MethodIcon: stubResult(matcher.MethodIcon, &b),
		matcher.MethodText: stubResult(matcher.MethodText, &matcher.Candidate{Name: "Charizard", Confidence: 0.9}),
	}

	best, conf := fuseConsensus(results)
	if best == nil || best.Name != "Pikachu" {
		t.Fatalf("best = %+v, want agreed Pikachu", best)
	}
	// Mean of the agreeing pair scaled by 2 of 3 strategies agreeing.
	want := (0.8 + 0.7) / 2 * 2 / 3
	if math.Abs(conf-want) > 1e-9 {
		t.Errorf("conf = %v, want %v", conf, want)
	}
}

func TestFuseConsensusFallsBackToMax(t *testing.T) {
	results := map[string]matcher.Result{
		matcher.MethodHash: stubResult(matcher.MethodHash, &matcher.Candidate{Name: "Pikachu", Confidence: 0.6}),
		matcher.MethodText: stubResult(matcher.MethodText, &matcher.Candidate{Name: "Charizard", Confidence: 0.8}),
	}
	best, conf := fuseConsensus(results)
	if best == nil || best.Name != "Charizard" || conf != 0.8 {
		t.Errorf("consensus fallback = %+v / %v, want max rule", best, conf)
	}
}
