package matcher

import (
	"context"
	"fmt"
	"image"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/arbovm/levenshtein"
	"github.com/sirupsen/logrus"

	"go-card-matcher/internal/imaging"
	"go-card-matcher/internal/logger"
	"go-card-matcher/internal/ocr"
	"go-card-matcher/internal/region"
)

// Known promo-code era prefixes with the zero-padded width of their
// numeric suffix.
var promoSeries = []struct {
	prefix string
	width  int
}{
	{"SWSH", 3},
	{"XY", 2},
	{"SM", 3},
	{"BW", 2},
	{"DP", 2},
}

// regulationAlphabet is the fixed set of valid regulation mark letters.
const regulationAlphabet = "DEFGH"

var (
	genericPromoPattern = regexp.MustCompile(`^([A-Z]{1,4})(\d{1,3})$`)
	setCodePattern      = regexp.MustCompile(`^[A-Z]{2,5}$`)
	nameCleanPattern    = regexp.MustCompile(`[^A-Za-z' \-.]+`)
	spacesPattern       = regexp.MustCompile(`\s+`)
)

// Name-lexicon acceptance floor for fuzzy matches.
const fuzzyNameFloor = 0.75

// TextMatcher validates OCR output against structural text patterns:
// promo codes, regulation marks, set codes and card names.
type TextMatcher struct {
	engine  ocr.Engine
	regions *region.Registry
	lexicon []string
	byLower map[string]string
	log     *logrus.Entry
}

// NewTextMatcher builds a text matcher over a card-name lexicon. The
// lexicon may be empty; name validation then degrades to returning
// cleaned raw text at low confidence.
func NewTextMatcher(engine ocr.Engine, regions *region.Registry, lexicon []string) *TextMatcher {
	m := &TextMatcher{
		engine:  engine,
		regions: regions,
		lexicon: append([]string(nil), lexicon...),
		byLower: make(map[string]string, len(lexicon)),
		log:     logger.WithComponent("text_matcher"),
	}
	for _, name := range lexicon {
		m.byLower[strings.ToLower(name)] = name
	}
	return m
}

func (m *TextMatcher) Name() string { return MethodText }

func (m *TextMatcher) IsReady() bool { return m.engine != nil }

func (m *TextMatcher) Match(ctx context.Context, req Request) Result {
	textType := ocr.TextTypeCardName
	if req.Hints.Promo {
		textType = ocr.TextTypePromoCode
	}
	return m.MatchText(ctx, req, textType)
}

// MatchText runs the matcher for an explicit text type. The generic
// Match entry point picks card-name validation (promo-code for promo
// hints); callers needing regulation marks or set codes dispatch here.
func (m *TextMatcher) MatchText(ctx context.Context, req Request, textType ocr.TextType) Result {
	start := time.Now()
	res := NewResult(MethodText)
	defer res.Finish(start)

	crop, err := m.regionFor(req, textType)
	if err != nil {
		res.Fail("text region crop failed", err)
		return res
	}

	ocrStart := time.Now()
	recognized, err := m.engine.Recognize(ctx, crop, textType, ocr.Hints{})
	res.Timings["ocr"] = time.Since(ocrStart)
	if err != nil {
		res.Fail("ocr failed", err)
		return res
	}

	res.Metadata["raw_text"] = recognized.Text
	res.Metadata["ocr_confidence"] = recognized.Confidence
	res.Metadata["text_type"] = string(textType)

	var candidate *Candidate
	switch textType {
	case ocr.TextTypePromoCode:
		candidate = m.validatePromoCode(recognized.Text)
	case ocr.TextTypeRegulationMark:
		candidate = m.validateRegulationMark(recognized.Text)
	case ocr.TextTypeSetCode:
		candidate = m.validateSetCode(recognized.Text)
	default:
		candidate = m.validateCardName(recognized.Text)
	}
	if candidate == nil {
		return res
	}

	res.Best = candidate
	res.Candidates = []Candidate{*candidate}
	res.Confidence = candidate.Confidence
	if pattern, ok := candidate.Metadata["pattern"]; ok {
		res.Metadata["pattern"] = pattern
	}
	return res
}

// validatePromoCode matches known era prefixes first, normalizing the
// numeric suffix to the series' fixed width. Unknown prefixes fall back
// to a lower-confidence generic promo pattern.
func (m *TextMatcher) validatePromoCode(text string) *Candidate {
	cleaned := strings.ToUpper(strings.Join(strings.Fields(text), ""))
	match := genericPromoPattern.FindStringSubmatch(cleaned)
	if match == nil {
		return nil
	}
	prefix, digits := match[1], match[2]
	n, err := strconv.Atoi(digits)
	if err != nil || n == 0 {
		return nil
	}

	for _, series := range promoSeries {
		if prefix != series.prefix {
			continue
		}
		code := fmt.Sprintf("%s%0*d", series.prefix, series.width, n)
		return &Candidate{
			Number:     code,
			Confidence: 0.95,
			Metadata: map[string]interface{}{
				"pattern":  strings.ToLower(series.prefix) + "_series",
				"raw_text": text,
			},
		}
	}

	return &Candidate{
		Number:     cleaned,
		Confidence: 0.60,
		Metadata: map[string]interface{}{
			"pattern":  "generic_promo",
			"raw_text": text,
		},
	}
}

func (m *TextMatcher) validateRegulationMark(text string) *Candidate {
	cleaned := strings.ToUpper(strings.TrimSpace(text))
	if len(cleaned) != 1 || !strings.Contains(regulationAlphabet, cleaned) {
		return nil
	}
	return &Candidate{
		Regulation: cleaned,
		Confidence: 0.90,
		Metadata:   map[string]interface{}{"pattern": "regulation_mark"},
	}
}

func (m *TextMatcher) validateSetCode(text string) *Candidate {
	cleaned := strings.ToUpper(strings.Join(strings.Fields(text), ""))
	if !setCodePattern.MatchString(cleaned) {
		return nil
	}
	return &Candidate{
		Set:        cleaned,
		Confidence: 0.85,
		Metadata:   map[string]interface{}{"pattern": "set_code"},
	}
}

// validateCardName prefers an exact lexicon hit, then a fuzzy
// edit-distance match above the similarity floor, and finally returns
// the cleaned raw text at low confidence rather than rejecting
// outright.
func (m *TextMatcher) validateCardName(text string) *Candidate {
	cleaned := cleanName(text)
	if cleaned == "" {
		return nil
	}

	if canonical, ok := m.byLower[strings.ToLower(cleaned)]; ok {
		return &Candidate{
			Name:       canonical,
			Confidence: 0.95,
			Metadata:   map[string]interface{}{"pattern": "exact_lexicon", "raw_text": text},
		}
	}

	if best, similarity := m.closestName(cleaned); best != "" && similarity >= fuzzyNameFloor {
		return &Candidate{
			Name:       best,
			Confidence: similarity * 0.9,
			Metadata: map[string]interface{}{
				"pattern":    "fuzzy_lexicon",
				"raw_text":   text,
				"similarity": similarity,
			},
		}
	}

	return &Candidate{
		Name:       cleaned,
		Confidence: 0.30,
		Metadata:   map[string]interface{}{"pattern": "raw_text", "raw_text": text},
	}
}

// closestName finds the lexicon entry with the highest edit-distance
// similarity to the cleaned text.
func (m *TextMatcher) closestName(cleaned string) (string, float64) {
	lower := strings.ToLower(cleaned)
	best := ""
	bestSim := 0.0
	for _, name := range m.lexicon {
		sim := editSimilarity(lower, strings.ToLower(name))
		if sim > bestSim {
			bestSim = sim
			best = name
		}
	}
	return best, bestSim
}

// editSimilarity converts Levenshtein distance to a similarity in
// [0,1].
func editSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 0
	}
	dist := levenshtein.Distance(a, b)
	return 1 - float64(dist)/float64(longest)
}

func cleanName(text string) string {
	cleaned := nameCleanPattern.ReplaceAllString(text, " ")
	cleaned = spacesPattern.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

// regionFor picks the calibrated crop for the text type, with fixed
// fallbacks when the registry has no rectangle.
func (m *TextMatcher) regionFor(req Request, textType ocr.TextType) (image.Image, error) {
	bounds := req.Img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	var name string
	switch textType {
	case ocr.TextTypePromoCode:
		name = region.RegionPromoMark
	case ocr.TextTypeRegulationMark, ocr.TextTypeSetCode:
		name = region.RegionBottomBand
	default:
		name = region.RegionNameBar
	}

	rect := image.Rectangle{}
	if rects, err := m.regions.ScaledRegions(w, h, req.Hints); err == nil {
		if r, ok := rects[name]; ok {
			rect = r
		}
	}
	if rect.Empty() {
		switch name {
		case region.RegionNameBar:
			rect = image.Rect(0, 0, w, h*15/100)
		default:
			rect = image.Rect(0, h*85/100, w, h)
		}
	}
	return imaging.Crop(req.Img, rect.Add(bounds.Min))
}
