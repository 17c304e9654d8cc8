package matcher

import (
	"context"
	"fmt"
	"image"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"go-card-matcher/internal/imaging"
	"go-card-matcher/internal/logger"
	"go-card-matcher/internal/ocr"
	"go-card-matcher/internal/region"
)

// Collector numbers never exceed three digits on either side of the
// ratio.
const maxSetSize = 999

var (
	ratioPattern      = regexp.MustCompile(`^(\d{1,3})\s*/\s*(\d{1,3})$`)
	bareNumberPattern = regexp.MustCompile(`^(\d{1,4})$`)
	looseRatioPattern = regexp.MustCompile(`(\d{1,3})\s*/\s*(\d{1,3})`)
)

// numberPattern validates cleaned OCR text against one structural form
// and normalizes it. Patterns are tried in order; the first structurally
// valid one wins.
type numberPattern struct {
	name       string
	confidence float64
	apply      func(text string) (number, setSize string, ok bool)
}

var numberPatterns = []numberPattern{
	{
		name:       "ratio",
		confidence: 0.95,
		apply: func(text string) (string, string, bool) {
			m := ratioPattern.FindStringSubmatch(text)
			if m == nil {
				return "", "", false
			}
			return normalizeRatio(m[1], m[2])
		},
	},
	{
		name:       "bare_number",
		confidence: 0.70,
		apply: func(text string) (string, string, bool) {
			m := bareNumberPattern.FindStringSubmatch(text)
			if m == nil {
				return "", "", false
			}
			n, err := strconv.Atoi(m[1])
			if err != nil || n == 0 {
				return "", "", false
			}
			return fmt.Sprintf("%03d", n), "", true
		},
	},
	{
		name:       "loose_ratio",
		confidence: 0.50,
		apply: func(text string) (string, string, bool) {
			m := looseRatioPattern.FindStringSubmatch(text)
			if m == nil {
				return "", "", false
			}
			return normalizeRatio(m[1], m[2])
		},
	},
}

// normalizeRatio enforces 0 < num <= total <= 999 and zero-pads both
// sides to the canonical three-digit form.
func normalizeRatio(numStr, totalStr string) (string, string, bool) {
	num, err1 := strconv.Atoi(numStr)
	total, err2 := strconv.Atoi(totalStr)
	if err1 != nil || err2 != nil {
		return "", "", false
	}
	if num <= 0 || num > total || total > maxSetSize {
		return "", "", false
	}
	return fmt.Sprintf("%03d", num), fmt.Sprintf("%03d", total), true
}

// NumberMatcher extracts the bottom-band region, runs OCR on it, and
// validates the raw text against known collector-number forms instead
// of trusting the OCR output directly.
type NumberMatcher struct {
	engine  ocr.Engine
	regions *region.Registry
	log     *logrus.Entry
}

func NewNumberMatcher(engine ocr.Engine, regions *region.Registry) *NumberMatcher {
	return &NumberMatcher{
		engine:  engine,
		regions: regions,
		log:     logger.WithComponent("number_matcher"),
	}
}

func (m *NumberMatcher) Name() string { return MethodNumber }

func (m *NumberMatcher) IsReady() bool { return m.engine != nil }

func (m *NumberMatcher) Match(ctx context.Context, req Request) Result {
	start := time.Now()
	res := NewResult(MethodNumber)
	defer res.Finish(start)

	band, err := m.bottomBand(req)
	if err != nil {
		res.Fail("bottom band crop failed", err)
		return res
	}

	ocrStart := time.Now()
	recognized, err := m.engine.Recognize(ctx, band, ocr.TextTypeNumber, ocr.Hints{})
	res.Timings["ocr"] = time.Since(ocrStart)
	if err != nil {
		res.Fail("ocr failed", err)
		return res
	}

	cleaned := strings.TrimSpace(recognized.Text)
	res.Metadata["raw_text"] = recognized.Text
	res.Metadata["ocr_confidence"] = recognized.Confidence

	for _, p := range numberPatterns {
		number, setSize, ok := p.apply(cleaned)
		if !ok {
			continue
		}
		c := Candidate{
			Number:     number,
			SetSize:    setSize,
			Confidence: p.confidence,
			Metadata: map[string]interface{}{
				"pattern":  p.name,
				"raw_text": recognized.Text,
			},
		}
		res.Best = &c
		res.Candidates = []Candidate{c}
		res.Confidence = p.confidence
		res.Metadata["pattern"] = p.name
		return res
	}

	// Structurally invalid text is a no-match, not an error.
	return res
}

// bottomBand crops the calibrated bottom band, falling back to the
// bottom 12% strip when the registry has no rectangle for it.
func (m *NumberMatcher) bottomBand(req Request) (image.Image, error) {
	bounds := req.Img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	rect := image.Rectangle{}
	if rects, err := m.regions.ScaledRegions(w, h, req.Hints); err == nil {
		if r, ok := rects[region.RegionBottomBand]; ok {
			rect = r
		}
	}
	if rect.Empty() {
		rect = image.Rect(0, h*88/100, w, h)
	}
	return imaging.Crop(req.Img, rect.Add(bounds.Min))
}
