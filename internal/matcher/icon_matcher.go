package matcher

import (
	"context"
	"image"
	"image/color"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"go-card-matcher/internal/imaging"
	"go-card-matcher/internal/logger"
	"go-card-matcher/internal/region"
)

// Template variant labels.
const (
	variantRaw      = "raw"
	variantEnhanced = "enhanced"
)

// scaledVariant is one precomputed template rendition: a variant at one
// scale, with its pixel values, mean and standard deviation ready for
// correlation.
type scaledVariant struct {
	variant string
	scale   float64
	pix     []float64
	w, h    int
	mean    float64
	std     float64
}

// IconTemplate holds the reference icon renditions for one set code.
// Sets carry their own acceptance threshold because icon complexity
// varies: a plain geometric icon correlates high against almost
// anything.
type IconTemplate struct {
	Set       string
	Threshold float64
	variants  []scaledVariant
}

// NewIconTemplate precomputes raw and contrast-enhanced variants of the
// reference icon at each configured scale.
func NewIconTemplate(set string, icon image.Image, scales []float64, threshold float64) IconTemplate {
	t := IconTemplate{Set: set, Threshold: threshold}
	gray := imaging.Grayscale(icon)
	enhanced := stretchContrast(gray)
	for _, scale := range scales {
		if v, ok := newScaledVariant(variantRaw, gray, scale); ok {
			t.variants = append(t.variants, v)
		}
		if v, ok := newScaledVariant(variantEnhanced, enhanced, scale); ok {
			t.variants = append(t.variants, v)
		}
	}
	return t
}

func newScaledVariant(variant string, gray *image.Gray, scale float64) (scaledVariant, bool) {
	resized := imaging.ResizeGray(gray, scale)
	bounds := resized.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < 4 || h < 4 {
		return scaledVariant{}, false
	}
	pix := make([]float64, 0, w*h)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			pix = append(pix, float64(resized.GrayAt(x, y).Y))
		}
	}
	mean, std := stat.MeanStdDev(pix, nil)
	if std == 0 {
		// A flat template correlates with nothing.
		return scaledVariant{}, false
	}
	return scaledVariant{variant: variant, scale: scale, pix: pix, w: w, h: h, mean: mean, std: std}, true
}

// stretchContrast maps the grayscale range linearly onto [0,255].
func stretchContrast(gray *image.Gray) *image.Gray {
	bounds := gray.Bounds()
	lo, hi := uint8(255), uint8(0)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v := gray.GrayAt(x, y).Y
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	if hi <= lo {
		return gray
	}
	out := image.NewGray(bounds)
	span := float64(hi - lo)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v := float64(gray.GrayAt(x, y).Y-lo) / span * 255
			out.SetGray(x, y, color.Gray{Y: uint8(v + 0.5)})
		}
	}
	return out
}

// IconMatcher identifies the card's set by sliding reference icon
// templates over the set-icon region using zero-mean normalized
// cross-correlation, which is invariant to local brightness and
// contrast offsets.
type IconMatcher struct {
	regions   *region.Registry
	templates []IconTemplate
	earlyExit float64
	log       *logrus.Entry
}

// NewIconMatcher builds the matcher from precomputed set templates.
func NewIconMatcher(templates []IconTemplate, regions *region.Registry, earlyExit float64) *IconMatcher {
	usable := make([]IconTemplate, 0, len(templates))
	for _, t := range templates {
		if len(t.variants) > 0 {
			usable = append(usable, t)
		}
	}
	return &IconMatcher{
		regions:   regions,
		templates: usable,
		earlyExit: earlyExit,
		log:       logger.WithComponent("icon_matcher"),
	}
}

func (m *IconMatcher) Name() string { return MethodIcon }

func (m *IconMatcher) IsReady() bool { return len(m.templates) > 0 }

type iconHit struct {
	set       string
	threshold float64
	variant   string
	scale     float64
	corr      float64
	x, y      int
}

func (m *IconMatcher) Match(ctx context.Context, req Request) Result {
	start := time.Now()
	res := NewResult(MethodIcon)
	defer res.Finish(start)

	search, searchRegion, err := m.searchRegion(req)
	if err != nil {
		res.Fail("search region crop failed", err)
		return res
	}
	res.Metadata["search_region"] = searchRegion

	gray := imaging.Grayscale(search)

	scanStart := time.Now()
	best := m.scanTemplates(gray)
	res.Timings["correlation_scan"] = time.Since(scanStart)

	if best.set == "" {
		return res
	}

	res.Confidence = best.corr
	res.Metadata["set"] = best.set
	res.Metadata["correlation"] = best.corr
	res.Metadata["scale"] = best.scale
	res.Metadata["variant"] = best.variant
	res.Metadata["location"] = image.Pt(best.x, best.y)

	// A set is declared matched only when its own acceptance threshold
	// is met. Below threshold the confidence still reports how close
	// the best attempt came, with no candidate.
	if best.corr < best.threshold {
		return res
	}

	c := Candidate{
		Set:        best.set,
		Confidence: best.corr,
		Metadata: map[string]interface{}{
			"correlation": best.corr,
			"scale":       best.scale,
			"variant":     best.variant,
			"location":    image.Pt(best.x, best.y),
		},
	}
	res.Best = &c
	res.Candidates = []Candidate{c}
	return res
}

// searchRegion restricts correlation to the registry's set-icon
// rectangle, falling back to a fixed top-right crop when no calibrated
// rectangle is available.
func (m *IconMatcher) searchRegion(req Request) (image.Image, image.Rectangle, error) {
	bounds := req.Img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	rect := image.Rectangle{}
	if rects, err := m.regions.ScaledRegions(w, h, req.Hints); err == nil {
		if r, ok := rects[region.RegionSetIcon]; ok {
			rect = r
		}
	}
	if rect.Empty() {
		rect = image.Rect(w*65/100, 0, w, h*15/100)
	}

	cropped, err := imaging.Crop(req.Img, rect.Add(bounds.Min))
	if err != nil {
		return nil, rect, err
	}
	return cropped, rect, nil
}

// scanTemplates slides every template variant and scale over the search
// region. Scanning stops globally as soon as any correlation exceeds
// the early-exit threshold: a very strong match is unlikely to be
// beaten, and correlation search dominates matching latency.
func (m *IconMatcher) scanTemplates(gray *image.Gray) iconHit {
	best := iconHit{corr: -2}
	found := false
	for _, tpl := range m.templates {
		for _, v := range tpl.variants {
			hit := slideVariant(gray, v)
			if hit.corr > best.corr {
				best = hit
				best.set = tpl.Set
				best.threshold = tpl.Threshold
				found = true
			}
			if found && best.corr >= m.earlyExit {
				m.log.WithFields(logrus.Fields{
					"set":         best.set,
					"correlation": best.corr,
				}).Debug("Early exit on strong correlation")
				return best
			}
		}
	}
	if !found {
		return iconHit{}
	}
	return best
}

// slideVariant computes ZNCC at positions stepped proportionally to the
// template size. Stepping trades a little localization accuracy for a
// large cut in correlation cost.
func slideVariant(gray *image.Gray, v scaledVariant) iconHit {
	bounds := gray.Bounds()
	gw, gh := bounds.Dx(), bounds.Dy()
	if v.w > gw || v.h > gh {
		return iconHit{corr: -2}
	}

	step := v.w / 8
	if step < 2 {
		step = 2
	}

	best := iconHit{variant: v.variant, scale: v.scale, corr: -2}
	patch := make([]float64, len(v.pix))
	for y := 0; y+v.h <= gh; y += step {
		for x := 0; x+v.w <= gw; x += step {
			corr, ok := znccAt(gray, x, y, v, patch)
			if ok && corr > best.corr {
				best.corr = corr
				best.x = x
				best.y = y
			}
		}
	}
	return best
}

// znccAt computes the Pearson correlation between the template and the
// patch anchored at (x, y). Flat patches are skipped.
func znccAt(gray *image.Gray, x, y int, v scaledVariant, patch []float64) (float64, bool) {
	min := gray.Bounds().Min
	i := 0
	for dy := 0; dy < v.h; dy++ {
		row := gray.PixOffset(min.X+x, min.Y+y+dy)
		for dx := 0; dx < v.w; dx++ {
			patch[i] = float64(gray.Pix[row+dx])
			i++
		}
	}

	pMean, pStd := stat.MeanStdDev(patch, nil)
	if pStd == 0 {
		return 0, false
	}

	var sum float64
	for j, pv := range patch {
		sum += (pv - pMean) * (v.pix[j] - v.mean)
	}
	n := float64(len(patch))
	return sum / ((n - 1) * pStd * v.std), true
}
