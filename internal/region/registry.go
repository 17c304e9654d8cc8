package region

import (
	"image"
	"math"
	"sync"

	"github.com/sirupsen/logrus"

	apperrors "go-card-matcher/internal/errors"
	"go-card-matcher/internal/logger"
)

// Semantic region names used by the matchers.
const (
	RegionSetIcon    = "set_icon"
	RegionBottomBand = "bottom_band"
	RegionPromoMark  = "promo_mark"
	RegionNameBar    = "name_bar"
	RegionArtwork    = "artwork"
	RegionFullBounds = "full_bounds"
)

// Hints carry the request attributes used to resolve a template and to
// select between conditional region entries.
type Hints struct {
	TemplateID   string
	Layout       string
	Era          string
	Promo        bool
	FirstEdition bool
}

// Conditions restrict an entry to requests with matching attributes.
// A nil Conditions always matches.
type Conditions struct {
	PromoOnly        bool
	FirstEditionOnly bool
	Era              string
}

// Matches compares each condition field against the hints. Every set
// condition must hold for the entry to be selected.
func (c *Conditions) Matches(hints Hints) bool {
	if c == nil {
		return true
	}
	if c.PromoOnly && !hints.Promo {
		return false
	}
	if c.FirstEditionOnly && !hints.FirstEdition {
		return false
	}
	if c.Era != "" && c.Era != hints.Era {
		return false
	}
	return true
}

// Entry defines one rectangle for a semantic region, either in pixels at
// the template's calibration resolution or as fractions of the image size.
type Entry struct {
	X, Y, W, H float64
	Percent    bool
	Conditions *Conditions
}

// Template maps semantic region names to calibrated rectangles for one
// card era/layout.
type Template struct {
	ID                string
	Label             string
	Layout            string
	Era               string
	Rotation          float64
	Confidence        float64
	CalibrationWidth  int
	CalibrationHeight int
	Regions           map[string][]Entry
}

// Registry holds the loaded templates. Templates are read-only after
// load except through Upsert, which persists back to the manifest.
type Registry struct {
	mu           sync.RWMutex
	templates    map[string]*Template
	order        []string
	defaultID    string
	manifestPath string
	log          *logrus.Entry
}

// NewRegistry builds a registry from already-parsed templates. Most
// callers use Load instead.
func NewRegistry(templates []Template, defaultID, manifestPath string) *Registry {
	r := &Registry{
		templates:    make(map[string]*Template, len(templates)),
		defaultID:    defaultID,
		manifestPath: manifestPath,
		log:          logger.WithComponent("region_registry"),
	}
	for i := range templates {
		t := templates[i]
		r.templates[t.ID] = &t
		r.order = append(r.order, t.ID)
	}
	return r
}

// Resolve returns the template for the given hints: explicit template ID
// first, then layout hint, then the configured default. Having neither a
// matching template nor a default is a fatal configuration error.
func (r *Registry) Resolve(hints Hints) (*Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if hints.TemplateID != "" {
		if t, ok := r.templates[hints.TemplateID]; ok {
			return t, nil
		}
	}
	if hints.Layout != "" {
		for _, id := range r.order {
			if r.templates[id].Layout == hints.Layout {
				return r.templates[id], nil
			}
		}
	}
	if r.defaultID != "" {
		if t, ok := r.templates[r.defaultID]; ok {
			return t, nil
		}
	}
	return nil, apperrors.NewConfigurationError("no region template matches and no default template configured", nil)
}

// ScaledRegions resolves the template for the hints and returns one pixel
// rectangle per semantic region, scaled to the target image size.
// Returned rectangles are non-negative but are not clipped to the target
// image; callers must clip before cropping (imaging.Crop does).
func (r *Registry) ScaledRegions(width, height int, hints Hints) (map[string]image.Rectangle, error) {
	t, err := r.Resolve(hints)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]image.Rectangle, len(t.Regions))
	for name, entries := range t.Regions {
		entry := selectEntry(entries, hints)
		if entry == nil {
			continue
		}
		out[name] = entry.scale(width, height, t.CalibrationWidth, t.CalibrationHeight)
	}
	return out, nil
}

// selectEntry picks the first entry whose conditions match, falling back
// to the first entry. First-match-wins: conditional entries should be
// listed before their unconditional fallback in the manifest.
func selectEntry(entries []Entry, hints Hints) *Entry {
	for i := range entries {
		if entries[i].Conditions.Matches(hints) {
			return &entries[i]
		}
	}
	if len(entries) > 0 {
		return &entries[0]
	}
	return nil
}

func (e *Entry) scale(width, height, calibW, calibH int) image.Rectangle {
	var x, y, w, h float64
	if e.Percent {
		x = e.X * float64(width)
		y = e.Y * float64(height)
		w = e.W * float64(width)
		h = e.H * float64(height)
	} else {
		sx, sy := 1.0, 1.0
		if calibW > 0 {
			sx = float64(width) / float64(calibW)
		}
		if calibH > 0 {
			sy = float64(height) / float64(calibH)
		}
		x = e.X * sx
		y = e.Y * sy
		w = e.W * sx
		h = e.H * sy
	}
	x0 := int(math.Round(math.Max(0, x)))
	y0 := int(math.Round(math.Max(0, y)))
	x1 := x0 + int(math.Round(math.Max(0, w)))
	y1 := y0 + int(math.Round(math.Max(0, h)))
	return image.Rect(x0, y0, x1, y1)
}

// Upsert adds or replaces a template in memory. Call Persist to write
// the manifest afterwards.
func (r *Registry) Upsert(t Template) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.templates[t.ID]; !exists {
		r.order = append(r.order, t.ID)
	}
	r.templates[t.ID] = &t
	r.log.WithFields(logrus.Fields{
		"template": t.ID,
		"layout":   t.Layout,
		"era":      t.Era,
	}).Info("Region template updated")
}

// Templates returns the templates in load order.
func (r *Registry) Templates() []Template {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Template, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.templates[id])
	}
	return out
}

// DefaultID returns the configured default template id.
func (r *Registry) DefaultID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultID
}
