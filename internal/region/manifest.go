package region

import (
	"os"
	"sort"

	"github.com/pelletier/go-toml/v2"

	apperrors "go-card-matcher/internal/errors"
)

// Manifest file layout. Entries keep their manifest order; conditional
// entries must precede their unconditional fallback.
type manifestFile struct {
	Default   string             `toml:"default"`
	Templates []templateManifest `toml:"templates"`
}

type templateManifest struct {
	ID                string          `toml:"id"`
	Label             string          `toml:"label"`
	Layout            string          `toml:"layout"`
	Era               string          `toml:"era"`
	Rotation          float64         `toml:"rotation"`
	Confidence        float64         `toml:"confidence"`
	CalibrationWidth  int             `toml:"calibration_width"`
	CalibrationHeight int             `toml:"calibration_height"`
	Regions           []entryManifest `toml:"regions"`
}

type entryManifest struct {
	Name             string  `toml:"name"`
	X                float64 `toml:"x"`
	Y                float64 `toml:"y"`
	W                float64 `toml:"w"`
	H                float64 `toml:"h"`
	Percent          bool    `toml:"percent,omitempty"`
	PromoOnly        bool    `toml:"promo_only,omitempty"`
	FirstEditionOnly bool    `toml:"first_edition_only,omitempty"`
	Era              string  `toml:"era,omitempty"`
}

// Load reads the template manifest from disk and builds a registry
// bound to that manifest path.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewConfigurationError("failed to read template manifest", err)
	}

	var mf manifestFile
	if err := toml.Unmarshal(data, &mf); err != nil {
		return nil, apperrors.NewConfigurationError("failed to parse template manifest", err)
	}
	if len(mf.Templates) == 0 {
		return nil, apperrors.NewConfigurationError("template manifest contains no templates", nil)
	}

	templates := make([]Template, 0, len(mf.Templates))
	for _, tm := range mf.Templates {
		templates = append(templates, tm.toTemplate())
	}
	return NewRegistry(templates, mf.Default, path), nil
}

// Persist writes the in-memory templates back to the manifest path.
func (r *Registry) Persist() error {
	r.mu.RLock()
	mf := manifestFile{Default: r.defaultID}
	for _, id := range r.order {
		mf.Templates = append(mf.Templates, toManifest(*r.templates[id]))
	}
	path := r.manifestPath
	r.mu.RUnlock()

	if path == "" {
		return apperrors.NewConfigurationError("registry has no manifest path configured", nil)
	}

	data, err := toml.Marshal(mf)
	if err != nil {
		return apperrors.NewInternalError("failed to serialize template manifest", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return apperrors.NewInternalError("failed to write template manifest", err)
	}
	r.log.WithField("path", path).Info("Template manifest persisted")
	return nil
}

func (tm templateManifest) toTemplate() Template {
	t := Template{
		ID:                tm.ID,
		Label:             tm.Label,
		Layout:            tm.Layout,
		Era:               tm.Era,
		Rotation:          tm.Rotation,
		Confidence:        tm.Confidence,
		CalibrationWidth:  tm.CalibrationWidth,
		CalibrationHeight: tm.CalibrationHeight,
		Regions:           make(map[string][]Entry),
	}
	for _, em := range tm.Regions {
		entry := Entry{X: em.X, Y: em.Y, W: em.W, H: em.H, Percent: em.Percent}
		if em.PromoOnly || em.FirstEditionOnly || em.Era != "" {
			entry.Conditions = &Conditions{
				PromoOnly:        em.PromoOnly,
				FirstEditionOnly: em.FirstEditionOnly,
				Era:              em.Era,
			}
		}
		t.Regions[em.Name] = append(t.Regions[em.Name], entry)
	}
	return t
}

func toManifest(t Template) templateManifest {
	tm := templateManifest{
		ID:                t.ID,
		Label:             t.Label,
		Layout:            t.Layout,
		Era:               t.Era,
		Rotation:          t.Rotation,
		Confidence:        t.Confidence,
		CalibrationWidth:  t.CalibrationWidth,
		CalibrationHeight: t.CalibrationHeight,
	}
	names := make([]string, 0, len(t.Regions))
	for name := range t.Regions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, e := range t.Regions[name] {
			em := entryManifest{Name: name, X: e.X, Y: e.Y, W: e.W, H: e.H, Percent: e.Percent}
			if e.Conditions != nil {
				em.PromoOnly = e.Conditions.PromoOnly
				em.FirstEditionOnly = e.Conditions.FirstEditionOnly
				em.Era = e.Conditions.Era
			}
			tm.Regions = append(tm.Regions, em)
		}
	}
	return tm
}
