package region

// BuiltinTemplates is the fallback template set used to bootstrap a
// manifest that does not exist yet: a single standard-layout template
// with percent-based regions that hold up reasonably across eras.
func BuiltinTemplates() []Template {
	return []Template{
		{
			ID:         "standard",
			Label:      "Standard layout",
			Layout:     "standard",
			Confidence: 0.5,
			Regions: map[string][]Entry{
				RegionNameBar:    {{X: 0.05, Y: 0.03, W: 0.70, H: 0.09, Percent: true}},
				RegionArtwork:    {{X: 0.08, Y: 0.12, W: 0.84, H: 0.44, Percent: true}},
				RegionSetIcon:    {{X: 0.65, Y: 0.0, W: 0.35, H: 0.15, Percent: true}},
				RegionBottomBand: {{X: 0.0, Y: 0.88, W: 1.0, H: 0.12, Percent: true}},
				RegionPromoMark: {
					{X: 0.60, Y: 0.86, W: 0.35, H: 0.10, Percent: true, Conditions: &Conditions{PromoOnly: true}},
					{X: 0.0, Y: 0.88, W: 1.0, H: 0.12, Percent: true},
				},
				RegionFullBounds: {{X: 0, Y: 0, W: 1, H: 1, Percent: true}},
			},
		},
	}
}

// BuiltinDefaultID is the default template id of the builtin set.
const BuiltinDefaultID = "standard"
