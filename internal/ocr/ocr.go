// Package ocr defines the boundary to the external text-recognition
// engine. The matchers treat recognition as a black box returning raw
// text plus a confidence; structural validation of that text happens in
// the matchers, never here.
package ocr

import (
	"context"
	"image"
)

// TextType tells the engine what kind of text is expected so it can pick
// a character whitelist and segmentation mode.
type TextType string

const (
	TextTypeNumber         TextType = "number"
	TextTypePromoCode      TextType = "promo_code"
	TextTypeRegulationMark TextType = "regulation_mark"
	TextTypeSetCode        TextType = "set_code"
	TextTypeCardName       TextType = "card_name"
)

// Hints carry optional recognition parameters.
type Hints struct {
	Languages []string
	Whitelist string
}

// Result is the raw engine output. Confidence is in [0,1] and must not
// be assumed structurally valid.
type Result struct {
	Text                 string
	Confidence           float64
	Engine               string
	PreprocessingApplied []string
}

// Engine recognizes text in an image region.
type Engine interface {
	Recognize(ctx context.Context, img image.Image, textType TextType, hints Hints) (Result, error)
}
