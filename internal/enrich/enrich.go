// Package enrich defines the read-only lookup boundaries used to
// decorate a winning candidate. Failures here are never fatal to a
// match; the engine logs them and returns the candidate un-enriched.
package enrich

import "context"

// CardRecord is a descriptive record from the reference card database.
type CardRecord struct {
	Name   string            `json:"name"`
	Set    string            `json:"set"`
	Number string            `json:"number"`
	Rarity string            `json:"rarity,omitempty"`
	Extra  map[string]string `json:"extra,omitempty"`
}

// PriceData is the output of the external price lookup.
type PriceData struct {
	Currency string  `json:"currency"`
	Market   float64 `json:"market"`
	Low      float64 `json:"low"`
	High     float64 `json:"high"`
	Source   string  `json:"source"`
}

// ReferenceDatabase performs exact identity lookups against the card
// database. A nil record with a nil error means "no such card".
type ReferenceDatabase interface {
	FindExact(ctx context.Context, name, set, number string) (*CardRecord, error)
}

// PriceService looks up market pricing for an identified card. A nil
// result with a nil error means no price is known.
type PriceService interface {
	Lookup(ctx context.Context, name, set, number string) (*PriceData, error)
}
