package matcher

import (
	"github.com/sirupsen/logrus"

	"go-card-matcher/internal/logger"
)

// Synthesizer assembles a composite candidate from the best partial
// field each matcher independently proposed, when no single matcher
// cleared the match bar on its own.
type Synthesizer struct {
	SetGate    float64
	NumberGate float64
	NameGate   float64
	log        *logrus.Entry
}

func NewSynthesizer(setGate, numberGate, nameGate float64) *Synthesizer {
	return &Synthesizer{
		SetGate:    setGate,
		NumberGate: numberGate,
		NameGate:   nameGate,
		log:        logger.WithComponent("synthesizer"),
	}
}

// Synthesize combines the set code from the icon matcher, the collector
// number from the number matcher and the name from the text matcher.
// A field is included only if its source confidence meets that field's
// gate. The composite confidence is the minimum over included fields:
// any weak link caps the whole candidate. Returns nil when every field
// fails its gate.
func (s *Synthesizer) Synthesize(results map[string]Result) *Candidate {
	composite := Candidate{
		Metadata: map[string]interface{}{"synthesized": true},
	}
	var sources []string
	minConf := 1.0

	if best := gatedBest(results, MethodIcon, s.SetGate); best != nil && best.Set != "" {
		composite.Set = best.Set
		sources = append(sources, MethodIcon)
		if best.Confidence < minConf {
			minConf = best.Confidence
		}
	}
	if best := gatedBest(results, MethodNumber, s.NumberGate); best != nil && best.Number != "" {
		composite.Number = best.Number
		composite.SetSize = best.SetSize
		sources = append(sources, MethodNumber)
		if best.Confidence < minConf {
			minConf = best.Confidence
		}
	}
	if best := gatedBest(results, MethodText, s.NameGate); best != nil && best.Name != "" {
		composite.Name = best.Name
		sources = append(sources, MethodText)
		if best.Confidence < minConf {
			minConf = best.Confidence
		}
	}

	if len(sources) == 0 {
		return nil
	}

	composite.Confidence = minConf
	composite.Metadata["sources"] = sources
	s.log.WithFields(logrus.Fields{
		"key":        composite.CanonicalKey(),
		"confidence": composite.Confidence,
		"sources":    sources,
	}).Debug("Synthesized composite candidate")
	return &composite
}

func gatedBest(results map[string]Result, method string, gate float64) *Candidate {
	res, ok := results[method]
	if !ok || res.Best == nil {
		return nil
	}
	if res.Best.Confidence < gate {
		return nil
	}
	return res.Best
}
