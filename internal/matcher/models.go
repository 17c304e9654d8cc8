package matcher

import (
	"strings"
	"time"
)

// Wildcard marks an unknown field in a canonical key.
const Wildcard = "*"

// Candidate is a partial or full identity guess. Candidates are value
// objects created fresh per request and never mutated after creation.
type Candidate struct {
	Set        string
	Number     string
	SetSize    string
	Regulation string
	Name       string
	Confidence float64
	Metadata   map[string]interface{}
}

// CanonicalKey renders the candidate as
// "set|number[/setSize]|regulationOrSize|name" with "*" for unknown
// fields.
func (c Candidate) CanonicalKey() string {
	number := orWildcard(c.Number)
	if c.Number != "" && c.SetSize != "" {
		number = c.Number + "/" + c.SetSize
	}
	return strings.Join([]string{
		orWildcard(c.Set),
		number,
		orWildcard(c.Regulation),
		orWildcard(c.Name),
	}, "|")
}

// IdentityFields returns the (set, number, name) triple used for
// consensus grouping.
func (c Candidate) IdentityFields() (string, string, string) {
	return c.Set, c.Number, c.Name
}

func orWildcard(s string) string {
	if s == "" {
		return Wildcard
	}
	return s
}

// Result is the output of one matcher run.
type Result struct {
	Method         string
	Confidence     float64
	Best           *Candidate
	Candidates     []Candidate
	Timings        map[string]time.Duration
	ProcessingTime time.Duration
	Metadata       map[string]interface{}
}

// NewResult creates an empty result for the given method. An empty
// result is a valid "no match": confidence 0, no candidate.
func NewResult(method string) Result {
	return Result{
		Method:   method,
		Timings:  make(map[string]time.Duration),
		Metadata: make(map[string]interface{}),
	}
}

// Finish clamps the confidence into [0,1] and records the total
// processing time.
func (r *Result) Finish(start time.Time) {
	r.Confidence = Clamp(r.Confidence)
	if r.Best != nil {
		r.Best.Confidence = Clamp(r.Best.Confidence)
	}
	r.ProcessingTime = time.Since(start)
}

// Fail annotates the result with a matcher-local failure. Failures are
// confidence-0 results, never errors to the caller.
func (r *Result) Fail(note string, err error) {
	r.Confidence = 0
	r.Best = nil
	r.Candidates = nil
	if err != nil {
		note = note + ": " + err.Error()
	}
	r.Metadata["error"] = note
}

// Clamp restricts a confidence to [0,1].
func Clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
