package matcher

import (
	"context"
	"image"
	"math"
	"math/bits"
	"sort"
	"time"

	"github.com/corona10/goimagehash"
	"github.com/sirupsen/logrus"

	"go-card-matcher/internal/imaging"
	"go-card-matcher/internal/index"
	"go-card-matcher/internal/logger"
	"go-card-matcher/internal/region"
)

// exactMatchConfidence is reported for an exact hash collision: a
// near-certain match that short-circuits the nearest-neighbour scan.
const exactMatchConfidence = 0.98

// hashNormalizeSize is the square edge images are resized to before
// hashing so that query and reference hashes see the same geometry.
const hashNormalizeSize = 256

// HashMatcher matches the query image against a precomputed reference
// index of perceptual and difference hashes.
type HashMatcher struct {
	regions     *region.Registry
	entries     []index.Entry
	exactPHash  map[uint64][]int
	exactDHash  map[uint64][]int
	maxDistance int
	maxResults  int
	log         *logrus.Entry
}

// NewHashMatcher loads the full reference index into memory. A failed
// or empty load leaves the matcher not-ready rather than failing
// construction; the fusion engine will skip it.
func NewHashMatcher(ctx context.Context, store index.Store, regions *region.Registry, maxDistance, maxResults int) *HashMatcher {
	m := &HashMatcher{
		regions:     regions,
		maxDistance: maxDistance,
		maxResults:  maxResults,
		log:         logger.WithComponent("hash_matcher"),
	}
	entries, err := store.All(ctx)
	if err != nil {
		m.log.WithError(err).Warn("Reference index load failed, hash matcher not ready")
		return m
	}
	m.entries = entries
	m.exactPHash = make(map[uint64][]int, len(entries))
	m.exactDHash = make(map[uint64][]int, len(entries))
	for i, e := range entries {
		m.exactPHash[e.PHash] = append(m.exactPHash[e.PHash], i)
		m.exactDHash[e.DHash] = append(m.exactDHash[e.DHash], i)
	}
	m.log.WithField("entries", len(entries)).Info("Reference hash index loaded")
	return m
}

func (m *HashMatcher) Name() string { return MethodHash }

// IsReady reports true only when the reference index is non-empty.
func (m *HashMatcher) IsReady() bool { return len(m.entries) > 0 }

func (m *HashMatcher) Match(ctx context.Context, req Request) Result {
	start := time.Now()
	res := NewResult(MethodHash)
	defer res.Finish(start)

	img := req.Img

	// Crop to the artwork region when the registry knows one; hashing
	// just the artwork is more stable against sleeve glare and borders.
	bounds := img.Bounds()
	if rects, err := m.regions.ScaledRegions(bounds.Dx(), bounds.Dy(), req.Hints); err == nil {
		if rect, ok := rects[region.RegionArtwork]; ok {
			if cropped, err := imaging.Crop(img, rect); err == nil {
				img = cropped
				res.Metadata["cropped"] = region.RegionArtwork
			}
		}
	}

	hashStart := time.Now()
	normalized := imaging.Normalize(img, hashNormalizeSize)
	phash, err := goimagehash.PerceptionHash(normalized)
	if err != nil {
		res.Fail("perceptual hash failed", err)
		return res
	}
	dhash, err := goimagehash.DifferenceHash(normalized)
	if err != nil {
		res.Fail("difference hash failed", err)
		return res
	}
	res.Timings["hash_compute"] = time.Since(hashStart)

	p := phash.GetHash()
	d := dhash.GetHash()

	// Exact collision on either hash variant short-circuits the scan.
	if idx, ok := m.exactHit(p, d); ok {
		c := m.candidateFor(m.entries[idx], exactMatchConfidence, 0)
		res.Best = &c
		res.Candidates = []Candidate{c}
		res.Confidence = exactMatchConfidence
		res.Metadata["exact_match"] = true
		return res
	}

	scanStart := time.Now()
	candidates := m.scan(p, d)
	res.Timings["index_scan"] = time.Since(scanStart)
	res.Metadata["scanned"] = len(m.entries)

	if len(candidates) == 0 {
		return res
	}
	res.Candidates = candidates
	res.Best = &candidates[0]
	res.Confidence = candidates[0].Confidence
	return res
}

func (m *HashMatcher) exactHit(phash, dhash uint64) (int, bool) {
	if idxs, ok := m.exactPHash[phash]; ok && len(idxs) > 0 {
		return idxs[0], true
	}
	if idxs, ok := m.exactDHash[dhash]; ok && len(idxs) > 0 {
		return idxs[0], true
	}
	return 0, false
}

// scan performs a linear nearest-neighbour pass over the index keeping
// entries within the Hamming threshold, sorted by similarity.
func (m *HashMatcher) scan(phash, dhash uint64) []Candidate {
	var out []Candidate
	for _, e := range m.entries {
		dp := bits.OnesCount64(phash ^ e.PHash)
		dd := bits.OnesCount64(dhash ^ e.DHash)
		dist := dp
		if dd < dist {
			dist = dd
		}
		if dist > m.maxDistance {
			continue
		}
		out = append(out, m.candidateFor(e, HammingSimilarity(dist), dist))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	if m.maxResults > 0 && len(out) > m.maxResults {
		out = out[:m.maxResults]
	}
	return out
}

func (m *HashMatcher) candidateFor(e index.Entry, confidence float64, distance int) Candidate {
	return Candidate{
		Set:        e.Set,
		Number:     e.Number,
		Name:       e.Name,
		Confidence: confidence,
		Metadata: map[string]interface{}{
			"image_id":         e.ImageID,
			"hamming_distance": distance,
		},
	}
}

// ComputeReferenceHashes produces the perceptual/difference hash pair
// stored in the reference index, using the same normalization as the
// query path so distances are comparable.
func ComputeReferenceHashes(img image.Image) (phash, dhash uint64, err error) {
	normalized := imaging.Normalize(img, hashNormalizeSize)
	p, err := goimagehash.PerceptionHash(normalized)
	if err != nil {
		return 0, 0, err
	}
	d, err := goimagehash.DifferenceHash(normalized)
	if err != nil {
		return 0, 0, err
	}
	return p.GetHash(), d.GetHash(), nil
}

// HammingSimilarity converts a 64-bit Hamming distance into a similarity
// score via exponential decay. Distance 0 maps to 1; distance 64 decays
// to roughly zero.
func HammingSimilarity(distance int) float64 {
	return math.Exp(-5 * float64(distance) / 64)
}
