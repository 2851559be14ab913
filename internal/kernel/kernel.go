// Package kernel scores the similarity of image patches for block matching.
//
// Every kernel returns a cost where lower is better. ZNCC reports the negated correlation so all
// three kernels share the same "take the minimum" rule.
package kernel

import (
	"fmt"
	"math"
	"strings"
)

// Kernel is the closed set of similarity measures.
type Kernel int

const (
	SSD  Kernel = iota // sum of squared differences
	SAD                // sum of absolute differences
	ZNCC               // zero-mean normalized cross-correlation
)

// ZeroVarianceCost is the ZNCC cost of a patch with no intensity variation. It equals the cost of a
// perfectly anti-correlated pair, the worst a ZNCC comparison can score.
const ZeroVarianceCost = 1.0

// varianceFloor is the patch norm below which a ZNCC patch counts as flat.
const varianceFloor = 1e-8

func (k Kernel) String() string {
	switch k {
	case SSD:
		return "ssd"
	case SAD:
		return "sad"
	case ZNCC:
		return "zncc"
	default:
		return fmt.Sprintf("kernel(%d)", int(k))
	}
}

// Valid reports whether k is one of the known kernels.
func (k Kernel) Valid() bool {
	return k == SSD || k == SAD || k == ZNCC
}

// Parse maps a case-insensitive name to a kernel.
func Parse(name string) (Kernel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ssd":
		return SSD, nil
	case "sad":
		return SAD, nil
	case "zncc", "ncc":
		return ZNCC, nil
	default:
		return 0, fmt.Errorf("unknown kernel %q (want ssd, sad or zncc)", name)
	}
}

// Names lists the accepted kernel names.
func Names() []string { return []string{SSD.String(), SAD.String(), ZNCC.String()} }

// Patch is a square window of pixel values with channels interleaved.
type Patch struct {
	Data     []float64
	Channels int
}

// Prepared is a patch in the representation CostPrepared expects.
type Prepared struct {
	data []float64
	flat bool
}

// Prepare converts p for repeated comparisons, writing into dst when it has room. SSD and SAD use
// the raw values; ZNCC subtracts each channel's mean and scales the patch to unit norm.
func (k Kernel) Prepare(p Patch, dst []float64) Prepared {
	if cap(dst) < len(p.Data) {
		dst = make([]float64, len(p.Data))
	}
	dst = dst[:len(p.Data)]
	copy(dst, p.Data)
	if k != ZNCC {
		return Prepared{data: dst}
	}
	return Prepared{data: dst, flat: !normalize(dst, p.Channels)}
}

// CostPrepared compares two prepared patches of equal length.
func (k Kernel) CostPrepared(a, b Prepared) float64 {
	switch k {
	case SSD:
		return ssd(a.data, b.data)
	case SAD:
		return sad(a.data, b.data)
	case ZNCC:
		if a.flat || b.flat {
			return ZeroVarianceCost
		}
		return -dot(a.data, b.data)
	default:
		return math.Inf(1)
	}
}

// Cost compares two patches.
func (k Kernel) Cost(a, b Patch) float64 {
	return k.CostPrepared(k.Prepare(a, nil), k.Prepare(b, nil))
}

// Scores returns one cost per candidate, in candidate order.
func (k Kernel) Scores(ref Patch, candidates []Patch) []float64 {
	out := make([]float64, len(candidates))
	pr := k.Prepare(ref, nil)
	buf := make([]float64, len(ref.Data))
	for i, c := range candidates {
		out[i] = k.CostPrepared(pr, k.Prepare(c, buf))
	}
	return out
}

// Best returns the index of the lowest score, preferring the earliest on ties, or -1 for no scores.
func Best(scores []float64) int {
	best := -1
	for i, s := range scores {
		if best < 0 || s < scores[best] {
			best = i
		}
	}
	return best
}
