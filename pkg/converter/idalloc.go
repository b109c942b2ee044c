package converter

import (
	"fmt"
	"math"
	"math/bits"
)

// Namespace is the identifier space reserved for one source category.
// Namespaces of different categories are configured with disjoint [Base, Limit) intervals.
type Namespace struct {
	Source string `json:"source"`
	Base   uint64 `json:"base"`
	// Limit is the exclusive upper bound. Zero means unbounded.
	Limit uint64 `json:"limit,omitempty"`
}

// Validate checks that the namespace interval is non-empty.
func (n Namespace) Validate() error {
	if n.Limit != 0 && n.Limit <= n.Base {
		return fmt.Errorf("%w: namespace %q limit %d must be greater than base %d", ErrConfigValidation, n.Source, n.Limit, n.Base)
	}
	return nil
}

// ceiling returns the exclusive upper bound of the namespace.
func (n Namespace) ceiling() uint64 {
	if n.Limit == 0 {
		return math.MaxUint64
	}
	return n.Limit
}

// IDRange is a half-open identifier interval [First, Limit).
type IDRange struct {
	First uint64 `json:"first"`
	Limit uint64 `json:"limit"`
}

// Len returns the number of identifiers in the range.
func (r IDRange) Len() uint64 { return r.Limit - r.First }

// Contains reports whether id lies in the range.
func (r IDRange) Contains(id uint64) bool { return id >= r.First && id < r.Limit }

// Overlaps reports whether the two ranges share at least one identifier.
func (r IDRange) Overlaps(o IDRange) bool {
	return r.First < o.Limit && o.First < r.Limit
}

func (r IDRange) String() string { return fmt.Sprintf("[%d,%d)", r.First, r.Limit) }

// Allocate returns the minimum identifier of a chunk: runFirstID + chunkOrdinal*step.
// It is pure and can be re-derived from the ledger alone, so an interrupted run replans identically.
func Allocate(base, step, runFirstID uint64, chunkOrdinal int) (uint64, error) {
	if step == 0 {
		return 0, ErrInvalidStep
	}
	if chunkOrdinal < 0 {
		return 0, fmt.Errorf("%w: negative chunk ordinal %d", ErrConfigValidation, chunkOrdinal)
	}
	if runFirstID < base {
		return 0, &IDRangeError{Kind: ErrNamespaceUnderflow, Requested: runFirstID, Bound: base}
	}
	hi, offset := bits.Mul64(uint64(chunkOrdinal), step)
	if hi != 0 {
		return 0, &IDRangeError{Kind: ErrIDSpaceOverflow, Requested: uint64(chunkOrdinal), Bound: math.MaxUint64 / step}
	}
	minID, carry := bits.Add64(runFirstID, offset, 0)
	if carry != 0 {
		return 0, &IDRangeError{Kind: ErrIDSpaceOverflow, Requested: runFirstID, Bound: math.MaxUint64 - offset}
	}
	return minID, nil
}

// ReserveRun computes the identifier range a run of chunkCount chunks consumes,
// starting at nextFree. The range is step*chunkCount wide regardless of how many
// records the chunks actually produce.
func ReserveRun(ns Namespace, step, nextFree uint64, chunkCount int) (IDRange, error) {
	if step == 0 {
		return IDRange{}, ErrInvalidStep
	}
	if chunkCount <= 0 {
		return IDRange{}, fmt.Errorf("%w: a run needs at least one chunk", ErrConfigValidation)
	}
	// The limit is the minimum identifier of the chunk following the last one.
	limit, err := Allocate(ns.Base, step, nextFree, chunkCount)
	if err != nil {
		return IDRange{}, err
	}
	if limit > ns.ceiling() {
		return IDRange{}, &IDRangeError{Kind: ErrIDSpaceOverflow, Requested: limit, Bound: ns.ceiling()}
	}
	return IDRange{First: nextFree, Limit: limit}, nil
}

// ChunkRange returns the identifier range reserved for one chunk of a run.
func ChunkRange(ns Namespace, step, runFirstID uint64, chunkOrdinal int) (IDRange, error) {
	minID, err := Allocate(ns.Base, step, runFirstID, chunkOrdinal)
	if err != nil {
		return IDRange{}, err
	}
	limit, carry := bits.Add64(minID, step, 0)
	if carry != 0 || limit > ns.ceiling() {
		return IDRange{}, &IDRangeError{Kind: ErrIDSpaceOverflow, Requested: minID, Bound: ns.ceiling()}
	}
	return IDRange{First: minID, Limit: limit}, nil
}
