package series

import (
	"fmt"

	"github.com/xtxerr/lenedastat/config"
)

// Kind selects the aggregation applied to a derived series.
type Kind int

const (
	// KindMean is the hourly mean power view. It has no running total and
	// tolerates re-aggregating overlapping ranges.
	KindMean Kind = iota
	// KindCumulative is the hourly energy view with a running total seeded
	// from the last persisted sum.
	KindCumulative
)

// String returns a human-readable representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindMean:
		return "power"
	case KindCumulative:
		return "energy"
	default:
		return "unknown"
	}
}

// Suffix returns the series identifier suffix for the kind.
func (k Kind) Suffix() string {
	if k == KindCumulative {
		return config.EnergySeriesSuffix
	}
	return config.PowerSeriesSuffix
}

// ID builds the identifier of a derived series.
func ID(meteringPoint, obisCode string, kind Kind) string {
	return fmt.Sprintf("%s_%s_%s", meteringPoint, obisCode, kind.Suffix())
}

// Meta describes a series to the store.
type Meta struct {
	ID            string
	Name          string
	Unit          string
	Source        string
	OBISCode      string
	MeteringPoint string
	HasMean       bool
	HasSum        bool
}
