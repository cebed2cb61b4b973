// Package strategy maps a content profile to an encoding strategy.
//
// Selection is a pure, total function evaluated as an ordered rule list; the
// first matching rule wins:
//
//  1. source already in the target codec and smaller than SkipBelowBytes → Skip
//  2. flat content → Lossless
//  3. dark content → Careful
//  4. high-detail content → Adaptive with the detail list
//  5. anything else → Adaptive with the default list
package strategy

import "github.com/Skryldev/image-optimizer/core"

// Rules parameterises the selector.
type Rules struct {
	Target           core.Format
	SkipBelowBytes   int64
	LosslessEffort   int
	CarefulQualities []int
	NearLossless     int
	SmartSubsample   bool
	DetailQualities  []int
	DefaultQualities []int
}

// DefaultRules returns the production rule set for a WebP target.
func DefaultRules() Rules {
	return Rules{
		Target:           core.FormatWebP,
		SkipBelowBytes:   200_000,
		LosslessEffort:   6,
		CarefulQualities: []int{82, 80, 78},
		NearLossless:     60,
		SmartSubsample:   true,
		DetailQualities:  []int{82, 78, 74, 70},
		DefaultQualities: []int{78, 74, 70, 66},
	}
}

// Select returns the strategy for an image with the given profile, current
// format and current encoded size.
func Select(p core.ContentProfile, format core.Format, size int64, r Rules) core.Strategy {
	if format == r.Target && size < r.SkipBelowBytes {
		return core.Skip{}
	}
	return SelectEncoding(p, r)
}

// SelectEncoding evaluates every rule except Skip.  Callers use it to force
// a re-encode of an image Select would have skipped.
func SelectEncoding(p core.ContentProfile, r Rules) core.Strategy {
	switch {
	case p.IsFlat:
		return core.Lossless{Effort: r.LosslessEffort}
	case p.IsDark:
		return core.Careful{
			Qualities:      clone(r.CarefulQualities),
			NearLossless:   r.NearLossless,
			SmartSubsample: r.SmartSubsample,
		}
	case p.IsHighDetail:
		return core.Adaptive{Qualities: clone(r.DetailQualities)}
	default:
		return core.Adaptive{Qualities: clone(r.DefaultQualities)}
	}
}

// Override returns the one-shot strategy used when a reviewer asks for an
// explicit quality.  Careful keeps its preprocessing options; every other
// variant becomes a single-candidate Adaptive search.
func Override(s core.Strategy, quality int) core.Strategy {
	if c, ok := s.(core.Careful); ok {
		c.Qualities = []int{quality}
		return c
	}
	return core.Adaptive{Qualities: []int{quality}}
}

func clone(qs []int) []int {
	out := make([]int, len(qs))
	copy(out, qs)
	return out
}
