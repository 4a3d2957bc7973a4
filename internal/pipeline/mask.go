package pipeline

import (
	"fmt"
	"strings"

	"github.com/jobrunner/envextract/internal/domain"
	"github.com/jobrunner/envextract/internal/graph"
)

// Comparison is the operator a BitTest applies to extracted bits.
type Comparison string

// Comparisons.
const (
	CmpEq  Comparison = "eq"
	CmpNeq Comparison = "neq"
	CmpLt  Comparison = "lt"
	CmpLte Comparison = "lte"
	CmpGt  Comparison = "gt"
	CmpGte Comparison = "gte"
)

// PolicyNone is the policy that keeps every pixel.
const PolicyNone = "None"

// BitPattern returns the mask with bits start..end set.
func BitPattern(start, end int) int64 {
	var p int64
	for k := start; k <= end; k++ {
		p |= 1 << k
	}
	return p
}

// QABits extracts bits start..end (inclusive) of a single-band image.
func QABits(band graph.Image, start, end int) graph.Image {
	return band.BitwiseAnd(BitPattern(start, end)).RightShift(start)
}

// BitTest compares a bit field of a quality band against a value.
type BitTest struct {
	Band  string
	Start int
	End   int
	Cmp   Comparison
	Value int
}

// Validate checks the bit range and operator.
func (t BitTest) Validate() error {
	if t.Start < 0 || t.End > 31 || t.Start > t.End {
		return fmt.Errorf("bit range %d-%d of %s: %w", t.Start, t.End, t.Band, domain.ErrInvalidInput)
	}
	switch t.Cmp {
	case CmpEq, CmpNeq, CmpLt, CmpLte, CmpGt, CmpGte:
		return nil
	}
	return fmt.Errorf("comparison %q: %w", t.Cmp, domain.ErrInvalidInput)
}

// Mask returns the binary image of pixels passing the test.
func (t BitTest) Mask(img graph.Image) graph.Image {
	bits := QABits(img.Select(t.Band), t.Start, t.End)
	v := float64(t.Value)
	switch t.Cmp {
	case CmpNeq:
		return bits.Neq(v)
	case CmpLt:
		return bits.Lt(v)
	case CmpLte:
		return bits.Lte(v)
	case CmpGt:
		return bits.Gt(v)
	case CmpGte:
		return bits.Gte(v)
	default:
		return bits.Eq(v)
	}
}

// Policy is a named conjunction of bit tests.
type Policy struct {
	Name  string
	Tests []BitTest
}

// Apply masks out the pixels of img failing any test. A policy without
// tests returns img unchanged.
func (p Policy) Apply(img graph.Image) graph.Image {
	if len(p.Tests) == 0 {
		return img
	}
	mask := p.Tests[0].Mask(img)
	for _, t := range p.Tests[1:] {
		mask = mask.And(t.Mask(img))
	}
	return img.UpdateMask(mask)
}

// ApplySeries masks every image of series.
func (p Policy) ApplySeries(series graph.Collection) graph.Collection {
	if len(p.Tests) == 0 {
		return series
	}
	return series.Map(p.Apply)
}

// LookupPolicy finds a policy by name in a product's table. An empty name
// selects PolicyNone when the table has it, otherwise the first entry.
func LookupPolicy(product string, policies []Policy, name string) (Policy, error) {
	if len(policies) == 0 {
		if name == "" || name == PolicyNone {
			return Policy{Name: PolicyNone}, nil
		}
		return Policy{}, &domain.UnknownPolicyError{
			Product: product,
			Kind:    "quality policy",
			Value:   name,
			Allowed: []string{PolicyNone},
		}
	}

	if name == "" {
		for _, p := range policies {
			if p.Name == PolicyNone {
				return p, nil
			}
		}
		return policies[0], nil
	}

	allowed := make([]string, len(policies))
	for i, p := range policies {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
		allowed[i] = p.Name
	}
	return Policy{}, &domain.UnknownPolicyError{
		Product: product,
		Kind:    "quality policy",
		Value:   name,
		Allowed: allowed,
	}
}
