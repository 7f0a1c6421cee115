package forecast

import (
	"errors"
	"fmt"
	"strings"
)

// Calculation names the kind of a guidance expression.
type Calculation string

const (
	CalculationDirect     Calculation = "direct"
	CalculationDifference Calculation = "difference"
	CalculationPercentage Calculation = "percentage"
)

var (
	// ErrInvalidExpression marks a guidance value that cannot be parsed.
	ErrInvalidExpression = errors.New("forecast: invalid guidance expression")
	// ErrUnknownCalculation marks an unsupported calculation kind.
	ErrUnknownCalculation = errors.New("forecast: unknown guidance calculation")
	// ErrUnknownGuidance is returned when a guidance id is not in the catalog.
	ErrUnknownGuidance = errors.New("forecast: unknown guidance")
)

// Expression is a parsed guidance value. It is one of Direct, Difference or
// Percentage.
type Expression interface {
	Calculation() Calculation
	Fields() []string
	String() string
	isExpression()
}

// Direct reads a single field.
type Direct struct {
	Field string
}

// Difference is Minuend - Subtrahend.
type Difference struct {
	Minuend    string
	Subtrahend string
}

// Percentage is (Minuend - Subtrahend) / Denominator. An empty Subtrahend
// reads as 0.
type Percentage struct {
	Minuend     string
	Subtrahend  string
	Denominator string
}

func (Direct) Calculation() Calculation     { return CalculationDirect }
func (Difference) Calculation() Calculation { return CalculationDifference }
func (Percentage) Calculation() Calculation { return CalculationPercentage }

func (d Direct) Fields() []string     { return []string{d.Field} }
func (d Difference) Fields() []string { return []string{d.Minuend, d.Subtrahend} }
func (p Percentage) Fields() []string {
	if p.Subtrahend == "" {
		return []string{p.Minuend, p.Denominator}
	}
	return []string{p.Minuend, p.Subtrahend, p.Denominator}
}

func (d Direct) String() string     { return d.Field }
func (d Difference) String() string { return d.Minuend + " - " + d.Subtrahend }
func (p Percentage) String() string {
	numerator := p.Minuend
	if p.Subtrahend != "" {
		numerator = "(" + p.Minuend + " - " + p.Subtrahend + ")"
	}
	return numerator + " / " + p.Denominator
}

func (Direct) isExpression()     {}
func (Difference) isExpression() {}
func (Percentage) isExpression() {}

// ParseDifference splits "a - b" into its operands.
func ParseDifference(expr string) (Difference, error) {
	parts := strings.Split(expr, "-")
	if len(parts) != 2 {
		return Difference{}, fmt.Errorf("%w: %q is not of the form \"a - b\"", ErrInvalidExpression, expr)
	}
	d := Difference{Minuend: strings.TrimSpace(parts[0]), Subtrahend: strings.TrimSpace(parts[1])}
	if d.Minuend == "" || d.Subtrahend == "" {
		return Difference{}, fmt.Errorf("%w: %q has an empty operand", ErrInvalidExpression, expr)
	}
	return d, nil
}

// NewExpression builds an expression from its textual parts. value holds the
// field, the "a - b" difference, or the percentage numerator; denominator is
// only read for percentages.
func NewExpression(calc Calculation, value, denominator string) (Expression, error) {
	value = strings.TrimSpace(value)
	denominator = strings.TrimSpace(denominator)
	switch calc {
	case CalculationDirect:
		if value == "" || strings.Contains(value, "-") {
			return nil, fmt.Errorf("%w: direct value %q", ErrInvalidExpression, value)
		}
		return Direct{Field: value}, nil
	case CalculationDifference:
		return ParseDifference(value)
	case CalculationPercentage:
		if denominator == "" {
			return nil, fmt.Errorf("%w: percentage %q has no denominator", ErrInvalidExpression, value)
		}
		if !strings.Contains(value, "-") {
			if value == "" {
				return nil, fmt.Errorf("%w: percentage has no numerator", ErrInvalidExpression)
			}
			return Percentage{Minuend: value, Denominator: denominator}, nil
		}
		diff, err := ParseDifference(value)
		if err != nil {
			return nil, err
		}
		return Percentage{Minuend: diff.Minuend, Subtrahend: diff.Subtrahend, Denominator: denominator}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCalculation, calc)
	}
}

// Definition is a named guidance metric.
type Definition struct {
	ID       string
	Label    string
	Sublabel string
	Expr     Expression
}

// Calculation returns the kind of the definition's expression.
func (d Definition) Calculation() Calculation {
	if d.Expr == nil {
		return ""
	}
	return d.Expr.Calculation()
}

// GuidanceCatalog is an ordered, immutable set of guidance definitions.
type GuidanceCatalog struct {
	defs []Definition
	byID map[string]int
}

// NewGuidanceCatalog validates and indexes definitions.
func NewGuidanceCatalog(defs ...Definition) (*GuidanceCatalog, error) {
	c := &GuidanceCatalog{byID: make(map[string]int, len(defs))}
	for i, def := range defs {
		if strings.TrimSpace(def.ID) == "" {
			return nil, fmt.Errorf("forecast: guidance #%d has no id", i)
		}
		if def.Expr == nil {
			return nil, fmt.Errorf("forecast: guidance %s: %w", def.ID, ErrInvalidExpression)
		}
		if _, dup := c.byID[def.ID]; dup {
			return nil, fmt.Errorf("forecast: duplicate guidance %s", def.ID)
		}
		c.byID[def.ID] = len(c.defs)
		c.defs = append(c.defs, def)
	}
	return c, nil
}

// Lookup finds a definition by id.
func (c *GuidanceCatalog) Lookup(id string) (Definition, bool) {
	if c == nil {
		return Definition{}, false
	}
	idx, ok := c.byID[id]
	if !ok {
		return Definition{}, false
	}
	return c.defs[idx], true
}

// All returns the definitions in catalog order.
func (c *GuidanceCatalog) All() []Definition {
	if c == nil {
		return nil
	}
	out := make([]Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Select resolves ids in the requested order. No ids selects the whole catalog.
func (c *GuidanceCatalog) Select(ids []string) ([]Definition, error) {
	if len(ids) == 0 {
		return c.All(), nil
	}
	out := make([]Definition, 0, len(ids))
	for _, id := range ids {
		def, ok := c.Lookup(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownGuidance, id)
		}
		out = append(out, def)
	}
	return out, nil
}
