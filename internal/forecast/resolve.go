package forecast

// PivotQuery names the pivot axes, filters and measure by dimension id.
type PivotQuery struct {
	Filters []Filter `json:"filters,omitempty"`
	Row     string   `json:"row,omitempty"`
	Column  string   `json:"column,omitempty"`
	Measure string   `json:"measure"`
}

// ResolvedPivot is a PivotQuery bound to registry dimensions.
type ResolvedPivot struct {
	Filters []Filter
	Row     *Dimension
	Column  *Dimension
	Measure *Dimension
	// Dropped lists the dimension ids that were not found.
	Dropped []string
}

// ResolvePivot binds query ids to registry dimensions. Unknown axis and filter
// dimensions are dropped; an unknown or non-measure measure fails with
// ErrInvalidMeasure.
func ResolvePivot(reg *Registry, q PivotQuery) (ResolvedPivot, error) {
	var out ResolvedPivot
	measure, ok := reg.Lookup(q.Measure)
	if !ok || !measure.IsMeasure() {
		return ResolvedPivot{}, ErrInvalidMeasure
	}
	out.Measure = &measure

	bind := func(id string) *Dimension {
		if id == "" {
			return nil
		}
		dim, found := reg.Lookup(id)
		if !found {
			out.Dropped = append(out.Dropped, id)
			return nil
		}
		return &dim
	}
	out.Row = bind(q.Row)
	out.Column = bind(q.Column)

	for _, f := range q.Filters {
		if _, found := reg.Lookup(f.Dimension); !found {
			out.Dropped = append(out.Dropped, f.Dimension)
			continue
		}
		out.Filters = append(out.Filters, f)
	}
	return out, nil
}

// Pivot resolves and aggregates in one step.
func (a *Aggregator) Pivot(reg *Registry, records []Record, q PivotQuery) (PivotResult, []string, error) {
	resolved, err := ResolvePivot(reg, q)
	if err != nil {
		return PivotResult{}, nil, err
	}
	result, err := a.Aggregate(records, resolved.Filters, resolved.Row, resolved.Column, resolved.Measure)
	if err != nil {
		return PivotResult{}, nil, err
	}
	return result, resolved.Dropped, nil
}
