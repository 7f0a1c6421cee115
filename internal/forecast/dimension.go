package forecast

// Kind separates grouping attributes from summable measures.
type Kind string

const (
	KindCategorical Kind = "categorical"
	KindMeasure     Kind = "measure"
)

// Aggregation names how a measure combines. Only summation is supported.
type Aggregation string

const AggregationSum Aggregation = "sum"

// Format is a presentation hint carried through to pivot results.
type Format string

const (
	FormatNumber   Format = "number"
	FormatCurrency Format = "currency"
	FormatString   Format = "string"
)

// Dimension describes one record field usable for grouping or aggregation.
type Dimension struct {
	ID          string      `json:"id"`
	Label       string      `json:"label"`
	Kind        Kind        `json:"kind"`
	Aggregation Aggregation `json:"aggregation,omitempty"`
	Format      Format      `json:"format,omitempty"`
}

// IsMeasure reports whether the dimension can be aggregated.
func (d Dimension) IsMeasure() bool {
	return d.Kind == KindMeasure
}

// Registry is an immutable, ordered catalog of dimensions.
type Registry struct {
	dims []Dimension
	byID map[string]int
}

// NewRegistry builds a registry. The first definition of an id wins.
func NewRegistry(dims ...Dimension) *Registry {
	r := &Registry{byID: make(map[string]int, len(dims))}
	for _, d := range dims {
		if d.ID == "" {
			continue
		}
		if _, exists := r.byID[d.ID]; exists {
			continue
		}
		if d.IsMeasure() && d.Aggregation == "" {
			d.Aggregation = AggregationSum
		}
		r.byID[d.ID] = len(r.dims)
		r.dims = append(r.dims, d)
	}
	return r
}

// DefaultRegistry returns the standard volume planning catalog.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Dimension{ID: FieldMarket, Label: "Market", Kind: KindCategorical, Format: FormatString},
		Dimension{ID: FieldCustomer, Label: "Customer", Kind: KindCategorical, Format: FormatString},
		Dimension{ID: FieldBrand, Label: "Brand", Kind: KindCategorical, Format: FormatString},
		Dimension{ID: FieldVariant, Label: "Variant", Kind: KindCategorical, Format: FormatString},
		Dimension{ID: FieldVariantID, Label: "Variant ID", Kind: KindCategorical, Format: FormatString},
		Dimension{ID: FieldSizePack, Label: "Size Pack", Kind: KindCategorical, Format: FormatString},
		Dimension{ID: FieldMonth, Label: "Month", Kind: KindCategorical, Format: FormatString},
		Dimension{ID: FieldYear, Label: "Year", Kind: KindCategorical, Format: FormatString},
		Dimension{ID: FieldDataType, Label: "Data Type", Kind: KindCategorical, Format: FormatString},
		Dimension{ID: FieldVolume, Label: "Volume (9L)", Kind: KindMeasure, Aggregation: AggregationSum, Format: FormatNumber},
		Dimension{ID: FieldPYVolume, Label: "PY Volume (9L)", Kind: KindMeasure, Aggregation: AggregationSum, Format: FormatNumber},
		Dimension{ID: FieldGSV, Label: "Gross Sales Value", Kind: KindMeasure, Aggregation: AggregationSum, Format: FormatCurrency},
		Dimension{ID: FieldPYGSV, Label: "PY Gross Sales Value", Kind: KindMeasure, Aggregation: AggregationSum, Format: FormatCurrency},
	)
}

// Lookup finds a dimension by id.
func (r *Registry) Lookup(id string) (Dimension, bool) {
	if r == nil {
		return Dimension{}, false
	}
	idx, ok := r.byID[id]
	if !ok {
		return Dimension{}, false
	}
	return r.dims[idx], true
}

// All returns every dimension in registration order.
func (r *Registry) All() []Dimension {
	if r == nil {
		return nil
	}
	out := make([]Dimension, len(r.dims))
	copy(out, r.dims)
	return out
}

// Categorical returns the grouping dimensions.
func (r *Registry) Categorical() []Dimension {
	return r.filter(func(d Dimension) bool { return !d.IsMeasure() })
}

// Measures returns the aggregatable dimensions.
func (r *Registry) Measures() []Dimension {
	return r.filter(Dimension.IsMeasure)
}

func (r *Registry) filter(keep func(Dimension) bool) []Dimension {
	if r == nil {
		return nil
	}
	out := make([]Dimension, 0, len(r.dims))
	for _, d := range r.dims {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}
