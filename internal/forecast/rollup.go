package forecast

import "sort"

// Aggregate holds this-year and prior-year volume and value for one node of
// the rollup hierarchy. Totals always equal the sum of their months.
type Aggregate struct {
	Key       string `json:"key"`
	Brand     string `json:"brand,omitempty"`
	Variant   string `json:"variant,omitempty"`
	VariantID string `json:"variantId,omitempty"`
	Customer  string `json:"customer,omitempty"`
	Market    string `json:"market,omitempty"`

	Volume       float64 `json:"volume"`
	PYVolume     float64 `json:"pyVolume"`
	GrossSales   float64 `json:"grossSales"`
	PYGrossSales float64 `json:"pyGrossSales"`

	VolumeByMonth       MonthlySeries `json:"volumeByMonth"`
	PYVolumeByMonth     MonthlySeries `json:"pyVolumeByMonth"`
	GrossSalesByMonth   MonthlySeries `json:"grossSalesByMonth"`
	PYGrossSalesByMonth MonthlySeries `json:"pyGrossSalesByMonth"`
}

// Field returns an aggregate total by record field name.
func (a Aggregate) Field(name string) float64 {
	switch name {
	case FieldVolume:
		return a.Volume
	case FieldPYVolume:
		return a.PYVolume
	case FieldGSV:
		return a.GrossSales
	case FieldPYGSV:
		return a.PYGrossSales
	case FieldGSVRate:
		return ratio(a.GrossSales, a.Volume)
	case FieldPYGSVRate:
		return ratio(a.PYGrossSales, a.PYVolume)
	default:
		return 0
	}
}

// MonthField returns a 1-based month value by record field name.
func (a Aggregate) MonthField(name string, month int) float64 {
	switch name {
	case FieldVolume:
		return a.VolumeByMonth.At(month)
	case FieldPYVolume:
		return a.PYVolumeByMonth.At(month)
	case FieldGSV:
		return a.GrossSalesByMonth.At(month)
	case FieldPYGSV:
		return a.PYGrossSalesByMonth.At(month)
	case FieldGSVRate:
		return ratio(a.GrossSalesByMonth.At(month), a.VolumeByMonth.At(month))
	case FieldPYGSVRate:
		return ratio(a.PYGrossSalesByMonth.At(month), a.PYVolumeByMonth.At(month))
	default:
		return 0
	}
}

func (a *Aggregate) addRecord(rec Record, month int) {
	i := month - 1
	a.VolumeByMonth[i] += rec.Number(FieldVolume)
	a.PYVolumeByMonth[i] += rec.Number(FieldPYVolume)
	a.GrossSalesByMonth[i] += rec.Number(FieldGSV)
	a.PYGrossSalesByMonth[i] += rec.Number(FieldPYGSV)
}

func (a *Aggregate) addMonths(other Aggregate) {
	a.VolumeByMonth = a.VolumeByMonth.Add(other.VolumeByMonth)
	a.PYVolumeByMonth = a.PYVolumeByMonth.Add(other.PYVolumeByMonth)
	a.GrossSalesByMonth = a.GrossSalesByMonth.Add(other.GrossSalesByMonth)
	a.PYGrossSalesByMonth = a.PYGrossSalesByMonth.Add(other.PYGrossSalesByMonth)
}

func (a *Aggregate) settle() {
	a.Volume = a.VolumeByMonth.Sum()
	a.PYVolume = a.PYVolumeByMonth.Sum()
	a.GrossSales = a.GrossSalesByMonth.Sum()
	a.PYGrossSales = a.PYGrossSalesByMonth.Sum()
}

// ItemKeyFunc derives the rollup item a record belongs to.
type ItemKeyFunc func(Record) string

// VariantItemKey groups by brand and variant id, or variant name when the id
// is missing.
func VariantItemKey(rec Record) string {
	brand := rec.String(FieldBrand)
	if id := rec.String(FieldVariantID); id != "" {
		return brand + "|" + id
	}
	return brand + "|" + rec.String(FieldVariant)
}

// ChainItemKey groups by customer and variant.
func ChainItemKey(rec Record) string {
	return rec.String(FieldCustomer) + "|" + VariantItemKey(rec)
}

// Level selects the rollup item granularity.
type Level string

const (
	LevelVariant Level = "variant"
	LevelChain   Level = "chain"
)

// ItemKey returns the key function for the level, defaulting to variants.
func (l Level) ItemKey() ItemKeyFunc {
	if l == LevelChain {
		return ChainItemKey
	}
	return VariantItemKey
}

// Rollup is the item, brand, market and grand total hierarchy.
type Rollup struct {
	Items   []Aggregate          `json:"items"`
	Brands  map[string]Aggregate `json:"brands"`
	Markets map[string]Aggregate `json:"markets"`
	Total   Aggregate            `json:"total"`
}

// BuildRollup groups records by variant.
func BuildRollup(records []Record) Rollup {
	return BuildRollupBy(records, VariantItemKey)
}

// BuildRollupBy groups records with a custom item key. Items keep the order of
// their first record and carry a customer only when all their records agree.
// Records whose month is outside 1..12 are skipped.
func BuildRollupBy(records []Record, key ItemKeyFunc) Rollup {
	if key == nil {
		key = VariantItemKey
	}
	items := make(map[string]*Aggregate)
	mixedCustomers := make(map[string]bool)
	order := make([]string, 0)
	markets := make(map[string]*Aggregate)

	for _, rec := range records {
		month := rec.Month()
		if month < 1 || month > MonthsPerYear {
			continue
		}
		k := key(rec)
		item, ok := items[k]
		if !ok {
			item = &Aggregate{
				Key:       k,
				Brand:     rec.String(FieldBrand),
				Variant:   rec.String(FieldVariant),
				VariantID: rec.String(FieldVariantID),
				Customer:  rec.String(FieldCustomer),
			}
			items[k] = item
			order = append(order, k)
		} else if item.Customer != rec.String(FieldCustomer) {
			mixedCustomers[k] = true
		}
		item.addRecord(rec, month)

		name := rec.String(FieldMarket)
		market, ok := markets[name]
		if !ok {
			market = &Aggregate{Key: name, Market: name}
			markets[name] = market
		}
		market.addRecord(rec, month)
	}

	rollup := Rollup{
		Items:   make([]Aggregate, 0, len(order)),
		Brands:  make(map[string]Aggregate),
		Markets: make(map[string]Aggregate, len(markets)),
		Total:   Aggregate{Key: TotalKey},
	}
	brands := make(map[string]*Aggregate)
	for _, k := range order {
		item := items[k]
		if mixedCustomers[k] {
			item.Customer = ""
		}
		item.settle()
		rollup.Items = append(rollup.Items, *item)
		brand, ok := brands[item.Brand]
		if !ok {
			brand = &Aggregate{Key: item.Brand, Brand: item.Brand}
			brands[item.Brand] = brand
		}
		brand.addMonths(*item)
	}

	names := make([]string, 0, len(brands))
	for name := range brands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		brand := brands[name]
		brand.settle()
		rollup.Brands[name] = *brand
		rollup.Total.addMonths(*brand)
	}
	rollup.Total.settle()

	for name, market := range markets {
		market.settle()
		rollup.Markets[name] = *market
	}
	return rollup
}
