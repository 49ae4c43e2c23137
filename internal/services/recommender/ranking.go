package recommender

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/skinsync/internal/domain"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

var hundred = decimal.NewFromInt(100)

// OverallChange returns the percent change from current to predicted, 0 when current is zero.
func OverallChange(current, predicted decimal.Decimal) decimal.Decimal {
	if current.IsZero() {
		return decimal.Zero
	}
	return predicted.Sub(current).Div(current).Mul(hundred)
}

// BuildDigest picks up to DigestSize items with the largest gains (change > 0, descending)
// and up to DigestSize items with the largest losses (change <= 0, ascending).
func BuildDigest(records []domain.RecommendationRecord) domain.Digest {
	var gainers, losers []domain.RecommendationRecord
	for _, r := range records {
		if r.OverallChange.IsPositive() {
			gainers = append(gainers, r)
		} else {
			losers = append(losers, r)
		}
	}

	sort.SliceStable(gainers, func(i, j int) bool {
		return gainers[i].OverallChange.GreaterThan(gainers[j].OverallChange)
	})
	sort.SliceStable(losers, func(i, j int) bool {
		return losers[i].OverallChange.LessThan(losers[j].OverallChange)
	})

	return domain.Digest{
		TopGainers: head(gainers, domain.DigestSize),
		TopLosers:  head(losers, domain.DigestSize),
	}
}

func head(records []domain.RecommendationRecord, n int) []domain.RecommendationRecord {
	if len(records) > n {
		records = records[:n]
	}
	return append([]domain.RecommendationRecord{}, records...)
}

// Column sortable column of the full recommendation table.
type Column string

const (
	ColumnName      Column = "name"
	ColumnPrice     Column = "price"
	ColumnPredicted Column = "predicted"
	ColumnChange    Column = "change"
)

// ParseColumn maps a column name to a Column.
func ParseColumn(s string) (Column, bool) {
	switch c := Column(s); c {
	case ColumnName, ColumnPrice, ColumnPredicted, ColumnChange:
		return c, true
	}
	return "", false
}

// Direction sort direction.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// ParseDirection maps "asc" or "desc" to a Direction.
func ParseDirection(s string) (Direction, bool) {
	switch d := Direction(s); d {
	case Ascending, Descending:
		return d, true
	}
	return "", false
}

// Table full recommendation list that toggles sort direction per column.
// A column starts out ascending, so its first toggle sorts it descending.
type Table struct {
	records []domain.RecommendationRecord
	dirs    map[Column]Direction
	lang    language.Tag
}

// NewTable creates a table over a copy of records, kept in run order until sorted.
// Names are compared with the collation rules of lang.
func NewTable(records []domain.RecommendationRecord, lang language.Tag) *Table {
	return &Table{
		records: append([]domain.RecommendationRecord{}, records...),
		dirs:    make(map[Column]Direction),
		lang:    lang,
	}
}

// Records returns the rows in their current order.
func (t *Table) Records() []domain.RecommendationRecord {
	return append([]domain.RecommendationRecord{}, t.records...)
}

func (t *Table) direction(col Column) Direction {
	if d, ok := t.dirs[col]; ok {
		return d
	}
	return Ascending
}

// Toggle flips the direction of col and sorts the rows by it.
func (t *Table) Toggle(col Column) Direction {
	dir := Descending
	if t.direction(col) == Descending {
		dir = Ascending
	}
	t.dirs[col] = dir
	t.SortBy(col, dir)
	return dir
}

// SortBy sorts the rows by col in dir without touching the toggle state.
func (t *Table) SortBy(col Column, dir Direction) {
	less := t.less(col)
	sort.SliceStable(t.records, func(i, j int) bool {
		if dir == Descending {
			return less(t.records[j], t.records[i])
		}
		return less(t.records[i], t.records[j])
	})
}

func (t *Table) less(col Column) func(a, b domain.RecommendationRecord) bool {
	switch col {
	case ColumnName:
		c := collate.New(t.lang, collate.IgnoreCase)
		return func(a, b domain.RecommendationRecord) bool {
			return c.CompareString(a.Item.DisplayName(), b.Item.DisplayName()) < 0
		}
	case ColumnPrice:
		return func(a, b domain.RecommendationRecord) bool {
			return amount(a.CurrentPrice).LessThan(amount(b.CurrentPrice))
		}
	case ColumnPredicted:
		return func(a, b domain.RecommendationRecord) bool {
			return amount(a.PredictedPrice).LessThan(amount(b.PredictedPrice))
		}
	default:
		return func(a, b domain.RecommendationRecord) bool {
			return a.OverallChange.LessThan(b.OverallChange)
		}
	}
}

// amount sorts sentinels as zero.
func amount(p domain.Price) decimal.Decimal {
	if !p.IsAvailable() {
		return decimal.Zero
	}
	return p.Amount
}
