// Package dataset loads crop yield datasets and exposes the yield series and
// the latest soil–climate context readings.
package dataset

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Canonical column names. Header matching is case-insensitive.
const (
	ColCropYield   = "Crop_Yield"
	ColSoilPH      = "Soil_pH"
	ColTemperature = "Temperature"
	ColHumidity    = "Humidity"
	ColNitrogen    = "N"
	ColPhosphorus  = "P"
	ColPotassium   = "K"
)

// RequiredColumns must all be present in a dataset header.
var RequiredColumns = []string{
	ColCropYield, ColSoilPH, ColTemperature, ColHumidity, ColNitrogen, ColPhosphorus, ColPotassium,
}

// ContextColumns are the environmental readings shown in the context snapshot,
// paired with their display labels.
var ContextColumns = []struct {
	Column string
	Label  string
}{
	{ColSoilPH, "Soil_pH"},
	{ColTemperature, "Temperature"},
	{ColHumidity, "Humidity"},
	{ColNitrogen, "Nitrogen (N)"},
	{ColPhosphorus, "Phosphorus (P)"},
	{ColPotassium, "Potassium (K)"},
}

// Record is one usable data row. Values holds every numeric cell keyed by
// column name; empty or non-numeric cells are absent.
type Record struct {
	Row    int
	Values map[string]float64
}

// Value returns the numeric value of column and whether it was present.
func (r Record) Value(column string) (float64, bool) {
	v, ok := r.Values[column]
	return v, ok
}

// Dataset is a loaded table. It is an ordinary value owned by whoever loaded
// it; nothing in this package keeps a reference after Load returns.
type Dataset struct {
	Name     string
	Path     string
	Sheet    string
	Columns  []string
	Records  []Record
	RowsRead int
	Warnings []string
}

// Len returns the number of usable records.
func (d *Dataset) Len() int { return len(d.Records) }

// YieldSeries returns Crop_Yield in row order. Every record carries a yield.
func (d *Dataset) YieldSeries() []float64 {
	out := make([]float64, 0, len(d.Records))
	for _, r := range d.Records {
		out = append(out, r.Values[ColCropYield])
	}
	return out
}

// Column returns the present values of column in row order and how many
// records lacked it.
func (d *Dataset) Column(column string) (values []float64, missing int) {
	for _, r := range d.Records {
		if v, ok := r.Values[column]; ok {
			values = append(values, v)
		} else {
			missing++
		}
	}
	return values, missing
}

// Paired returns aligned values of columns a and b from records holding both.
func (d *Dataset) Paired(a, b string) (xs, ys []float64) {
	for _, r := range d.Records {
		x, okx := r.Values[a]
		y, oky := r.Values[b]
		if okx && oky {
			xs = append(xs, x)
			ys = append(ys, y)
		}
	}
	return xs, ys
}

// NumericColumns lists header columns that hold at least one numeric value.
func (d *Dataset) NumericColumns() []string {
	seen := make(map[string]bool, len(d.Columns))
	for _, r := range d.Records {
		for k := range r.Values {
			seen[k] = true
		}
	}
	var out []string
	for _, c := range d.Columns {
		if seen[c] {
			out = append(out, c)
		}
	}
	return out
}

// SnapshotField is one reading of the latest context.
type SnapshotField struct {
	Label   string  `json:"label"`
	Column  string  `json:"column"`
	Value   float64 `json:"value"`
	Present bool    `json:"present"`
}

// String renders the reading unrounded, or n/a when it is absent.
func (f SnapshotField) String() string {
	if !f.Present {
		return f.Label + ": n/a"
	}
	return f.Label + ": " + strconv.FormatFloat(f.Value, 'f', -1, 64)
}

// Snapshot is the latest context, in display order.
type Snapshot []SnapshotField

// Latest returns the context readings of the last record, which is the last
// row with a numeric yield.
func (d *Dataset) Latest() Snapshot {
	snap := make(Snapshot, 0, len(ContextColumns))
	var last Record
	if n := len(d.Records); n > 0 {
		last = d.Records[n-1]
	}
	for _, cc := range ContextColumns {
		v, ok := last.Value(cc.Column)
		snap = append(snap, SnapshotField{Label: cc.Label, Column: cc.Column, Value: v, Present: ok})
	}
	return snap
}

// MarshalJSON renders the snapshot as an object keyed by label, keeping
// display order. Absent readings are null.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, f := range s {
		if i > 0 {
			b.WriteByte(',')
		}
		k, err := json.Marshal(f.Label)
		if err != nil {
			return nil, err
		}
		b.Write(k)
		b.WriteByte(':')
		if !f.Present {
			b.WriteString("null")
			continue
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		b.Write(v)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// canonicalName maps a header cell to its canonical column name.
func canonicalName(h string) string {
	h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	for _, c := range RequiredColumns {
		if strings.EqualFold(h, c) {
			return c
		}
	}
	return h
}
