package analysis

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/cropctx/internal/dataset"
)

// Driver is the Pearson correlation of one context column with Crop_Yield.
type Driver struct {
	Column string  `json:"column"`
	Label  string  `json:"label"`
	R      float64 `json:"r"`
	N      int     `json:"n"`
}

// contextDrivers correlates each context column with the yield series over
// rows holding both. Columns with fewer than three pairs or zero variance are
// reported in notes instead. Results are sorted by |r|, strongest first.
func contextDrivers(ds *dataset.Dataset) (drivers []Driver, notes []string) {
	for _, cc := range dataset.ContextColumns {
		xs, ys := ds.Paired(cc.Column, dataset.ColCropYield)
		if len(xs) < 3 {
			notes = append(notes, fmt.Sprintf("%s: too few paired readings for a correlation (%d)", cc.Label, len(xs)))
			continue
		}
		r := stat.Correlation(xs, ys, nil)
		if math.IsNaN(r) || math.IsInf(r, 0) {
			notes = append(notes, fmt.Sprintf("%s: correlation undefined (constant values)", cc.Label))
			continue
		}
		if r > 1 {
			r = 1
		} else if r < -1 {
			r = -1
		}
		drivers = append(drivers, Driver{Column: cc.Column, Label: cc.Label, R: r, N: len(xs)})
	}
	sort.SliceStable(drivers, func(i, j int) bool {
		return math.Abs(drivers[i].R) > math.Abs(drivers[j].R)
	})
	return drivers, notes
}
