// Package analysis turns a loaded dataset into a context-stability report.
package analysis

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/cropctx/internal/advisory"
	"github.com/KaramelBytes/cropctx/internal/contextstats"
	"github.com/KaramelBytes/cropctx/internal/dataset"
)

// Disclaimer accompanies every rendering of a report.
const Disclaimer = "This system does NOT perform crop yield prediction. " +
	"Yield values are used ONLY as temporal signals to detect context degradation and stability loss."

// Closing is the preventive-repair note shown after the advisory.
const Closing = "Focus is preventive context repair, not yield optimization: " +
	"silent degradation in soil-climate-crop behavior is flagged before visible yield collapse."

// Options controls report generation.
type Options struct {
	Stats      contextstats.Options
	Thresholds contextstats.Thresholds
	// Advisor produces the repair recommendation. Nil uses derived rules
	// with Thresholds.
	Advisor *advisory.Advisor
	// Profile adds per-column statistics and outlier counts.
	Profile          bool
	OutlierThreshold float64
	// Drivers adds context-column correlations with Crop_Yield.
	Drivers bool
	// Now stamps the report; nil means time.Now.
	Now func() time.Time
}

// DefaultOptions returns options with profiling and drivers enabled.
func DefaultOptions() Options {
	return Options{
		Stats:            contextstats.DefaultOptions(),
		Thresholds:       contextstats.DefaultThresholds(),
		Profile:          true,
		OutlierThreshold: DefaultOutlierThreshold,
		Drivers:          true,
	}
}

// Report is the outcome of one analysis.
type Report struct {
	ID           string                  `json:"id"`
	Dataset      string                  `json:"dataset"`
	Sheet        string                  `json:"sheet,omitempty"`
	GeneratedAt  time.Time               `json:"generatedAt"`
	Rows         int                     `json:"rows"`
	Stats        contextstats.Result     `json:"stats"`
	Bucket       contextstats.Bucket     `json:"bucket"`
	Snapshot     dataset.Snapshot        `json:"snapshot"`
	Advisory     advisory.Recommendation `json:"advisory"`
	AdvisoryMode advisory.Mode           `json:"advisoryMode"`
	Columns      []ColumnSummary         `json:"columns,omitempty"`
	Drivers      []Driver                `json:"drivers,omitempty"`
	Warnings     []string                `json:"warnings,omitempty"`
}

// Run analyzes ds. A yield series shorter than contextstats.MinSamples
// returns an error matching contextstats.ErrInsufficientData.
func Run(ds *dataset.Dataset, opt Options) (*Report, error) {
	if ds == nil {
		return nil, fmt.Errorf("analysis: nil dataset")
	}
	res, err := contextstats.ComputeWithOptions(ds.YieldSeries(), opt.Stats)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ds.Name, err)
	}
	th := opt.Thresholds
	if th.Validate() != nil {
		th = contextstats.DefaultThresholds()
	}
	adv := opt.Advisor
	if adv == nil {
		adv = advisory.New(advisory.ModeDerived, th, nil)
	}
	now := time.Now
	if opt.Now != nil {
		now = opt.Now
	}

	rep := &Report{
		ID:           uuid.NewString(),
		Dataset:      ds.Name,
		Sheet:        ds.Sheet,
		GeneratedAt:  now().UTC(),
		Rows:         ds.RowsRead,
		Stats:        res,
		Bucket:       res.Bucket(th),
		Snapshot:     ds.Latest(),
		Advisory:     adv.Recommend(res),
		AdvisoryMode: adv.Mode(),
		Warnings:     append([]string(nil), ds.Warnings...),
	}
	if opt.Profile {
		rep.Columns = profileColumns(ds, opt.OutlierThreshold)
	}
	if opt.Drivers {
		drivers, notes := contextDrivers(ds)
		rep.Drivers = drivers
		rep.Warnings = append(rep.Warnings, notes...)
	}
	return rep, nil
}

// Headline is a one-line summary for listings.
func (r *Report) Headline() string {
	return fmt.Sprintf("stability %.3f (%s), deviation %.2f, failure %s",
		r.Stats.StabilityIndex, r.Bucket, r.Stats.ContextDeviation, yesNo(r.Stats.ContextFailure))
}

// JSON returns the indented JSON encoding of r.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}
