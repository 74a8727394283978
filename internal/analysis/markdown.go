package analysis

import (
	"fmt"
	"strings"
)

// Markdown renders the report with bracketed section headings.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("> %s\n\n", Disclaimer))

	b.WriteString("[CONTEXT STABILITY INDICATORS]\n")
	if r.Dataset != "" {
		name := r.Dataset
		if r.Sheet != "" {
			name = fmt.Sprintf("%s (sheet %s)", name, r.Sheet)
		}
		b.WriteString(fmt.Sprintf("File: %s\n", name))
	}
	b.WriteString(fmt.Sprintf("Rows: %d (used %d)\n\n", r.Rows, r.Stats.Samples))
	b.WriteString(fmt.Sprintf("- Yield Stability Index: %.3f (%s)\n", r.Stats.StabilityIndex, r.Bucket))
	b.WriteString(fmt.Sprintf("- Context Deviation: %.2f\n", r.Stats.ContextDeviation))
	b.WriteString(fmt.Sprintf("- Latent Context Failure: %s\n", yesNo(r.Stats.ContextFailure)))
	lo, hi := r.Stats.FailureBand()
	b.WriteString(fmt.Sprintf("- Yield mean %.4g, std %.4g, current %.4g (band %.4g to %.4g at %.1fσ)\n",
		r.Stats.MeanYield, r.Stats.StdYield, r.Stats.CurrentYield, lo, hi, r.Stats.FailureSigma))

	b.WriteString("\n[CURRENT CONTEXT SNAPSHOT]\n")
	for _, f := range r.Snapshot {
		b.WriteString("- " + f.String() + "\n")
	}

	b.WriteString(fmt.Sprintf("\n[COUNTERFACTUAL CONTEXT REPAIR] (%s)\n", r.AdvisoryMode))
	for _, kv := range r.Advisory.Fields() {
		b.WriteString(fmt.Sprintf("- %s: %s\n", kv[0], kv[1]))
	}
	if r.Advisory.Rationale != "" {
		b.WriteString(fmt.Sprintf("\nRationale: %s\n", r.Advisory.Rationale))
	}

	if len(r.Columns) > 0 {
		b.WriteString("\n[COLUMN PROFILE]\n")
		for _, c := range r.Columns {
			total := c.NonNull + c.Missing
			missPct := 0.0
			if total > 0 {
				missPct = float64(c.Missing) * 100.0 / float64(total)
			}
			b.WriteString(fmt.Sprintf("- %s: non-null %d, missing %.1f%%", c.Name, c.NonNull, missPct))
			if c.NonNull > 0 {
				b.WriteString(fmt.Sprintf(", min %.4g, max %.4g, mean %.4g, std %.4g", c.Min, c.Max, c.Mean, c.Std))
			}
			if c.OutlierThreshold > 0 {
				b.WriteString(fmt.Sprintf("; outliers: %d above |z|>%.1f", c.OutliersCount, c.OutlierThreshold))
				if c.OutliersMaxAbsZ > 0 {
					b.WriteString(fmt.Sprintf(" (max |z|≈%.2f)", c.OutliersMaxAbsZ))
				}
			}
			b.WriteString("\n")
		}
	}

	if len(r.Drivers) > 0 {
		b.WriteString("\n[CONTEXT DRIVERS]\n")
		for _, d := range r.Drivers {
			b.WriteString(fmt.Sprintf("- %s ~ Crop_Yield: r=%.3f (n=%d)\n", d.Label, d.R, d.N))
		}
	}

	b.WriteString("\n[NOTES]\n")
	for _, w := range r.Warnings {
		b.WriteString("- ")
		b.WriteString(w)
		b.WriteString("\n")
	}
	b.WriteString("- ")
	b.WriteString(Closing)
	b.WriteString("\n")
	return b.String()
}
