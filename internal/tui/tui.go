// Package tui renders the context-stability dashboard in a terminal.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	"go.uber.org/zap"

	"github.com/KaramelBytes/cropctx/internal/analysis"
)

// Loader produces a fresh report and the yield series it was computed from.
type Loader func(ctx context.Context) (*analysis.Report, []float64, error)

// Dashboard owns the terminal while Run is active.
type Dashboard struct {
	load     Loader
	interval time.Duration
	log      *zap.Logger
	v        *views
}

// New returns a dashboard that reloads every interval (0 disables the ticker).
func New(load Loader, interval time.Duration, log *zap.Logger) *Dashboard {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dashboard{load: load, interval: interval, log: log, v: newViews()}
}

// Run draws until q or Ctrl-C is pressed or ctx is cancelled. r reloads.
func (d *Dashboard) Run(ctx context.Context) error {
	if err := ui.Init(); err != nil {
		return fmt.Errorf("failed to initialize termui: %w", err)
	}
	defer ui.Close()

	grid := d.v.grid()
	w, h := ui.TerminalDimensions()
	grid.SetRect(0, 0, w, h)

	d.reload(ctx)
	ui.Render(grid)

	var tick <-chan time.Time
	if d.interval > 0 {
		t := time.NewTicker(d.interval)
		defer t.Stop()
		tick = t.C
	}
	events := ui.PollEvents()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-events:
			switch e.ID {
			case "q", "<C-c>":
				return nil
			case "r":
				d.reload(ctx)
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
			}
			ui.Render(grid)
		case <-tick:
			d.reload(ctx)
			ui.Render(grid)
		}
	}
}

func (d *Dashboard) reload(ctx context.Context) {
	rep, series, err := d.load(ctx)
	if err != nil {
		d.log.Warn("dashboard reload failed", zap.Error(err))
	} else {
		d.log.Debug("dashboard reloaded", zap.String("report", rep.ID))
	}
	d.v.update(rep, series, err, time.Now())
}

type views struct {
	indicators *widgets.Paragraph
	snapshot   *widgets.Paragraph
	advisory   *widgets.Paragraph
	status     *widgets.Paragraph
	plot       *widgets.Plot
}

func newViews() *views {
	v := &views{
		indicators: widgets.NewParagraph(),
		snapshot:   widgets.NewParagraph(),
		advisory:   widgets.NewParagraph(),
		status:     widgets.NewParagraph(),
		plot:       widgets.NewPlot(),
	}
	v.indicators.Title = "Context Stability Indicators"
	v.indicators.BorderStyle.Fg = ui.ColorYellow
	v.indicators.TitleStyle.Fg = ui.ColorYellow
	v.snapshot.Title = "Current Context Snapshot"
	v.advisory.Title = "Counterfactual Context Repair"
	v.status.Title = "cropctx  (q quit, r reload)"
	v.plot.Title = "Crop_Yield"
	v.plot.Marker = widgets.MarkerBraille
	v.plot.AxesColor = ui.ColorWhite
	v.plot.LineColors = []ui.Color{ui.ColorCyan, ui.ColorGreen, ui.ColorRed, ui.ColorRed}
	return v
}

func (v *views) grid() *ui.Grid {
	g := ui.NewGrid()
	g.Set(
		ui.NewRow(0.12, v.status),
		ui.NewRow(0.44,
			ui.NewCol(0.34, v.indicators),
			ui.NewCol(0.33, v.snapshot),
			ui.NewCol(0.33, v.advisory),
		),
		ui.NewRow(0.44, v.plot),
	)
	return g
}

// update fills the widgets. On error the previous readings stay visible and
// the status line shows the failure.
func (v *views) update(rep *analysis.Report, series []float64, err error, now time.Time) {
	if err != nil {
		v.status.Text = fmt.Sprintf("[reload failed %s: %v](fg:red)", now.Format("15:04:05"), err)
		return
	}
	v.status.Text = fmt.Sprintf("%s  %s  %s", rep.Dataset, now.Format("15:04:05"), analysis.Disclaimer)
	v.indicators.Text = indicatorsText(rep)
	v.snapshot.Text = snapshotText(rep)
	v.advisory.Text = advisoryText(rep)
	if len(series) >= 2 {
		v.plot.Data = plotData(series, rep)
	}
}

func indicatorsText(rep *analysis.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Yield Stability Index: %.3f (%s)\n", rep.Stats.StabilityIndex, rep.Bucket)
	fmt.Fprintf(&b, "Context Deviation: %.2f\n", rep.Stats.ContextDeviation)
	if rep.Stats.ContextFailure {
		b.WriteString("Latent Context Failure: [YES](fg:red,mod:bold)\n")
	} else {
		b.WriteString("Latent Context Failure: [NO](fg:green)\n")
	}
	fmt.Fprintf(&b, "Readings: %d", rep.Stats.Samples)
	return b.String()
}

func snapshotText(rep *analysis.Report) string {
	lines := make([]string, 0, len(rep.Snapshot))
	for _, f := range rep.Snapshot {
		lines = append(lines, f.String())
	}
	return strings.Join(lines, "\n")
}

func advisoryText(rep *analysis.Report) string {
	fields := rep.Advisory.Fields()
	lines := make([]string, 0, len(fields))
	for _, kv := range fields {
		lines = append(lines, fmt.Sprintf("%s: %s", kv[0], kv[1]))
	}
	return strings.Join(lines, "\n")
}

// plotData returns the series followed by constant mean and band lines.
func plotData(series []float64, rep *analysis.Report) [][]float64 {
	lo, hi := rep.Stats.FailureBand()
	mean := make([]float64, len(series))
	upper := make([]float64, len(series))
	lower := make([]float64, len(series))
	for i := range series {
		mean[i] = rep.Stats.MeanYield
		upper[i] = hi
		lower[i] = lo
	}
	return [][]float64{append([]float64(nil), series...), mean, upper, lower}
}
