// Package chart draws the yield series with its mean and failure band.
package chart

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/KaramelBytes/cropctx/internal/contextstats"
)

// Options sets the canvas size and title.
type Options struct {
	Width  vg.Length
	Height vg.Length
	Title  string
}

// DefaultOptions returns an 8x4 inch canvas.
func DefaultOptions() Options {
	return Options{Width: 8 * vg.Inch, Height: 4 * vg.Inch, Title: "Crop_Yield as a temporal signal"}
}

var (
	seriesColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	meanColor   = color.RGBA{R: 44, G: 160, B: 44, A: 255}
	bandColor   = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	failColor   = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// RenderYield writes a PNG of series to w using DefaultOptions.
func RenderYield(series []float64, res contextstats.Result, w io.Writer) error {
	return Render(series, res, w, DefaultOptions())
}

// Render writes a PNG of series, the mean line and the band
// mean ± FailureSigma·std. The latest reading is highlighted when it is a
// context failure.
func Render(series []float64, res contextstats.Result, w io.Writer, opt Options) error {
	if len(series) < contextstats.MinSamples {
		return &contextstats.InsufficientDataError{Got: len(series), Need: contextstats.MinSamples}
	}
	if opt.Width <= 0 || opt.Height <= 0 {
		d := DefaultOptions()
		opt.Width, opt.Height = d.Width, d.Height
	}

	p := plot.New()
	p.Title.Text = opt.Title
	p.Title.TextStyle.Font.Size = vg.Points(14)
	p.X.Label.Text = "Reading"
	p.Y.Label.Text = "Crop_Yield"
	p.Add(plotter.NewGrid())

	points := make(plotter.XYs, len(series))
	for i, v := range series {
		points[i].X = float64(i + 1)
		points[i].Y = v
	}
	line, scatter, err := plotter.NewLinePoints(points)
	if err != nil {
		return fmt.Errorf("yield series: %w", err)
	}
	line.Color = seriesColor
	line.Width = vg.Points(1.5)
	scatter.Color = seriesColor
	scatter.Shape = draw.CircleGlyph{}
	scatter.Radius = vg.Points(2.5)

	first, last := 1.0, float64(len(series))
	mean, err := hline(first, last, res.MeanYield, meanColor, nil)
	if err != nil {
		return err
	}
	lo, hi := res.FailureBand()
	dashes := []vg.Length{vg.Points(4), vg.Points(4)}
	loLine, err := hline(first, last, lo, bandColor, dashes)
	if err != nil {
		return err
	}
	hiLine, err := hline(first, last, hi, bandColor, dashes)
	if err != nil {
		return err
	}
	p.Add(loLine, hiLine, mean, line, scatter)

	if res.ContextFailure {
		cur, err := plotter.NewScatter(plotter.XYs{points[len(points)-1]})
		if err != nil {
			return fmt.Errorf("current reading: %w", err)
		}
		cur.Color = failColor
		cur.Shape = draw.RingGlyph{}
		cur.Radius = vg.Points(6)
		p.Add(cur)
		p.Legend.Add("context failure", cur)
	}
	p.Legend.Add("yield", line, scatter)
	p.Legend.Add("mean", mean)
	p.Legend.Add(fmt.Sprintf("±%.1fσ band", res.FailureSigma), hiLine)
	p.Legend.Top = true

	wt, err := p.WriterTo(opt.Width, opt.Height, "png")
	if err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write chart: %w", err)
	}
	return nil
}

func hline(x0, x1, y float64, c color.Color, dashes []vg.Length) (*plotter.Line, error) {
	l, err := plotter.NewLine(plotter.XYs{{X: x0, Y: y}, {X: x1, Y: y}})
	if err != nil {
		return nil, fmt.Errorf("reference line: %w", err)
	}
	l.Color = c
	l.Width = vg.Points(1)
	l.Dashes = dashes
	return l, nil
}
