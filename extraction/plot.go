package extraction

import (
	"fmt"
	"image/color"
	"math"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/RyanBlaney/sonido-canto/algorithms/common"
	"github.com/RyanBlaney/sonido-canto/algorithms/temporal"
	"github.com/RyanBlaney/sonido-canto/algorithms/tonal"
	"github.com/RyanBlaney/sonido-canto/extraction/config"
)

const (
	plotWidth       = 12 * vg.Inch
	plotHeight      = 6 * vg.Inch
	plotDPI         = 100
	plotFloorDB     = -60.0
	plotPitchMargin = 2.0
	// minPlotSeconds keeps the time axis non-degenerate for empty recordings.
	minPlotSeconds = 0.001
)

var (
	colorAccepted  = color.RGBA{214, 240, 214, 255}
	colorRejected  = color.RGBA{228, 228, 228, 255}
	colorEnvelope  = color.RGBA{31, 119, 180, 255}
	colorThreshold = color.RGBA{214, 39, 40, 255}
	colorPitch     = color.RGBA{40, 40, 40, 255}
	colorMedian    = color.RGBA{255, 127, 14, 255}
)

// plotData collects what the analysis produced; any part may be nil when
// the analysis stopped early.
type plotData struct {
	cfg    *config.AnalysisConfig
	env    *temporal.Envelope
	track  *tonal.PitchTrack
	result *Result
}

// render draws the envelope panel above the pitch panel and writes a PNG.
// Note spans are shaded green when accepted and grey when rejected.
func (p *plotData) render(path string) error {
	seconds := math.Max(p.result.Raw.DurationMs/1000, minPlotSeconds)

	envPlot, err := p.envelopePlot(seconds)
	if err != nil {
		return fmt.Errorf("envelope panel: %w", err)
	}
	pitchPlot, err := p.pitchPlot(seconds)
	if err != nil {
		return fmt.Errorf("pitch panel: %w", err)
	}

	img := vgimg.NewWith(vgimg.UseWH(plotWidth, plotHeight), vgimg.UseDPI(plotDPI))
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      2,
		Cols:      1,
		PadX:      vg.Millimeter,
		PadY:      4 * vg.Millimeter,
		PadTop:    2 * vg.Millimeter,
		PadBottom: 2 * vg.Millimeter,
		PadLeft:   2 * vg.Millimeter,
		PadRight:  2 * vg.Millimeter,
	}
	plots := [][]*plot.Plot{{envPlot}, {pitchPlot}}
	canvases := plot.Align(plots, tiles, dc)
	for row := range plots {
		plots[row][0].Draw(canvases[row][0])
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("encode png: %w", err)
	}
	return f.Close()
}

func (p *plotData) envelopePlot(seconds float64) (*plot.Plot, error) {
	pl := plot.New()
	pl.Title.Text = "Syllable envelope"
	pl.X.Label.Text = "Time (s)"
	pl.Y.Label.Text = "Level (dB)"

	if err := p.addNoteSpans(pl, plotFloorDB, 0); err != nil {
		return nil, err
	}

	if p.env != nil && len(p.env.DB) > 0 {
		xys := make(plotter.XYs, len(p.env.DB))
		for i, db := range p.env.DB {
			xys[i] = plotter.XY{X: p.env.FrameToMs(i) / 1000, Y: clampDB(db)}
		}
		env, err := plotter.NewLine(xys)
		if err != nil {
			return nil, err
		}
		env.Color = colorEnvelope
		pl.Add(env)
	}

	threshold, err := plotter.NewLine(plotter.XYs{
		{X: 0, Y: p.cfg.DBThreshold},
		{X: seconds, Y: p.cfg.DBThreshold},
	})
	if err != nil {
		return nil, err
	}
	threshold.Color = colorThreshold
	threshold.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	pl.Add(threshold)

	pl.X.Min, pl.X.Max = 0, seconds
	pl.Y.Min, pl.Y.Max = plotFloorDB, 0
	return pl, nil
}

func (p *plotData) pitchPlot(seconds float64) (*plot.Plot, error) {
	lo, hi := p.pitchAxis()

	pl := plot.New()
	pl.Title.Text = "Pitch track"
	pl.X.Label.Text = "Time (s)"
	pl.Y.Label.Text = "MIDI"
	pl.Add(plotter.NewGrid())

	if err := p.addNoteSpans(pl, lo, hi); err != nil {
		return nil, err
	}

	if p.track != nil {
		var xys plotter.XYs
		for _, f := range p.track.Frames {
			if !f.Voiced() {
				continue
			}
			if m := f.MIDI(); m >= lo && m <= hi {
				xys = append(xys, plotter.XY{X: f.Time, Y: m})
			}
		}
		if len(xys) > 0 {
			frames, err := plotter.NewScatter(xys)
			if err != nil {
				return nil, err
			}
			frames.GlyphStyle = draw.GlyphStyle{
				Color:  colorPitch,
				Radius: vg.Points(1),
				Shape:  draw.CircleGlyph{},
			}
			pl.Add(frames)
		}
	}

	for _, n := range p.result.Raw.Notes {
		median, err := plotter.NewLine(plotter.XYs{
			{X: n.ExtendedOnsetMs / 1000, Y: n.MedianPitch},
			{X: n.OffsetMs / 1000, Y: n.MedianPitch},
		})
		if err != nil {
			return nil, err
		}
		median.Color = colorMedian
		median.Width = vg.Points(3)
		pl.Add(median)
	}

	pl.X.Min, pl.X.Max = 0, seconds
	pl.Y.Min, pl.Y.Max = lo, hi
	return pl, nil
}

// addNoteSpans shades every segment between y0 and y1, rejected ones first.
func (p *plotData) addNoteSpans(pl *plot.Plot, y0, y1 float64) error {
	for _, group := range []struct {
		notes []Note
		c     color.Color
	}{{p.result.Raw.Rejected, colorRejected}, {p.result.Raw.Notes, colorAccepted}} {
		for _, n := range group.notes {
			x0, x1 := n.OnsetMs/1000, n.OffsetMs/1000
			span, err := plotter.NewPolygon(plotter.XYs{
				{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1},
			})
			if err != nil {
				return err
			}
			span.Color = group.c
			span.LineStyle.Width = 0
			pl.Add(span)
		}
	}
	return nil
}

func clampDB(db float64) float64 {
	if math.IsNaN(db) {
		return plotFloorDB
	}
	return math.Max(plotFloorDB, math.Min(0, db))
}

// pitchAxis spans the allowed range, widened to the bulk (5th to 95th
// percentile) of voiced frames that fall outside it.
func (p *plotData) pitchAxis() (float64, float64) {
	lo, hi := p.cfg.PitchRangeAllowed[0], p.cfg.PitchRangeAllowed[1]
	if p.track != nil {
		voiced := make([]float64, 0, len(p.track.Frames))
		for _, f := range p.track.Frames {
			if f.Voiced() {
				voiced = append(voiced, f.MIDI())
			}
		}
		if len(voiced) > 0 {
			lo = math.Min(lo, common.Percentile(voiced, 0.05))
			hi = math.Max(hi, common.Percentile(voiced, 0.95))
		}
	}
	return lo - plotPitchMargin, hi + plotPitchMargin
}
