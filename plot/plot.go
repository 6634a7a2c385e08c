// Package plot renders the final figure of a localization run.
package plot

import (
	"fmt"
	"image/color"

	particlefilter "github.com/jhoydich/unicycle-pf"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var (
	truthColor     = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	estimateColor  = color.RGBA{R: 255, G: 140, A: 255}
	landmarkColor  = color.RGBA{R: 191, B: 191, A: 255}
	startColor     = color.RGBA{G: 128, A: 255}
	endColor       = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	estStartColor  = color.RGBA{G: 255, A: 255}
	estEndColor    = color.RGBA{R: 255, A: 255}
	markerRadius   = vg.Points(4)
	figureSize     = 8 * vg.Inch
	trajectoryName = "2D Localization Particle Filter"
)

type marker struct {
	label string
	pt    plotter.XY
	color color.Color
}

// endpoints returns the start and end markers of both paths. estimates[0] is
// the prior, so the estimated path starts at the first filtered estimate.
func endpoints(truth, estimates plotter.XYs) []marker {
	estStart := estimates[0]
	if len(estimates) > 1 {
		estStart = estimates[1]
	}
	return []marker{
		{"true start point", truth[0], startColor},
		{"truth end point", truth[len(truth)-1], endColor},
		{"estimated start point", estStart, estStartColor},
		{"estimated end point", estimates[len(estimates)-1], estEndColor},
	}
}

// Trajectory draws the true and estimated paths, their start and end points
// and the landmarks, and saves the figure to path. The image format follows
// the file extension (png, svg, pdf...).
func Trajectory(path string, truth []particlefilter.Particle, estimates []particlefilter.Estimate, landmarks []particlefilter.Landmark) error {
	if len(truth) == 0 || len(estimates) == 0 {
		return fmt.Errorf("%w: nothing to plot", particlefilter.ErrMalformedInput)
	}

	p := plot.New()
	p.Title.Text = trajectoryName
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"
	p.Add(plotter.NewGrid())

	truthPts := make(plotter.XYs, len(truth))
	for i, s := range truth {
		truthPts[i].X, truthPts[i].Y = s.X, s.Y
	}
	estPts := make(plotter.XYs, len(estimates))
	for i, e := range estimates {
		estPts[i].X, estPts[i].Y = e.X, e.Y
	}

	truthLine, err := plotter.NewLine(truthPts)
	if err != nil {
		return fmt.Errorf("truth line: %w", err)
	}
	truthLine.LineStyle.Width = vg.Points(1.5)
	truthLine.LineStyle.Color = truthColor
	p.Add(truthLine)
	p.Legend.Add("truth trajectory", truthLine)

	estLine, err := plotter.NewLine(estPts)
	if err != nil {
		return fmt.Errorf("estimate line: %w", err)
	}
	estLine.LineStyle.Width = vg.Points(1.5)
	estLine.LineStyle.Color = estimateColor
	p.Add(estLine)
	p.Legend.Add("PF estimated trajectory", estLine)

	for _, m := range endpoints(truthPts, estPts) {
		s, err := plotter.NewScatter(plotter.XYs{m.pt})
		if err != nil {
			return fmt.Errorf("%s: %w", m.label, err)
		}
		s.Shape = draw.CrossGlyph{}
		s.GlyphStyle.Color = m.color
		s.GlyphStyle.Radius = markerRadius
		p.Add(s)
		p.Legend.Add(m.label, s)
	}

	if len(landmarks) > 0 {
		lmPts := make(plotter.XYs, len(landmarks))
		for i, l := range landmarks {
			lmPts[i].X, lmPts[i].Y = l.X, l.Y
		}
		s, err := plotter.NewScatter(lmPts)
		if err != nil {
			return fmt.Errorf("landmarks: %w", err)
		}
		s.Shape = draw.PlusGlyph{}
		s.GlyphStyle.Color = landmarkColor
		s.GlyphStyle.Radius = markerRadius
		p.Add(s)
		p.Legend.Add("landmarks", s)
	}

	// keep a margin around the data like the animated view did
	p.X.Min -= 1
	p.X.Max += 1
	p.Y.Min -= 1
	p.Y.Max += 1

	if err := p.Save(figureSize, figureSize, path); err != nil {
		return fmt.Errorf("saving plot to %s: %w", path, err)
	}
	return nil
}
