package report

import (
	"bytes"
	"fmt"
	"io"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/carbocation/pfx"
	"github.com/wcharczuk/go-chart/v2"
)

// DensityPoints is the number of grid points per density curve.
const DensityPoints = 512

// PlotFormats maps the accepted plot formats to go-chart renderers.
var PlotFormats = map[string]chart.RendererProvider{
	"png": chart.PNG,
	"svg": chart.SVG,
}

// PlotDensity renders one overlaid density curve per sample.
func PlotDensity(w io.Writer, data []SampleValues, format, title string) error {
	renderer, exists := PlotFormats[format]
	if !exists {
		return fmt.Errorf("plot format %q is not one of png, svg", format)
	}

	series := make([]chart.Series, 0, len(data))
	for _, sv := range data {
		xs, ys, err := Density(sv.Values, DensityPoints)
		if err != nil {
			return fmt.Errorf("%s: %w", sv.Sample, err)
		}
		series = append(series, chart.ContinuousSeries{
			Name:    sv.Sample,
			XValues: xs,
			YValues: ys,
		})
	}

	graph := chart.Chart{
		Title:  title,
		Width:  1024,
		Height: 640,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 20, Right: 160, Bottom: 20},
		},
		XAxis: chart.XAxis{
			Name: "log10(count + 1)",
		},
		YAxis: chart.YAxis{
			Name: "density",
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.LegendLeft(&graph)}

	// Render to a byte buffer so a failed render writes nothing
	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(renderer, buffer); err != nil {
		return pfx.Err(err)
	}

	_, err := buffer.WriteTo(w)
	return pfx.Err(err)
}

// FprintHistogram prints a terminal histogram of every value in data.
func FprintHistogram(w io.Writer, data []SampleValues, bins int) error {
	all := make([]float64, 0)
	for _, sv := range data {
		all = append(all, sv.Values...)
	}
	if len(all) < 1 {
		return nil
	}

	hist := histogram.Hist(bins, all)
	return histogram.Fprint(w, hist, histogram.Linear(40))
}
