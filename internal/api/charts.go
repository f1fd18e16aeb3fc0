package api

import (
	"bytes"
	"fmt"
	"image/color"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/proximity.report/internal/httputil"
	"github.com/banshee-data/proximity.report/internal/sim"
	"github.com/banshee-data/proximity.report/internal/units"
)

// distanceChart renders the retained history as an interactive HTML line
// chart using go-echarts.
func (s *Server) distanceChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	u, err := s.requestUnits(r)
	if err != nil {
		writeError(w, err)
		return
	}

	history := s.stats.History()
	ticks := make([]int, 0, len(history))
	distances := make([]opts.LineData, 0, len(history))
	speeds := make([]opts.LineData, 0, len(history))
	for _, snap := range history {
		ticks = append(ticks, snap.ElapsedSeconds)
		distances = append(distances, opts.LineData{Value: units.ConvertDistance(snap.Distance, u)})
		speeds = append(speeds, opts.LineData{Value: units.SpeedPercent(snap.Speed)})
	}
	threshold := units.ConvertDistance(s.collisionThreshold(), u)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Proximity", Theme: "dark", Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Distance to obstacle", Subtitle: fmt.Sprintf("samples=%d threshold=%.1f %s", len(history), threshold, u)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Elapsed (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: fmt.Sprintf("Distance (%s) / Speed (%%)", u), NameLocation: "middle", NameGap: 40}),
	)
	line.SetXAxis(ticks).
		AddSeries("distance", distances, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)})).
		AddSeries("speed %", speeds, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// distancePlot renders the retained distance history as a PNG using
// gonum/plot, with the collision threshold drawn as a horizontal line.
func (s *Server) distancePlot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	u, err := s.requestUnits(r)
	if err != nil {
		writeError(w, err)
		return
	}

	p, err := buildDistancePlot(s.stats.History(), units.ConvertDistance(s.collisionThreshold(), u), u)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to build plot: %v", err))
		return
	}
	wt, err := p.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render plot: %v", err))
		return
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to encode plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

func buildDistancePlot(history []sim.Snapshot, threshold float64, u string) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Distance to obstacle"
	p.X.Label.Text = "Elapsed (s)"
	p.Y.Label.Text = fmt.Sprintf("Distance (%s)", u)
	p.Legend.Top = true
	p.Legend.Left = false

	if len(history) == 0 {
		p.X.Min, p.X.Max = 0, 1
		p.Y.Min, p.Y.Max = 0, 1
		return p, nil
	}

	pts := make(plotter.XYs, len(history))
	for i, snap := range history {
		pts[i] = plotter.XY{X: float64(snap.ElapsedSeconds), Y: units.ConvertDistance(snap.Distance, u)}
	}
	distLine, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	distLine.Width = vg.Points(1)
	p.Add(distLine)
	p.Legend.Add("distance", distLine)

	limit := plotter.XYs{
		{X: pts[0].X, Y: threshold},
		{X: pts[len(pts)-1].X, Y: threshold},
	}
	limitLine, err := plotter.NewLine(limit)
	if err != nil {
		return nil, err
	}
	limitLine.Color = color.RGBA{R: 220, G: 50, B: 47, A: 255}
	limitLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(limitLine)
	p.Legend.Add("collision threshold", limitLine)
	return p, nil
}

func (s *Server) collisionThreshold() float64 {
	return s.d.Params().CollisionThreshold
}
