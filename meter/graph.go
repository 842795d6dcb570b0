package meter

import (
	"fmt"
	"math"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

// conditionBands are the classification boundaries drawn behind the lux
// series, darkest to brightest.
var conditionBands = []struct {
	lux   int
	title string
	color string
}{
	{500, Shade, "DarkGrey"},
	{1000, PartialShade, "WhiteSmoke"},
	{10000, PartialSun, "SkyBlue"},
	{25000, FullSun, "Yellow"},
}

func (m *Meter) handleGraph(w http.ResponseWriter, r *http.Request) {
	jobID, from, to, err := rangeQuery(r, graphSpan)
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	records, err := m.History(r.Context(), jobID, from, to)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}

	var luxValues []opts.LineData
	var timeValues []string
	var maxLux int
	for _, rec := range records {
		if rec.Lux > float64(maxLux) {
			// Round up to the nearest 5000 to keep the axis stable.
			maxLux = int(math.Ceil(rec.Lux/5000) * 5000)
		}
		luxValues = append(luxValues, opts.LineData{Value: rec.Lux})
		timeValues = append(timeValues, rec.CreatedAt.Format("2006-01-02 15:04:05"))
	}

	line := charts.NewLine()
	for _, band := range conditionBands {
		level := make([]opts.LineData, len(timeValues))
		for i := range level {
			level[i] = opts.LineData{Value: band.lux}
		}
		line.AddSeries(band.title, level, charts.WithLineChartOpts(opts.LineChart{
			Color: band.color,
		}))
	}

	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme: types.ThemeChalk,
		}),
		charts.WithTitleOpts(opts.Title{
			Title: "Recorded lux",
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Name: "Time",
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name: "Lux",
			Min:  "0",
			Max:  fmt.Sprintf("%d", maxLux),
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show:      true,
			Trigger:   "axis",
			TriggerOn: "mousemove",
			Formatter: "{a4}: {c4}<br> Time: {b0}",
		}),
		charts.WithToolboxOpts(opts.Toolbox{
			Show: true,
			Feature: &opts.ToolBoxFeature{
				SaveAsImage: &opts.ToolBoxFeatureSaveAsImage{
					Show:  true,
					Title: "Save as Image",
					Name:  "ambient",
				},
			},
		}),
	)
	line.SetXAxis(timeValues).AddSeries("Lux", luxValues)

	page := components.NewPage()
	page.AddCharts(line)

	w.Header().Set("Content-Type", "text/html")
	if err = page.Render(w); err != nil {
		m.log.Error("graph render failed", "error", err)
	}
}
