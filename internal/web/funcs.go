package web

import (
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"

	"uikits/internal/npmstats"
)

const (
	sparkWidth  = 300
	sparkHeight = 60
)

var funcs = template.FuncMap{
	"count":     npmstats.FormatCount,
	"growth":    formatGrowth,
	"date":      formatDate,
	"sparkline": sparkline,
	"primary":   primaryLabel,
}

// formatGrowth renders a signed percentage with one decimal.
func formatGrowth(pct float64) string {
	return fmt.Sprintf("%+.1f%%", pct)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("Jan 2, 2006")
}

// sparkline returns SVG polyline points for series scaled to the chart box.
func sparkline(series npmstats.DownloadSeries) string {
	if len(series) == 0 {
		return ""
	}
	var peak int64
	for _, s := range series {
		peak = max(peak, s.Downloads)
	}

	step := 0.0
	if len(series) > 1 {
		step = float64(sparkWidth) / float64(len(series)-1)
	}
	points := make([]string, 0, len(series))
	for i, s := range series {
		y := float64(sparkHeight)
		if peak > 0 {
			y = float64(sparkHeight) - float64(s.Downloads)/float64(peak)*float64(sparkHeight)
		}
		points = append(points,
			strconv.FormatFloat(float64(i)*step, 'f', 1, 64)+","+strconv.FormatFloat(y, 'f', 1, 64))
	}
	return strings.Join(points, " ")
}

func primaryLabel(primary bool) string {
	if primary {
		return "primary"
	}
	return "also supports"
}
