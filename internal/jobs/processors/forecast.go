package processors

import (
	"context"
	"fmt"
	"math"
	"time"

	"facility-alerting/internal/errs"
	"facility-alerting/internal/jobs"
	"facility-alerting/internal/models"
)

const (
	defaultForecastMetric = "consumption_kwh"
	historyDays           = 90
	minHistoryPoints      = 2
)

// forecastMetrics maps the supported metrics to their daily aggregate.
var forecastMetrics = map[string]string{
	"consumption_kwh": "SUM(consumption_kwh)",
	"demand_kw":       "MAX(demand_kw)",
}

// Forecast projects a building's daily consumption forward with a linear
// trend fitted to its history.
type Forecast struct {
	Deps
}

type forecastPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

func (f *Forecast) Process(ctx context.Context, job models.BackgroundJob, progress jobs.ProgressFunc) (map[string]any, error) {
	p := job.Parameters
	buildingID, _ := p.Int64("building_id")
	days := p.IntOr("forecast_days", 7)
	metric := p.String("metric")
	if metric == "" {
		metric = defaultForecastMetric
	}
	aggregate, ok := forecastMetrics[metric]
	if !ok {
		return nil, errs.NewValidation(fmt.Sprintf("unsupported forecast metric %q", metric))
	}
	start, ok := p.Time("start_date")
	if !ok {
		start = f.now().Add(-historyDays * day)
	}
	log := f.log(job)

	rows, err := f.DB.Query(ctx, `
	SELECT date_trunc('day', recorded_at) AS day, `+aggregate+` AS value
	FROM energy_consumption
	WHERE building_id = $1 AND recorded_at >= $2
	GROUP BY 1
	ORDER BY 1`, buildingID, start.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to load consumption history: %w", err)
	}
	if len(rows) < minHistoryPoints {
		return nil, fmt.Errorf("not enough history to forecast: need at least %d days, got %d", minHistoryPoints, len(rows))
	}
	progress(40)

	first := rows[0].Time("day").UTC()
	xs := make([]float64, len(rows))
	ys := make([]float64, len(rows))
	for i, r := range rows {
		xs[i] = r.Time("day").UTC().Sub(first).Hours() / 24
		ys[i] = r.Float64("value")
	}
	intercept, slope := linearFit(xs, ys)
	progress(60)

	last := rows[len(rows)-1].Time("day").UTC()
	points := make([]forecastPoint, 0, days)
	var total float64
	for i := 1; i <= days; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		date := last.Add(time.Duration(i) * day)
		x := date.Sub(first).Hours() / 24
		v := round2(math.Max(0, intercept+slope*x))
		points = append(points, forecastPoint{Date: date.Format("2006-01-02"), Value: v})
		total += v
	}
	progress(90)

	log.Infof("Forecast %d day(s) of %s from %d day(s) of history", days, metric, len(rows))
	return map[string]any{
		"building_id":    buildingID,
		"metric":         metric,
		"history_days":   len(rows),
		"slope_per_day":  round2(slope),
		"intercept":      round2(intercept),
		"forecast":       points,
		"total_forecast": round2(total),
	}, nil
}
