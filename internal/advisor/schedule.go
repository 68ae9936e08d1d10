package advisor

import (
	"errors"
	"fmt"
	"sort"
	"time"

	forecastdomain "harborgrid-cloud/internal/forecast/domain"
)

// TariffKind classifies a tariff period.
type TariffKind string

const (
	TariffPeak   TariffKind = "peak"
	TariffFlat   TariffKind = "flat"
	TariffValley TariffKind = "valley"
)

// TariffPeriod is a daily recurring price band. Start and End are
// "15:04" wall-clock strings; a period may wrap midnight.
type TariffPeriod struct {
	Kind        TariffKind `json:"kind"`
	Start       string     `json:"start"`
	End         string     `json:"end"`
	PricePerKWh float64    `json:"pricePerKwh"`
}

// DefaultTariffPeriods is a common coastal industrial tariff: valley
// overnight, peak through the evening ice-making ramp.
func DefaultTariffPeriods() []TariffPeriod {
	return []TariffPeriod{
		{Kind: TariffValley, Start: "23:00", End: "07:00", PricePerKWh: 0.31},
		{Kind: TariffFlat, Start: "07:00", End: "17:00", PricePerKWh: 0.68},
		{Kind: TariffPeak, Start: "17:00", End: "23:00", PricePerKWh: 1.12},
	}
}

// Window is one candidate slot for deferrable load, ranked by
// effective cost after the expected PV contribution.
type Window struct {
	Start         time.Time  `json:"start"`
	End           time.Time  `json:"end"`
	Tariff        TariffKind `json:"tariff"`
	PricePerKWh   float64    `json:"pricePerKwh"`
	PVP50KW       float64    `json:"pvP50Kw"`
	EffectiveRate float64    `json:"effectiveRate"`
	Rank          int        `json:"rank"`
}

// Planner ranks windows for deferrable loads (ice making, blast
// freezing batches) against the tariff calendar and the PV forecast.
type Planner struct {
	periods []TariffPeriod
	// loadKW is the reference deferrable load used to convert the PV
	// band into a price credit.
	loadKW float64
	slot   time.Duration
}

// NewPlanner constructs a Planner. A zero loadKW disables the PV
// credit and ranking degenerates to pure tariff ordering.
func NewPlanner(periods []TariffPeriod, loadKW float64) (*Planner, error) {
	if len(periods) == 0 {
		periods = DefaultTariffPeriods()
	}
	for _, p := range periods {
		if _, err := parseClock(p.Start); err != nil {
			return nil, fmt.Errorf("planner: period start %q: %w", p.Start, err)
		}
		if _, err := parseClock(p.End); err != nil {
			return nil, fmt.Errorf("planner: period end %q: %w", p.End, err)
		}
		if p.PricePerKWh < 0 {
			return nil, errors.New("planner: negative price")
		}
	}
	if loadKW < 0 {
		loadKW = 0
	}
	return &Planner{periods: periods, loadKW: loadKW, slot: 30 * time.Minute}, nil
}

// PlanWindows ranks every slot in [from, from+hours). Estimates are
// matched by period end; slots without a forecast get no credit.
// Ranking is stable: ties break on earlier start.
func (p *Planner) PlanWindows(from time.Time, hours int, estimates []forecastdomain.Estimate) []Window {
	if hours <= 0 {
		hours = 24
	}
	from = from.UTC().Truncate(p.slot)
	until := from.Add(time.Duration(hours) * time.Hour)

	p50ByPeriodEnd := make(map[time.Time]float64, len(estimates))
	for _, e := range estimates {
		p50ByPeriodEnd[e.PeriodEnd.UTC()] = e.P50KW
	}

	var windows []Window
	for start := from; start.Before(until); start = start.Add(p.slot) {
		end := start.Add(p.slot)
		period := p.periodAt(start)
		pv := p50ByPeriodEnd[end]

		rate := period.PricePerKWh
		if p.loadKW > 0 {
			covered := pv / p.loadKW
			if covered > 1 {
				covered = 1
			}
			rate = period.PricePerKWh * (1 - covered)
		}

		windows = append(windows, Window{
			Start:         start,
			End:           end,
			Tariff:        period.Kind,
			PricePerKWh:   period.PricePerKWh,
			PVP50KW:       pv,
			EffectiveRate: rate,
		})
	}

	sort.SliceStable(windows, func(i, j int) bool {
		if windows[i].EffectiveRate != windows[j].EffectiveRate {
			return windows[i].EffectiveRate < windows[j].EffectiveRate
		}
		return windows[i].Start.Before(windows[j].Start)
	})
	for i := range windows {
		windows[i].Rank = i + 1
	}
	return windows
}

func (p *Planner) periodAt(t time.Time) TariffPeriod {
	minute := t.Hour()*60 + t.Minute()
	for _, period := range p.periods {
		start, _ := parseClock(period.Start)
		end, _ := parseClock(period.End)
		if start < end {
			if minute >= start && minute < end {
				return period
			}
		} else {
			// Wraps midnight.
			if minute >= start || minute < end {
				return period
			}
		}
	}
	// Gaps in the calendar price as flat.
	return TariffPeriod{Kind: TariffFlat, PricePerKWh: 0}
}

func parseClock(value string) (int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
