package provider

import (
	"fmt"
	"time"

	"remanflow/config"
	"remanflow/domain"
	"remanflow/scheduling"
)

// Profile is the provider agent's view of itself: the registry entry plus
// the tariff and working model it quotes from.
type Profile struct {
	Provider      domain.Provider
	Hours         scheduling.WorkingHours
	HourlyRate    float64
	Quality       float64
	EmissionsPerH float64
	ProcessHours  map[domain.ProcessType]float64
	// ExecutionSpeed is the simulated wall-clock seconds per planned hour.
	ExecutionSpeed float64
}

// ProfileFromConfig validates cfg and builds the agent profile.
func ProfileFromConfig(cfg config.ProviderConfig) (*Profile, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("provider: id is required")
	}
	caps, err := domain.ParseProcessTypes(cfg.Capabilities)
	if err != nil {
		return nil, fmt.Errorf("provider %s capabilities: %w", cfg.ID, err)
	}
	hours, err := WorkingHoursFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("provider %s working hours: %w", cfg.ID, err)
	}

	ph := make(map[domain.ProcessType]float64, len(cfg.ProcessHours))
	for name, h := range cfg.ProcessHours {
		p, err := domain.ParseProcessType(name)
		if err != nil {
			return nil, fmt.Errorf("provider %s process_hours: %w", cfg.ID, err)
		}
		if h <= 0 {
			return nil, fmt.Errorf("provider %s process_hours: %s must be positive", cfg.ID, name)
		}
		ph[p] = h
	}
	for _, c := range caps {
		if _, ok := ph[c]; !ok {
			return nil, fmt.Errorf("provider %s: no process_hours for capability %s", cfg.ID, c)
		}
	}
	if cfg.Quality < 0 || cfg.Quality > 1 {
		return nil, fmt.Errorf("provider %s: quality %.2f outside [0,1]", cfg.ID, cfg.Quality)
	}

	name := cfg.Name
	if name == "" {
		name = cfg.ID
	}
	return &Profile{
		Provider: domain.Provider{
			ID:              cfg.ID,
			Name:            name,
			Capabilities:    caps,
			MaxPowerKW:      cfg.MaxPowerKW,
			MaxAxisHeightMM: cfg.MaxAxisHeight,
			Enabled:         true,
		},
		Hours:          hours,
		HourlyRate:     cfg.HourlyRate,
		Quality:        cfg.Quality,
		EmissionsPerH:  cfg.EmissionsPerH,
		ProcessHours:   ph,
		ExecutionSpeed: cfg.ExecutionSpeed,
	}, nil
}

// WorkingHoursFromConfig turns the textual working model into scheduling form.
func WorkingHoursFromConfig(cfg config.ProviderConfig) (scheduling.WorkingHours, error) {
	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return scheduling.WorkingHours{}, err
		}
		loc = l
	}
	wh := scheduling.WorkingHours{Location: loc, AlwaysOpen: cfg.AlwaysOpen}
	if cfg.AlwaysOpen {
		return wh, nil
	}

	var err error
	if wh.WorkStart, err = scheduling.ParseClock(cfg.WorkStart); err != nil {
		return wh, err
	}
	if wh.WorkEnd, err = scheduling.ParseClock(cfg.WorkEnd); err != nil {
		return wh, err
	}
	if cfg.LunchStart != "" || cfg.LunchEnd != "" {
		lunch, err := parseBreak(cfg.LunchStart, cfg.LunchEnd)
		if err != nil {
			return wh, fmt.Errorf("lunch: %w", err)
		}
		wh.Lunch = &lunch
	}
	for _, b := range cfg.Breaks {
		br, err := parseBreak(b.Start, b.End)
		if err != nil {
			return wh, fmt.Errorf("break: %w", err)
		}
		wh.Breaks = append(wh.Breaks, br)
	}
	for _, d := range cfg.WorkingDays {
		wd, err := scheduling.ParseWeekday(d)
		if err != nil {
			return wh, err
		}
		wh.WorkingDays = append(wh.WorkingDays, wd)
	}
	return wh, wh.Validate()
}

func parseBreak(start, end string) (scheduling.Break, error) {
	s, err := scheduling.ParseClock(start)
	if err != nil {
		return scheduling.Break{}, err
	}
	e, err := scheduling.ParseClock(end)
	if err != nil {
		return scheduling.Break{}, err
	}
	return scheduling.Break{Start: s, End: e}, nil
}

// Quote prices one process. ok is false when the process is not offered.
func (p *Profile) Quote(process domain.ProcessType) (domain.Estimate, bool) {
	if !p.Provider.Can(process) {
		return domain.Estimate{}, false
	}
	h := p.ProcessHours[process]
	return domain.Estimate{
		Cost:           h * p.HourlyRate,
		DurationHours:  h,
		Quality:        p.Quality,
		EmissionsKgCO2: h * p.EmissionsPerH,
	}, true
}
