package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrInvalidRequest marks a request rejected at submission.
var ErrInvalidRequest = errors.New("invalid request")

type MotorSpecs struct {
	PowerKW           float64         `json:"power_kw"`
	AxisHeightMM      float64         `json:"axis_height_mm"`
	CurrentEfficiency EfficiencyClass `json:"current_efficiency"`
	TargetEfficiency  EfficiencyClass `json:"target_efficiency"`
}

type Constraints struct {
	MaxBudget       *float64   `json:"max_budget,omitempty"`
	Deadline        *time.Time `json:"deadline,omitempty"`
	RequestedWindow TimeWindow `json:"requested_window"`
}

// Request is a customer's remanufacturing request. It is not modified after submission.
type Request struct {
	ID          string      `json:"id"`
	CustomerID  string      `json:"customer_id"`
	Motor       MotorSpecs  `json:"motor"`
	Constraints Constraints `json:"constraints"`
	SubmittedAt time.Time   `json:"submitted_at"`
}

// Validate checks a request before it enters the pipeline.
func (r Request) Validate() error {
	if r.CustomerID == "" {
		return fmt.Errorf("%w: customer_id is required", ErrInvalidRequest)
	}
	if r.Motor.PowerKW <= 0 {
		return fmt.Errorf("%w: power_kw must be positive", ErrInvalidRequest)
	}
	if _, err := r.Motor.CurrentEfficiency.MarshalText(); err != nil {
		return fmt.Errorf("%w: current_efficiency: %v", ErrInvalidRequest, err)
	}
	if _, err := r.Motor.TargetEfficiency.MarshalText(); err != nil {
		return fmt.Errorf("%w: target_efficiency: %v", ErrInvalidRequest, err)
	}
	w := r.Constraints.RequestedWindow
	if !w.Start.IsZero() && !w.End.After(w.Start) {
		return fmt.Errorf("%w: requested_window ends before it starts", ErrInvalidRequest)
	}
	if b := r.Constraints.MaxBudget; b != nil && *b <= 0 {
		return fmt.Errorf("%w: max_budget must be positive", ErrInvalidRequest)
	}
	return nil
}

// Provider is a remanufacturing shop as seen by the matching step.
// A zero technical limit means the provider declares none.
type Provider struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Capabilities    []ProcessType `json:"capabilities"`
	MaxPowerKW      float64       `json:"max_power_kw"`
	MaxAxisHeightMM float64       `json:"max_axis_height_mm"`
	Enabled         bool          `json:"enabled"`
}

func (p Provider) Can(process ProcessType) bool {
	for _, c := range p.Capabilities {
		if c == process {
			return true
		}
	}
	return false
}

// Fits reports whether the motor is within the provider's technical limits.
func (p Provider) Fits(m MotorSpecs) bool {
	if p.MaxAxisHeightMM > 0 && p.MaxAxisHeightMM < m.AxisHeightMM {
		return false
	}
	if p.MaxPowerKW > 0 && p.MaxPowerKW < m.PowerKW {
		return false
	}
	return true
}

type Estimate struct {
	Cost           float64      `json:"cost"`
	DurationHours  float64      `json:"duration_hours"`
	Quality        float64      `json:"quality"`
	EmissionsKgCO2 float64      `json:"emissions_kg_co2"`
	AvailableSlots []TimeWindow `json:"available_slots,omitempty"`
	// Fallback marks a zero-valued estimate substituted for a failed or declined RPC.
	Fallback bool `json:"fallback,omitempty"`
}

// Candidate is a matched provider together with its estimate for one step.
type Candidate struct {
	Provider Provider `json:"provider"`
	Estimate Estimate `json:"estimate"`
}

type ProcessStep struct {
	ID         string      `json:"id"`
	StepNumber int         `json:"step_number"`
	Process    ProcessType `json:"process"`
	Candidates []Candidate `json:"candidates,omitempty"`
	Selected   *Candidate  `json:"selected,omitempty"`
}

type Metrics struct {
	TotalCost          float64 `json:"total_cost"`
	TotalDurationHours float64 `json:"total_duration_hours"`
	AverageQuality     float64 `json:"average_quality"`
	TotalEmissions     float64 `json:"total_emissions"`
	SolverStatus       string  `json:"solver_status"`
	ObjectiveValue     float64 `json:"objective_value"`
}

type Warranty struct {
	Level          string `json:"level"`
	DurationMonths int    `json:"duration_months"`
	Insured        bool   `json:"insured"`
}

type Strategy struct {
	ID           string        `json:"id"`
	RequestID    string        `json:"request_id"`
	Priority     Priority      `json:"priority"`
	WorkflowType WorkflowType  `json:"workflow_type"`
	Steps        []ProcessStep `json:"steps"`
	Metrics      Metrics       `json:"metrics"`
	Warranty     Warranty      `json:"warranty"`
}

// Clone returns a deep copy so a selected strategy can be frozen inside a plan.
func (s Strategy) Clone() Strategy {
	out := s
	out.Steps = make([]ProcessStep, len(s.Steps))
	for i, st := range s.Steps {
		c := st
		c.Candidates = append([]Candidate(nil), st.Candidates...)
		if st.Selected != nil {
			sel := *st.Selected
			sel.Estimate.AvailableSlots = append([]TimeWindow(nil), st.Selected.Estimate.AvailableSlots...)
			c.Selected = &sel
		}
		out.Steps[i] = c
	}
	return out
}

// StepIndex returns the index of the step with the given id, or -1.
func (s Strategy) StepIndex(stepID string) int {
	for i, st := range s.Steps {
		if st.ID == stepID {
			return i
		}
	}
	return -1
}

// SortByPriority orders strategies the way they are generated.
func SortByPriority(ss []Strategy) {
	sort.SliceStable(ss, func(i, j int) bool { return ss[i].Priority < ss[j].Priority })
}

// ComputeMetrics aggregates the selected estimates of every step.
func ComputeMetrics(steps []ProcessStep) Metrics {
	var m Metrics
	if len(steps) == 0 {
		return m
	}
	var quality float64
	for _, st := range steps {
		if st.Selected == nil {
			continue
		}
		e := st.Selected.Estimate
		m.TotalCost += e.Cost
		m.TotalDurationHours += e.DurationHours
		m.TotalEmissions += e.EmissionsKgCO2
		quality += e.Quality
	}
	m.AverageQuality = quality / float64(len(steps))
	return m
}

// WarrantyFor derives warranty terms from the strategy priority and workflow type.
func WarrantyFor(p Priority, w WorkflowType) Warranty {
	months := 12
	if w == WorkflowUpgrade {
		months = 24
	}
	switch p {
	case PriorityHighestQuality:
		return Warranty{Level: "Premium", DurationMonths: months + 12, Insured: true}
	case PriorityLowestCost:
		return Warranty{Level: "Basic", DurationMonths: months - 6, Insured: false}
	case PriorityLowestEmissions:
		return Warranty{Level: "Standard", DurationMonths: months, Insured: w == WorkflowUpgrade}
	default:
		return Warranty{Level: "Standard", DurationMonths: months, Insured: false}
	}
}
