package domain

import (
	"fmt"
	"strings"
)

// ProcessType is one remanufacturing operation.
type ProcessType int

const (
	ProcessCleaning ProcessType = iota + 1
	ProcessDisassembly
	ProcessPartSubstitution
	ProcessReassembly
	ProcessCertification
	ProcessRedesign
	ProcessTurning
	ProcessGrinding
)

var processNames = map[ProcessType]string{
	ProcessCleaning:         "Cleaning",
	ProcessDisassembly:      "Disassembly",
	ProcessPartSubstitution: "PartSubstitution",
	ProcessReassembly:       "Reassembly",
	ProcessCertification:    "Certification",
	ProcessRedesign:         "Redesign",
	ProcessTurning:          "Turning",
	ProcessGrinding:         "Grinding",
}

func (p ProcessType) String() string {
	if s, ok := processNames[p]; ok {
		return s
	}
	return fmt.Sprintf("ProcessType(%d)", int(p))
}

func (p ProcessType) MarshalText() ([]byte, error) {
	if _, ok := processNames[p]; !ok {
		return nil, fmt.Errorf("invalid process type %d", int(p))
	}
	return []byte(p.String()), nil
}

func (p *ProcessType) UnmarshalText(b []byte) error {
	v, err := ParseProcessType(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ParseProcessType accepts process names case-insensitively.
func ParseProcessType(s string) (ProcessType, error) {
	for k, v := range processNames {
		if strings.EqualFold(v, strings.TrimSpace(s)) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown process type %q", s)
}

// ParseProcessTypes parses a list of process names, stopping at the first invalid one.
func ParseProcessTypes(names []string) ([]ProcessType, error) {
	out := make([]ProcessType, 0, len(names))
	for _, n := range names {
		p, err := ParseProcessType(n)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

type WorkflowType int

const (
	WorkflowRefurbish WorkflowType = iota + 1
	WorkflowUpgrade
)

func (w WorkflowType) String() string {
	switch w {
	case WorkflowRefurbish:
		return "Refurbish"
	case WorkflowUpgrade:
		return "Upgrade"
	default:
		return fmt.Sprintf("WorkflowType(%d)", int(w))
	}
}

func (w WorkflowType) MarshalText() ([]byte, error) {
	if w != WorkflowRefurbish && w != WorkflowUpgrade {
		return nil, fmt.Errorf("invalid workflow type %d", int(w))
	}
	return []byte(w.String()), nil
}

func (w *WorkflowType) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "refurbish":
		*w = WorkflowRefurbish
	case "upgrade":
		*w = WorkflowUpgrade
	default:
		return fmt.Errorf("unknown workflow type %q", string(b))
	}
	return nil
}

// Priority is the business objective a strategy is optimized for.
type Priority int

const (
	PriorityLowestCost Priority = iota + 1
	PriorityFastestDelivery
	PriorityHighestQuality
	PriorityLowestEmissions
)

// Priorities lists every priority in the order strategies are generated.
var Priorities = []Priority{
	PriorityLowestCost,
	PriorityFastestDelivery,
	PriorityHighestQuality,
	PriorityLowestEmissions,
}

var priorityNames = map[Priority]string{
	PriorityLowestCost:      "LowestCost",
	PriorityFastestDelivery: "FastestDelivery",
	PriorityHighestQuality:  "HighestQuality",
	PriorityLowestEmissions: "LowestEmissions",
}

func (p Priority) String() string {
	if s, ok := priorityNames[p]; ok {
		return s
	}
	return fmt.Sprintf("Priority(%d)", int(p))
}

func (p Priority) MarshalText() ([]byte, error) {
	if _, ok := priorityNames[p]; !ok {
		return nil, fmt.Errorf("invalid priority %d", int(p))
	}
	return []byte(p.String()), nil
}

func (p *Priority) UnmarshalText(b []byte) error {
	for k, v := range priorityNames {
		if strings.EqualFold(v, string(b)) {
			*p = k
			return nil
		}
	}
	return fmt.Errorf("unknown priority %q", string(b))
}

// EfficiencyClass is an IEC 60034-30 motor efficiency class, IE1 through IE5.
type EfficiencyClass int

const (
	IE1 EfficiencyClass = iota + 1
	IE2
	IE3
	IE4
	IE5
)

func (e EfficiencyClass) String() string {
	if e < IE1 || e > IE5 {
		return fmt.Sprintf("EfficiencyClass(%d)", int(e))
	}
	return fmt.Sprintf("IE%d", int(e))
}

func (e EfficiencyClass) MarshalText() ([]byte, error) {
	if e < IE1 || e > IE5 {
		return nil, fmt.Errorf("invalid efficiency class %d", int(e))
	}
	return []byte(e.String()), nil
}

func (e *EfficiencyClass) UnmarshalText(b []byte) error {
	var n int
	if _, err := fmt.Sscanf(strings.ToUpper(string(b)), "IE%d", &n); err != nil || n < 1 || n > 5 {
		return fmt.Errorf("unknown efficiency class %q", string(b))
	}
	*e = EfficiencyClass(n)
	return nil
}
