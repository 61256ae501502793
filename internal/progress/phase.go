package progress

// Phase is a coarse stage of an operation with a fixed completion fraction.
type Phase int

const (
	PhaseStarting Phase = iota
	PhaseEvaluating
	PhaseBuilding
	PhaseApplying
	PhaseDone
)

// Fraction returns the completion fraction reported when the phase begins.
func (p Phase) Fraction() float64 {
	switch p {
	case PhaseEvaluating:
		return 0.25
	case PhaseBuilding:
		return 0.5
	case PhaseApplying:
		return 0.75
	case PhaseDone:
		return 1.0
	default:
		return 0
	}
}

func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "starting"
	case PhaseEvaluating:
		return "evaluating"
	case PhaseBuilding:
		return "building"
	case PhaseApplying:
		return "applying"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}
