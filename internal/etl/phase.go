package etl

import "fmt"

// Phase is a step of a pipeline run. Every transition is written to the
// progress log exactly once.
type Phase int

const (
	PhaseStarted Phase = iota
	PhaseExtracting
	PhaseExtracted
	PhaseTransforming
	PhaseTransformed
	PhaseLoading
	PhaseLoaded
	PhaseQuerying
	PhaseEnded
)

var phaseNames = [...]string{
	PhaseStarted:      "started",
	PhaseExtracting:   "extracting",
	PhaseExtracted:    "extracted",
	PhaseTransforming: "transforming",
	PhaseTransformed:  "transformed",
	PhaseLoading:      "loading",
	PhaseLoaded:       "loaded",
	PhaseQuerying:     "querying",
	PhaseEnded:        "ended",
}

var phaseMessages = [...]string{
	PhaseStarted:      "ETL Job Started",
	PhaseExtracting:   "Extract phase Started",
	PhaseExtracted:    "Extract phase Ended",
	PhaseTransforming: "Transform phase Started",
	PhaseTransformed:  "Transform phase Ended",
	PhaseLoading:      "Load phase Started",
	PhaseLoaded:       "Load phase Ended",
	PhaseQuerying:     "Running queries",
	PhaseEnded:        "ETL Job Ended",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// Message is the progress-log text for entering the phase.
func (p Phase) Message() string {
	if p < 0 || int(p) >= len(phaseMessages) {
		return ""
	}
	return phaseMessages[p]
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name.
func (p *Phase) UnmarshalText(text []byte) error {
	for i, name := range phaseNames {
		if name == string(text) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}
