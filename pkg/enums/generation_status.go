package enums

import "fmt"

// GenerationStatus maps to the generation_status_enum enum in Postgres.
//
// Lifecycle: pending -> processing -> completed|failed. The processing hop is
// optional; completed and failed are terminal.
type GenerationStatus string

const (
	GenerationStatusPending    GenerationStatus = "pending"
	GenerationStatusProcessing GenerationStatus = "processing"
	GenerationStatusCompleted  GenerationStatus = "completed"
	GenerationStatusFailed     GenerationStatus = "failed"
)

var validGenerationStatuses = []GenerationStatus{
	GenerationStatusPending,
	GenerationStatusProcessing,
	GenerationStatusCompleted,
	GenerationStatusFailed,
}

// IsValid reports whether the value matches the canonical status enum.
func (s GenerationStatus) IsValid() bool {
	for _, candidate := range validGenerationStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are accepted.
func (s GenerationStatus) IsTerminal() bool {
	return s == GenerationStatusCompleted || s == GenerationStatusFailed
}

// ParseGenerationStatus converts raw input into GenerationStatus.
func ParseGenerationStatus(value string) (GenerationStatus, error) {
	for _, candidate := range validGenerationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid generation status %q", value)
}
