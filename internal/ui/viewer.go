package ui

import "itp/internal/domain"

// Viewer displays failing tests
type Viewer interface {
	View(failures []domain.TestFailure) error
}
