package service

import (
	"errors"
	"strings"

	"optionscore/internal/models"
	"optionscore/internal/repository"
)

// Halt service errors.
var (
	ErrHaltUnderlyingEmpty = errors.New("underlying cannot be empty")
	ErrHaltExists          = errors.New("underlying is already halted")
	ErrHaltNotFound        = errors.New("halt override not found")
)

// HaltService manages operator-entered manual halts: it records, lists and
// lifts them for the API. The Strategy Core and the circuit breakers do not
// consult these halts, so a manual halt does not suppress entry signals.
type HaltService struct {
	haltRepo HaltRepositoryInterface
}

// NewHaltService creates the service.
func NewHaltService(haltRepo HaltRepositoryInterface) *HaltService {
	return &HaltService{haltRepo: haltRepo}
}

// Halt records a manual halt for the underlying with a reason note.
func (s *HaltService) Halt(underlying, reason string) (*models.HaltOverride, error) {
	underlying = strings.ToUpper(strings.TrimSpace(underlying))
	if underlying == "" {
		return nil, ErrHaltUnderlyingEmpty
	}

	entry := &models.HaltOverride{
		Underlying: underlying,
		Reason:     strings.TrimSpace(reason),
	}
	err := s.haltRepo.Create(entry)
	if errors.Is(err, repository.ErrHaltExists) {
		return nil, ErrHaltExists
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Resume lifts the halt for an underlying.
func (s *HaltService) Resume(underlying string) error {
	underlying = strings.ToUpper(strings.TrimSpace(underlying))
	if underlying == "" {
		return ErrHaltUnderlyingEmpty
	}
	err := s.haltRepo.Delete(underlying)
	if errors.Is(err, repository.ErrHaltNotFound) {
		return ErrHaltNotFound
	}
	return err
}

// IsHalted reports whether the underlying carries a manual halt.
func (s *HaltService) IsHalted(underlying string) (bool, error) {
	return s.haltRepo.Exists(strings.ToUpper(strings.TrimSpace(underlying)))
}

// List returns every halt override.
func (s *HaltService) List() ([]*models.HaltOverride, error) {
	return s.haltRepo.GetAll()
}

// Clear lifts every halt.
func (s *HaltService) Clear() error {
	return s.haltRepo.DeleteAll()
}
