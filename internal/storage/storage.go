package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// DefaultMaxDrives is the largest fleet accepted when no limit is configured.
const DefaultMaxDrives = 50

var (
	// ErrInvalidFleet indicates the provided fleet violates validation rules.
	ErrInvalidFleet = errors.New("invalid fleet")
	// ErrFleetNotFound is returned when no fleet is stored under a name.
	ErrFleetNotFound = errors.New("fleet not found")
)

// Fleet is a named set of drives described by parallel used and total sizes.
type Fleet struct {
	Name  string `json:"name" yaml:"name"`
	Used  []int  `json:"used" yaml:"used"`
	Total []int  `json:"total" yaml:"total"`
}

// Clone returns a deep copy of the fleet.
func (f Fleet) Clone() Fleet {
	return Fleet{
		Name:  f.Name,
		Used:  cloneInts(f.Used),
		Total: cloneInts(f.Total),
	}
}

// Storage provides access to the fleets available for consolidation.
type Storage interface {
	ListFleets() ([]string, error)
	GetFleet(name string) (Fleet, error)
	SaveFleet(fleet Fleet) error
	DeleteFleet(name string) error
}

// MemoryStorage keeps fleets in-memory and guards access with a RWMutex.
type MemoryStorage struct {
	mu        sync.RWMutex
	maxDrives int
	fleets    map[string]Fleet
}

// NewMemoryStorage initialises an empty storage accepting fleets of up to
// maxDrives drives. A non-positive maxDrives disables the limit.
func NewMemoryStorage(maxDrives int) *MemoryStorage {
	return &MemoryStorage{
		maxDrives: maxDrives,
		fleets:    make(map[string]Fleet),
	}
}

// ListFleets returns the stored fleet names in ascending order.
func (s *MemoryStorage) ListFleets() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.fleets))
	for name := range s.fleets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// GetFleet returns a defensive copy of the named fleet.
func (s *MemoryStorage) GetFleet(name string) (Fleet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fleet, ok := s.fleets[name]
	if !ok {
		return Fleet{}, fmt.Errorf("%w: %s", ErrFleetNotFound, name)
	}
	return fleet.Clone(), nil
}

// SaveFleet validates and stores a copy of the fleet, replacing any fleet
// with the same name.
func (s *MemoryStorage) SaveFleet(fleet Fleet) error {
	normalized, err := NormalizeFleet(fleet, s.maxDrives)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.fleets[normalized.Name] = normalized
	s.mu.Unlock()

	return nil
}

// DeleteFleet removes the named fleet.
func (s *MemoryStorage) DeleteFleet(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.fleets[name]; !ok {
		return fmt.Errorf("%w: %s", ErrFleetNotFound, name)
	}
	delete(s.fleets, name)
	return nil
}

// NormalizeFleet trims the name and checks shape and sign of the sizes. Used
// sizes above their totals are accepted here and rejected at consolidation.
func NormalizeFleet(fleet Fleet, maxDrives int) (Fleet, error) {
	out := fleet.Clone()
	out.Name = strings.TrimSpace(out.Name)

	switch {
	case out.Name == "":
		return Fleet{}, fmt.Errorf("%w: name must not be empty", ErrInvalidFleet)
	case strings.Contains(out.Name, "/"):
		return Fleet{}, fmt.Errorf("%w: name must not contain '/'", ErrInvalidFleet)
	case len(out.Used) == 0:
		return Fleet{}, fmt.Errorf("%w: at least one drive is required", ErrInvalidFleet)
	case len(out.Used) != len(out.Total):
		return Fleet{}, fmt.Errorf("%w: used has %d elements, total has %d", ErrInvalidFleet, len(out.Used), len(out.Total))
	case maxDrives > 0 && len(out.Used) > maxDrives:
		return Fleet{}, fmt.Errorf("%w: %d drives exceed the limit of %d", ErrInvalidFleet, len(out.Used), maxDrives)
	}

	for i := range out.Used {
		if out.Used[i] < 0 || out.Total[i] < 0 {
			return Fleet{}, fmt.Errorf("%w: negative size at index [%d]", ErrInvalidFleet, i)
		}
	}
	return out, nil
}

func cloneInts(src []int) []int {
	if src == nil {
		return nil
	}
	out := make([]int, len(src))
	copy(out, src)
	return out
}
