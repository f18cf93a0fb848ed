package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/equinor/flotilla-sub005/internal/domain/mission"
)

var _ mission.DefinitionRepository = (*DefinitionStore)(nil)

// DefinitionStore is an in-memory mission.DefinitionRepository.
type DefinitionStore struct {
	mu   sync.RWMutex
	defs map[string]*mission.MissionDefinition
}

// NewDefinitionStore creates an empty DefinitionStore.
func NewDefinitionStore() *DefinitionStore {
	return &DefinitionStore{defs: make(map[string]*mission.MissionDefinition)}
}

func (s *DefinitionStore) CreateMissionDefinition(_ context.Context, def *mission.MissionDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.defs[def.ID]; exists {
		return fmt.Errorf("mission definition %s already exists", def.ID)
	}
	s.defs[def.ID] = copyDefinition(def)
	return nil
}

func (s *DefinitionStore) GetMissionDefinition(_ context.Context, id string) (*mission.MissionDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.defs[id]
	if !ok {
		return nil, nil
	}
	return copyDefinition(d), nil
}

func (s *DefinitionStore) GetMissionDefinitionBySourceID(_ context.Context, sourceID string) (*mission.MissionDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.defs {
		if d.SourceID == sourceID && !d.IsDeprecated {
			return copyDefinition(d), nil
		}
	}
	return nil, nil
}

// ListAutoScheduledMissionDefinitions returns recurring, non-deprecated
// definitions ordered by id.
func (s *DefinitionStore) ListAutoScheduledMissionDefinitions(_ context.Context) ([]*mission.MissionDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*mission.MissionDefinition
	for _, d := range s.defs {
		if d.HasAutoSchedule() && !d.IsDeprecated {
			out = append(out, copyDefinition(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *DefinitionStore) UpdateMissionDefinition(_ context.Context, def *mission.MissionDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.defs[def.ID]; !ok {
		return fmt.Errorf("mission definition %s: %w", def.ID, mission.ErrMissionDefinitionNotFound)
	}
	s.defs[def.ID] = copyDefinition(def)
	return nil
}
