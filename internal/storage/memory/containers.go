package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/civicmap/civicmap/internal/domain/container"
	"github.com/civicmap/civicmap/internal/storage"
)

// ContainerStore implementation -----------------------------------------------

func (s *Store) CreateContainerPoint(_ context.Context, p container.Point) (container.Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = s.nextIDLocked()
	} else if _, exists := s.containerPoints[p.ID]; exists {
		return container.Point{}, fmt.Errorf("container point %s: %w", p.ID, storage.ErrConflict)
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.containerPoints[p.ID] = p
	return p, nil
}

func (s *Store) UpdateContainerPoint(_ context.Context, p container.Point) (container.Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.containerPoints[p.ID]
	if !ok {
		return container.Point{}, fmt.Errorf("container point %s: %w", p.ID, storage.ErrNotFound)
	}
	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	s.containerPoints[p.ID] = p
	return p, nil
}

func (s *Store) GetContainerPoint(_ context.Context, id string) (container.Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.containerPoints[id]
	if !ok {
		return container.Point{}, fmt.Errorf("container point %s: %w", id, storage.ErrNotFound)
	}
	return p, nil
}

func (s *Store) ListContainerPoints(_ context.Context) ([]container.Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]container.Point, 0, len(s.containerPoints))
	for _, p := range s.containerPoints {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) DeleteContainerPoint(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.containerPoints[id]; !ok {
		return fmt.Errorf("container point %s: %w", id, storage.ErrNotFound)
	}
	delete(s.containerPoints, id)
	for key := range s.overflowReports {
		if len(key) > len(id) && key[:len(id)+1] == id+"|" {
			delete(s.overflowReports, key)
		}
	}
	return nil
}

func (s *Store) CreateOverflowReport(_ context.Context, pointID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.containerPoints[pointID]; !ok {
		return fmt.Errorf("container point %s: %w", pointID, storage.ErrNotFound)
	}
	key := pointID + "|" + userID
	if s.overflowReports[key] {
		return fmt.Errorf("overflow report %s: %w", key, storage.ErrConflict)
	}
	s.overflowReports[key] = true
	return nil
}

func (s *Store) CreateContainerSuggestion(_ context.Context, sg container.Suggestion) (container.Suggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sg.ID == "" {
		sg.ID = s.nextIDLocked()
	}
	sg.CreatedAt = time.Now().UTC()
	s.containerSuggestions = append(s.containerSuggestions, sg)
	return sg, nil
}

func (s *Store) ListContainerSuggestions(_ context.Context) ([]container.Suggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]container.Suggestion, len(s.containerSuggestions))
	copy(result, s.containerSuggestions)
	return result, nil
}
