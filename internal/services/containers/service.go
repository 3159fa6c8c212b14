// Package containers manages shared waste-container points: placement by
// moderators, overflow reports by residents and placement suggestions.
package containers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/civicmap/civicmap/internal/domain/container"
	"github.com/civicmap/civicmap/internal/services/sections"
	"github.com/civicmap/civicmap/internal/storage"
	"github.com/civicmap/civicmap/pkg/logger"
)

// pointRadiusMeters sizes the square polygon drawn around each point.
const pointRadiusMeters = 10.0

// Service manages container points.
type Service struct {
	store    storage.ContainerStore
	sections *sections.Service
	// overflowThreshold is the number of resident reports that flips a
	// point to overflow without moderator action.
	overflowThreshold int
	log               *logger.Logger
}

// New constructs a container service.
func New(store storage.ContainerStore, secs *sections.Service, overflowThreshold int, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("containers")
	}
	if overflowThreshold <= 0 {
		overflowThreshold = 1
	}
	return &Service{
		store:             store,
		sections:          secs,
		overflowThreshold: overflowThreshold,
		log:               log,
	}
}

// PointInput describes a container point to place.
type PointInput struct {
	Latitude  float64
	Longitude float64
	Address   string
	Notes     string
	CreatedBy string
}

// Create places a container point on the map. The containing census section
// is assigned when one matches.
func (s *Service) Create(ctx context.Context, in PointInput) (container.Point, error) {
	if in.Latitude < -90 || in.Latitude > 90 || in.Longitude < -180 || in.Longitude > 180 {
		return container.Point{}, fmt.Errorf("coordinates out of range")
	}
	inside, err := s.sections.WithinBoundary(ctx, in.Latitude, in.Longitude)
	if err != nil {
		return container.Point{}, err
	}
	if !inside {
		return container.Point{}, fmt.Errorf("location is outside the city boundary")
	}

	p := container.Point{
		Latitude:  in.Latitude,
		Longitude: in.Longitude,
		Polygon:   container.SquareWKT(in.Latitude, in.Longitude, pointRadiusMeters),
		Status:    container.StatusNormal,
		Address:   strings.TrimSpace(in.Address),
		Notes:     strings.TrimSpace(in.Notes),
	}
	if in.CreatedBy != "" {
		p.CreatedBy = &in.CreatedBy
	}
	if match, locErr := s.sections.Locate(ctx, in.Latitude, in.Longitude); locErr == nil {
		p.SectionID = &match.Section.ID
	} else if !errors.Is(locErr, storage.ErrNotFound) {
		s.log.WithError(locErr).Warn("section lookup failed")
	}

	created, err := s.store.CreateContainerPoint(ctx, p)
	if err != nil {
		return container.Point{}, err
	}
	s.log.WithField("point_id", created.ID).Info("container point placed")
	return created, nil
}

// Get returns one container point.
func (s *Service) Get(ctx context.Context, id string) (container.Point, error) {
	return s.store.GetContainerPoint(ctx, id)
}

// List returns every container point.
func (s *Service) List(ctx context.Context) ([]container.Point, error) {
	return s.store.ListContainerPoints(ctx)
}

// SetStatus moves a point between normal and overflow. Marking a point
// normal clears its overflow counter so the auto-overflow threshold starts
// over.
func (s *Service) SetStatus(ctx context.Context, id string, status container.Status) (container.Point, error) {
	switch status {
	case container.StatusNormal, container.StatusOverflow:
	default:
		return container.Point{}, fmt.Errorf("unknown container status %q", status)
	}
	p, err := s.store.GetContainerPoint(ctx, id)
	if err != nil {
		return container.Point{}, err
	}
	if status == container.StatusOverflow && p.Status != container.StatusOverflow {
		now := time.Now().UTC()
		p.LastOverflowAt = &now
	}
	if status == container.StatusNormal {
		p.OverflowReports = 0
	}
	p.Status = status

	updated, err := s.store.UpdateContainerPoint(ctx, p)
	if err != nil {
		return container.Point{}, err
	}
	s.log.WithField("point_id", id).WithField("status", string(status)).Info("container status set")
	return updated, nil
}

// ReportOverflow registers one resident's report that the point overflows.
// Reporting the same point twice returns storage.ErrConflict. At the
// threshold the point flips to overflow.
func (s *Service) ReportOverflow(ctx context.Context, pointID, userID string) (container.Point, error) {
	p, err := s.store.GetContainerPoint(ctx, pointID)
	if err != nil {
		return container.Point{}, err
	}
	if err := s.store.CreateOverflowReport(ctx, pointID, userID); err != nil {
		return container.Point{}, err
	}

	now := time.Now().UTC()
	p.OverflowReports++
	p.LastOverflowAt = &now
	if p.OverflowReports >= s.overflowThreshold && p.Status != container.StatusOverflow {
		p.Status = container.StatusOverflow
		s.log.WithField("point_id", pointID).Info("container flipped to overflow")
	}
	return s.store.UpdateContainerPoint(ctx, p)
}

// SuggestionInput describes a resident's proposal for a new point.
type SuggestionInput struct {
	Latitude    float64
	Longitude   float64
	Address     string
	Notes       string
	SuggestedBy string
}

// Suggest records a proposal for a new container point.
func (s *Service) Suggest(ctx context.Context, in SuggestionInput) (container.Suggestion, error) {
	if in.Latitude < -90 || in.Latitude > 90 || in.Longitude < -180 || in.Longitude > 180 {
		return container.Suggestion{}, fmt.Errorf("coordinates out of range")
	}
	inside, err := s.sections.WithinBoundary(ctx, in.Latitude, in.Longitude)
	if err != nil {
		return container.Suggestion{}, err
	}
	if !inside {
		return container.Suggestion{}, fmt.Errorf("location is outside the city boundary")
	}

	sg := container.Suggestion{
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		Address:     strings.TrimSpace(in.Address),
		Notes:       strings.TrimSpace(in.Notes),
		SuggestedBy: in.SuggestedBy,
	}
	if match, locErr := s.sections.Locate(ctx, in.Latitude, in.Longitude); locErr == nil {
		sg.SectionID = &match.Section.ID
	} else if !errors.Is(locErr, storage.ErrNotFound) {
		s.log.WithError(locErr).Warn("section lookup failed")
	}

	created, err := s.store.CreateContainerSuggestion(ctx, sg)
	if err != nil {
		return container.Suggestion{}, err
	}
	s.log.WithField("suggestion_id", created.ID).Info("container point suggested")
	return created, nil
}

// Suggestions returns every pending proposal.
func (s *Service) Suggestions(ctx context.Context) ([]container.Suggestion, error) {
	return s.store.ListContainerSuggestions(ctx)
}

// Delete removes a container point and its overflow history.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteContainerPoint(ctx, id); err != nil {
		return err
	}
	s.log.WithField("point_id", id).Info("container point deleted")
	return nil
}
