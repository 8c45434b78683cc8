package service

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/reposition-api/internal/dto"
	"github.com/noah-isme/reposition-api/internal/models"
	"github.com/noah-isme/reposition-api/internal/repository"
)

// RosterService serves class rosters, read through the cache and dropped on every roster write.
type RosterService struct {
	store     repository.Store
	capacity  *CapacityManager
	cache     *CacheService
	ttl       time.Duration
	validator *validator.Validate
	logger    *zap.Logger

	mu          sync.Mutex
	generations map[string]uint64
}

// NewRosterService constructs a RosterService. cache may be nil.
func NewRosterService(store repository.Store, capacity *CapacityManager, cache *CacheService, ttl time.Duration, validate *validator.Validate, logger *zap.Logger) *RosterService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterService{
		store:       store,
		capacity:    capacity,
		cache:       cache,
		ttl:         ttl,
		validator:   validate,
		logger:      logger,
		generations: make(map[string]uint64),
	}
}

func rosterKey(organizationID, classEventID string) string {
	return "roster:" + organizationID + ":" + classEventID
}

func (s *RosterService) generation(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[key]
}

func (s *RosterService) bump(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[key]++
}

// Get returns the class with its attendees in enrollment order.
func (s *RosterService) Get(ctx context.Context, organizationID, classEventID string) (*dto.ClassRoster, error) {
	if err := validateID(s.validator, classEventID, "class event id"); err != nil {
		return nil, err
	}

	key := rosterKey(organizationID, classEventID)
	var cached dto.ClassRoster
	if s.cache.Get(ctx, key, &cached) && cached.Class.OrganizationID == organizationID {
		return &cached, nil
	}

	// A write that commits while the roster loads invalidates first; its snapshot must not be cached.
	seen := s.generation(key)
	var roster dto.ClassRoster
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		class, err := tx.FindClassEvent(ctx, classEventID)
		if err != nil {
			return notFoundOr(err, "class event not found")
		}
		if err := ensureSameOrganization(organizationID, class.OrganizationID, "class event"); err != nil {
			return err
		}
		attendees, err := tx.ListAttendees(ctx, classEventID)
		if err != nil {
			return err
		}
		occupancy := len(s.capacity.Occupants(attendees))
		available := class.Capacity - occupancy
		if available < 0 {
			available = 0
		}
		roster = dto.ClassRoster{Class: *class, Occupancy: occupancy, Available: available, Attendees: attendees}
		return nil
	})
	if err != nil {
		return nil, serviceError(err, "failed to load roster")
	}
	if roster.Attendees == nil {
		roster.Attendees = []models.ClassAttendee{}
	}
	if s.generation(key) == seen {
		s.cache.Set(ctx, key, roster, s.ttl)
		if s.generation(key) != seen {
			s.cache.Invalidate(ctx, key)
		}
	}
	return &roster, nil
}

// Invalidate drops the cached roster of a class.
func (s *RosterService) Invalidate(ctx context.Context, organizationID, classEventID string) {
	if s == nil {
		return
	}
	key := rosterKey(organizationID, classEventID)
	s.bump(key)
	s.cache.Invalidate(ctx, key)
}
