package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/civicmap/civicmap/internal/domain/container"
	"github.com/civicmap/civicmap/internal/domain/donation"
	"github.com/civicmap/civicmap/internal/domain/geo"
	"github.com/civicmap/civicmap/internal/domain/initiative"
	"github.com/civicmap/civicmap/internal/domain/inventory"
	"github.com/civicmap/civicmap/internal/domain/user"
	"github.com/civicmap/civicmap/internal/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu     sync.RWMutex
	nextID int64

	users        map[string]user.User
	usersByEmail map[string]string

	initiatives       map[string]initiative.Initiative
	initiativesBySlug map[string]string
	participants      map[string]map[string]bool // initiative ID -> user IDs
	participations    map[string][]initiative.Participation
	comments          map[string]initiative.Comment

	items          map[string]inventory.Item
	votes          map[string]inventory.Vote // key: item|user|kind
	categories     map[string]inventory.Category
	categoriesCode map[string]string
	itemCategories map[string][]string

	districts   map[string]geo.District
	sections    map[string]geo.Section
	assignments map[string]geo.Assignment

	containerPoints      map[string]container.Point
	overflowReports      map[string]bool // key: point|user
	containerSuggestions []container.Suggestion

	donations          map[string]donation.Donation
	donationsBySession map[string]string
	purchases          map[string]donation.ReportPurchase
	purchasesBySession map[string]string
	purchasesByToken   map[string]string
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.InitiativeStore = (*Store)(nil)
var _ storage.InventoryStore = (*Store)(nil)
var _ storage.GeoStore = (*Store)(nil)
var _ storage.ContainerStore = (*Store)(nil)
var _ storage.DonationStore = (*Store)(nil)
var _ storage.AnalyticsStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:             1,
		users:              make(map[string]user.User),
		usersByEmail:       make(map[string]string),
		initiatives:        make(map[string]initiative.Initiative),
		initiativesBySlug:  make(map[string]string),
		participants:       make(map[string]map[string]bool),
		participations:     make(map[string][]initiative.Participation),
		comments:           make(map[string]initiative.Comment),
		items:              make(map[string]inventory.Item),
		votes:              make(map[string]inventory.Vote),
		categories:         make(map[string]inventory.Category),
		categoriesCode:     make(map[string]string),
		itemCategories:     make(map[string][]string),
		districts:          make(map[string]geo.District),
		sections:           make(map[string]geo.Section),
		assignments:        make(map[string]geo.Assignment),
		containerPoints:    make(map[string]container.Point),
		overflowReports:    make(map[string]bool),
		donations:          make(map[string]donation.Donation),
		donationsBySession: make(map[string]string),
		purchases:          make(map[string]donation.ReportPurchase),
		purchasesBySession: make(map[string]string),
		purchasesByToken:   make(map[string]string),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// UserStore implementation ----------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(u.Email)
	if _, exists := s.usersByEmail[email]; exists {
		return user.User{}, fmt.Errorf("user %s: %w", u.Email, storage.ErrConflict)
	}
	if u.ID == "" {
		u.ID = s.nextIDLocked()
	} else if _, exists := s.users[u.ID]; exists {
		return user.User{}, fmt.Errorf("user %s: %w", u.ID, storage.ErrConflict)
	}

	u.CreatedAt = time.Now().UTC()
	u.Roles = cloneStrings(u.Roles)
	s.users[u.ID] = u
	s.usersByEmail[email] = u.ID
	return cloneUser(u), nil
}

func (s *Store) UpdateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.users[u.ID]
	if !ok {
		return user.User{}, fmt.Errorf("user %s: %w", u.ID, storage.ErrNotFound)
	}

	if !strings.EqualFold(original.Email, u.Email) {
		email := strings.ToLower(u.Email)
		if _, exists := s.usersByEmail[email]; exists {
			return user.User{}, fmt.Errorf("user %s: %w", u.Email, storage.ErrConflict)
		}
		delete(s.usersByEmail, strings.ToLower(original.Email))
		s.usersByEmail[email] = u.ID
	}

	u.CreatedAt = original.CreatedAt
	u.Roles = cloneStrings(u.Roles)
	s.users[u.ID] = u
	return cloneUser(u), nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, fmt.Errorf("user %s: %w", id, storage.ErrNotFound)
	}
	return cloneUser(u), nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByEmail[strings.ToLower(email)]
	if !ok {
		return user.User{}, fmt.Errorf("user %s: %w", email, storage.ErrNotFound)
	}
	return cloneUser(s.users[id]), nil
}

func (s *Store) ListUsers(_ context.Context) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]user.User, 0, len(s.users))
	for _, u := range s.users {
		result = append(result, cloneUser(u))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// InitiativeStore implementation ----------------------------------------------

func (s *Store) CreateInitiative(_ context.Context, ini initiative.Initiative) (initiative.Initiative, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.initiativesBySlug[ini.Slug]; exists {
		return initiative.Initiative{}, fmt.Errorf("initiative slug %s: %w", ini.Slug, storage.ErrConflict)
	}
	if ini.ID == "" {
		ini.ID = s.nextIDLocked()
	} else if _, exists := s.initiatives[ini.ID]; exists {
		return initiative.Initiative{}, fmt.Errorf("initiative %s: %w", ini.ID, storage.ErrConflict)
	}

	now := time.Now().UTC()
	ini.CreatedAt = now
	ini.UpdatedAt = now
	s.initiatives[ini.ID] = ini
	s.initiativesBySlug[ini.Slug] = ini.ID
	return ini, nil
}

func (s *Store) UpdateInitiative(_ context.Context, ini initiative.Initiative) (initiative.Initiative, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.initiatives[ini.ID]
	if !ok {
		return initiative.Initiative{}, fmt.Errorf("initiative %s: %w", ini.ID, storage.ErrNotFound)
	}
	if original.Slug != ini.Slug {
		if _, exists := s.initiativesBySlug[ini.Slug]; exists {
			return initiative.Initiative{}, fmt.Errorf("initiative slug %s: %w", ini.Slug, storage.ErrConflict)
		}
		delete(s.initiativesBySlug, original.Slug)
		s.initiativesBySlug[ini.Slug] = ini.ID
	}

	ini.CreatedAt = original.CreatedAt
	ini.UpdatedAt = time.Now().UTC()
	s.initiatives[ini.ID] = ini
	return ini, nil
}

func (s *Store) GetInitiative(_ context.Context, id string) (initiative.Initiative, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ini, ok := s.initiatives[id]
	if !ok {
		return initiative.Initiative{}, fmt.Errorf("initiative %s: %w", id, storage.ErrNotFound)
	}
	return ini, nil
}

func (s *Store) GetInitiativeBySlug(_ context.Context, slug string) (initiative.Initiative, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.initiativesBySlug[slug]
	if !ok {
		return initiative.Initiative{}, fmt.Errorf("initiative %s: %w", slug, storage.ErrNotFound)
	}
	return s.initiatives[id], nil
}

func (s *Store) ListInitiatives(_ context.Context, filter storage.InitiativeFilter) ([]initiative.Initiative, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]initiative.Initiative, 0, len(s.initiatives))
	for _, ini := range s.initiatives {
		if !matchInitiative(ini, filter) {
			continue
		}
		result = append(result, ini)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

func matchInitiative(ini initiative.Initiative, filter storage.InitiativeFilter) bool {
	if len(filter.Statuses) > 0 {
		found := false
		for _, st := range filter.Statuses {
			if ini.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.Category != "" && ini.Category != filter.Category {
		return false
	}
	if filter.CreatorID != "" && ini.CreatorID != filter.CreatorID {
		return false
	}
	if filter.OnDate != nil && !sameDay(ini.Date, *filter.OnDate) {
		return false
	}
	if filter.UpcomingFrom != nil && ini.Date.Before(filter.UpcomingFrom.Truncate(24*time.Hour)) {
		return false
	}
	return true
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func (s *Store) SlugExists(_ context.Context, slug string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.initiativesBySlug[slug]
	return ok, nil
}

func (s *Store) IncrementInitiativeViews(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ini, ok := s.initiatives[id]
	if !ok {
		return fmt.Errorf("initiative %s: %w", id, storage.ErrNotFound)
	}
	ini.ViewCount++
	s.initiatives[id] = ini
	return nil
}

func (s *Store) AddParticipant(_ context.Context, initiativeID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.initiatives[initiativeID]; !ok {
		return fmt.Errorf("initiative %s: %w", initiativeID, storage.ErrNotFound)
	}
	set := s.participants[initiativeID]
	if set == nil {
		set = make(map[string]bool)
		s.participants[initiativeID] = set
	}
	if set[userID] {
		return fmt.Errorf("participant %s: %w", userID, storage.ErrConflict)
	}
	set[userID] = true
	return nil
}

func (s *Store) RemoveParticipant(_ context.Context, initiativeID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.participants[initiativeID]
	if set == nil || !set[userID] {
		return fmt.Errorf("participant %s: %w", userID, storage.ErrNotFound)
	}
	delete(set, userID)
	return nil
}

func (s *Store) ListParticipantIDs(_ context.Context, initiativeID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := s.participants[initiativeID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) CreateParticipation(_ context.Context, p initiative.Participation) (initiative.Participation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.initiatives[p.InitiativeID]; !ok {
		return initiative.Participation{}, fmt.Errorf("initiative %s: %w", p.InitiativeID, storage.ErrNotFound)
	}
	if p.ID == "" {
		p.ID = s.nextIDLocked()
	}
	p.CreatedAt = time.Now().UTC()
	s.participations[p.InitiativeID] = append(s.participations[p.InitiativeID], p)
	return p, nil
}

func (s *Store) ListParticipations(_ context.Context, initiativeID string) ([]initiative.Participation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]initiative.Participation(nil), s.participations[initiativeID]...), nil
}

func (s *Store) CreateComment(_ context.Context, c initiative.Comment) (initiative.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.initiatives[c.InitiativeID]; !ok {
		return initiative.Comment{}, fmt.Errorf("initiative %s: %w", c.InitiativeID, storage.ErrNotFound)
	}
	if c.ID == "" {
		c.ID = s.nextIDLocked()
	}
	c.CreatedAt = time.Now().UTC()
	s.comments[c.ID] = c
	return c, nil
}

func (s *Store) ListComments(_ context.Context, initiativeID string) ([]initiative.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]initiative.Comment, 0)
	for _, c := range s.comments {
		if c.InitiativeID == initiativeID {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) DeleteComment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.comments[id]; !ok {
		return fmt.Errorf("comment %s: %w", id, storage.ErrNotFound)
	}
	delete(s.comments, id)
	return nil
}

// InventoryStore implementation -----------------------------------------------

func (s *Store) CreateItem(_ context.Context, it inventory.Item) (inventory.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if it.ID == "" {
		it.ID = s.nextIDLocked()
	} else if _, exists := s.items[it.ID]; exists {
		return inventory.Item{}, fmt.Errorf("item %s: %w", it.ID, storage.ErrConflict)
	}

	now := time.Now().UTC()
	it.CreatedAt = now
	it.UpdatedAt = now
	it.Categories = nil
	s.items[it.ID] = it
	return cloneItem(it), nil
}

func (s *Store) UpdateItem(_ context.Context, it inventory.Item) (inventory.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.items[it.ID]
	if !ok {
		return inventory.Item{}, fmt.Errorf("item %s: %w", it.ID, storage.ErrNotFound)
	}

	it.CreatedAt = original.CreatedAt
	it.UpdatedAt = time.Now().UTC()
	it.Categories = nil
	s.items[it.ID] = it
	return cloneItem(it), nil
}

func (s *Store) IncrementItemShares(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[id]
	if !ok {
		return fmt.Errorf("item %s: %w", id, storage.ErrNotFound)
	}
	it.ShareCount++
	s.items[id] = it
	return nil
}

func (s *Store) GetItem(_ context.Context, id string) (inventory.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.items[id]
	if !ok {
		return inventory.Item{}, fmt.Errorf("item %s: %w", id, storage.ErrNotFound)
	}
	return cloneItem(it), nil
}

func (s *Store) ListItems(_ context.Context, filter storage.ItemFilter) ([]inventory.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]inventory.Item, 0, len(s.items))
	for _, it := range s.items {
		if !s.matchItemLocked(it, filter) {
			continue
		}
		result = append(result, cloneItem(it))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) matchItemLocked(it inventory.Item, filter storage.ItemFilter) bool {
	if len(filter.Statuses) > 0 {
		found := false
		for _, st := range filter.Statuses {
			if it.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.SectionID != "" && (it.SectionID == nil || *it.SectionID != filter.SectionID) {
		return false
	}
	if filter.ReporterID != "" && (it.ReporterID == nil || *it.ReporterID != filter.ReporterID) {
		return false
	}
	if filter.CategoryCode != "" {
		catID, ok := s.categoriesCode[filter.CategoryCode]
		if !ok {
			return false
		}
		found := false
		for _, id := range s.itemCategories[it.ID] {
			if id == catID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func voteKey(itemID, userID string, kind inventory.VoteKind) string {
	return itemID + "|" + userID + "|" + string(kind)
}

func (s *Store) CreateVote(_ context.Context, v inventory.Vote) (inventory.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[v.ItemID]; !ok {
		return inventory.Vote{}, fmt.Errorf("item %s: %w", v.ItemID, storage.ErrNotFound)
	}
	key := voteKey(v.ItemID, v.UserID, v.Kind)
	if _, exists := s.votes[key]; exists {
		return inventory.Vote{}, fmt.Errorf("vote: %w", storage.ErrConflict)
	}
	if v.ID == "" {
		v.ID = s.nextIDLocked()
	}
	v.CreatedAt = time.Now().UTC()
	s.votes[key] = v
	return v, nil
}

func (s *Store) DeleteVote(_ context.Context, itemID, userID string, kind inventory.VoteKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := voteKey(itemID, userID, kind)
	if _, ok := s.votes[key]; !ok {
		return fmt.Errorf("vote: %w", storage.ErrNotFound)
	}
	delete(s.votes, key)
	return nil
}

func (s *Store) HasVote(_ context.Context, itemID, userID string, kind inventory.VoteKind) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.votes[voteKey(itemID, userID, kind)]
	return ok, nil
}

func (s *Store) CountVotes(_ context.Context, itemID string, kind inventory.VoteKind) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, v := range s.votes {
		if v.ItemID == itemID && v.Kind == kind {
			count++
		}
	}
	return count, nil
}

func (s *Store) UpsertCategory(_ context.Context, c inventory.Category) (inventory.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID, ok := s.categoriesCode[c.Code]; ok {
		c.ID = existingID
	} else if c.ID == "" {
		c.ID = s.nextIDLocked()
	}
	s.categories[c.ID] = c
	s.categoriesCode[c.Code] = c.ID
	return c, nil
}

func (s *Store) GetCategoryByCode(_ context.Context, code string) (inventory.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.categoriesCode[code]
	if !ok {
		return inventory.Category{}, fmt.Errorf("category %s: %w", code, storage.ErrNotFound)
	}
	return s.categories[id], nil
}

func (s *Store) ListCategories(_ context.Context, activeOnly bool) ([]inventory.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]inventory.Category, 0, len(s.categories))
	for _, c := range s.categories {
		if activeOnly && !c.Active {
			continue
		}
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].SortOrder != result[j].SortOrder {
			return result[i].SortOrder < result[j].SortOrder
		}
		return result[i].Code < result[j].Code
	})
	return result, nil
}

func (s *Store) SetItemCategories(_ context.Context, itemID string, categoryIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[itemID]; !ok {
		return fmt.Errorf("item %s: %w", itemID, storage.ErrNotFound)
	}
	for _, id := range categoryIDs {
		if _, ok := s.categories[id]; !ok {
			return fmt.Errorf("category %s: %w", id, storage.ErrNotFound)
		}
	}
	s.itemCategories[itemID] = cloneStrings(categoryIDs)
	return nil
}

func (s *Store) ListItemCategories(_ context.Context, itemID string) ([]inventory.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.itemCategories[itemID]
	result := make([]inventory.Category, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.categories[id]; ok {
			result = append(result, c)
		}
	}
	return result, nil
}

// GeoStore implementation -----------------------------------------------------

func (s *Store) UpsertDistrict(_ context.Context, d geo.District) (geo.District, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.districts {
		if existing.Code == d.Code {
			d.ID = id
			d.CreatedAt = existing.CreatedAt
			s.districts[id] = d
			return d, nil
		}
	}
	if d.ID == "" {
		d.ID = s.nextIDLocked()
	}
	d.CreatedAt = time.Now().UTC()
	s.districts[d.ID] = d
	return d, nil
}

func (s *Store) UpsertSection(_ context.Context, sec geo.Section) (geo.Section, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.sections {
		if existing.DistrictCode == sec.DistrictCode && existing.Code == sec.Code {
			sec.ID = id
			sec.CreatedAt = existing.CreatedAt
			s.sections[id] = sec
			return sec, nil
		}
	}
	if sec.ID == "" {
		sec.ID = s.nextIDLocked()
	}
	sec.CreatedAt = time.Now().UTC()
	s.sections[sec.ID] = sec
	return sec, nil
}

func (s *Store) GetSection(_ context.Context, id string) (geo.Section, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sec, ok := s.sections[id]
	if !ok {
		return geo.Section{}, fmt.Errorf("section %s: %w", id, storage.ErrNotFound)
	}
	return sec, nil
}

func (s *Store) ListDistricts(_ context.Context) ([]geo.District, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]geo.District, 0, len(s.districts))
	for _, d := range s.districts {
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, nil
}

func (s *Store) ListSections(_ context.Context) ([]geo.Section, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]geo.Section, 0, len(s.sections))
	for _, sec := range s.sections {
		result = append(result, sec)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].DistrictCode != result[j].DistrictCode {
			return result[i].DistrictCode < result[j].DistrictCode
		}
		return result[i].Code < result[j].Code
	})
	return result, nil
}

// FindSectionContaining always defers to the caller's in-process evaluation;
// the memory backend has no spatial index.
func (s *Store) FindSectionContaining(_ context.Context, _, _ float64) (geo.Section, error) {
	return geo.Section{}, storage.ErrUnsupported
}

func (s *Store) RecordAssignment(_ context.Context, a geo.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sections[a.SectionID]; !ok {
		return fmt.Errorf("section %s: %w", a.SectionID, storage.ErrNotFound)
	}
	a.AssignedAt = time.Now().UTC()
	s.assignments[a.ItemID] = a
	return nil
}

func (s *Store) GetAssignment(_ context.Context, itemID string) (geo.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assignments[itemID]
	if !ok {
		return geo.Assignment{}, fmt.Errorf("assignment %s: %w", itemID, storage.ErrNotFound)
	}
	return a, nil
}

// DonationStore implementation ------------------------------------------------

func (s *Store) CreateDonation(_ context.Context, d donation.Donation) (donation.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.donationsBySession[d.StripeSessionID]; exists {
		return donation.Donation{}, fmt.Errorf("donation session %s: %w", d.StripeSessionID, storage.ErrConflict)
	}
	if d.ID == "" {
		d.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	s.donations[d.ID] = d
	s.donationsBySession[d.StripeSessionID] = d.ID
	return d, nil
}

func (s *Store) UpdateDonation(_ context.Context, d donation.Donation) (donation.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.donations[d.ID]
	if !ok {
		return donation.Donation{}, fmt.Errorf("donation %s: %w", d.ID, storage.ErrNotFound)
	}
	d.CreatedAt = original.CreatedAt
	d.UpdatedAt = time.Now().UTC()
	s.donations[d.ID] = d
	return d, nil
}

func (s *Store) GetDonation(_ context.Context, id string) (donation.Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.donations[id]
	if !ok {
		return donation.Donation{}, fmt.Errorf("donation %s: %w", id, storage.ErrNotFound)
	}
	return d, nil
}

func (s *Store) GetDonationBySession(_ context.Context, sessionID string) (donation.Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.donationsBySession[sessionID]
	if !ok {
		return donation.Donation{}, fmt.Errorf("donation session %s: %w", sessionID, storage.ErrNotFound)
	}
	return s.donations[id], nil
}

func (s *Store) GetDonationByPaymentIntent(_ context.Context, paymentIntentID string) (donation.Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.donations {
		if d.PaymentIntentID != "" && d.PaymentIntentID == paymentIntentID {
			return d, nil
		}
	}
	return donation.Donation{}, fmt.Errorf("donation intent %s: %w", paymentIntentID, storage.ErrNotFound)
}

func (s *Store) ListDonations(_ context.Context, status donation.Status) ([]donation.Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]donation.Donation, 0, len(s.donations))
	for _, d := range s.donations {
		if status != "" && d.Status != status {
			continue
		}
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) CreateReportPurchase(_ context.Context, p donation.ReportPurchase) (donation.ReportPurchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.purchasesBySession[p.StripeSessionID]; exists {
		return donation.ReportPurchase{}, fmt.Errorf("purchase session %s: %w", p.StripeSessionID, storage.ErrConflict)
	}
	if p.ID == "" {
		p.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.purchases[p.ID] = p
	s.purchasesBySession[p.StripeSessionID] = p.ID
	if p.DownloadToken != "" {
		s.purchasesByToken[p.DownloadToken] = p.ID
	}
	return p, nil
}

func (s *Store) UpdateReportPurchase(_ context.Context, p donation.ReportPurchase) (donation.ReportPurchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.purchases[p.ID]
	if !ok {
		return donation.ReportPurchase{}, fmt.Errorf("purchase %s: %w", p.ID, storage.ErrNotFound)
	}
	if original.DownloadToken != p.DownloadToken {
		delete(s.purchasesByToken, original.DownloadToken)
		if p.DownloadToken != "" {
			s.purchasesByToken[p.DownloadToken] = p.ID
		}
	}
	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	s.purchases[p.ID] = p
	return p, nil
}

func (s *Store) GetReportPurchaseBySession(_ context.Context, sessionID string) (donation.ReportPurchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.purchasesBySession[sessionID]
	if !ok {
		return donation.ReportPurchase{}, fmt.Errorf("purchase session %s: %w", sessionID, storage.ErrNotFound)
	}
	return s.purchases[id], nil
}

func (s *Store) GetReportPurchaseByToken(_ context.Context, token string) (donation.ReportPurchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.purchasesByToken[token]
	if !ok {
		return donation.ReportPurchase{}, fmt.Errorf("purchase token: %w", storage.ErrNotFound)
	}
	return s.purchases[id], nil
}

// AnalyticsStore implementation -----------------------------------------------

func (s *Store) CountItemsByZone(_ context.Context) ([]storage.ZoneCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, it := range s.items {
		if it.SectionID == nil || !it.OnMap() {
			continue
		}
		counts[*it.SectionID]++
	}
	result := make([]storage.ZoneCount, 0, len(counts))
	for sectionID, count := range counts {
		zc := storage.ZoneCount{SectionID: sectionID, Count: count}
		if sec, ok := s.sections[sectionID]; ok {
			zc.DistrictCode = sec.DistrictCode
			zc.SectionCode = sec.Code
		}
		result = append(result, zc)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Count > result[j].Count })
	return result, nil
}

func (s *Store) CountItemsByCategory(_ context.Context, limit int) ([]storage.CategoryCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for itemID, catIDs := range s.itemCategories {
		it, ok := s.items[itemID]
		if !ok || !it.OnMap() {
			continue
		}
		for _, catID := range catIDs {
			counts[catID]++
		}
	}
	result := make([]storage.CategoryCount, 0, len(counts))
	for catID, count := range counts {
		c, ok := s.categories[catID]
		if !ok {
			continue
		}
		result = append(result, storage.CategoryCount{Code: c.Code, Name: c.Name, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Code < result[j].Code
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CountItemsByMonth(_ context.Context, months int) ([]storage.MonthCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().UTC().AddDate(0, -months, 0)
	counts := make(map[string]int)
	for _, it := range s.items {
		if months > 0 && it.CreatedAt.Before(cutoff) {
			continue
		}
		counts[it.CreatedAt.Format("2006-01")]++
	}
	result := make([]storage.MonthCount, 0, len(counts))
	for month, count := range counts {
		result = append(result, storage.MonthCount{Month: month, Count: count})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Month < result[j].Month })
	return result, nil
}

func (s *Store) CountItemsByStatus(_ context.Context) (map[inventory.Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[inventory.Status]int)
	for _, it := range s.items {
		counts[it.Status]++
	}
	return counts, nil
}

// helpers ---------------------------------------------------------------------

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneUser(u user.User) user.User {
	u.Roles = cloneStrings(u.Roles)
	return u
}

func cloneItem(it inventory.Item) inventory.Item {
	it.Categories = append([]inventory.Category(nil), it.Categories...)
	return it
}
