// Package inventoryops manages the lifecycle of citizen-reported issues:
// submission, moderation, community voting and resolution.
package inventoryops

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/civicmap/civicmap/internal/domain/inventory"
	"github.com/civicmap/civicmap/internal/mailer"
	"github.com/civicmap/civicmap/internal/services/sections"
	"github.com/civicmap/civicmap/internal/storage"
	"github.com/civicmap/civicmap/pkg/logger"
)

// Service manages inventory items.
type Service struct {
	store    storage.InventoryStore
	users    storage.UserStore
	sections *sections.Service
	mail     *mailer.Service
	// autoResolveThreshold is the number of resolved reports that flips an
	// approved item to resolved without moderator action.
	autoResolveThreshold int
	log                  *logger.Logger
}

// New constructs an inventory service. mail may be nil, disabling
// notifications; users is only needed to resolve reporter addresses.
func New(store storage.InventoryStore, users storage.UserStore, secs *sections.Service, mail *mailer.Service, autoResolveThreshold int, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("inventory")
	}
	if autoResolveThreshold <= 0 {
		autoResolveThreshold = 3
	}
	return &Service{
		store:                store,
		users:                users,
		sections:             secs,
		mail:                 mail,
		autoResolveThreshold: autoResolveThreshold,
		log:                  log,
	}
}

// ReportInput is a citizen's issue submission.
type ReportInput struct {
	Title          string
	Description    string
	Latitude       float64
	Longitude      float64
	CategoryCodes  []string
	ImagePath      string
	LocationSource string
	PhotoLatitude  *float64
	PhotoLongitude *float64
	ReporterID     string
}

// Report validates and stores a new issue. The item starts pending and the
// containing census section is assigned when one matches.
func (s *Service) Report(ctx context.Context, in ReportInput) (inventory.Item, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return inventory.Item{}, fmt.Errorf("title is required")
	}
	if in.Latitude < -90 || in.Latitude > 90 || in.Longitude < -180 || in.Longitude > 180 {
		return inventory.Item{}, fmt.Errorf("coordinates out of range")
	}

	inside, err := s.sections.WithinBoundary(ctx, in.Latitude, in.Longitude)
	if err != nil {
		return inventory.Item{}, err
	}
	if !inside {
		return inventory.Item{}, fmt.Errorf("location is outside the city boundary")
	}

	item := inventory.Item{
		Title:          in.Title,
		Description:    strings.TrimSpace(in.Description),
		Latitude:       in.Latitude,
		Longitude:      in.Longitude,
		Status:         inventory.StatusPending,
		ImagePath:      in.ImagePath,
		LocationSource: in.LocationSource,
		PhotoLatitude:  in.PhotoLatitude,
		PhotoLongitude: in.PhotoLongitude,
	}
	if item.LocationSource == "" {
		item.LocationSource = inventory.LocationSourceMap
	}
	if in.ReporterID != "" {
		item.ReporterID = &in.ReporterID
	}

	// Section assignment is best-effort: an item outside every section is
	// still accepted.
	var match sections.Match
	match, locErr := s.sections.Locate(ctx, in.Latitude, in.Longitude)
	if locErr == nil {
		item.SectionID = &match.Section.ID
	} else if !errors.Is(locErr, storage.ErrNotFound) {
		s.log.WithError(locErr).Warn("section lookup failed")
	}

	created, err := s.store.CreateItem(ctx, item)
	if err != nil {
		return inventory.Item{}, err
	}

	if created.SectionID != nil {
		if err := s.sections.Assign(ctx, created.ID, match); err != nil {
			s.log.WithError(err).WithField("item_id", created.ID).Warn("recording assignment failed")
		}
	}

	if len(in.CategoryCodes) > 0 {
		ids, err := s.resolveCategoryIDs(ctx, in.CategoryCodes)
		if err != nil {
			return inventory.Item{}, err
		}
		if err := s.store.SetItemCategories(ctx, created.ID, ids); err != nil {
			return inventory.Item{}, err
		}
	}

	if s.mail != nil {
		s.notifyAdmin(ctx, created)
	}

	s.log.WithField("item_id", created.ID).Info("item reported")
	return s.withCategories(ctx, created)
}

func (s *Service) resolveCategoryIDs(ctx context.Context, codes []string) ([]string, error) {
	ids := make([]string, 0, len(codes))
	for _, code := range codes {
		cat, err := s.store.GetCategoryByCode(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("category %q: %w", code, err)
		}
		if !cat.Active {
			return nil, fmt.Errorf("category %q is inactive", code)
		}
		ids = append(ids, cat.ID)
	}
	return ids, nil
}

func (s *Service) notifyAdmin(ctx context.Context, item inventory.Item) {
	sectionLabel := ""
	if item.SectionID != nil {
		sectionLabel = *item.SectionID
	}
	html, err := mailer.Render(mailer.TemplateItemReported, map[string]interface{}{
		"Title":     item.Title,
		"Latitude":  item.Latitude,
		"Longitude": item.Longitude,
		"Section":   sectionLabel,
	})
	if err != nil {
		s.log.WithError(err).Error("render admin notification")
		return
	}
	if err := s.mail.SendToAdmin(ctx, "Nova incidència: "+item.Title, html); err != nil {
		s.log.WithError(err).Warn("admin notification failed")
	}
}

// notifyReporter emails the item's reporter about a moderation outcome.
// Anonymous reports and delivery failures are ignored.
func (s *Service) notifyReporter(ctx context.Context, item inventory.Item, template, subject, reason string) {
	if s.mail == nil || s.users == nil || item.ReporterID == nil {
		return
	}
	u, err := s.users.GetUser(ctx, *item.ReporterID)
	if err != nil {
		s.log.WithError(err).WithField("item_id", item.ID).Warn("reporter lookup failed")
		return
	}
	html, err := mailer.Render(template, map[string]interface{}{
		"Name":   u.Username,
		"Title":  item.Title,
		"Reason": reason,
	})
	if err != nil {
		s.log.WithError(err).Error("render reporter notification")
		return
	}
	if err := s.mail.Send(ctx, mailer.Message{
		To:      []string{u.Email},
		Subject: subject,
		HTML:    html,
	}); err != nil {
		s.log.WithError(err).WithField("item_id", item.ID).Warn("reporter notification failed")
	}
}

// Get returns one item with its categories attached.
func (s *Service) Get(ctx context.Context, id string) (inventory.Item, error) {
	item, err := s.store.GetItem(ctx, id)
	if err != nil {
		return inventory.Item{}, err
	}
	return s.withCategories(ctx, item)
}

// Share counts one share of an item that is visible on the public map.
func (s *Service) Share(ctx context.Context, id string) (inventory.Item, error) {
	item, err := s.store.GetItem(ctx, id)
	if err != nil {
		return inventory.Item{}, err
	}
	if !item.OnMap() {
		return inventory.Item{}, fmt.Errorf("item %s is not public", id)
	}
	if err := s.store.IncrementItemShares(ctx, id); err != nil {
		return inventory.Item{}, err
	}
	item.ShareCount++
	return s.withCategories(ctx, item)
}

// MapResult is the public map payload: the visible items, optionally
// narrowed by the filters, plus aggregate counts for the filter bar.
type MapResult struct {
	Items []inventory.Item `json:"items"`
	Total int              `json:"total"`
	// ByCategory counts every visible item per main category regardless of
	// the active filter. BySubcategory is only populated while a category
	// filter is selected, counting its subcategories.
	ByCategory    map[string]int `json:"by_category"`
	BySubcategory map[string]int `json:"by_subcategory"`
}

// MapItems returns the items visible on the public map, filterable by main
// category and subcategory codes.
func (s *Service) MapItems(ctx context.Context, categoryCode, subcategoryCode string) (MapResult, error) {
	items, err := s.store.ListItems(ctx, storage.ItemFilter{
		Statuses: []inventory.Status{inventory.StatusApproved, inventory.StatusResolved},
	})
	if err != nil {
		return MapResult{}, err
	}

	result := MapResult{
		Items:         make([]inventory.Item, 0, len(items)),
		ByCategory:    make(map[string]int),
		BySubcategory: make(map[string]int),
	}
	for i := range items {
		items[i], err = s.withCategories(ctx, items[i])
		if err != nil {
			return MapResult{}, err
		}
		main, sub := splitCategoryCodes(items[i].Categories)

		result.Total++
		if main != "" {
			result.ByCategory[main]++
			if categoryCode != "" && main == categoryCode && sub != "" {
				result.BySubcategory[sub]++
			}
		}

		if categoryCode != "" && main != categoryCode {
			continue
		}
		if subcategoryCode != "" && sub != subcategoryCode {
			continue
		}
		result.Items = append(result.Items, items[i])
	}
	return result, nil
}

// splitCategoryCodes picks the item's main category (no parent) and
// subcategory codes out of its attached categories.
func splitCategoryCodes(cats []inventory.Category) (main, sub string) {
	for _, c := range cats {
		if c.ParentID == nil {
			if main == "" {
				main = c.Code
			}
		} else if sub == "" {
			sub = c.Code
		}
	}
	return main, sub
}

// ListPending returns items awaiting moderation, optionally narrowed to one
// census section.
func (s *Service) ListPending(ctx context.Context, sectionID string) ([]inventory.Item, error) {
	return s.store.ListItems(ctx, storage.ItemFilter{
		Statuses:  []inventory.Status{inventory.StatusPending},
		SectionID: sectionID,
	})
}

// Approve moves a pending item onto the public map.
func (s *Service) Approve(ctx context.Context, id string) (inventory.Item, error) {
	item, err := s.store.GetItem(ctx, id)
	if err != nil {
		return inventory.Item{}, err
	}
	if item.Status != inventory.StatusPending {
		return inventory.Item{}, fmt.Errorf("only pending items can be approved, item is %s", item.Status)
	}
	now := time.Now().UTC()
	item.Status = inventory.StatusApproved
	item.ApprovedAt = &now

	updated, err := s.store.UpdateItem(ctx, item)
	if err != nil {
		return inventory.Item{}, err
	}
	s.notifyReporter(ctx, updated, mailer.TemplateItemApproved, "La teva incidència ja és al mapa", "")
	s.log.WithField("item_id", id).Info("item approved")
	return updated, nil
}

// Reject declines a pending item. The optional reason is relayed to the
// reporter.
func (s *Service) Reject(ctx context.Context, id, reason string) (inventory.Item, error) {
	item, err := s.store.GetItem(ctx, id)
	if err != nil {
		return inventory.Item{}, err
	}
	if item.Status != inventory.StatusPending {
		return inventory.Item{}, fmt.Errorf("only pending items can be rejected, item is %s", item.Status)
	}
	item.Status = inventory.StatusRejected

	updated, err := s.store.UpdateItem(ctx, item)
	if err != nil {
		return inventory.Item{}, err
	}
	s.notifyReporter(ctx, updated, mailer.TemplateItemRejected, "Sobre la teva incidència", reason)
	s.log.WithField("item_id", id).Info("item rejected")
	return updated, nil
}

// Resolve marks an approved item as fixed.
func (s *Service) Resolve(ctx context.Context, id string) (inventory.Item, error) {
	item, err := s.store.GetItem(ctx, id)
	if err != nil {
		return inventory.Item{}, err
	}
	return s.resolve(ctx, item)
}

func (s *Service) resolve(ctx context.Context, item inventory.Item) (inventory.Item, error) {
	if item.Status != inventory.StatusApproved {
		return inventory.Item{}, fmt.Errorf("only approved items can be resolved, item is %s", item.Status)
	}
	now := time.Now().UTC()
	item.Status = inventory.StatusResolved
	item.ResolvedAt = &now

	updated, err := s.store.UpdateItem(ctx, item)
	if err != nil {
		return inventory.Item{}, err
	}
	s.notifyReporter(ctx, updated, mailer.TemplateItemResolved, "La teva incidència s'ha resolt", "")
	s.log.WithField("item_id", item.ID).Info("item resolved")
	return updated, nil
}

// Remove takes an item off the map without deleting its history.
func (s *Service) Remove(ctx context.Context, id string) (inventory.Item, error) {
	item, err := s.store.GetItem(ctx, id)
	if err != nil {
		return inventory.Item{}, err
	}
	item.Status = inventory.StatusRemoved

	updated, err := s.store.UpdateItem(ctx, item)
	if err != nil {
		return inventory.Item{}, err
	}
	s.log.WithField("item_id", id).Info("item removed")
	return updated, nil
}

// VoteImportance registers one user's importance vote on an approved item.
// Voting twice returns storage.ErrConflict.
func (s *Service) VoteImportance(ctx context.Context, itemID, userID string) (inventory.Item, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return inventory.Item{}, err
	}
	if !item.Votable() {
		return inventory.Item{}, fmt.Errorf("item is not open for voting")
	}

	if _, err := s.store.CreateVote(ctx, inventory.Vote{
		ItemID: itemID,
		UserID: userID,
		Kind:   inventory.VoteImportance,
	}); err != nil {
		return inventory.Item{}, err
	}
	return s.refreshCounts(ctx, item)
}

// ReportResolved registers one user's claim that the issue is fixed. The
// user's importance vote on the same item, if any, is withdrawn. When the
// number of resolved reports reaches the threshold the item flips to
// resolved.
func (s *Service) ReportResolved(ctx context.Context, itemID, userID string) (inventory.Item, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return inventory.Item{}, err
	}
	if item.Status != inventory.StatusApproved {
		return inventory.Item{}, fmt.Errorf("item is not open for resolved reports")
	}

	if _, err := s.store.CreateVote(ctx, inventory.Vote{
		ItemID: itemID,
		UserID: userID,
		Kind:   inventory.VoteResolved,
	}); err != nil {
		return inventory.Item{}, err
	}

	if has, err := s.store.HasVote(ctx, itemID, userID, inventory.VoteImportance); err == nil && has {
		if err := s.store.DeleteVote(ctx, itemID, userID, inventory.VoteImportance); err != nil {
			s.log.WithError(err).Warn("withdrawing importance vote failed")
		}
	}

	item, err = s.refreshCounts(ctx, item)
	if err != nil {
		return inventory.Item{}, err
	}

	if item.ResolvedCount >= s.autoResolveThreshold {
		return s.resolve(ctx, item)
	}
	return item, nil
}

// refreshCounts recomputes the denormalized vote counters on the item row.
func (s *Service) refreshCounts(ctx context.Context, item inventory.Item) (inventory.Item, error) {
	importance, err := s.store.CountVotes(ctx, item.ID, inventory.VoteImportance)
	if err != nil {
		return inventory.Item{}, err
	}
	resolved, err := s.store.CountVotes(ctx, item.ID, inventory.VoteResolved)
	if err != nil {
		return inventory.Item{}, err
	}
	item.ImportanceCount = importance
	item.ResolvedCount = resolved
	return s.store.UpdateItem(ctx, item)
}

// Categories returns the active taxonomy.
func (s *Service) Categories(ctx context.Context) ([]inventory.Category, error) {
	return s.store.ListCategories(ctx, true)
}

// SeedCategories upserts the configured taxonomy: parents first, then their
// subcategories.
func (s *Service) SeedCategories(ctx context.Context, parents []inventory.Category, children map[string][]inventory.Category) error {
	for _, parent := range parents {
		created, err := s.store.UpsertCategory(ctx, parent)
		if err != nil {
			return fmt.Errorf("seed category %s: %w", parent.Code, err)
		}
		for _, child := range children[parent.Code] {
			child.ParentID = &created.ID
			if _, err := s.store.UpsertCategory(ctx, child); err != nil {
				return fmt.Errorf("seed category %s: %w", child.Code, err)
			}
		}
	}
	return nil
}

func (s *Service) withCategories(ctx context.Context, item inventory.Item) (inventory.Item, error) {
	cats, err := s.store.ListItemCategories(ctx, item.ID)
	if err != nil {
		return inventory.Item{}, err
	}
	item.Categories = cats
	return item, nil
}
