// Package storage declares the persistence interfaces the services depend
// on. Postgres backs production; the memory implementation backs tests and
// local development.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/civicmap/civicmap/internal/domain/container"
	"github.com/civicmap/civicmap/internal/domain/donation"
	"github.com/civicmap/civicmap/internal/domain/geo"
	"github.com/civicmap/civicmap/internal/domain/initiative"
	"github.com/civicmap/civicmap/internal/domain/inventory"
	"github.com/civicmap/civicmap/internal/domain/user"
)

// Sentinel errors implementations wrap so callers can map them to API
// responses.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
	// ErrUnsupported marks operations a backend cannot answer, such as
	// spatial queries without PostGIS. Callers fall back to in-process
	// evaluation.
	ErrUnsupported = errors.New("unsupported by storage backend")
)

// UserStore persists accounts and their roles.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	UpdateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
	ListUsers(ctx context.Context) ([]user.User, error)
}

// InitiativeFilter narrows initiative listings.
type InitiativeFilter struct {
	Statuses  []initiative.Status
	Category  string
	CreatorID string
	// OnDate selects initiatives scheduled for the given calendar day.
	OnDate *time.Time
	// UpcomingFrom keeps initiatives dated on or after the given day.
	UpcomingFrom *time.Time
}

// InitiativeStore persists initiatives, comments and participation.
type InitiativeStore interface {
	CreateInitiative(ctx context.Context, ini initiative.Initiative) (initiative.Initiative, error)
	UpdateInitiative(ctx context.Context, ini initiative.Initiative) (initiative.Initiative, error)
	GetInitiative(ctx context.Context, id string) (initiative.Initiative, error)
	GetInitiativeBySlug(ctx context.Context, slug string) (initiative.Initiative, error)
	ListInitiatives(ctx context.Context, filter InitiativeFilter) ([]initiative.Initiative, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	IncrementInitiativeViews(ctx context.Context, id string) error

	AddParticipant(ctx context.Context, initiativeID, userID string) error
	RemoveParticipant(ctx context.Context, initiativeID, userID string) error
	ListParticipantIDs(ctx context.Context, initiativeID string) ([]string, error)

	CreateParticipation(ctx context.Context, p initiative.Participation) (initiative.Participation, error)
	ListParticipations(ctx context.Context, initiativeID string) ([]initiative.Participation, error)

	CreateComment(ctx context.Context, c initiative.Comment) (initiative.Comment, error)
	ListComments(ctx context.Context, initiativeID string) ([]initiative.Comment, error)
	DeleteComment(ctx context.Context, id string) error
}

// ItemFilter narrows inventory listings.
type ItemFilter struct {
	Statuses     []inventory.Status
	SectionID    string
	CategoryCode string
	ReporterID   string
}

// InventoryStore persists reported items, votes and the category taxonomy.
type InventoryStore interface {
	CreateItem(ctx context.Context, it inventory.Item) (inventory.Item, error)
	UpdateItem(ctx context.Context, it inventory.Item) (inventory.Item, error)
	GetItem(ctx context.Context, id string) (inventory.Item, error)
	ListItems(ctx context.Context, filter ItemFilter) ([]inventory.Item, error)
	IncrementItemShares(ctx context.Context, id string) error

	// CreateVote returns ErrConflict when the user already holds a vote of
	// the same kind on the item.
	CreateVote(ctx context.Context, v inventory.Vote) (inventory.Vote, error)
	DeleteVote(ctx context.Context, itemID, userID string, kind inventory.VoteKind) error
	HasVote(ctx context.Context, itemID, userID string, kind inventory.VoteKind) (bool, error)
	CountVotes(ctx context.Context, itemID string, kind inventory.VoteKind) (int, error)

	UpsertCategory(ctx context.Context, c inventory.Category) (inventory.Category, error)
	GetCategoryByCode(ctx context.Context, code string) (inventory.Category, error)
	ListCategories(ctx context.Context, activeOnly bool) ([]inventory.Category, error)
	SetItemCategories(ctx context.Context, itemID string, categoryIDs []string) error
	ListItemCategories(ctx context.Context, itemID string) ([]inventory.Category, error)
}

// GeoStore persists districts, sections and item assignments.
type GeoStore interface {
	UpsertDistrict(ctx context.Context, d geo.District) (geo.District, error)
	UpsertSection(ctx context.Context, s geo.Section) (geo.Section, error)
	GetSection(ctx context.Context, id string) (geo.Section, error)
	ListDistricts(ctx context.Context) ([]geo.District, error)
	ListSections(ctx context.Context) ([]geo.Section, error)

	// FindSectionContaining answers with a spatial query when the backend
	// supports one; otherwise it returns ErrUnsupported and the caller
	// evaluates the stored geometries in process.
	FindSectionContaining(ctx context.Context, lat, lng float64) (geo.Section, error)

	RecordAssignment(ctx context.Context, a geo.Assignment) error
	GetAssignment(ctx context.Context, itemID string) (geo.Assignment, error)
}

// ContainerStore persists container points, overflow reports and placement
// suggestions.
type ContainerStore interface {
	CreateContainerPoint(ctx context.Context, p container.Point) (container.Point, error)
	UpdateContainerPoint(ctx context.Context, p container.Point) (container.Point, error)
	GetContainerPoint(ctx context.Context, id string) (container.Point, error)
	ListContainerPoints(ctx context.Context) ([]container.Point, error)
	DeleteContainerPoint(ctx context.Context, id string) error

	// CreateOverflowReport returns ErrConflict when the user already
	// reported this point.
	CreateOverflowReport(ctx context.Context, pointID, userID string) error

	CreateContainerSuggestion(ctx context.Context, sg container.Suggestion) (container.Suggestion, error)
	ListContainerSuggestions(ctx context.Context) ([]container.Suggestion, error)
}

// DonationStore persists donations and paid report purchases.
type DonationStore interface {
	CreateDonation(ctx context.Context, d donation.Donation) (donation.Donation, error)
	UpdateDonation(ctx context.Context, d donation.Donation) (donation.Donation, error)
	GetDonation(ctx context.Context, id string) (donation.Donation, error)
	GetDonationBySession(ctx context.Context, sessionID string) (donation.Donation, error)
	GetDonationByPaymentIntent(ctx context.Context, paymentIntentID string) (donation.Donation, error)
	ListDonations(ctx context.Context, status donation.Status) ([]donation.Donation, error)

	CreateReportPurchase(ctx context.Context, p donation.ReportPurchase) (donation.ReportPurchase, error)
	UpdateReportPurchase(ctx context.Context, p donation.ReportPurchase) (donation.ReportPurchase, error)
	GetReportPurchaseBySession(ctx context.Context, sessionID string) (donation.ReportPurchase, error)
	GetReportPurchaseByToken(ctx context.Context, token string) (donation.ReportPurchase, error)
}

// ZoneCount is the number of items inside one section.
type ZoneCount struct {
	SectionID    string `db:"section_id" json:"section_id"`
	DistrictCode string `db:"district_code" json:"district_code"`
	SectionCode  string `db:"section_code" json:"section_code"`
	Count        int    `db:"count" json:"count"`
}

// CategoryCount is the number of items tagged with one category.
type CategoryCount struct {
	Code  string `db:"code" json:"code"`
	Name  string `db:"name" json:"name"`
	Count int    `db:"count" json:"count"`
}

// MonthCount is the number of items reported in one calendar month.
type MonthCount struct {
	Month string `db:"month" json:"month"`
	Count int    `db:"count" json:"count"`
}

// AnalyticsStore answers aggregate queries over the inventory.
type AnalyticsStore interface {
	CountItemsByZone(ctx context.Context) ([]ZoneCount, error)
	CountItemsByCategory(ctx context.Context, limit int) ([]CategoryCount, error)
	CountItemsByMonth(ctx context.Context, months int) ([]MonthCount, error)
	CountItemsByStatus(ctx context.Context) (map[inventory.Status]int, error)
}
