package catalog

import "time"

// TaxonomyType identifies which level of the tag hierarchy a taxonomy belongs to.
type TaxonomyType string

const (
	TaxonomyGenre    TaxonomyType = "genre"
	TaxonomySubgenre TaxonomyType = "subgenre"
	TaxonomyTheme    TaxonomyType = "theme"
	TaxonomyTrope    TaxonomyType = "trope"
)

// Taxonomy is a tag node in the genre / subgenre / theme / trope hierarchy.
type Taxonomy struct {
	ID        int64        `json:"id" db:"id"`
	Name      string       `json:"name" db:"name" validate:"required,max=200"`
	Type      TaxonomyType `json:"type" db:"type" validate:"required,oneof=genre subgenre theme trope"`
	ParentID  *int64       `json:"parent_id,omitempty" db:"parent_id" validate:"required_if=Type subgenre,excluded_if=Type genre"`
	DeletedAt *time.Time   `json:"-" db:"deleted_at"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
}

// Assignment tags a book with a taxonomy. Rank is 1-based per book per taxonomy type.
type Assignment struct {
	BookID       int64        `json:"book_id" db:"book_id"`
	TaxonomyID   int64        `json:"taxonomy_id" db:"taxonomy_id"`
	TaxonomyType TaxonomyType `json:"taxonomy_type" db:"taxonomy_type"`
	Rank         int          `json:"rank" db:"rank"`
	Importance   float64      `json:"importance" db:"importance"`
}

// View is a named, ranked collection of taxonomies used to curate a book list.
type View struct {
	ID        int64  `json:"id" db:"id"`
	Name      string `json:"name" db:"name"`
	Slug      string `json:"slug" db:"slug"`
	Rank      int    `json:"rank" db:"rank"`
	IsDefault bool   `json:"is_default" db:"is_default"`
}

// ViewTaxonomy is one ordered child row of a view.
type ViewTaxonomy struct {
	ID         int64        `json:"id" db:"id"`
	ViewID     int64        `json:"view_id" db:"view_id"`
	TaxonomyID int64        `json:"taxonomy_id" db:"taxonomy_id"`
	Type       TaxonomyType `json:"type" db:"type"`
	Rank       int          `json:"rank" db:"rank"`
}

// Book is the catalog entry shown in discovery results.
type Book struct {
	ID                 int64      `json:"id" db:"id"`
	Title              string     `json:"title" db:"title"`
	AuthorID           int64      `json:"author_id" db:"author_id"`
	ImpressionCount    int64      `json:"impression_count" db:"impression_count"`
	ClickThroughCount  int64      `json:"click_through_count" db:"click_through_count"`
	LastImpressionAt   *time.Time `json:"last_impression_at,omitempty" db:"last_impression_at"`
	LastClickThroughAt *time.Time `json:"last_click_through_at,omitempty" db:"last_click_through_at"`
	PopularityScore    float64    `json:"popularity_score" db:"popularity_score"`
	ScoredAt           *time.Time `json:"scored_at,omitempty" db:"scored_at"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
}

// AuthorshipContract links an author to a publisher for a period of time.
type AuthorshipContract struct {
	ID          int64      `json:"id" db:"id"`
	AuthorID    int64      `json:"author_id" db:"author_id"`
	PublisherID int64      `json:"publisher_id" db:"publisher_id"`
	StartsAt    time.Time  `json:"starts_at" db:"starts_at"`
	EndsAt      *time.Time `json:"ends_at,omitempty" db:"ends_at"`
}

// ActiveAt reports whether the contract is in force at t.
func (c AuthorshipContract) ActiveAt(t time.Time) bool {
	if c.StartsAt.After(t) {
		return false
	}
	return c.EndsAt == nil || c.EndsAt.After(t)
}

// ScoreRun records one successful popularity recompute.
type ScoreRun struct {
	ID          string    `json:"id" db:"id"`
	WindowDays  int       `json:"window_days" db:"window_days"`
	BooksScored int       `json:"books_scored" db:"books_scored"`
	StartedAt   time.Time `json:"started_at" db:"started_at"`
	FinishedAt  time.Time `json:"finished_at" db:"finished_at"`
}
