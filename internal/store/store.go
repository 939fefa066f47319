package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/elonfeng/shelfradar/pkg/catalog"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by point lookups when no row matches.
var ErrNotFound = errors.New("not found")

// Driver names accepted by New.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// activeTaxonomy is the soft-delete predicate applied to every query that
// touches taxonomies. Callers never re-check deleted_at themselves.
const activeTaxonomy = "t.deleted_at IS NULL"

// BackfillQuery describes one bounded backfill pass.
type BackfillQuery struct {
	TaxonomyIDs []int64
	Exclude     []int64
	Blocks      catalog.BlockSet
	At          time.Time
	Limit       int
}

// Store is the persistence interface.
type Store interface {
	CreatePublisher(ctx context.Context, name string) (int64, error)
	CreateAuthor(ctx context.Context, name string) (int64, error)
	AddContract(ctx context.Context, c *catalog.AuthorshipContract) error
	AuthorsContractedTo(ctx context.Context, authorIDs, publisherIDs []int64, at time.Time) ([]int64, error)

	CreateBook(ctx context.Context, b *catalog.Book) error
	GetBook(ctx context.Context, id int64) (*catalog.Book, error)
	GetBooks(ctx context.Context, ids []int64) ([]catalog.Book, error)
	ListPopularBooks(ctx context.Context, limit int) ([]catalog.Book, error)
	RankBookIDs(ctx context.Context, ids []int64, limit int) ([]int64, error)
	BookAuthors(ctx context.Context, bookIDs []int64) (map[int64]int64, error)

	CreateTaxonomy(ctx context.Context, t *catalog.Taxonomy) error
	GetTaxonomy(ctx context.Context, id int64) (*catalog.Taxonomy, error)
	ListTaxonomies(ctx context.Context) ([]catalog.Taxonomy, error)
	SoftDeleteTaxonomy(ctx context.Context, id int64) error

	AssignTaxonomy(ctx context.Context, bookID, taxonomyID int64, rank int) error
	RemoveAssignment(ctx context.Context, bookID, taxonomyID int64) error
	ListAssignments(ctx context.Context, bookID int64) ([]catalog.Assignment, error)
	RecomputeImportance(ctx context.Context) (int, error)
	BookIDsForTaxonomies(ctx context.Context, taxonomyIDs []int64) ([]int64, error)
	BooksTaggedWith(ctx context.Context, bookIDs, taxonomyIDs []int64) ([]int64, error)
	BackfillPool(ctx context.Context, q BackfillQuery) ([]int64, error)

	CreateView(ctx context.Context, v *catalog.View) error
	AddViewTaxonomy(ctx context.Context, viewID, taxonomyID int64, rank int) error
	GetView(ctx context.Context, id int64) (*catalog.View, error)
	GetViewBySlug(ctx context.Context, slug string) (*catalog.View, error)
	ListViews(ctx context.Context) ([]catalog.View, error)
	ViewTaxonomyIDs(ctx context.Context, viewID int64) ([]int64, error)

	AddBlock(ctx context.Context, b *catalog.Block) error
	RemoveBlock(ctx context.Context, userID int64, blockType catalog.BlockType, blockID int64) error
	ListBlocks(ctx context.Context, userID int64) ([]catalog.Block, error)

	RecordEvent(ctx context.Context, e *catalog.Event) error
	CountEventsSince(ctx context.Context, since time.Time) ([]catalog.EventCount, error)
	ReplacePopularityScores(ctx context.Context, scores map[int64]float64, run *catalog.ScoreRun) error
	LatestScoreRun(ctx context.Context) (*catalog.ScoreRun, error)

	Close() error
}

// SQLStore implements Store on top of sqlx. SQLite is the default backend;
// Postgres is used when the driver is "pgx". Queries are written with '?'
// placeholders and rebound for the active driver.
type SQLStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// New opens the database and runs migrations.
func New(driver, dsn string) (*SQLStore, error) {
	if driver == "" {
		driver = DriverSQLite
	}

	schema := sqliteSchema
	switch driver {
	case DriverSQLite:
		dsn = sqliteDSN(dsn)
	case DriverPostgres:
		schema = postgresSchema
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func sqliteDSN(path string) string {
	if path == "" {
		path = "./shelfradar.db"
	}
	return "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// selectIn expands slice arguments with sqlx.In and rebinds for the driver.
func (s *SQLStore) selectIn(ctx context.Context, dest any, query string, args ...any) error {
	q, expanded, err := sqlx.In(query, args...)
	if err != nil {
		return err
	}
	return s.db.SelectContext(ctx, dest, s.db.Rebind(q), expanded...)
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.db.Rebind(query), args...)
}

func (s *SQLStore) get(ctx context.Context, dest any, query string, args ...any) error {
	err := s.db.GetContext(ctx, dest, s.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *SQLStore) insertReturningID(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	if err := s.db.QueryRowxContext(ctx, s.db.Rebind(query), args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// syncIdentity moves a Postgres identity sequence past the largest id in
// table after a row was inserted with an explicit id. SQLite AUTOINCREMENT
// already tracks the maximum, so it is a no-op there.
func (s *SQLStore) syncIdentity(ctx context.Context, table string) error {
	if s.db.DriverName() != DriverPostgres {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, identityResetQuery(table)); err != nil {
		return fmt.Errorf("sync %s id sequence: %w", table, err)
	}
	return nil
}

func identityResetQuery(table string) string {
	return fmt.Sprintf(
		"SELECT setval(pg_get_serial_sequence('%[1]s', 'id'), (SELECT MAX(id) FROM %[1]s))",
		table)
}

// withTx runs fn inside a transaction, rolling back on any error.
func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
