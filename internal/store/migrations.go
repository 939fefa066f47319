package store

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS publishers (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    name       TEXT NOT NULL,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS authors (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    name       TEXT NOT NULL,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS authorship_contracts (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    author_id    INTEGER NOT NULL REFERENCES authors(id),
    publisher_id INTEGER NOT NULL REFERENCES publishers(id),
    starts_at    DATETIME NOT NULL,
    ends_at      DATETIME
);

CREATE INDEX IF NOT EXISTS idx_contracts_author ON authorship_contracts(author_id);
CREATE INDEX IF NOT EXISTS idx_contracts_publisher ON authorship_contracts(publisher_id);

CREATE TABLE IF NOT EXISTS books (
    id                    INTEGER PRIMARY KEY AUTOINCREMENT,
    title                 TEXT NOT NULL,
    author_id             INTEGER NOT NULL DEFAULT 0,
    impression_count      INTEGER NOT NULL DEFAULT 0,
    click_through_count   INTEGER NOT NULL DEFAULT 0,
    last_impression_at    DATETIME,
    last_click_through_at DATETIME,
    popularity_score      REAL NOT NULL DEFAULT 0,
    scored_at             DATETIME,
    created_at            DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_books_author ON books(author_id);
CREATE INDEX IF NOT EXISTS idx_books_popularity ON books(popularity_score);

CREATE TABLE IF NOT EXISTS taxonomies (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    name       TEXT NOT NULL,
    type       TEXT NOT NULL CHECK (type IN ('genre', 'subgenre', 'theme', 'trope')),
    parent_id  INTEGER REFERENCES taxonomies(id),
    deleted_at DATETIME,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_taxonomies_parent ON taxonomies(parent_id);

CREATE TABLE IF NOT EXISTS book_taxonomies (
    book_id     INTEGER NOT NULL REFERENCES books(id),
    taxonomy_id INTEGER NOT NULL REFERENCES taxonomies(id),
    rank        INTEGER NOT NULL CHECK (rank >= 1),
    importance  REAL NOT NULL,
    PRIMARY KEY (book_id, taxonomy_id)
);

CREATE INDEX IF NOT EXISTS idx_book_taxonomies_taxonomy ON book_taxonomies(taxonomy_id);

CREATE TABLE IF NOT EXISTS views (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    name       TEXT NOT NULL,
    slug       TEXT NOT NULL UNIQUE,
    rank       INTEGER NOT NULL DEFAULT 0,
    is_default BOOLEAN NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS view_taxonomies (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    view_id     INTEGER NOT NULL REFERENCES views(id),
    taxonomy_id INTEGER NOT NULL REFERENCES taxonomies(id),
    type        TEXT NOT NULL,
    rank        INTEGER NOT NULL DEFAULT 0,
    UNIQUE(view_id, taxonomy_id)
);

CREATE INDEX IF NOT EXISTS idx_view_taxonomies_view ON view_taxonomies(view_id);

CREATE TABLE IF NOT EXISTS user_blocks (
    user_id    INTEGER NOT NULL,
    block_type TEXT NOT NULL CHECK (block_type IN ('author', 'book', 'publisher', 'taxonomy')),
    block_id   INTEGER NOT NULL,
    block_name TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    PRIMARY KEY (user_id, block_type, block_id)
);

CREATE TABLE IF NOT EXISTS engagement_events (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    book_id     INTEGER NOT NULL REFERENCES books(id),
    user_id     INTEGER NOT NULL DEFAULT 0,
    event_type  TEXT NOT NULL,
    weight      REAL NOT NULL DEFAULT 0,
    occurred_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_book ON engagement_events(book_id);
CREATE INDEX IF NOT EXISTS idx_events_occurred ON engagement_events(occurred_at);

CREATE TABLE IF NOT EXISTS popularity_runs (
    id           TEXT PRIMARY KEY,
    window_days  INTEGER NOT NULL,
    books_scored INTEGER NOT NULL,
    started_at   DATETIME NOT NULL,
    finished_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_popularity_runs_finished ON popularity_runs(finished_at);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS publishers (
    id         BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    name       TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS authors (
    id         BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    name       TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS authorship_contracts (
    id           BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    author_id    BIGINT NOT NULL REFERENCES authors(id),
    publisher_id BIGINT NOT NULL REFERENCES publishers(id),
    starts_at    TIMESTAMPTZ NOT NULL,
    ends_at      TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_contracts_author ON authorship_contracts(author_id);
CREATE INDEX IF NOT EXISTS idx_contracts_publisher ON authorship_contracts(publisher_id);

CREATE TABLE IF NOT EXISTS books (
    id                    BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    title                 TEXT NOT NULL,
    author_id             BIGINT NOT NULL DEFAULT 0,
    impression_count      BIGINT NOT NULL DEFAULT 0,
    click_through_count   BIGINT NOT NULL DEFAULT 0,
    last_impression_at    TIMESTAMPTZ,
    last_click_through_at TIMESTAMPTZ,
    popularity_score      DOUBLE PRECISION NOT NULL DEFAULT 0,
    scored_at             TIMESTAMPTZ,
    created_at            TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_books_author ON books(author_id);
CREATE INDEX IF NOT EXISTS idx_books_popularity ON books(popularity_score);

CREATE TABLE IF NOT EXISTS taxonomies (
    id         BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    name       TEXT NOT NULL,
    type       TEXT NOT NULL CHECK (type IN ('genre', 'subgenre', 'theme', 'trope')),
    parent_id  BIGINT REFERENCES taxonomies(id),
    deleted_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_taxonomies_parent ON taxonomies(parent_id);

CREATE TABLE IF NOT EXISTS book_taxonomies (
    book_id     BIGINT NOT NULL REFERENCES books(id),
    taxonomy_id BIGINT NOT NULL REFERENCES taxonomies(id),
    rank        INTEGER NOT NULL CHECK (rank >= 1),
    importance  DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (book_id, taxonomy_id)
);

CREATE INDEX IF NOT EXISTS idx_book_taxonomies_taxonomy ON book_taxonomies(taxonomy_id);

CREATE TABLE IF NOT EXISTS views (
    id         BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    name       TEXT NOT NULL,
    slug       TEXT NOT NULL UNIQUE,
    rank       INTEGER NOT NULL DEFAULT 0,
    is_default BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS view_taxonomies (
    id          BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    view_id     BIGINT NOT NULL REFERENCES views(id),
    taxonomy_id BIGINT NOT NULL REFERENCES taxonomies(id),
    type        TEXT NOT NULL,
    rank        INTEGER NOT NULL DEFAULT 0,
    UNIQUE(view_id, taxonomy_id)
);

CREATE INDEX IF NOT EXISTS idx_view_taxonomies_view ON view_taxonomies(view_id);

CREATE TABLE IF NOT EXISTS user_blocks (
    user_id    BIGINT NOT NULL,
    block_type TEXT NOT NULL CHECK (block_type IN ('author', 'book', 'publisher', 'taxonomy')),
    block_id   BIGINT NOT NULL,
    block_name TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (user_id, block_type, block_id)
);

CREATE TABLE IF NOT EXISTS engagement_events (
    id          BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    book_id     BIGINT NOT NULL REFERENCES books(id),
    user_id     BIGINT NOT NULL DEFAULT 0,
    event_type  TEXT NOT NULL,
    weight      DOUBLE PRECISION NOT NULL DEFAULT 0,
    occurred_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_book ON engagement_events(book_id);
CREATE INDEX IF NOT EXISTS idx_events_occurred ON engagement_events(occurred_at);

CREATE TABLE IF NOT EXISTS popularity_runs (
    id           TEXT PRIMARY KEY,
    window_days  INTEGER NOT NULL,
    books_scored INTEGER NOT NULL,
    started_at   TIMESTAMPTZ NOT NULL,
    finished_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_popularity_runs_finished ON popularity_runs(finished_at);
`
