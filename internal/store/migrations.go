package store

// schema is the layout read by the static-site build. Column names and types
// must not change; indexes and cascades are additive.
const schema = `
CREATE TABLE IF NOT EXISTS daily_digest (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    date           TEXT UNIQUE NOT NULL,
    global_title   TEXT NOT NULL DEFAULT '',
    global_summary TEXT NOT NULL,
    created_at     TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS country_digest (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    daily_digest_id INTEGER NOT NULL REFERENCES daily_digest(id) ON DELETE CASCADE,
    country_code    TEXT NOT NULL,
    country_name    TEXT NOT NULL,
    title           TEXT NOT NULL DEFAULT '',
    summary         TEXT NOT NULL,
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    UNIQUE(daily_digest_id, country_code)
);

CREATE TABLE IF NOT EXISTS release_summary (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    country_digest_id INTEGER NOT NULL REFERENCES country_digest(id) ON DELETE CASCADE,
    release_id        INTEGER NOT NULL,
    title             TEXT NOT NULL,
    summary           TEXT NOT NULL,
    original_url      TEXT NOT NULL,
    ministry          TEXT,
    created_at        TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_release_summary_release ON release_summary(release_id);
CREATE INDEX IF NOT EXISTS idx_release_summary_country ON release_summary(country_digest_id);
CREATE INDEX IF NOT EXISTS idx_country_digest_daily ON country_digest(daily_digest_id);

CREATE TABLE IF NOT EXISTS weekly_digest (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    week_start     TEXT NOT NULL,
    week_end       TEXT UNIQUE NOT NULL,
    global_title   TEXT NOT NULL DEFAULT '',
    global_summary TEXT NOT NULL,
    created_at     TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS weekly_country_digest (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    weekly_digest_id INTEGER NOT NULL REFERENCES weekly_digest(id) ON DELETE CASCADE,
    country_code     TEXT NOT NULL,
    country_name     TEXT NOT NULL,
    title            TEXT NOT NULL DEFAULT '',
    summary          TEXT NOT NULL,
    created_at       TEXT NOT NULL DEFAULT (datetime('now')),
    UNIQUE(weekly_digest_id, country_code)
);

CREATE INDEX IF NOT EXISTS idx_weekly_country_weekly ON weekly_country_digest(weekly_digest_id);
`
