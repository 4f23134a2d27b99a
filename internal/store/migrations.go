package store

const schema = `
CREATE TABLE IF NOT EXISTS handles (
    handle     TEXT PRIMARY KEY,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS tweets (
    id                 TEXT NOT NULL,
    text               TEXT NOT NULL,
    author             TEXT NOT NULL,
    author_full        TEXT NOT NULL DEFAULT '',
    author_profile_url TEXT NOT NULL DEFAULT '',
    likes              INTEGER NOT NULL DEFAULT 0,
    retweets           INTEGER NOT NULL DEFAULT 0,
    quotes             INTEGER NOT NULL DEFAULT 0,
    replies            INTEGER NOT NULL DEFAULT 0,
    day_index          INTEGER NOT NULL,
    PRIMARY KEY (id, day_index)
);

CREATE INDEX IF NOT EXISTS idx_tweets_day ON tweets(day_index);

CREATE TABLE IF NOT EXISTS scrape_data (
    id           TEXT PRIMARY KEY CHECK (id = 'metadata'),
    start_time   TEXT NOT NULL,
    end_time     TEXT NOT NULL,
    batch_offset INTEGER NOT NULL DEFAULT 0,
    is_complete  BOOLEAN NOT NULL DEFAULT 0,
    day_index    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS sayings (
    text        TEXT PRIMARY KEY,
    usage_count INTEGER NOT NULL DEFAULT 0,
    last_usage  DATETIME
);

CREATE INDEX IF NOT EXISTS idx_sayings_usage ON sayings(usage_count);

CREATE TABLE IF NOT EXISTS puzzles (
    id          TEXT PRIMARY KEY,
    text        TEXT NOT NULL,
    tweet1      TEXT NOT NULL,
    tweet2      TEXT NOT NULL,
    tweet3      TEXT NOT NULL,
    tweet4      TEXT NOT NULL,
    usage_count INTEGER NOT NULL DEFAULT 0,
    picked      BOOLEAN NOT NULL DEFAULT 0,
    picked_at   DATETIME,
    day_index   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_puzzles_day ON puzzles(day_index);

CREATE VIEW IF NOT EXISTS current_puzzle AS
    SELECT * FROM puzzles
    WHERE picked = 1
      AND day_index = (SELECT MAX(day_index) FROM puzzles WHERE picked = 1);
`
