package registry

const schema = `
-- Registered content
CREATE TABLE IF NOT EXISTS contents (
    id TEXT PRIMARY KEY,
    message TEXT NOT NULL,
    payload_hash TEXT NOT NULL,
    config TEXT NOT NULL,
    metadata TEXT NOT NULL,
    width INTEGER NOT NULL,
    height INTEGER NOT NULL,
    reference BLOB NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contents_payload_hash ON contents(payload_hash);

-- Feature vectors for similarity lookup
CREATE TABLE IF NOT EXISTS features (
    content_id TEXT PRIMARY KEY,
    vector BLOB NOT NULL,
    FOREIGN KEY (content_id) REFERENCES contents(id) ON DELETE CASCADE
);
`
