package db

// schema is written in the subset of SQL shared by postgres and sqlite.
// Timestamps are stored as UTC; string lists are JSON text.
const schema = `
CREATE TABLE IF NOT EXISTS leads (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    email TEXT NOT NULL UNIQUE,
    company TEXT NOT NULL DEFAULT '',
    role TEXT NOT NULL DEFAULT '',
    intent TEXT NOT NULL DEFAULT 'other',
    score INTEGER NOT NULL DEFAULT 0,
    conversation_summary TEXT NOT NULL DEFAULT '',
    research_summary TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL DEFAULT 'chat',
    status TEXT NOT NULL DEFAULT 'new',
    session_id TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS leads_created_at_idx ON leads (created_at);

CREATE TABLE IF NOT EXISTS conversation_contexts (
    session_id TEXT PRIMARY KEY,
    role TEXT NOT NULL DEFAULT '',
    role_category TEXT NOT NULL DEFAULT '',
    intent TEXT NOT NULL DEFAULT '',
    capabilities_used TEXT NOT NULL DEFAULT '[]',
    lead_id TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS messages_session_idx ON messages (session_id, created_at);

CREATE TABLE IF NOT EXISTS activity_log (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    subject_id TEXT NOT NULL DEFAULT '',
    detail TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS activity_created_at_idx ON activity_log (created_at);

CREATE TABLE IF NOT EXISTS meetings (
    id TEXT PRIMARY KEY,
    lead_id TEXT NOT NULL DEFAULT '',
    email TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    topic TEXT NOT NULL DEFAULT '',
    starts_at TIMESTAMP NOT NULL,
    duration_minutes INTEGER NOT NULL,
    timezone TEXT NOT NULL DEFAULT 'UTC',
    status TEXT NOT NULL DEFAULT 'scheduled',
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS meetings_starts_at_idx ON meetings (starts_at);`
