package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema creates the audit tables. Timestamps are unix nanoseconds.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_events (
    id TEXT PRIMARY KEY,
    timestamp INTEGER NOT NULL,
    type TEXT NOT NULL,
    actor TEXT NOT NULL,
    action TEXT NOT NULL,
    resource TEXT,
    status TEXT,
    ip_address TEXT,
    user_agent TEXT,
    risk_level TEXT,

    -- JSON encoded
    compliance_flags TEXT NOT NULL DEFAULT '[]',
    compliance TEXT NOT NULL DEFAULT '[]',
    metadata TEXT NOT NULL DEFAULT '{}',

    -- envelopes
    encrypted_details BLOB,
    encrypted_security_context BLOB,

    recorded_at INTEGER NOT NULL,
    expires_at INTEGER
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(type);
CREATE INDEX IF NOT EXISTS idx_audit_events_actor ON audit_events(actor);
CREATE INDEX IF NOT EXISTS idx_audit_events_risk_level ON audit_events(risk_level);
CREATE INDEX IF NOT EXISTS idx_audit_events_expires_at ON audit_events(expires_at);
`

// InsertSchemaVersion records the schema version.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion reads the newest schema version.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

const insertEvent = `
INSERT OR IGNORE INTO audit_events (
    id, timestamp, type, actor, action, resource, status, ip_address, user_agent, risk_level,
    compliance_flags, compliance, metadata,
    encrypted_details, encrypted_security_context,
    recorded_at, expires_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const selectColumns = `
id, timestamp, type, actor, action, resource, status, ip_address, user_agent, risk_level,
compliance_flags, compliance, metadata, encrypted_details, encrypted_security_context
`
