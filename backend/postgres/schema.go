package postgres

// Schema creates the tables the backend reads and writes. Apply it with any
// migration tool; the backend never runs DDL itself.
const Schema = `
CREATE TABLE IF NOT EXISTS goguard_users (
    id                UUID PRIMARY KEY,
    email             TEXT UNIQUE,
    name              TEXT NOT NULL DEFAULT '',
    password_hash     TEXT,
    email_verified    BOOLEAN NOT NULL DEFAULT FALSE,
    role_level        INTEGER NOT NULL DEFAULT 0,
    totp_secret       BYTEA,
    totp_last_counter BIGINT,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_login_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS goguard_bans (
    user_id    UUID PRIMARY KEY REFERENCES goguard_users(id) ON DELETE CASCADE,
    reason     TEXT NOT NULL DEFAULT '',
    expires_at TIMESTAMPTZ,
    banned_by  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS goguard_oauth_links (
    provider         TEXT NOT NULL,
    provider_user_id TEXT NOT NULL,
    user_id          UUID NOT NULL REFERENCES goguard_users(id) ON DELETE CASCADE,
    PRIMARY KEY (provider, provider_user_id)
);
`

const (
	usersTable = "goguard_users"
	bansTable  = "goguard_bans"
	linksTable = "goguard_oauth_links"
)
