package store

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS providers (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL DEFAULT '',
	capabilities       TEXT NOT NULL DEFAULT '[]',
	max_power_kw       REAL NOT NULL DEFAULT 0,
	max_axis_height_mm REAL NOT NULL DEFAULT 0,
	enabled            INTEGER NOT NULL DEFAULT 1,
	last_seen          TEXT,
	created_at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS requests (
	id            TEXT PRIMARY KEY,
	customer_id   TEXT NOT NULL,
	status        TEXT NOT NULL,
	workflow_type TEXT NOT NULL DEFAULT '',
	error         TEXT NOT NULL DEFAULT '',
	data          TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS strategies (
	id         TEXT PRIMARY KEY,
	request_id TEXT NOT NULL,
	priority   TEXT NOT NULL,
	data       TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_strategies_request ON strategies(request_id);

CREATE TABLE IF NOT EXISTS plans (
	id           TEXT PRIMARY KEY,
	request_id   TEXT NOT NULL,
	customer_id  TEXT NOT NULL,
	status       TEXT NOT NULL,
	current_step INTEGER NOT NULL DEFAULT 0,
	data         TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_plans_status ON plans(status);

CREATE TABLE IF NOT EXISTS bookings (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	provider_id TEXT NOT NULL,
	plan_id     TEXT NOT NULL,
	step_id     TEXT NOT NULL,
	start_at    TEXT NOT NULL,
	end_at      TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	UNIQUE (plan_id, step_id)
);
CREATE INDEX IF NOT EXISTS idx_bookings_provider ON bookings(provider_id, start_at);

CREATE TABLE IF NOT EXISTS audit_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_type TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	action      TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	actor       TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_id);

CREATE TABLE IF NOT EXISTS outbox (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	topic      TEXT NOT NULL,
	msg_type   TEXT NOT NULL,
	payload    BLOB NOT NULL,
	retries    INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	sent_at    TEXT
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(sent_at, id);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS providers (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL DEFAULT '',
	capabilities       TEXT NOT NULL DEFAULT '[]',
	max_power_kw       DOUBLE PRECISION NOT NULL DEFAULT 0,
	max_axis_height_mm DOUBLE PRECISION NOT NULL DEFAULT 0,
	enabled            INTEGER NOT NULL DEFAULT 1,
	last_seen          TEXT,
	created_at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS requests (
	id            TEXT PRIMARY KEY,
	customer_id   TEXT NOT NULL,
	status        TEXT NOT NULL,
	workflow_type TEXT NOT NULL DEFAULT '',
	error         TEXT NOT NULL DEFAULT '',
	data          TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS strategies (
	id         TEXT PRIMARY KEY,
	request_id TEXT NOT NULL,
	priority   TEXT NOT NULL,
	data       TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_strategies_request ON strategies(request_id);

CREATE TABLE IF NOT EXISTS plans (
	id           TEXT PRIMARY KEY,
	request_id   TEXT NOT NULL,
	customer_id  TEXT NOT NULL,
	status       TEXT NOT NULL,
	current_step INTEGER NOT NULL DEFAULT 0,
	data         TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_plans_status ON plans(status);

CREATE TABLE IF NOT EXISTS bookings (
	id          BIGSERIAL PRIMARY KEY,
	provider_id TEXT NOT NULL,
	plan_id     TEXT NOT NULL,
	step_id     TEXT NOT NULL,
	start_at    TEXT NOT NULL,
	end_at      TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	UNIQUE (plan_id, step_id)
);
CREATE INDEX IF NOT EXISTS idx_bookings_provider ON bookings(provider_id, start_at);

CREATE TABLE IF NOT EXISTS audit_log (
	id          BIGSERIAL PRIMARY KEY,
	entity_type TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	action      TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	actor       TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_id);

CREATE TABLE IF NOT EXISTS outbox (
	id         BIGSERIAL PRIMARY KEY,
	topic      TEXT NOT NULL,
	msg_type   TEXT NOT NULL,
	payload    BYTEA NOT NULL,
	retries    INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	sent_at    TEXT
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(sent_at, id);
`
