package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS balance_versions (
	id            TEXT    NOT NULL,
	version       INTEGER NOT NULL CHECK (version >= 1),
	money_in      TEXT    NOT NULL,
	money_out     TEXT    NOT NULL,
	currency      TEXT    NOT NULL CHECK (currency <> ''),
	owner         TEXT    NOT NULL CHECK (owner <> ''),
	current       INTEGER NOT NULL DEFAULT 1,
	transition_id TEXT    NOT NULL,
	created_at    TEXT    NOT NULL,
	updated_at    TEXT    NOT NULL,
	PRIMARY KEY (id, version)
);

CREATE UNIQUE INDEX IF NOT EXISTS balance_versions_current_idx
	ON balance_versions (id) WHERE current = 1;

CREATE TABLE IF NOT EXISTS transitions (
	id               TEXT    PRIMARY KEY,
	command          TEXT    NOT NULL CHECK (command IN ('create', 'deposit', 'withdraw')),
	balance_id       TEXT    NOT NULL,
	consumed_version INTEGER,
	produced_version INTEGER NOT NULL,
	amount           TEXT    NOT NULL,
	created_at       TEXT    NOT NULL,
	FOREIGN KEY (balance_id, produced_version) REFERENCES balance_versions (id, version)
);

CREATE TABLE IF NOT EXISTS outbox_events (
	id             TEXT    PRIMARY KEY,
	aggregate_id   TEXT    NOT NULL,
	aggregate_type TEXT    NOT NULL,
	event_type     TEXT    NOT NULL,
	payload        TEXT    NOT NULL,
	created_at     TEXT    NOT NULL,
	published_at   TEXT,
	published      INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS outbox_events_unpublished_idx
	ON outbox_events (published, created_at);
`
