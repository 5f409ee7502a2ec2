package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS autosave_entity_form (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	form_id         TEXT    NOT NULL,
	form_session_id TEXT    NOT NULL,
	entity_type_id  TEXT    NOT NULL,
	entity_id       TEXT    NOT NULL,
	langcode        TEXT    NOT NULL DEFAULT '',
	uid             TEXT    NOT NULL,
	timestamp       INTEGER NOT NULL,
	entity          BLOB,
	form_state      BLOB
);

CREATE INDEX IF NOT EXISTS autosave_entity_form_entity
	ON autosave_entity_form (entity_type_id, entity_id, langcode, timestamp);
CREATE INDEX IF NOT EXISTS autosave_entity_form_session
	ON autosave_entity_form (form_session_id);
CREATE INDEX IF NOT EXISTS autosave_entity_form_uid
	ON autosave_entity_form (uid);

CREATE TABLE IF NOT EXISTS autosave_pending (
	session_id TEXT    PRIMARY KEY,
	input      BLOB    NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS autosave_pending_expires
	ON autosave_pending (expires_at);
`
