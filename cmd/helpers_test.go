package cmd

import (
	"bytes"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/kyleking/sqlpilot/internal/config"
	"github.com/kyleking/sqlpilot/internal/llm"
)

const testDDL = `
CREATE TABLE users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	email TEXT NOT NULL UNIQUE,
	name TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE posts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL REFERENCES users(id),
	title TEXT NOT NULL,
	body TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE events (
	kind TEXT,
	payload TEXT
);
INSERT INTO users (email, name) VALUES ('ada@example.com', 'Ada'), ('bob@example.com', 'Bob');
INSERT INTO posts (user_id, title, body) VALUES (1, 'Hello', 'First post');
`

// newTestApp wires an app over a seeded SQLite file database. A nil agent
// makes every generation use the keyword fallback.
func newTestApp(t *testing.T, agent llm.Service) (*app, *bytes.Buffer) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)

	_, err = db.Exec(testDDL)
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = path

	out := &bytes.Buffer{}

	a, err := newApp(cfg, db, agent, nil, out)
	require.NoError(t, err)

	t.Cleanup(func() { _ = a.Close() })

	return a, out
}
