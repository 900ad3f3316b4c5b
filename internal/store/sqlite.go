package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/grounded-chat/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Without a vector
// extension, similarity search is a full scan: every fragment vector is
// loaded and scored in Go. Ranking is identical to the Postgres backend
// given the same floating-point inputs.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS chats (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS messages (
	id                    TEXT PRIMARY KEY,
	chat_id               TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
	role                  TEXT NOT NULL,
	content               TEXT NOT NULL,
	sources               TEXT,
	fact_check            TEXT,
	confidence            REAL,
	perspective_reasoning TEXT NOT NULL DEFAULT '',
	created_at            DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	title      TEXT NOT NULL,
	kind       TEXT NOT NULL DEFAULT 'text',
	content    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS document_chunks (
	id           TEXT PRIMARY KEY,
	document_id  TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	content      TEXT NOT NULL,
	chunk_vector TEXT NOT NULL,
	position     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_chat_id ON messages(chat_id, created_at);
CREATE INDEX IF NOT EXISTS idx_document_chunks_document_id ON document_chunks(document_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateChat(ctx context.Context, chat model.Chat) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (id, user_id, title, created_at) VALUES (?, ?, ?, ?)`,
		chat.ID, chat.UserID, chat.Title, chat.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: insert chat")
}

func (s *SQLiteStore) GetChat(ctx context.Context, chatID string) (*model.Chat, error) {
	var c model.Chat
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, created_at FROM chats WHERE id = ?`,
		chatID,
	).Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get chat %s", chatID)
	}
	return &c, nil
}

func (s *SQLiteStore) DeleteChat(ctx context.Context, chatID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, chatID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete chat %s", chatID)
	}
	return checkRowsAffected(res, "chat", chatID)
}

func (s *SQLiteStore) SaveMessages(ctx context.Context, messages []model.Message) error {
	for _, m := range messages {
		sourcesJSON, err := json.Marshal(m.Sources)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal sources")
		}
		factCheckJSON, err := json.Marshal(m.FactCheck)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal fact check")
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO messages (id, chat_id, role, content, sources, fact_check, confidence, perspective_reasoning, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.ChatID, string(m.Role), m.Content, string(sourcesJSON), string(factCheckJSON), m.Confidence, m.PerspectiveReasoning, m.CreatedAt.UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert message %s", m.ID)
		}
	}
	return nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, chatID string) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, role, content, sources, fact_check, confidence, perspective_reasoning, created_at FROM messages WHERE chat_id = ? ORDER BY created_at ASC`,
		chatID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list messages %s", chatID)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		var role string
		var sourcesJSON, factCheckJSON sql.NullString
		if err := rows.Scan(&m.ID, &m.ChatID, &role, &m.Content, &sourcesJSON, &factCheckJSON, &m.Confidence, &m.PerspectiveReasoning, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan message")
		}
		m.Role = model.Role(role)
		if sourcesJSON.Valid && sourcesJSON.String != "" {
			if err := json.Unmarshal([]byte(sourcesJSON.String), &m.Sources); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal sources")
			}
		}
		if factCheckJSON.Valid && factCheckJSON.String != "" {
			if err := json.Unmarshal([]byte(factCheckJSON.String), &m.FactCheck); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal fact check")
			}
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list messages rows")
}

func (s *SQLiteStore) DeleteMessagesAfter(ctx context.Context, chatID string, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE chat_id = ? AND created_at > ?`,
		chatID, cutoff.UTC(),
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: delete messages after %s", chatID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), nil
}

func (s *SQLiteStore) CreateDocument(ctx context.Context, doc model.Document) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, user_id, title, kind, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.UserID, doc.Title, doc.Kind, doc.Content, doc.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: insert document")
}

func (s *SQLiteStore) GetDocument(ctx context.Context, docID string) (*model.Document, error) {
	var d model.Document
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, kind, content, created_at FROM documents WHERE id = ?`,
		docID,
	).Scan(&d.ID, &d.UserID, &d.Title, &d.Kind, &d.Content, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get document %s", docID)
	}
	return &d, nil
}

func (s *SQLiteStore) UpdateDocumentContent(ctx context.Context, docID, content string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET content = ? WHERE id = ?`,
		content, docID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update document %s", docID)
	}
	return checkRowsAffected(res, "document", docID)
}

func (s *SQLiteStore) ReplaceFragments(ctx context.Context, docID string, fragments []model.EvidenceFragment) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = ?`, docID); err != nil {
		return eris.Wrapf(err, "sqlite: delete fragments %s", docID)
	}
	for i, f := range fragments {
		vecJSON, err := json.Marshal(f.Embedding)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal vector")
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO document_chunks (id, document_id, content, chunk_vector, position) VALUES (?, ?, ?, ?, ?)`,
			f.SourceID, docID, f.Content, string(vecJSON), i,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert fragment %s", f.SourceID)
		}
	}
	return nil
}

func (s *SQLiteStore) SearchFragments(ctx context.Context, query []float32, limit int, minSimilarity float64) ([]model.EvidenceFragment, error) {
	// Insertion order (rowid) is the tie-break for equal similarities, so
	// scan in that order and sort stably.
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, content, chunk_vector FROM document_chunks ORDER BY rowid ASC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: search fragments")
	}
	defer rows.Close()

	var candidates []model.EvidenceFragment
	for rows.Next() {
		var f model.EvidenceFragment
		var vecJSON string
		if err := rows.Scan(&f.SourceID, &f.DocumentID, &f.Content, &vecJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan fragment")
		}
		var vec []float32
		if err := json.Unmarshal([]byte(vecJSON), &vec); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal vector")
		}
		f.Similarity = cosineSimilarity(query, vec)
		if f.Similarity > minSimilarity {
			candidates = append(candidates, f)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: search fragments rows")
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	for i := range candidates {
		candidates[i].Embedding = nil
	}
	return candidates, nil
}

// cosineSimilarity returns the cosine of the angle between a and b, or 0 if
// either vector is zero-length or the dimensions disagree.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", kind, id)
	}
	return nil
}
