package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/grounded-chat/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it
// for unit tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool. Similarity search runs in
// SQL via the pgvector cosine distance operator, so ranking happens where
// the vectors live.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot store operations.
var preparedStatements = map[string]string{
	"insert_message": `INSERT INTO messages (id, chat_id, role, content, sources, fact_check, confidence, perspective_reasoning, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
	"list_messages":  `SELECT id, chat_id, role, content, sources, fact_check, confidence, perspective_reasoning, created_at FROM messages WHERE chat_id = $1 ORDER BY created_at ASC`,
	"search_fragments": `SELECT id, document_id, content, 1 - (chunk_vector <=> $1::vector) AS similarity
FROM document_chunks
WHERE 1 - (chunk_vector <=> $1::vector) > $2
ORDER BY similarity DESC, position ASC, id ASC
LIMIT $3`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS chats (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS messages (
	id                    TEXT PRIMARY KEY,
	chat_id               TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
	role                  TEXT NOT NULL,
	content               TEXT NOT NULL,
	sources               JSONB,
	fact_check            JSONB,
	confidence            DOUBLE PRECISION,
	perspective_reasoning TEXT NOT NULL DEFAULT '',
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	title      TEXT NOT NULL,
	kind       TEXT NOT NULL DEFAULT 'text',
	content    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS document_chunks (
	id           TEXT PRIMARY KEY,
	document_id  TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	content      TEXT NOT NULL,
	chunk_vector vector(1536) NOT NULL,
	position     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_chat_id ON messages(chat_id, created_at);
CREATE INDEX IF NOT EXISTS idx_document_chunks_document_id ON document_chunks(document_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateChat(ctx context.Context, chat model.Chat) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chats (id, user_id, title, created_at) VALUES ($1, $2, $3, $4)`,
		chat.ID, chat.UserID, chat.Title, chat.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: insert chat")
}

func (s *PostgresStore) GetChat(ctx context.Context, chatID string) (*model.Chat, error) {
	var c model.Chat
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, title, created_at FROM chats WHERE id = $1`,
		chatID,
	).Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get chat %s", chatID)
	}
	return &c, nil
}

func (s *PostgresStore) DeleteChat(ctx context.Context, chatID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chats WHERE id = $1`, chatID)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete chat %s", chatID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("chat not found: %s", chatID)
	}
	return nil
}

func (s *PostgresStore) SaveMessages(ctx context.Context, messages []model.Message) error {
	for _, m := range messages {
		sourcesJSON, err := json.Marshal(m.Sources)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal sources")
		}
		factCheckJSON, err := json.Marshal(m.FactCheck)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal fact check")
		}
		_, err = s.pool.Exec(ctx,
			`INSERT INTO messages (id, chat_id, role, content, sources, fact_check, confidence, perspective_reasoning, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			m.ID, m.ChatID, string(m.Role), m.Content, sourcesJSON, factCheckJSON, m.Confidence, m.PerspectiveReasoning, m.CreatedAt.UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert message %s", m.ID)
		}
	}
	return nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, chatID string) ([]model.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, chat_id, role, content, sources, fact_check, confidence, perspective_reasoning, created_at FROM messages WHERE chat_id = $1 ORDER BY created_at ASC`,
		chatID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list messages %s", chatID)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list messages rows")
}

func scanMessage(row pgx.Row) (*model.Message, error) {
	var m model.Message
	var role string
	var sourcesJSON, factCheckJSON []byte
	if err := row.Scan(&m.ID, &m.ChatID, &role, &m.Content, &sourcesJSON, &factCheckJSON, &m.Confidence, &m.PerspectiveReasoning, &m.CreatedAt); err != nil {
		return nil, eris.Wrap(err, "postgres: scan message")
	}
	m.Role = model.Role(role)
	if len(sourcesJSON) > 0 {
		if err := json.Unmarshal(sourcesJSON, &m.Sources); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal sources")
		}
	}
	if len(factCheckJSON) > 0 {
		if err := json.Unmarshal(factCheckJSON, &m.FactCheck); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal fact check")
		}
	}
	return &m, nil
}

func (s *PostgresStore) DeleteMessagesAfter(ctx context.Context, chatID string, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM messages WHERE chat_id = $1 AND created_at > $2`,
		chatID, cutoff.UTC(),
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: delete messages after %s", chatID)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) CreateDocument(ctx context.Context, doc model.Document) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, user_id, title, kind, content, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		doc.ID, doc.UserID, doc.Title, doc.Kind, doc.Content, doc.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: insert document")
}

func (s *PostgresStore) GetDocument(ctx context.Context, docID string) (*model.Document, error) {
	var d model.Document
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, title, kind, content, created_at FROM documents WHERE id = $1`,
		docID,
	).Scan(&d.ID, &d.UserID, &d.Title, &d.Kind, &d.Content, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get document %s", docID)
	}
	return &d, nil
}

func (s *PostgresStore) UpdateDocumentContent(ctx context.Context, docID, content string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET content = $1 WHERE id = $2`,
		content, docID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update document %s", docID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("document not found: %s", docID)
	}
	return nil
}

func (s *PostgresStore) ReplaceFragments(ctx context.Context, docID string, fragments []model.EvidenceFragment) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, docID); err != nil {
		return eris.Wrapf(err, "postgres: delete fragments %s", docID)
	}
	for i, f := range fragments {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO document_chunks (id, document_id, content, chunk_vector, position) VALUES ($1, $2, $3, $4::vector, $5)`,
			f.SourceID, docID, f.Content, vectorLiteral(f.Embedding), i,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert fragment %s", f.SourceID)
		}
	}
	return nil
}

func (s *PostgresStore) SearchFragments(ctx context.Context, query []float32, limit int, minSimilarity float64) ([]model.EvidenceFragment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, document_id, content, 1 - (chunk_vector <=> $1::vector) AS similarity
FROM document_chunks
WHERE 1 - (chunk_vector <=> $1::vector) > $2
ORDER BY similarity DESC, position ASC, id ASC
LIMIT $3`,
		vectorLiteral(query), minSimilarity, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: search fragments")
	}
	defer rows.Close()

	var out []model.EvidenceFragment
	for rows.Next() {
		var f model.EvidenceFragment
		if err := rows.Scan(&f.SourceID, &f.DocumentID, &f.Content, &f.Similarity); err != nil {
			return nil, eris.Wrap(err, "postgres: scan fragment")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: search fragments rows")
}

// vectorLiteral renders a float32 slice as a pgvector input literal.
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
