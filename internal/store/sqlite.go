package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/shared"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes write transactions to avoid SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", sqliteDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

// sqliteDSN applies the pragmas on every pooled connection the driver opens.
func sqliteDSN(dbPath string) string {
	return dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		active_persona TEXT,
		persona_epoch INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		session_id TEXT NOT NULL REFERENCES sessions(session_id),
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		responder TEXT,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, seq)
	);

	CREATE TABLE IF NOT EXISTS documents (
		position INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(session_id),
		document_id TEXT NOT NULL,
		name TEXT NOT NULL,
		doc_type TEXT NOT NULL,
		source TEXT NOT NULL,
		external_url TEXT,
		local_ref TEXT,
		content_type TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		metadata_json TEXT,
		created_at INTEGER NOT NULL,
		UNIQUE (session_id, document_id)
	);
	CREATE INDEX IF NOT EXISTS idx_documents_session ON documents(session_id, position);

	CREATE TABLE IF NOT EXISTS credentials (
		session_id TEXT NOT NULL REFERENCES sessions(session_id),
		service TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, service)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetOrCreateSession inserts the session row if missing and returns it.
func (s *SQLiteStore) GetOrCreateSession(ctx context.Context, id string, now time.Time) (*domain.Session, error) {
	err := shared.RetryOnConflict(ctx, "create session", shared.DefaultRetry, func() error {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO sessions (session_id, active_persona, persona_epoch, created_at, updated_at)
			VALUES (?, NULL, 0, ?, ?)
			ON CONFLICT(session_id) DO NOTHING`,
			id, now.UnixMilli(), now.UnixMilli())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s.GetSession(ctx, id)
}

// GetSession loads the session row and its transcript.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, active_persona, persona_epoch, created_at, updated_at
		FROM sessions WHERE session_id = ?`, id)

	var sess domain.Session
	var persona sql.NullString
	var createdAt, updatedAt int64
	err := row.Scan(&sess.ID, &persona, &sess.PersonaEpoch, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sessionNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	sess.ActivePersona = persona.String
	sess.CreatedAt = time.UnixMilli(createdAt)
	sess.UpdatedAt = time.UnixMilli(updatedAt)

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, role, responder, content, created_at
		FROM messages WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close message rows", "error", closeErr)
		}
	}()

	for rows.Next() {
		var msg domain.Message
		var responder sql.NullString
		var ts int64
		if err := rows.Scan(&msg.Seq, &msg.Role, &responder, &msg.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.Responder = responder.String
		msg.CreatedAt = time.UnixMilli(ts)
		sess.Transcript = append(sess.Transcript, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return &sess, nil
}

// CommitTurn applies a turn in one transaction, retrying on contention.
func (s *SQLiteStore) CommitTurn(ctx context.Context, id string, c TurnCommit) error {
	return shared.RetryOnConflict(ctx, "commit turn", shared.DefaultRetry, func() error {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		return s.commitOnce(ctx, id, c)
	})
}

func (s *SQLiteStore) commitOnce(ctx context.Context, id string, c TurnCommit) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				slog.Warn("rollback failed", "session_id", id, "error", rbErr)
			}
		}
	}()

	var next int64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE session_id = ?`, id).Scan(&next)
	if err != nil {
		return fmt.Errorf("next seq: %w", err)
	}

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM sessions WHERE session_id = ?`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if exists == 0 {
		return sessionNotFound(id)
	}

	for _, msg := range c.Messages {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO messages (session_id, seq, role, responder, content, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, next, msg.Role, nullString(msg.Responder), msg.Content, msg.CreatedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		next++
	}

	for _, d := range c.Documents {
		if err = insertDocument(ctx, tx, d); err != nil {
			return err
		}
	}

	if c.Persona != nil {
		_, err = tx.ExecContext(ctx, `
			UPDATE sessions SET active_persona = ?, persona_epoch = persona_epoch + 1
			WHERE session_id = ?`, nullString(c.Persona.ID), id)
		if err != nil {
			return fmt.Errorf("update persona: %w", err)
		}
	}

	if c.Credential != nil {
		payload, mErr := json.Marshal(c.Credential.Payload)
		if mErr != nil {
			err = fmt.Errorf("encode credential: %w", mErr)
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO credentials (session_id, service, payload_json, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(session_id, service) DO UPDATE SET
				payload_json = excluded.payload_json,
				updated_at = excluded.updated_at`,
			id, c.Credential.Service, string(payload), c.Credential.UpdatedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("upsert credential: %w", err)
		}
	}

	if !c.UpdatedAt.IsZero() {
		_, err = tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE session_id = ?`,
			c.UpdatedAt.UnixMilli(), id)
		if err != nil {
			return fmt.Errorf("touch session: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit turn: %w", err)
	}
	return nil
}

func insertDocument(ctx context.Context, tx *sql.Tx, d domain.ManagedDocument) error {
	var meta any
	if len(d.Metadata) > 0 {
		raw, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		meta = string(raw)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO documents (
			session_id, document_id, name, doc_type, source, external_url,
			local_ref, content_type, size, metadata_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.SessionID, d.ID, d.Name, d.Type, d.Source, nullString(d.ExternalURL),
		nullString(d.LocalRef), d.ContentType, d.Size, meta, d.CreatedAt.UnixMilli())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domain.Conflictf("document %s already exists", d.ID)
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

const documentColumns = `document_id, session_id, name, doc_type, source, external_url,
	local_ref, content_type, size, metadata_json, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.ManagedDocument, error) {
	var d domain.ManagedDocument
	var externalURL, localRef, meta sql.NullString
	var createdAt int64
	if err := row.Scan(&d.ID, &d.SessionID, &d.Name, &d.Type, &d.Source, &externalURL,
		&localRef, &d.ContentType, &d.Size, &meta, &createdAt); err != nil {
		return nil, err
	}
	d.ExternalURL = externalURL.String
	d.LocalRef = localRef.String
	d.CreatedAt = time.UnixMilli(createdAt)
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &d.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &d, nil
}

// ListDocuments returns a session's documents in creation order.
func (s *SQLiteStore) ListDocuments(ctx context.Context, sessionID string) ([]domain.ManagedDocument, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close document rows", "error", closeErr)
		}
	}()

	docs := []domain.ManagedDocument{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		docs = append(docs, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

// GetDocument returns one document.
func (s *SQLiteStore) GetDocument(ctx context.Context, sessionID, documentID string) (*domain.ManagedDocument, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE session_id = ? AND document_id = ?`,
		sessionID, documentID)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, documentNotFound(documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("scan document row: %w", err)
	}
	return d, nil
}

// GetCredential returns the stored credential for a service.
func (s *SQLiteStore) GetCredential(ctx context.Context, sessionID, service string) (*domain.Credential, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT payload_json, updated_at FROM credentials
		WHERE session_id = ? AND service = ?`, sessionID, service)

	var payload string
	var updatedAt int64
	err := row.Scan(&payload, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, credentialNotFound(service)
	}
	if err != nil {
		return nil, fmt.Errorf("scan credential row: %w", err)
	}

	c := domain.Credential{Service: service, UpdatedAt: time.UnixMilli(updatedAt)}
	if err := json.Unmarshal([]byte(payload), &c.Payload); err != nil {
		return nil, fmt.Errorf("decode credential: %w", err)
	}
	return &c, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
