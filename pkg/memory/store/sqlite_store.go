package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Protocol-Lattice/recall/pkg/memory/model"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS memories (
	chat_id             TEXT NOT NULL,
	id                  TEXT NOT NULL,
	summary             TEXT NOT NULL,
	importance          INTEGER NOT NULL DEFAULT 3,
	message_ids         TEXT NOT NULL DEFAULT '[]',
	sequence            INTEGER NOT NULL DEFAULT 0,
	characters_involved TEXT NOT NULL DEFAULT '[]',
	witnesses           TEXT NOT NULL DEFAULT '[]',
	is_secret           INTEGER NOT NULL DEFAULT 0,
	embedding           TEXT,
	tags                TEXT NOT NULL DEFAULT '[]',
	PRIMARY KEY (chat_id, id)
);
CREATE TABLE IF NOT EXISTS characters (
	chat_id           TEXT NOT NULL,
	name              TEXT NOT NULL,
	current_emotion   TEXT NOT NULL DEFAULT '',
	emotion_intensity INTEGER NOT NULL DEFAULT 0,
	known_events      TEXT NOT NULL DEFAULT '[]',
	PRIMARY KEY (chat_id, name)
);
CREATE INDEX IF NOT EXISTS idx_memories_chat ON memories(chat_id, sequence);
`

// SQLiteStore keeps snapshots in a SQLite database. List columns are JSON
// encoded text.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens dsn (a file path or ":memory:") and creates the schema.
func NewSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and
	// serialises writers.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context, chatID string) (Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, summary, importance, message_ids, sequence, characters_involved,
		       witnesses, is_secret, embedding, tags
		FROM memories WHERE chat_id = ? ORDER BY sequence, id`, chatID)
	if err != nil {
		return Snapshot{}, err
	}
	defer rows.Close()

	var snap Snapshot
	for rows.Next() {
		var (
			m                                 model.Memory
			msgIDs, involved, witnesses, tags string
			embedding                         sql.NullString
			secret                            int
		)
		if err := rows.Scan(&m.ID, &m.Summary, &m.Importance, &msgIDs, &m.Sequence, &involved,
			&witnesses, &secret, &embedding, &tags); err != nil {
			return Snapshot{}, err
		}
		m.MessageIDs = model.IntSliceFromAny(msgIDs)
		m.CharactersInvolved = model.StringSliceFromAny(involved)
		m.Witnesses = model.StringSliceFromAny(witnesses)
		m.Tags = model.StringSliceFromAny(tags)
		m.IsSecret = secret != 0
		if embedding.Valid {
			m.Embedding = model.Float32SliceFromAny(embedding.String)
		}
		snap.Memories = append(snap.Memories, m)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}

	chars, err := s.loadCharacters(ctx, chatID)
	if err != nil {
		return Snapshot{}, err
	}
	if len(snap.Memories) == 0 && len(chars) == 0 {
		return Snapshot{}, ErrNotFound
	}
	snap.Characters = chars
	return normalizeSnapshot(snap), nil
}

func (s *SQLiteStore) loadCharacters(ctx context.Context, chatID string) (model.Characters, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, current_emotion, emotion_intensity, known_events
		FROM characters WHERE chat_id = ?`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	chars := model.Characters{}
	for rows.Next() {
		var (
			st    model.CharacterState
			known string
		)
		if err := rows.Scan(&st.Name, &st.CurrentEmotion, &st.EmotionIntensity, &known); err != nil {
			return nil, err
		}
		st.KnownEvents = model.StringSliceFromAny(known)
		chars[st.Name] = st
	}
	return chars, rows.Err()
}

func (s *SQLiteStore) SaveEmbeddings(ctx context.Context, chatID string, embeddings map[string][]float32) error {
	if len(embeddings) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `UPDATE memories SET embedding = ? WHERE chat_id = ? AND id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for id, vec := range embeddings {
		if _, err := stmt.ExecContext(ctx, jsonText(vec), chatID, id); err != nil {
			return fmt.Errorf("save embedding %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) PutMemories(ctx context.Context, chatID string, memories []model.Memory) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO memories (chat_id, id, summary, importance, message_ids, sequence,
		                      characters_involved, witnesses, is_secret, embedding, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, id) DO UPDATE SET
			summary = excluded.summary,
			importance = excluded.importance,
			message_ids = excluded.message_ids,
			sequence = excluded.sequence,
			characters_involved = excluded.characters_involved,
			witnesses = excluded.witnesses,
			is_secret = excluded.is_secret,
			embedding = COALESCE(excluded.embedding, memories.embedding),
			tags = excluded.tags`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, m := range memories {
		m = m.Normalized()
		var embedding any
		if m.HasEmbedding() {
			embedding = jsonText(m.Embedding)
		}
		secret := 0
		if m.IsSecret {
			secret = 1
		}
		if _, err := stmt.ExecContext(ctx, chatID, m.ID, m.Summary, m.Importance, jsonText(m.MessageIDs),
			m.Sequence, jsonText(m.CharactersInvolved), jsonText(m.Witnesses), secret, embedding, jsonText(m.Tags)); err != nil {
			return fmt.Errorf("put memory %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) PutCharacters(ctx context.Context, chatID string, characters model.Characters) error {
	for name, st := range characters {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO characters (chat_id, name, current_emotion, emotion_intensity, known_events)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(chat_id, name) DO UPDATE SET
				current_emotion = excluded.current_emotion,
				emotion_intensity = excluded.emotion_intensity,
				known_events = excluded.known_events`,
			chatID, name, st.CurrentEmotion, st.EmotionIntensity, jsonText(st.KnownEvents)); err != nil {
			return fmt.Errorf("put character %s: %w", name, err)
		}
	}
	return nil
}

// jsonText encodes list columns; nil lists become "[]".
func jsonText(v any) string {
	raw, err := json.Marshal(v)
	if err != nil || string(raw) == "null" {
		return "[]"
	}
	return string(raw)
}
