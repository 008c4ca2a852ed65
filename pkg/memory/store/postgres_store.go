package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Protocol-Lattice/recall/pkg/memory/model"
)

// PostgresStore keeps snapshots in Postgres. Embeddings use the pgvector
// extension.
type PostgresStore struct {
	DB *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and returns a Postgres-backed Source.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	return &PostgresStore{DB: db}, nil
}

func (ps *PostgresStore) CreateSchema(ctx context.Context) error {
	_, err := ps.DB.Exec(ctx, `
        CREATE EXTENSION IF NOT EXISTS vector;
        CREATE TABLE IF NOT EXISTS scene_memories (
            chat_id             TEXT NOT NULL,
            id                  TEXT NOT NULL,
            summary             TEXT NOT NULL,
            importance          INT NOT NULL DEFAULT 3,
            message_ids         BIGINT[] NOT NULL DEFAULT '{}',
            sequence            BIGINT NOT NULL DEFAULT 0,
            characters_involved TEXT[] NOT NULL DEFAULT '{}',
            witnesses           TEXT[] NOT NULL DEFAULT '{}',
            is_secret           BOOLEAN NOT NULL DEFAULT FALSE,
            embedding           vector,
            tags                TEXT[] NOT NULL DEFAULT '{}',
            PRIMARY KEY (chat_id, id)
        );
        CREATE TABLE IF NOT EXISTS scene_characters (
            chat_id           TEXT NOT NULL,
            name              TEXT NOT NULL,
            current_emotion   TEXT NOT NULL DEFAULT '',
            emotion_intensity INT NOT NULL DEFAULT 0,
            known_events      TEXT[] NOT NULL DEFAULT '{}',
            PRIMARY KEY (chat_id, name)
        );
    `)
	return err
}

func (ps *PostgresStore) Load(ctx context.Context, chatID string) (Snapshot, error) {
	if ps == nil || ps.DB == nil {
		return Snapshot{}, ErrNotFound
	}
	rows, err := ps.DB.Query(ctx, `
        SELECT id, summary, importance, message_ids, sequence, characters_involved,
               witnesses, is_secret, COALESCE(embedding::text, ''), tags
        FROM scene_memories
        WHERE chat_id = $1
        ORDER BY sequence, id
    `, chatID)
	if err != nil {
		return Snapshot{}, err
	}
	defer rows.Close()

	var snap Snapshot
	for rows.Next() {
		var (
			m             model.Memory
			msgIDs        []int64
			embeddingText string
		)
		if err := rows.Scan(&m.ID, &m.Summary, &m.Importance, &msgIDs, &m.Sequence, &m.CharactersInvolved,
			&m.Witnesses, &m.IsSecret, &embeddingText, &m.Tags); err != nil {
			return Snapshot{}, err
		}
		m.MessageIDs = intsFromInt64(msgIDs)
		m.Embedding = parseVector(embeddingText)
		snap.Memories = append(snap.Memories, m)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}

	crows, err := ps.DB.Query(ctx, `
        SELECT name, current_emotion, emotion_intensity, known_events
        FROM scene_characters WHERE chat_id = $1
    `, chatID)
	if err != nil {
		return Snapshot{}, err
	}
	defer crows.Close()
	snap.Characters = model.Characters{}
	for crows.Next() {
		var st model.CharacterState
		if err := crows.Scan(&st.Name, &st.CurrentEmotion, &st.EmotionIntensity, &st.KnownEvents); err != nil {
			return Snapshot{}, err
		}
		snap.Characters[st.Name] = st
	}
	if err := crows.Err(); err != nil {
		return Snapshot{}, err
	}
	if len(snap.Memories) == 0 && len(snap.Characters) == 0 {
		return Snapshot{}, ErrNotFound
	}
	return normalizeSnapshot(snap), nil
}

func (ps *PostgresStore) SaveEmbeddings(ctx context.Context, chatID string, embeddings map[string][]float32) error {
	if ps == nil || ps.DB == nil || len(embeddings) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for id, vec := range embeddings {
		batch.Queue(`UPDATE scene_memories SET embedding = $3::vector WHERE chat_id = $1 AND id = $2`,
			chatID, id, formatVector(vec))
	}
	return ps.DB.SendBatch(ctx, batch).Close()
}

func (ps *PostgresStore) PutMemories(ctx context.Context, chatID string, memories []model.Memory) error {
	if ps == nil || ps.DB == nil || len(memories) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range memories {
		m = m.Normalized()
		var embedding any
		if m.HasEmbedding() {
			embedding = formatVector(m.Embedding)
		}
		batch.Queue(`
            INSERT INTO scene_memories (chat_id, id, summary, importance, message_ids, sequence,
                                        characters_involved, witnesses, is_secret, embedding, tags)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::vector, $11)
            ON CONFLICT (chat_id, id) DO UPDATE SET
                summary = EXCLUDED.summary,
                importance = EXCLUDED.importance,
                message_ids = EXCLUDED.message_ids,
                sequence = EXCLUDED.sequence,
                characters_involved = EXCLUDED.characters_involved,
                witnesses = EXCLUDED.witnesses,
                is_secret = EXCLUDED.is_secret,
                embedding = COALESCE(EXCLUDED.embedding, scene_memories.embedding),
                tags = EXCLUDED.tags
        `, chatID, m.ID, m.Summary, m.Importance, int64sFromInt(m.MessageIDs), m.Sequence,
			nonNilStrings(m.CharactersInvolved), nonNilStrings(m.Witnesses), m.IsSecret, embedding, nonNilStrings(m.Tags))
	}
	return ps.DB.SendBatch(ctx, batch).Close()
}

func (ps *PostgresStore) PutCharacters(ctx context.Context, chatID string, characters model.Characters) error {
	if ps == nil || ps.DB == nil || len(characters) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for name, st := range characters {
		batch.Queue(`
            INSERT INTO scene_characters (chat_id, name, current_emotion, emotion_intensity, known_events)
            VALUES ($1, $2, $3, $4, $5)
            ON CONFLICT (chat_id, name) DO UPDATE SET
                current_emotion = EXCLUDED.current_emotion,
                emotion_intensity = EXCLUDED.emotion_intensity,
                known_events = EXCLUDED.known_events
        `, chatID, name, st.CurrentEmotion, st.EmotionIntensity, nonNilStrings(st.KnownEvents))
	}
	return ps.DB.SendBatch(ctx, batch).Close()
}

func (ps *PostgresStore) Close() error {
	if ps != nil && ps.DB != nil {
		ps.DB.Close()
	}
	return nil
}

// formatVector renders a pgvector literal such as "[0.1,0.2]".
func formatVector(vec []float32) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = strconv.FormatFloat(float64(v), 'g', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func parseVector(text string) []float32 {
	text = strings.Trim(strings.TrimSpace(text), "[]")
	if strings.TrimSpace(text) == "" {
		return nil
	}
	parts := strings.Split(text, ",")
	vec := make([]float32, 0, len(parts))
	for _, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			continue
		}
		vec = append(vec, float32(f))
	}
	return vec
}

func intsFromInt64(in []int64) []int {
	if len(in) == 0 {
		return nil
	}
	out := make([]int, len(in))
	for i, v := range in {
		out[i] = int(v)
	}
	return out
}

func int64sFromInt(in []int) []int64 {
	out := make([]int64, len(in))
	for i, v := range in {
		out[i] = int64(v)
	}
	return out
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
