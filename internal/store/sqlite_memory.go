package store

import (
	"bytes"
	"cmp"
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/felixgeelhaar/recall/internal/textsim"
)

// sqliteOps implements AssociationStore over a connection or transaction.
// Similarity is computed in Go since SQLite has neither pg_trgm nor vectors.
type sqliteOps struct {
	q    querier
	opts Options
}

const conversationColumns = `id, created_at, user_name, user_message, agent_name, agent_message, emotion, language`

func (o *sqliteOps) CreateConversation(ctx context.Context, c NewConversation) (*Conversation, error) {
	now := o.opts.Now()
	var lang sql.NullString
	if c.Language != "" {
		lang = sql.NullString{String: c.Language, Valid: true}
	}

	query := `INSERT INTO conversations (created_at, created_on, user_name, user_message, agent_name, agent_message, emotion, language)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := o.q.ExecContext(ctx, query,
		now.Format(time.RFC3339Nano), DayOf(now),
		c.UserName, c.UserMessage, c.AgentName, c.AgentMessage, c.Emotion, lang)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation id: %w", err)
	}

	return &Conversation{
		ID:           id,
		CreatedAt:    now,
		UserName:     c.UserName,
		UserMessage:  c.UserMessage,
		AgentName:    c.AgentName,
		AgentMessage: c.AgentMessage,
		Emotion:      c.Emotion,
		Language:     c.Language,
	}, nil
}

func (o *sqliteOps) CreateAssociation(ctx context.Context, key string, conversationID int64, embeddingID *int64) (*Association, error) {
	var emb sql.NullInt64
	if embeddingID != nil {
		emb = sql.NullInt64{Int64: *embeddingID, Valid: true}
	}

	query := `INSERT INTO associations (key, conversation_id, embedding_id) VALUES (?, ?, ?)`
	res, err := o.q.ExecContext(ctx, query, key, conversationID, emb)
	if err != nil {
		return nil, fmt.Errorf("failed to create association: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read association id: %w", err)
	}

	return &Association{ID: id, Key: key, ConversationID: conversationID, EmbeddingID: embeddingID}, nil
}

func (o *sqliteOps) CreateEmbedding(ctx context.Context, vector []float32) (*Embedding, error) {
	if len(vector) == 0 {
		return nil, errors.New("failed to create embedding: empty vector")
	}
	blob, err := encodeVector(vector)
	if err != nil {
		return nil, err
	}

	res, err := o.q.ExecContext(ctx, `INSERT INTO embeddings (dim, vector) VALUES (?, ?)`, len(vector), blob)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding id: %w", err)
	}

	return &Embedding{ID: id, Vector: slices.Clone(vector)}, nil
}

func (o *sqliteOps) GetConversationByID(ctx context.Context, id int64) (*Conversation, error) {
	row := o.q.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("conversation %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return c, nil
}

func (o *sqliteOps) GetByKeySimilarity(ctx context.Context, text string, threshold float64) ([]Association, error) {
	rows, err := o.q.QueryContext(ctx, `SELECT id, key, conversation_id, embedding_id FROM associations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query associations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	type scored struct {
		assoc Association
		sim   float64
	}
	var matches []scored
	for rows.Next() {
		var a Association
		var emb sql.NullInt64
		if err := rows.Scan(&a.ID, &a.Key, &a.ConversationID, &emb); err != nil {
			return nil, fmt.Errorf("failed to scan association: %w", err)
		}
		if emb.Valid {
			id := emb.Int64
			a.EmbeddingID = &id
		}
		if sim := textsim.TrigramSimilarity(a.Key, text); sim >= threshold {
			matches = append(matches, scored{assoc: a, sim: sim})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Rows arrive in id order, so a stable sort keeps insertion order on ties.
	slices.SortStableFunc(matches, func(a, b scored) int {
		return cmp.Compare(b.sim, a.sim)
	})

	result := make([]Association, len(matches))
	for i, m := range matches {
		result[i] = m.assoc
	}
	return result, nil
}

func (o *sqliteOps) GetSimilarEmbedding(ctx context.Context, vector []float32, topN int, threshold float64) ([]Conversation, error) {
	if topN <= 0 {
		return nil, nil
	}

	rows, err := o.q.QueryContext(ctx, `SELECT id, vector FROM embeddings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}

	type candidate struct {
		id       int64
		distance float64
	}
	var candidates []candidate
	for rows.Next() {
		var id int64
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		stored, err := decodeVector(blob)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		candidates = append(candidates, candidate{id: id, distance: textsim.InnerProductDistance(vector, stored)})
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	slices.SortStableFunc(candidates, func(a, b candidate) int {
		return cmp.Compare(a.distance, b.distance)
	})
	if len(candidates) > topN {
		candidates = candidates[:topN]
	}

	var result []Conversation
	for _, c := range candidates {
		if 1-c.distance < threshold {
			continue
		}
		convs, err := o.conversationsByEmbedding(ctx, c.id)
		if err != nil {
			return nil, err
		}
		result = append(result, convs...)
	}
	return result, nil
}

func (o *sqliteOps) conversationsByEmbedding(ctx context.Context, embeddingID int64) ([]Conversation, error) {
	query := `SELECT c.id, c.created_at, c.user_name, c.user_message, c.agent_name, c.agent_message, c.emotion, c.language
		FROM associations a JOIN conversations c ON c.id = a.conversation_id
		WHERE a.embedding_id = ? ORDER BY a.id`
	rows, err := o.q.QueryContext(ctx, query, embeddingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations by embedding: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanConversations(rows)
}

func (o *sqliteOps) GetRandomByDate(ctx context.Context, day time.Time, limit int) ([]Conversation, error) {
	rows, err := o.q.QueryContext(ctx, `SELECT id FROM conversations WHERE created_on = ? ORDER BY id`, DayOf(day))
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations by date: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan conversation id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	picked := Sample(o.opts.Rand, len(ids), limit)
	result := make([]Conversation, 0, len(picked))
	for _, idx := range picked {
		c, err := o.GetConversationByID(ctx, ids[idx])
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var c Conversation
	var createdAt string
	var lang sql.NullString
	if err := row.Scan(&c.ID, &createdAt, &c.UserName, &c.UserMessage, &c.AgentName, &c.AgentMessage, &c.Emotion, &lang); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse conversation timestamp %q: %w", createdAt, err)
	}
	c.CreatedAt = t
	c.Language = lang.String
	return &c, nil
}

func scanConversations(rows *sql.Rows) ([]Conversation, error) {
	var list []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		list = append(list, *c)
	}
	return list, rows.Err()
}

func encodeVector(vector []float32) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, vector); err != nil {
		return nil, fmt.Errorf("failed to encode vector: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("failed to decode vector: %d bytes is not a float32 multiple", len(blob))
	}
	vector := make([]float32, len(blob)/4)
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, &vector); err != nil {
		return nil, fmt.Errorf("failed to decode vector: %w", err)
	}
	return vector, nil
}

// The store itself runs outside a transaction through the same operations.

func (s *SQLiteStore) CreateConversation(ctx context.Context, c NewConversation) (*Conversation, error) {
	return s.ops.CreateConversation(ctx, c)
}

func (s *SQLiteStore) CreateAssociation(ctx context.Context, key string, conversationID int64, embeddingID *int64) (*Association, error) {
	return s.ops.CreateAssociation(ctx, key, conversationID, embeddingID)
}

func (s *SQLiteStore) CreateEmbedding(ctx context.Context, vector []float32) (*Embedding, error) {
	return s.ops.CreateEmbedding(ctx, vector)
}

func (s *SQLiteStore) GetConversationByID(ctx context.Context, id int64) (*Conversation, error) {
	return s.ops.GetConversationByID(ctx, id)
}

func (s *SQLiteStore) GetByKeySimilarity(ctx context.Context, text string, threshold float64) ([]Association, error) {
	return s.ops.GetByKeySimilarity(ctx, text, threshold)
}

func (s *SQLiteStore) GetSimilarEmbedding(ctx context.Context, vector []float32, topN int, threshold float64) ([]Conversation, error) {
	return s.ops.GetSimilarEmbedding(ctx, vector, topN, threshold)
}

func (s *SQLiteStore) GetRandomByDate(ctx context.Context, day time.Time, limit int) ([]Conversation, error) {
	return s.ops.GetRandomByDate(ctx, day, limit)
}
