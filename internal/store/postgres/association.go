package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/felixgeelhaar/recall/internal/store"
)

type ops struct {
	q    querier
	opts store.Options
}

const conversationColumns = `id, created_at, user_name, user_message, agent_name, agent_message, emotion, language`

var (
	// Trigram similarity of the stored key against $1, at least $2.
	keySimilarityQuery = `
		SELECT id, key, conversation_id, embedding_id
		FROM associations
		WHERE similarity(key, ` + placeholder(1) + `) >= ` + placeholder(2) + `
		ORDER BY similarity(key, ` + placeholder(1) + `) DESC, id ASC
	`

	// <#> is pgvector's negative inner product, so the distance 1 - <a,b>
	// is written as 1 + (a <#> b) and 1 - distance is the similarity.
	similarEmbeddingQuery = `
		WITH nearest AS (
			SELECT id, 1 + (vector <#> ` + placeholder(1) + `) AS distance
			FROM embeddings
			ORDER BY vector <#> ` + placeholder(1) + `, id
			LIMIT ` + placeholder(2) + `
		)
		SELECT c.id, c.created_at, c.user_name, c.user_message, c.agent_name, c.agent_message, c.emotion, c.language
		FROM nearest n
		JOIN associations a ON a.embedding_id = n.id
		JOIN conversations c ON c.id = a.conversation_id
		WHERE 1 - n.distance >= ` + placeholder(3) + `
		ORDER BY n.distance ASC, n.id ASC, a.id ASC
	`

	dayIDsQuery = `SELECT id FROM conversations WHERE created_at::date = ` + placeholder(1) + `::date ORDER BY id`

	// array_position keeps the sampled order.
	sampledConversationsQuery = `SELECT ` + conversationColumns + ` FROM conversations
		WHERE id = ANY(` + placeholder(1) + `)
		ORDER BY array_position(` + placeholder(1) + `::bigint[], id)`
)

func (o *ops) CreateConversation(ctx context.Context, c store.NewConversation) (*store.Conversation, error) {
	stmt := `
		INSERT INTO conversations (created_at, user_name, user_message, agent_name, agent_message, emotion, language)
		VALUES (` + placeholders(7) + `)
		RETURNING id, created_at
	`
	var lang sql.NullString
	if c.Language != "" {
		lang = sql.NullString{String: c.Language, Valid: true}
	}

	conv := &store.Conversation{
		UserName:     c.UserName,
		UserMessage:  c.UserMessage,
		AgentName:    c.AgentName,
		AgentMessage: c.AgentMessage,
		Emotion:      c.Emotion,
		Language:     c.Language,
	}
	err := o.q.QueryRowContext(ctx, stmt,
		o.opts.Now(), c.UserName, c.UserMessage, c.AgentName, c.AgentMessage, c.Emotion, lang,
	).Scan(&conv.ID, &conv.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create conversation")
	}
	return conv, nil
}

func (o *ops) CreateAssociation(ctx context.Context, key string, conversationID int64, embeddingID *int64) (*store.Association, error) {
	stmt := `INSERT INTO associations (key, conversation_id, embedding_id) VALUES (` + placeholders(3) + `) RETURNING id`

	var emb sql.NullInt64
	if embeddingID != nil {
		emb = sql.NullInt64{Int64: *embeddingID, Valid: true}
	}

	a := &store.Association{Key: key, ConversationID: conversationID, EmbeddingID: embeddingID}
	if err := o.q.QueryRowContext(ctx, stmt, key, conversationID, emb).Scan(&a.ID); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return nil, errors.Wrapf(err, "association %q references a missing row", key)
		}
		return nil, errors.Wrap(err, "failed to create association")
	}
	return a, nil
}

func (o *ops) CreateEmbedding(ctx context.Context, vector []float32) (*store.Embedding, error) {
	if len(vector) == 0 {
		return nil, errors.New("failed to create embedding: empty vector")
	}
	stmt := `INSERT INTO embeddings (vector) VALUES (` + placeholder(1) + `) RETURNING id`

	e := &store.Embedding{Vector: append([]float32(nil), vector...)}
	if err := o.q.QueryRowContext(ctx, stmt, pgvector.NewVector(vector)).Scan(&e.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create embedding")
	}
	return e, nil
}

func (o *ops) GetConversationByID(ctx context.Context, id int64) (*store.Conversation, error) {
	row := o.q.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = `+placeholder(1), id)
	c, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(store.ErrNotFound, "conversation %d", id)
		}
		return nil, errors.Wrap(err, "failed to get conversation")
	}
	return c, nil
}

func (o *ops) GetByKeySimilarity(ctx context.Context, text string, threshold float64) ([]store.Association, error) {
	rows, err := o.q.QueryContext(ctx, keySimilarityQuery, text, threshold)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query associations by key")
	}
	defer rows.Close()

	list := []store.Association{}
	for rows.Next() {
		var a store.Association
		var emb sql.NullInt64
		if err := rows.Scan(&a.ID, &a.Key, &a.ConversationID, &emb); err != nil {
			return nil, errors.Wrap(err, "failed to scan association")
		}
		if emb.Valid {
			id := emb.Int64
			a.EmbeddingID = &id
		}
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// GetSimilarEmbedding keeps the topN nearest vectors whose similarity
// reaches threshold.
func (o *ops) GetSimilarEmbedding(ctx context.Context, vector []float32, topN int, threshold float64) ([]store.Conversation, error) {
	if topN <= 0 {
		return nil, nil
	}
	rows, err := o.q.QueryContext(ctx, similarEmbeddingQuery, pgvector.NewVector(vector), topN, threshold)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query similar embeddings")
	}
	defer rows.Close()
	return scanConversations(rows)
}

func (o *ops) GetRandomByDate(ctx context.Context, day time.Time, limit int) ([]store.Conversation, error) {
	rows, err := o.q.QueryContext(ctx, dayIDsQuery, store.DayOf(day))
	if err != nil {
		return nil, errors.Wrap(err, "failed to query conversations by date")
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "failed to scan conversation id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	picked := store.Sample(o.opts.Rand, len(ids), limit)
	if len(picked) == 0 {
		return []store.Conversation{}, nil
	}
	chosen := make([]int64, len(picked))
	for i, idx := range picked {
		chosen[i] = ids[idx]
	}

	convRows, err := o.q.QueryContext(ctx, sampledConversationsQuery, pq.Array(chosen))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load sampled conversations")
	}
	defer convRows.Close()
	return scanConversations(convRows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*store.Conversation, error) {
	var c store.Conversation
	var lang sql.NullString
	if err := row.Scan(&c.ID, &c.CreatedAt, &c.UserName, &c.UserMessage, &c.AgentName, &c.AgentMessage, &c.Emotion, &lang); err != nil {
		return nil, err
	}
	c.Language = lang.String
	return &c, nil
}

func scanConversations(rows *sql.Rows) ([]store.Conversation, error) {
	list := []store.Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan conversation")
		}
		list = append(list, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// The pool itself runs outside a transaction through the same operations.

func (d *DB) CreateConversation(ctx context.Context, c store.NewConversation) (*store.Conversation, error) {
	return d.ops.CreateConversation(ctx, c)
}

func (d *DB) CreateAssociation(ctx context.Context, key string, conversationID int64, embeddingID *int64) (*store.Association, error) {
	return d.ops.CreateAssociation(ctx, key, conversationID, embeddingID)
}

func (d *DB) CreateEmbedding(ctx context.Context, vector []float32) (*store.Embedding, error) {
	return d.ops.CreateEmbedding(ctx, vector)
}

func (d *DB) GetConversationByID(ctx context.Context, id int64) (*store.Conversation, error) {
	return d.ops.GetConversationByID(ctx, id)
}

func (d *DB) GetByKeySimilarity(ctx context.Context, text string, threshold float64) ([]store.Association, error) {
	return d.ops.GetByKeySimilarity(ctx, text, threshold)
}

func (d *DB) GetSimilarEmbedding(ctx context.Context, vector []float32, topN int, threshold float64) ([]store.Conversation, error) {
	return d.ops.GetSimilarEmbedding(ctx, vector, topN, threshold)
}

func (d *DB) GetRandomByDate(ctx context.Context, day time.Time, limit int) ([]store.Conversation, error) {
	return d.ops.GetRandomByDate(ctx, day, limit)
}
