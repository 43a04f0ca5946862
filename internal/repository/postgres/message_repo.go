package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/repository"
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

const messageSelect = `
	SELECT m.id, m.channel_id, m.sender_id, m.content, COALESCE(m.client_id, ''), m.created_at,
		u.username, u.display_name
	FROM messages m
	JOIN users u ON m.sender_id = u.id`

func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	query := `
		INSERT INTO messages (id, channel_id, sender_id, content, client_id, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)`
	_, err := r.pool.Exec(ctx, query,
		msg.ID, msg.ChannelID, msg.SenderID, msg.Content, msg.ClientID, msg.CreatedAt,
	)
	return mapError(err)
}

func (r *MessageRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	return r.scanOne(r.pool.QueryRow(ctx, messageSelect+` WHERE m.id = $1`, id))
}

func (r *MessageRepo) GetByClientID(ctx context.Context, senderID uuid.UUID, clientID string) (*domain.Message, error) {
	return r.scanOne(r.pool.QueryRow(ctx, messageSelect+` WHERE m.sender_id = $1 AND m.client_id = $2`, senderID, clientID))
}

func (r *MessageRepo) scanOne(row pgx.Row) (*domain.Message, error) {
	var msg domain.Message
	err := row.Scan(
		&msg.ID, &msg.ChannelID, &msg.SenderID, &msg.Content, &msg.ClientID, &msg.CreatedAt,
		&msg.SenderUsername, &msg.SenderDisplayName,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListByChannel pages backward by (created_at, id). Rows come back newest first.
func (r *MessageRepo) ListByChannel(ctx context.Context, channelID uuid.UUID, before *repository.MessageCursor, limit int) ([]domain.Message, error) {
	var (
		rows pgx.Rows
		err  error
	)

	switch {
	case before == nil:
		rows, err = r.pool.Query(ctx, messageSelect+`
			WHERE m.channel_id = $1
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT $2`, channelID, limit)
	case before.ID == uuid.Nil:
		rows, err = r.pool.Query(ctx, messageSelect+`
			WHERE m.channel_id = $1 AND m.created_at < $2
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT $3`, channelID, before.CreatedAt, limit)
	default:
		rows, err = r.pool.Query(ctx, messageSelect+`
			WHERE m.channel_id = $1 AND (m.created_at, m.id) < ($2, $3)
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT $4`, channelID, before.CreatedAt, before.ID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID, &msg.ChannelID, &msg.SenderID, &msg.Content, &msg.ClientID, &msg.CreatedAt,
			&msg.SenderUsername, &msg.SenderDisplayName,
		); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
