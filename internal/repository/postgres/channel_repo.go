package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/pulsechat/internal/domain"
)

type ChannelRepo struct {
	pool *pgxpool.Pool
}

func NewChannelRepo(pool *pgxpool.Pool) *ChannelRepo {
	return &ChannelRepo{pool: pool}
}

const channelColumns = "id, name, is_private, created_by, created_at"

func (r *ChannelRepo) Create(ctx context.Context, ch *domain.Channel) error {
	query := `
		INSERT INTO channels (id, name, is_private, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, ch.ID, ch.Name, ch.IsPrivate, ch.CreatedBy, ch.CreatedAt)
	return mapError(err)
}

func (r *ChannelRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Channel, error) {
	return r.scanChannel(ctx, "SELECT "+channelColumns+" FROM channels WHERE id = $1", id)
}

func (r *ChannelRepo) GetByName(ctx context.Context, name string) (*domain.Channel, error) {
	return r.scanChannel(ctx, "SELECT "+channelColumns+" FROM channels WHERE name = $1", name)
}

func (r *ChannelRepo) scanChannel(ctx context.Context, query string, arg any) (*domain.Channel, error) {
	var ch domain.Channel
	err := r.pool.QueryRow(ctx, query, arg).Scan(&ch.ID, &ch.Name, &ch.IsPrivate, &ch.CreatedBy, &ch.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// ListVisible returns every public channel plus the private ones the user belongs to.
func (r *ChannelRepo) ListVisible(ctx context.Context, userID uuid.UUID) ([]domain.Channel, error) {
	query := `
		SELECT c.id, c.name, c.is_private, c.created_by, c.created_at
		FROM channels c
		WHERE NOT c.is_private
			OR EXISTS (SELECT 1 FROM channel_members cm WHERE cm.channel_id = c.id AND cm.user_id = $1)
		ORDER BY c.created_at`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []domain.Channel
	for rows.Next() {
		var ch domain.Channel
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.IsPrivate, &ch.CreatedBy, &ch.CreatedAt); err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// Delete removes the channel; members and messages cascade.
func (r *ChannelRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM channels WHERE id = $1`, id)
	return err
}

func (r *ChannelRepo) AddMember(ctx context.Context, m *domain.ChannelMember) error {
	query := `
		INSERT INTO channel_members (channel_id, user_id, role, joined_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (channel_id, user_id) DO NOTHING`
	_, err := r.pool.Exec(ctx, query, m.ChannelID, m.UserID, m.Role, m.JoinedAt)
	return err
}

func (r *ChannelRepo) GetMember(ctx context.Context, channelID, userID uuid.UUID) (*domain.ChannelMember, error) {
	query := `
		SELECT cm.channel_id, cm.user_id, cm.role, cm.joined_at, u.username, u.display_name, u.avatar_url
		FROM channel_members cm
		JOIN users u ON cm.user_id = u.id
		WHERE cm.channel_id = $1 AND cm.user_id = $2`
	var m domain.ChannelMember
	err := r.pool.QueryRow(ctx, query, channelID, userID).Scan(
		&m.ChannelID, &m.UserID, &m.Role, &m.JoinedAt, &m.Username, &m.DisplayName, &m.AvatarURL,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *ChannelRepo) ListMembers(ctx context.Context, channelID uuid.UUID) ([]domain.ChannelMember, error) {
	query := `
		SELECT cm.channel_id, cm.user_id, cm.role, cm.joined_at, u.username, u.display_name, u.avatar_url
		FROM channel_members cm
		JOIN users u ON cm.user_id = u.id
		WHERE cm.channel_id = $1
		ORDER BY cm.joined_at`

	rows, err := r.pool.Query(ctx, query, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []domain.ChannelMember
	for rows.Next() {
		var m domain.ChannelMember
		if err := rows.Scan(&m.ChannelID, &m.UserID, &m.Role, &m.JoinedAt, &m.Username, &m.DisplayName, &m.AvatarURL); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
