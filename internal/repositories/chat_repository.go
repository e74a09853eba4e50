package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"unipulse-chat/internal/db"
	"unipulse-chat/internal/models"
)

var ErrChatNotFound = errors.New("chat not found")

// foreign_key_violation
const pqForeignKeyViolation = "23503"

// ChatRepository abstracts chat and participant persistence.
type ChatRepository interface {
	CreateChat(ctx context.Context, in models.NewChat) (models.Chat, error)
	GetChat(ctx context.Context, chatID int) (models.Chat, error)
	AddParticipant(ctx context.Context, chatID int, userID int, isAdmin bool) (models.Participant, error)
	LeaveChat(ctx context.Context, chatID int, userID int) (bool, error)
	IsParticipant(ctx context.Context, chatID int, userID int) (bool, error)
	ListUserChats(ctx context.Context, userID int) ([]models.ChatSummary, error)
	ListParticipants(ctx context.Context, chatID int) ([]models.ParticipantView, error)
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

const upsertParticipantQuery = `INSERT INTO chat_participants (chat_id, user_id, is_admin) VALUES ($1, $2, $3)
        ON CONFLICT (chat_id, user_id) DO UPDATE SET
            left_at = NULL,
            joined_at = CASE WHEN chat_participants.left_at IS NULL THEN chat_participants.joined_at ELSE NOW() END,
            is_admin = chat_participants.is_admin OR EXCLUDED.is_admin
        RETURNING chat_id, user_id, joined_at, left_at, is_admin`

// CreateChat inserts the chat, its creator as admin and any initial
// participants in one transaction. created_at and last_message_at share the
// same NOW().
func (r *ChatRepo) CreateChat(ctx context.Context, in models.NewChat) (models.Chat, error) {
	var chat models.Chat
	err := db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := tx.QueryRowxContext(ctx, `INSERT INTO chats (name, is_group, theme, created_by) VALUES ($1, $2, $3, $4)
            RETURNING id, name, is_group, theme, created_by, created_at, last_message_at`,
			in.Name, in.IsGroup, in.Theme, in.CreatorID).StructScan(&chat); err != nil {
			return fmt.Errorf("insert chat: %w", err)
		}

		if in.CreatorID != nil {
			if _, err := upsertParticipant(ctx, tx, chat.ID, *in.CreatorID, true); err != nil {
				return err
			}
		}

		for _, id := range memberIDs(in.ParticipantIDs, in.CreatorID) {
			if _, err := upsertParticipant(ctx, tx, chat.ID, id, false); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

// GetChat fetches a chat by id.
func (r *ChatRepo) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT id, name, is_group, theme, created_by, created_at, last_message_at FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// AddParticipant inserts the membership or reactivates a previous one. Adding
// an already active member is a successful no-op that keeps its admin flag.
func (r *ChatRepo) AddParticipant(ctx context.Context, chatID int, userID int, isAdmin bool) (models.Participant, error) {
	return upsertParticipant(ctx, r.db, chatID, userID, isAdmin)
}

// LeaveChat marks an active membership as left.
func (r *ChatRepo) LeaveChat(ctx context.Context, chatID int, userID int) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE chat_participants SET left_at = NOW() WHERE chat_id=$1 AND user_id=$2 AND left_at IS NULL`, chatID, userID)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// IsParticipant reports whether the user is an active member of the chat.
func (r *ChatRepo) IsParticipant(ctx context.Context, chatID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM chat_participants WHERE chat_id=$1 AND user_id=$2 AND left_at IS NULL)`, chatID, userID)
	return exists, err
}

// ListUserChats returns the active chats of a user, most recently active
// first. Unnamed 1:1 chats take the other active participant's username.
func (r *ChatRepo) ListUserChats(ctx context.Context, userID int) ([]models.ChatSummary, error) {
	query := `SELECT c.id,
            COALESCE(c.name, other.username, '') AS name,
            c.is_group, c.theme, c.created_at, c.last_message_at,
            (SELECT COUNT(*) FROM messages um
                WHERE um.chat_id = c.id AND um.sender_id <> $1
                AND um.read_at IS NULL AND um.deleted_at IS NULL) AS unread_count,
            last.content AS last_message_content,
            last.sender_name AS last_message_sender
        FROM chats c
        INNER JOIN chat_participants p ON p.chat_id = c.id AND p.user_id = $1 AND p.left_at IS NULL
        LEFT JOIN LATERAL (
            SELECT lm.content, COALESCE(lu.username, '') AS sender_name
            FROM messages lm LEFT JOIN users lu ON lu.id = lm.sender_id
            WHERE lm.chat_id = c.id AND lm.deleted_at IS NULL
            ORDER BY lm.id DESC LIMIT 1
        ) last ON TRUE
        LEFT JOIN LATERAL (
            SELECT ou.username
            FROM chat_participants op INNER JOIN users ou ON ou.id = op.user_id
            WHERE op.chat_id = c.id AND op.user_id <> $1 AND op.left_at IS NULL AND NOT c.is_group
            ORDER BY op.joined_at LIMIT 1
        ) other ON TRUE
        ORDER BY c.last_message_at DESC, c.id DESC`

	chats := []models.ChatSummary{}
	if err := r.db.SelectContext(ctx, &chats, query, userID); err != nil {
		return nil, err
	}
	return chats, nil
}

// ListParticipants returns the active members of a chat.
func (r *ChatRepo) ListParticipants(ctx context.Context, chatID int) ([]models.ParticipantView, error) {
	participants := []models.ParticipantView{}
	err := r.db.SelectContext(ctx, &participants, `SELECT p.user_id, COALESCE(u.username, '') AS username, p.is_admin, p.joined_at
        FROM chat_participants p LEFT JOIN users u ON u.id = p.user_id
        WHERE p.chat_id=$1 AND p.left_at IS NULL
        ORDER BY p.joined_at, p.user_id`, chatID)
	if err != nil {
		return nil, err
	}
	return participants, nil
}

func upsertParticipant(ctx context.Context, q sqlx.QueryerContext, chatID int, userID int, isAdmin bool) (models.Participant, error) {
	var p models.Participant
	if err := q.QueryRowxContext(ctx, upsertParticipantQuery, chatID, userID, isAdmin).StructScan(&p); err != nil {
		if isForeignKeyViolation(err) {
			return models.Participant{}, ErrChatNotFound
		}
		return models.Participant{}, fmt.Errorf("upsert participant: %w", err)
	}
	return p, nil
}

// memberIDs dedupes and sorts ids, dropping the creator.
func memberIDs(ids []int, creatorID *int) []int {
	set := map[int]struct{}{}
	for _, id := range ids {
		if creatorID != nil && id == *creatorID {
			continue
		}
		set[id] = struct{}{}
	}
	out := make([]int, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation
}
