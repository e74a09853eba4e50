package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"unipulse-chat/internal/db"
	"unipulse-chat/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

const (
	DefaultMessageLimit = 100
	MaxMessageLimit     = 100
)

const messageColumns = `m.id, m.chat_id, m.sender_id, COALESCE(u.username, '') AS sender_name,
        m.content, m.kind, m.attachment_url, m.sent_at, m.read_at, m.deleted_at`

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	PostMessage(ctx context.Context, in models.NewMessage) (models.Message, error)
	ListMessages(ctx context.Context, chatID int, limit int, beforeID *int) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	MarkRead(ctx context.Context, messageID int, actorID int) (time.Time, bool, error)
	SoftDelete(ctx context.Context, messageID int, actorID int) (bool, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// PostMessage stores a message and advances the chat's last_message_at in the
// same transaction. last_message_at moves forward by at least a microsecond
// even when two posts share a clock reading.
func (r *MessageRepo) PostMessage(ctx context.Context, in models.NewMessage) (models.Message, error) {
	kind := in.Kind
	if kind == "" {
		kind = models.KindText
	}

	var msg models.Message
	err := db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &msg, `WITH m AS (
                INSERT INTO messages (chat_id, sender_id, content, kind, attachment_url)
                VALUES ($1, $2, $3, $4, $5)
                RETURNING id, chat_id, sender_id, content, kind, attachment_url, sent_at, read_at, deleted_at
            )
            SELECT `+messageColumns+` FROM m LEFT JOIN users u ON u.id = m.sender_id`,
			in.ChatID, in.SenderID, in.Content, kind, in.AttachmentURL)
		if err != nil {
			if isForeignKeyViolation(err) {
				return ErrChatNotFound
			}
			return fmt.Errorf("insert message: %w", err)
		}

		res, err := tx.ExecContext(ctx, `UPDATE chats SET last_message_at = GREATEST($2::timestamptz, last_message_at + INTERVAL '1 microsecond') WHERE id=$1`, msg.ChatID, msg.SentAt)
		if err != nil {
			return fmt.Errorf("touch chat: %w", err)
		}
		count, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if count == 0 {
			return ErrChatNotFound
		}
		return nil
	})
	if err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// ListMessages returns visible messages newest first. When beforeID is set
// only messages with a smaller id are returned.
func (r *MessageRepo) ListMessages(ctx context.Context, chatID int, limit int, beforeID *int) ([]models.Message, error) {
	if limit <= 0 || limit > MaxMessageLimit {
		limit = DefaultMessageLimit
	}

	query := `SELECT ` + messageColumns + ` FROM messages m LEFT JOIN users u ON u.id = m.sender_id
        WHERE m.chat_id=$1 AND m.deleted_at IS NULL`
	args := []any{chatID}
	if beforeID != nil {
		args = append(args, *beforeID)
		query += fmt.Sprintf(` AND m.id < $%d`, len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY m.id DESC LIMIT $%d`, len(args))

	msgs := []models.Message{}
	if err := r.db.SelectContext(ctx, &msgs, query, args...); err != nil {
		return nil, err
	}
	return msgs, nil
}

// GetMessage retrieves a single message, deleted or not.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages m LEFT JOIN users u ON u.id = m.sender_id WHERE m.id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// MarkRead records the first read of a message by an active participant other
// than its author. Any other call is a no-op reported as changed=false.
func (r *MessageRepo) MarkRead(ctx context.Context, messageID int, actorID int) (time.Time, bool, error) {
	var readAt time.Time
	err := r.db.GetContext(ctx, &readAt, `UPDATE messages m SET read_at = NOW()
        WHERE m.id=$1 AND m.sender_id <> $2 AND m.read_at IS NULL
        AND EXISTS(SELECT 1 FROM chat_participants p WHERE p.chat_id = m.chat_id AND p.user_id=$2 AND p.left_at IS NULL)
        RETURNING m.read_at`, messageID, actorID)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return readAt, true, nil
}

// SoftDelete hides a message when called by its author. It reports whether a
// row changed.
func (r *MessageRepo) SoftDelete(ctx context.Context, messageID int, actorID int) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET deleted_at = NOW() WHERE id=$1 AND sender_id=$2 AND deleted_at IS NULL`, messageID, actorID)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
