package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messenger-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for messages and read receipts.
type MessageRepository interface {
	AppendMessage(ctx context.Context, chatID int, senderID, body string, attachments []models.Attachment) (models.Message, error)
	ListMessages(ctx context.Context, chatID, page, limit int) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	MarkRead(ctx context.Context, chatID int, readerID string) ([]int, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// AppendMessage stores a message and moves the conversation's last-message
// pointer in the same transaction.
func (r *MessageRepo) AppendMessage(ctx context.Context, chatID int, senderID, body string, attachments []models.Attachment) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var exists bool
	if err = tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM conversations WHERE id=$1)`, chatID); err != nil {
		return models.Message{}, err
	}
	if !exists {
		err = ErrChatNotFound
		return models.Message{}, err
	}

	var msg models.Message
	if err = tx.QueryRowxContext(ctx, `INSERT INTO messages (chat_id, sender_id, body) VALUES ($1, $2, $3)
        RETURNING id, chat_id, sender_id, body, created_at`, chatID, senderID, body).
		StructScan(&msg); err != nil {
		return models.Message{}, err
	}

	for _, att := range attachments {
		if _, err = tx.ExecContext(ctx, `INSERT INTO message_attachments (message_id, public_id, url) VALUES ($1, $2, $3)`, msg.ID, att.PublicID, att.URL); err != nil {
			return models.Message{}, err
		}
	}

	if _, err = tx.ExecContext(ctx, `UPDATE conversations SET last_message_id=$2 WHERE id=$1`, chatID, msg.ID); err != nil {
		return models.Message{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Message{}, err
	}

	msg.Attachments = attachments
	msg.ReadBy = []string{}
	return msg, nil
}

// ListMessages returns messages in creation order, paginated, with
// attachments and read receipts hydrated.
func (r *MessageRepo) ListMessages(ctx context.Context, chatID, page, limit int) ([]models.Message, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}

	var msgs []models.Message
	query := `SELECT id, chat_id, sender_id, body, created_at FROM messages
        WHERE chat_id=$1 ORDER BY created_at, id LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &msgs, query, chatID, limit, (page-1)*limit); err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return msgs, nil
	}

	ids := make([]int, 0, len(msgs))
	index := make(map[int]int, len(msgs))
	for i := range msgs {
		msgs[i].Attachments = []models.Attachment{}
		msgs[i].ReadBy = []string{}
		ids = append(ids, msgs[i].ID)
		index[msgs[i].ID] = i
	}

	attQuery, args, err := sqlx.In(`SELECT message_id, public_id, url FROM message_attachments WHERE message_id IN (?) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	attRows, err := r.db.QueryxContext(ctx, r.db.Rebind(attQuery), args...)
	if err != nil {
		return nil, err
	}
	defer attRows.Close()
	for attRows.Next() {
		var messageID int
		var att models.Attachment
		if err := attRows.Scan(&messageID, &att.PublicID, &att.URL); err != nil {
			return nil, err
		}
		i := index[messageID]
		msgs[i].Attachments = append(msgs[i].Attachments, att)
	}
	if err := attRows.Err(); err != nil {
		return nil, err
	}

	readQuery, args, err := sqlx.In(`SELECT message_id, user_id FROM message_reads WHERE message_id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	readRows, err := r.db.QueryxContext(ctx, r.db.Rebind(readQuery), args...)
	if err != nil {
		return nil, err
	}
	defer readRows.Close()
	for readRows.Next() {
		var messageID int
		var userID string
		if err := readRows.Scan(&messageID, &userID); err != nil {
			return nil, err
		}
		i := index[messageID]
		msgs[i].ReadBy = append(msgs[i].ReadBy, userID)
	}
	return msgs, readRows.Err()
}

// GetMessage retrieves a single message without hydration.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT id, chat_id, sender_id, body, created_at FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// MarkRead unions the reader into the read set of every message in the chat
// they have not read and did not send. Idempotent; returns newly affected
// message ids only.
func (r *MessageRepo) MarkRead(ctx context.Context, chatID int, readerID string) ([]int, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM conversations WHERE id=$1)`, chatID); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrChatNotFound
	}

	query := `INSERT INTO message_reads (message_id, user_id)
        SELECT m.id, $2 FROM messages m WHERE m.chat_id=$1 AND m.sender_id<>$2
        ON CONFLICT DO NOTHING
        RETURNING message_id`
	rows, err := r.db.QueryxContext(ctx, query, chatID, readerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	affected := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		affected = append(affected, id)
	}
	return affected, rows.Err()
}
