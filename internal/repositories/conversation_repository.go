package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/jmoiron/sqlx"

	"messenger-service/internal/models"
)

var (
	ErrChatNotFound = errors.New("chat not found")
	ErrNotGroup     = errors.New("conversation is not a group")
	ErrGroupSize    = errors.New("group member count must be between 2 and 20")
)

// Group membership bounds, creator included.
const (
	MinGroupMembers = 2
	MaxGroupMembers = 20
)

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	CreateDirectChat(ctx context.Context, userA, userB string) (models.Conversation, error)
	CreateGroupChat(ctx context.Context, creator, name, description string, memberIDs []string) (models.Conversation, error)
	GetChat(ctx context.Context, chatID int) (models.Conversation, error)
	Participants(ctx context.Context, chatID int) ([]string, error)
	IsParticipant(ctx context.Context, chatID int, userID string) (bool, error)
	ListChats(ctx context.Context, userID string) ([]models.ChatSummary, error)
	AddParticipants(ctx context.Context, chatID int, userIDs []string) error
	RemoveParticipant(ctx context.Context, chatID int, userID string) error
	ReassignCreator(ctx context.Context, chatID int, leavingID string) error
	UpdateGroupMeta(ctx context.Context, chatID int, name, description string) error
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// CreateDirectChat creates a two-party chat if one does not already exist.
func (r *ConversationRepo) CreateDirectChat(ctx context.Context, userA, userB string) (models.Conversation, error) {
	if userA == userB {
		return models.Conversation{}, errors.New("cannot create chat with self")
	}

	var conv models.Conversation
	query := `SELECT c.id, c.is_group, c.name, c.description, c.creator_id, c.last_message_id, c.created_at
        FROM conversations c
        INNER JOIN participants p1 ON p1.chat_id = c.id AND p1.user_id = $1
        INNER JOIN participants p2 ON p2.chat_id = c.id AND p2.user_id = $2
        WHERE c.is_group = FALSE`
	err := r.db.GetContext(ctx, &conv, query, userA, userB)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = tx.QueryRowxContext(ctx, `INSERT INTO conversations (is_group) VALUES (FALSE)
        RETURNING id, is_group, name, description, creator_id, last_message_id, created_at`).
		StructScan(&conv); err != nil {
		return models.Conversation{}, err
	}
	for _, id := range []string{userA, userB} {
		if _, err = tx.ExecContext(ctx, `INSERT INTO participants (chat_id, user_id) VALUES ($1, $2)`, conv.ID, id); err != nil {
			return models.Conversation{}, err
		}
	}
	if err = tx.Commit(); err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

// CreateGroupChat creates a group and its members atomically. The creator is
// always a member; the total member count must land in [2,20].
func (r *ConversationRepo) CreateGroupChat(ctx context.Context, creator, name, description string, memberIDs []string) (models.Conversation, error) {
	memberSet := map[string]struct{}{creator: {}}
	for _, id := range memberIDs {
		memberSet[id] = struct{}{}
	}
	if len(memberSet) < MinGroupMembers || len(memberSet) > MaxGroupMembers {
		return models.Conversation{}, ErrGroupSize
	}
	ids := make([]string, 0, len(memberSet))
	for id := range memberSet {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var conv models.Conversation
	if err = tx.QueryRowxContext(ctx, `INSERT INTO conversations (is_group, name, description, creator_id) VALUES (TRUE, $1, $2, $3)
        RETURNING id, is_group, name, description, creator_id, last_message_id, created_at`, name, description, creator).
		StructScan(&conv); err != nil {
		return models.Conversation{}, err
	}

	// The creator joins first so join order starts with them.
	if _, err = tx.ExecContext(ctx, `INSERT INTO participants (chat_id, user_id) VALUES ($1, $2)`, conv.ID, creator); err != nil {
		return models.Conversation{}, err
	}
	for _, id := range ids {
		if id == creator {
			continue
		}
		if _, err = tx.ExecContext(ctx, `INSERT INTO participants (chat_id, user_id) VALUES ($1, $2)`, conv.ID, id); err != nil {
			return models.Conversation{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

// GetChat fetches a conversation by id.
func (r *ConversationRepo) GetChat(ctx context.Context, chatID int) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT id, is_group, name, description, creator_id, last_message_id, created_at FROM conversations WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrChatNotFound
	}
	return conv, err
}

// Participants returns member ids ordered by join time.
func (r *ConversationRepo) Participants(ctx context.Context, chatID int) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `SELECT user_id FROM participants WHERE chat_id=$1 ORDER BY joined_at, user_id`, chatID)
	return ids, err
}

// IsParticipant checks whether a user belongs to the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, chatID int, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM participants WHERE chat_id=$1 AND user_id=$2)`, chatID, userID)
	return exists, err
}

// ListChats returns conversations visible to the user, most recent activity
// first, with participants and last message hydrated in two batch queries.
func (r *ConversationRepo) ListChats(ctx context.Context, userID string) ([]models.ChatSummary, error) {
	var convs []models.Conversation
	query := `SELECT c.id, c.is_group, c.name, c.description, c.creator_id, c.last_message_id, c.created_at
        FROM conversations c
        INNER JOIN participants p ON p.chat_id = c.id
        WHERE p.user_id=$1
        ORDER BY c.last_message_id DESC NULLS LAST, c.created_at DESC`
	if err := r.db.SelectContext(ctx, &convs, query, userID); err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return []models.ChatSummary{}, nil
	}

	chatIDs := make([]int, 0, len(convs))
	index := make(map[int]int, len(convs))
	messageIDs := make([]int, 0, len(convs))
	result := make([]models.ChatSummary, len(convs))
	for i, conv := range convs {
		result[i] = models.ChatSummary{Conversation: conv, Participants: []string{}}
		chatIDs = append(chatIDs, conv.ID)
		index[conv.ID] = i
		if conv.LastMessageID != nil {
			messageIDs = append(messageIDs, *conv.LastMessageID)
		}
	}

	pQuery, args, err := sqlx.In(`SELECT chat_id, user_id FROM participants WHERE chat_id IN (?) ORDER BY joined_at, user_id`, chatIDs)
	if err != nil {
		return nil, err
	}
	pRows, err := r.db.QueryxContext(ctx, r.db.Rebind(pQuery), args...)
	if err != nil {
		return nil, err
	}
	defer pRows.Close()
	for pRows.Next() {
		var chatID int
		var memberID string
		if err := pRows.Scan(&chatID, &memberID); err != nil {
			return nil, err
		}
		i := index[chatID]
		result[i].Participants = append(result[i].Participants, memberID)
	}
	if err := pRows.Err(); err != nil {
		return nil, err
	}

	if len(messageIDs) == 0 {
		return result, nil
	}

	mQuery, args, err := sqlx.In(`SELECT id, chat_id, sender_id, body, created_at FROM messages WHERE id IN (?)`, messageIDs)
	if err != nil {
		return nil, err
	}
	mRows, err := r.db.QueryxContext(ctx, r.db.Rebind(mQuery), args...)
	if err != nil {
		return nil, err
	}
	defer mRows.Close()
	for mRows.Next() {
		var msg models.Message
		if err := mRows.StructScan(&msg); err != nil {
			return nil, err
		}
		last := msg
		result[index[msg.ChatID]].LastMessage = &last
	}
	return result, mRows.Err()
}

// AddParticipants adds members to a group, keeping the total at or below the
// cap. The whole batch is rejected when it would overflow.
func (r *ConversationRepo) AddParticipants(ctx context.Context, chatID int, userIDs []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = lockGroup(ctx, tx, chatID); err != nil {
		return err
	}

	for _, id := range userIDs {
		if _, err = tx.ExecContext(ctx, `INSERT INTO participants (chat_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, chatID, id); err != nil {
			return err
		}
	}

	var count int
	if err = tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM participants WHERE chat_id=$1`, chatID); err != nil {
		return err
	}
	if count > MaxGroupMembers {
		err = ErrGroupSize
		return err
	}

	return tx.Commit()
}

// RemoveParticipant removes a member from a group. When the member is the
// current creator, the creator role moves to the earliest remaining
// participant by join order before the removal; a sole creator simply leaves
// the group without one.
func (r *ConversationRepo) RemoveParticipant(ctx context.Context, chatID int, userID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = lockGroup(ctx, tx, chatID); err != nil {
		return err
	}

	if err = reassignCreatorTx(ctx, tx, chatID, userID); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM participants WHERE chat_id=$1 AND user_id=$2`, chatID, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		err = ErrChatNotFound
		return err
	}

	return tx.Commit()
}

// ReassignCreator moves the creator role off the leaving user without
// removing them. Exposed for callers that manage removal themselves.
func (r *ConversationRepo) ReassignCreator(ctx context.Context, chatID int, leavingID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = lockGroup(ctx, tx, chatID); err != nil {
		return err
	}
	if err = reassignCreatorTx(ctx, tx, chatID, leavingID); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateGroupMeta updates the group name and description.
func (r *ConversationRepo) UpdateGroupMeta(ctx context.Context, chatID int, name, description string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE conversations SET name=$2, description=$3 WHERE id=$1 AND is_group=TRUE`, chatID, name, description)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrChatNotFound
	}
	return nil
}

func lockGroup(ctx context.Context, tx *sqlx.Tx, chatID int) error {
	var isGroup bool
	err := tx.GetContext(ctx, &isGroup, `SELECT is_group FROM conversations WHERE id=$1 FOR UPDATE`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrChatNotFound
	}
	if err != nil {
		return err
	}
	if !isGroup {
		return ErrNotGroup
	}
	return nil
}

func reassignCreatorTx(ctx context.Context, tx *sqlx.Tx, chatID int, leavingID string) error {
	var creator sql.NullString
	if err := tx.GetContext(ctx, &creator, `SELECT creator_id FROM conversations WHERE id=$1`, chatID); err != nil {
		return err
	}
	if !creator.Valid || creator.String != leavingID {
		return nil
	}

	// Deterministic pick: first remaining participant by join order.
	var next string
	err := tx.GetContext(ctx, &next, `SELECT user_id FROM participants WHERE chat_id=$1 AND user_id<>$2 ORDER BY joined_at, user_id LIMIT 1`, chatID, leavingID)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = tx.ExecContext(ctx, `UPDATE conversations SET creator_id=NULL WHERE id=$1`, chatID)
		return err
	}
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `UPDATE conversations SET creator_id=$2 WHERE id=$1`, chatID, next)
	return err
}
