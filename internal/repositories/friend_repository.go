package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messenger-service/internal/models"
)

var (
	ErrRequestNotFound  = errors.New("friend request not found")
	ErrDuplicateRequest = errors.New("friend request already exists")
	ErrAlreadyFriends   = errors.New("users are already friends")
	ErrNotFriends       = errors.New("users are not friends")
	ErrBlocked          = errors.New("user is blocked")
)

// FriendRequestRepository abstracts the friend-request workflow.
type FriendRequestRepository interface {
	Create(ctx context.Context, senderID, receiverID string) (models.FriendRequest, error)
	SetStatus(ctx context.Context, requestID int, receiverID, status string) (models.FriendRequest, error)
	Withdraw(ctx context.Context, requestID int, senderID string) error
	Incoming(ctx context.Context, userID string, page, limit int) ([]models.FriendRequest, error)
	Pending(ctx context.Context, userID string, page, limit int) ([]models.FriendRequest, error)
	AreFriends(ctx context.Context, userA, userB string) (bool, error)
	Friends(ctx context.Context, userID string, page, limit int) ([]string, error)
	Block(ctx context.Context, userID, targetID string) error
	Unblock(ctx context.Context, userID, targetID string) error
}

// FriendRequestRepo is a sqlx implementation of FriendRequestRepository.
type FriendRequestRepo struct {
	db *sqlx.DB
}

// NewFriendRequestRepo constructs a FriendRequestRepo.
func NewFriendRequestRepo(db *sqlx.DB) *FriendRequestRepo {
	return &FriendRequestRepo{db: db}
}

// Create stores a pending request unless one already exists in either
// direction, the users are already friends, or the pair is blocked.
func (r *FriendRequestRepo) Create(ctx context.Context, senderID, receiverID string) (models.FriendRequest, error) {
	var status string
	query := `SELECT status FROM friend_requests
        WHERE status IN ('pending', 'approved', 'blocked')
        AND ((sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1))
        LIMIT 1`
	err := r.db.GetContext(ctx, &status, query, senderID, receiverID)
	if err == nil {
		switch status {
		case models.RequestApproved:
			return models.FriendRequest{}, ErrAlreadyFriends
		case models.RequestBlocked:
			return models.FriendRequest{}, ErrBlocked
		default:
			return models.FriendRequest{}, ErrDuplicateRequest
		}
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.FriendRequest{}, err
	}

	var req models.FriendRequest
	err = r.db.QueryRowxContext(ctx, `INSERT INTO friend_requests (sender_id, receiver_id) VALUES ($1, $2)
        RETURNING id, sender_id, receiver_id, status, created_at`, senderID, receiverID).
		StructScan(&req)
	return req, err
}

// SetStatus approves or rejects a pending request; only the receiver may do
// either.
func (r *FriendRequestRepo) SetStatus(ctx context.Context, requestID int, receiverID, status string) (models.FriendRequest, error) {
	var req models.FriendRequest
	err := r.db.QueryRowxContext(ctx, `UPDATE friend_requests SET status=$3
        WHERE id=$1 AND receiver_id=$2 AND status='pending'
        RETURNING id, sender_id, receiver_id, status, created_at`, requestID, receiverID, status).
		StructScan(&req)
	if errors.Is(err, sql.ErrNoRows) {
		return models.FriendRequest{}, ErrRequestNotFound
	}
	return req, err
}

// Withdraw deletes a pending request; only the sender may withdraw.
func (r *FriendRequestRepo) Withdraw(ctx context.Context, requestID int, senderID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM friend_requests WHERE id=$1 AND sender_id=$2 AND status='pending'`, requestID, senderID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrRequestNotFound
	}
	return nil
}

// Incoming returns pending requests addressed to the user.
func (r *FriendRequestRepo) Incoming(ctx context.Context, userID string, page, limit int) ([]models.FriendRequest, error) {
	var reqs []models.FriendRequest
	err := r.db.SelectContext(ctx, &reqs, `SELECT id, sender_id, receiver_id, status, created_at FROM friend_requests
        WHERE receiver_id=$1 AND status='pending'
        ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, pageLimit(limit), pageOffset(page, limit))
	return reqs, err
}

// Pending returns requests the user has sent that await an answer.
func (r *FriendRequestRepo) Pending(ctx context.Context, userID string, page, limit int) ([]models.FriendRequest, error) {
	var reqs []models.FriendRequest
	err := r.db.SelectContext(ctx, &reqs, `SELECT id, sender_id, receiver_id, status, created_at FROM friend_requests
        WHERE sender_id=$1 AND status='pending'
        ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, pageLimit(limit), pageOffset(page, limit))
	return reqs, err
}

// AreFriends checks for an approved request in either direction.
func (r *FriendRequestRepo) AreFriends(ctx context.Context, userA, userB string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM friend_requests
        WHERE status='approved'
        AND ((sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1)))`, userA, userB)
	return exists, err
}

// Friends lists the user's friends.
func (r *FriendRequestRepo) Friends(ctx context.Context, userID string, page, limit int) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `SELECT CASE WHEN sender_id=$1 THEN receiver_id ELSE sender_id END
        FROM friend_requests
        WHERE status='approved' AND (sender_id=$1 OR receiver_id=$1)
        ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, pageLimit(limit), pageOffset(page, limit))
	return ids, err
}

// Block turns an approved friendship into a blocked one and remembers the
// blocker. Only an existing friendship can be blocked.
func (r *FriendRequestRepo) Block(ctx context.Context, userID, targetID string) error {
	var status string
	query := `SELECT status FROM friend_requests
        WHERE status IN ('approved', 'blocked')
        AND ((sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1))
        LIMIT 1`
	err := r.db.GetContext(ctx, &status, query, userID, targetID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFriends
	}
	if err != nil {
		return err
	}
	if status == models.RequestBlocked {
		return ErrBlocked
	}

	_, err = r.db.ExecContext(ctx, `UPDATE friend_requests SET status='blocked', blocked_by=$1
        WHERE status='approved'
        AND ((sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1))`, userID, targetID)
	return err
}

// Unblock restores the friendship; only the user who blocked may unblock.
func (r *FriendRequestRepo) Unblock(ctx context.Context, userID, targetID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE friend_requests SET status='approved', blocked_by=NULL
        WHERE status='blocked' AND blocked_by=$1
        AND ((sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1))`, userID, targetID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrRequestNotFound
	}
	return nil
}

func pageLimit(limit int) int {
	if limit < 1 || limit > 100 {
		return 10
	}
	return limit
}

func pageOffset(page, limit int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * pageLimit(limit)
}
