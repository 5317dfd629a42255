package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
	"messenger-service/internal/ws"
)

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) CreateDirectChat(ctx context.Context, userA, userB string) (models.Conversation, error) {
	args := m.Called(ctx, userA, userB)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) CreateGroupChat(ctx context.Context, creator, name, description string, memberIDs []string) (models.Conversation, error) {
	args := m.Called(ctx, creator, name, description, memberIDs)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) GetChat(ctx context.Context, chatID int) (models.Conversation, error) {
	args := m.Called(ctx, chatID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) Participants(ctx context.Context, chatID int) ([]string, error) {
	args := m.Called(ctx, chatID)
	var ids []string
	if val := args.Get(0); val != nil {
		ids = val.([]string)
	}
	return ids, args.Error(1)
}

func (m *ConversationRepositoryMock) IsParticipant(ctx context.Context, chatID int, userID string) (bool, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ConversationRepositoryMock) ListChats(ctx context.Context, userID string) ([]models.ChatSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.ChatSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ChatSummary)
	}
	return list, args.Error(1)
}

func (m *ConversationRepositoryMock) AddParticipants(ctx context.Context, chatID int, userIDs []string) error {
	args := m.Called(ctx, chatID, userIDs)
	return args.Error(0)
}

func (m *ConversationRepositoryMock) RemoveParticipant(ctx context.Context, chatID int, userID string) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

func (m *ConversationRepositoryMock) ReassignCreator(ctx context.Context, chatID int, leavingID string) error {
	args := m.Called(ctx, chatID, leavingID)
	return args.Error(0)
}

func (m *ConversationRepositoryMock) UpdateGroupMeta(ctx context.Context, chatID int, name, description string) error {
	args := m.Called(ctx, chatID, name, description)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) AppendMessage(ctx context.Context, chatID int, senderID, body string, attachments []models.Attachment) (models.Message, error) {
	args := m.Called(ctx, chatID, senderID, body, attachments)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListMessages(ctx context.Context, chatID, page, limit int) ([]models.Message, error) {
	args := m.Called(ctx, chatID, page, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, chatID int, readerID string) ([]int, error) {
	args := m.Called(ctx, chatID, readerID)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

type FriendRequestRepositoryMock struct {
	mock.Mock
}

func (m *FriendRequestRepositoryMock) Create(ctx context.Context, senderID, receiverID string) (models.FriendRequest, error) {
	args := m.Called(ctx, senderID, receiverID)
	var req models.FriendRequest
	if val := args.Get(0); val != nil {
		req = val.(models.FriendRequest)
	}
	return req, args.Error(1)
}

func (m *FriendRequestRepositoryMock) SetStatus(ctx context.Context, requestID int, receiverID, status string) (models.FriendRequest, error) {
	args := m.Called(ctx, requestID, receiverID, status)
	var req models.FriendRequest
	if val := args.Get(0); val != nil {
		req = val.(models.FriendRequest)
	}
	return req, args.Error(1)
}

func (m *FriendRequestRepositoryMock) Withdraw(ctx context.Context, requestID int, senderID string) error {
	args := m.Called(ctx, requestID, senderID)
	return args.Error(0)
}

func (m *FriendRequestRepositoryMock) Incoming(ctx context.Context, userID string, page, limit int) ([]models.FriendRequest, error) {
	args := m.Called(ctx, userID, page, limit)
	var reqs []models.FriendRequest
	if val := args.Get(0); val != nil {
		reqs = val.([]models.FriendRequest)
	}
	return reqs, args.Error(1)
}

func (m *FriendRequestRepositoryMock) Pending(ctx context.Context, userID string, page, limit int) ([]models.FriendRequest, error) {
	args := m.Called(ctx, userID, page, limit)
	var reqs []models.FriendRequest
	if val := args.Get(0); val != nil {
		reqs = val.([]models.FriendRequest)
	}
	return reqs, args.Error(1)
}

func (m *FriendRequestRepositoryMock) AreFriends(ctx context.Context, userA, userB string) (bool, error) {
	args := m.Called(ctx, userA, userB)
	return args.Bool(0), args.Error(1)
}

func (m *FriendRequestRepositoryMock) Block(ctx context.Context, userID, targetID string) error {
	args := m.Called(ctx, userID, targetID)
	return args.Error(0)
}

func (m *FriendRequestRepositoryMock) Unblock(ctx context.Context, userID, targetID string) error {
	args := m.Called(ctx, userID, targetID)
	return args.Error(0)
}

func (m *FriendRequestRepositoryMock) Friends(ctx context.Context, userID string, page, limit int) ([]string, error) {
	args := m.Called(ctx, userID, page, limit)
	var ids []string
	if val := args.Get(0); val != nil {
		ids = val.([]string)
	}
	return ids, args.Error(1)
}

type DispatcherMock struct {
	mock.Mock
}

func (m *DispatcherMock) Deliver(event ws.Event, recipients []string) {
	m.Called(event, recipients)
}

type UploaderMock struct {
	mock.Mock
}

func (m *UploaderMock) Upload(ctx context.Context, filename string, r io.Reader) (models.Attachment, error) {
	args := m.Called(ctx, filename, r)
	var att models.Attachment
	if val := args.Get(0); val != nil {
		att = val.(models.Attachment)
	}
	return att, args.Error(1)
}

var _ repositories.ConversationRepository = (*ConversationRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.FriendRequestRepository = (*FriendRequestRepositoryMock)(nil)
