package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messenger-service/internal/mocks"
	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
)

func setupGroupRouter(handler *GroupHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", "alice")
		c.Next()
	})
	r.POST("/groups", handler.CreateGroup)
	r.POST("/groups/:chat_id/members", handler.AddMembers)
	r.DELETE("/groups/:chat_id/members/:user_id", handler.RemoveMember)
	r.POST("/groups/:chat_id/leave", handler.LeaveGroup)
	r.PATCH("/groups/:chat_id", handler.UpdateGroup)
	return r
}

func groupOwnedBy(id int, creator string) models.Conversation {
	return models.Conversation{ID: id, IsGroup: true, CreatorID: &creator}
}

func TestCreateGroupSuccess(t *testing.T) {
	chatRepo := new(mocks.ConversationRepositoryMock)
	handler := NewGroupHandler(chatRepo, nil)
	router := setupGroupRouter(handler)

	chatRepo.On("CreateGroupChat", mock.Anything, "alice", "team", "", []string{"bob", "carol"}).
		Return(groupOwnedBy(5, "alice"), nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/groups", bytes.NewBufferString(`{"name":"team","member_ids":["bob","carol"]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	chatRepo.AssertExpectations(t)
}

func TestCreateGroupInvalidBody(t *testing.T) {
	handler := NewGroupHandler(new(mocks.ConversationRepositoryMock), nil)
	router := setupGroupRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/groups", bytes.NewBufferString(`{"name":5}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateGroupSizeRejected(t *testing.T) {
	chatRepo := new(mocks.ConversationRepositoryMock)
	handler := NewGroupHandler(chatRepo, nil)
	router := setupGroupRouter(handler)

	chatRepo.On("CreateGroupChat", mock.Anything, "alice", "solo", "", ([]string)(nil)).
		Return(models.Conversation{}, repositories.ErrGroupSize).Once()

	req := httptest.NewRequest(http.MethodPost, "/groups", bytes.NewBufferString(`{"name":"solo"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	chatRepo.AssertExpectations(t)
}

func TestAddMembersSuccess(t *testing.T) {
	chatRepo := new(mocks.ConversationRepositoryMock)
	handler := NewGroupHandler(chatRepo, nil)
	router := setupGroupRouter(handler)

	chatRepo.On("GetChat", mock.Anything, 5).Return(groupOwnedBy(5, "alice"), nil).Once()
	chatRepo.On("AddParticipants", mock.Anything, 5, []string{"dave"}).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/groups/5/members", bytes.NewBufferString(`{"member_ids":["dave"]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	chatRepo.AssertExpectations(t)
}

func TestAddMembersNotCreator(t *testing.T) {
	chatRepo := new(mocks.ConversationRepositoryMock)
	handler := NewGroupHandler(chatRepo, nil)
	router := setupGroupRouter(handler)

	chatRepo.On("GetChat", mock.Anything, 5).Return(groupOwnedBy(5, "bob"), nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/groups/5/members", bytes.NewBufferString(`{"member_ids":["dave"]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	chatRepo.AssertNotCalled(t, "AddParticipants", mock.Anything, mock.Anything, mock.Anything)
}

func TestAddMembersOverCapacity(t *testing.T) {
	chatRepo := new(mocks.ConversationRepositoryMock)
	handler := NewGroupHandler(chatRepo, nil)
	router := setupGroupRouter(handler)

	chatRepo.On("GetChat", mock.Anything, 5).Return(groupOwnedBy(5, "alice"), nil).Once()
	chatRepo.On("AddParticipants", mock.Anything, 5, []string{"dave"}).Return(repositories.ErrGroupSize).Once()

	req := httptest.NewRequest(http.MethodPost, "/groups/5/members", bytes.NewBufferString(`{"member_ids":["dave"]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	chatRepo.AssertExpectations(t)
}

func TestAddMembersNotAGroup(t *testing.T) {
	chatRepo := new(mocks.ConversationRepositoryMock)
	handler := NewGroupHandler(chatRepo, nil)
	router := setupGroupRouter(handler)

	chatRepo.On("GetChat", mock.Anything, 5).Return(models.Conversation{ID: 5, IsGroup: false}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/groups/5/members", bytes.NewBufferString(`{"member_ids":["dave"]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	chatRepo.AssertNotCalled(t, "AddParticipants", mock.Anything, mock.Anything, mock.Anything)
}

func TestRemoveMemberSuccess(t *testing.T) {
	chatRepo := new(mocks.ConversationRepositoryMock)
	handler := NewGroupHandler(chatRepo, nil)
	router := setupGroupRouter(handler)

	chatRepo.On("GetChat", mock.Anything, 5).Return(groupOwnedBy(5, "alice"), nil).Once()
	chatRepo.On("RemoveParticipant", mock.Anything, 5, "bob").Return(nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/groups/5/members/bob", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	chatRepo.AssertExpectations(t)
}

func TestLeaveGroupAsCreator(t *testing.T) {
	chatRepo := new(mocks.ConversationRepositoryMock)
	handler := NewGroupHandler(chatRepo, nil)
	router := setupGroupRouter(handler)

	chatRepo.On("IsParticipant", mock.Anything, 5, "alice").Return(true, nil).Once()
	chatRepo.On("RemoveParticipant", mock.Anything, 5, "alice").Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/groups/5/leave", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	chatRepo.AssertExpectations(t)
}

func TestLeaveGroupNotMember(t *testing.T) {
	chatRepo := new(mocks.ConversationRepositoryMock)
	handler := NewGroupHandler(chatRepo, nil)
	router := setupGroupRouter(handler)

	chatRepo.On("IsParticipant", mock.Anything, 5, "alice").Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/groups/5/leave", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	chatRepo.AssertNotCalled(t, "RemoveParticipant", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateGroupSuccess(t *testing.T) {
	chatRepo := new(mocks.ConversationRepositoryMock)
	handler := NewGroupHandler(chatRepo, nil)
	router := setupGroupRouter(handler)

	chatRepo.On("GetChat", mock.Anything, 5).Return(groupOwnedBy(5, "alice"), nil).Once()
	chatRepo.On("UpdateGroupMeta", mock.Anything, 5, "renamed", "new purpose").Return(nil).Once()

	req := httptest.NewRequest(http.MethodPatch, "/groups/5", bytes.NewBufferString(`{"name":"renamed","description":"new purpose"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	chatRepo.AssertExpectations(t)
}

func TestUpdateGroupNotCreator(t *testing.T) {
	chatRepo := new(mocks.ConversationRepositoryMock)
	handler := NewGroupHandler(chatRepo, nil)
	router := setupGroupRouter(handler)

	chatRepo.On("GetChat", mock.Anything, 5).Return(groupOwnedBy(5, "bob"), nil).Once()

	req := httptest.NewRequest(http.MethodPatch, "/groups/5", bytes.NewBufferString(`{"name":"renamed"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	chatRepo.AssertNotCalled(t, "UpdateGroupMeta", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
