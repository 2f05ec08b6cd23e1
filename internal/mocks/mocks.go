package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"messaging-service/internal/models"
)

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) Create(ctx context.Context, user models.User) (models.User, error) {
	args := m.Called(ctx, user)
	var out models.User
	if val := args.Get(0); val != nil {
		out = val.(models.User)
	}
	return out, args.Error(1)
}

func (m *UserRepositoryMock) GetByID(ctx context.Context, id int) (models.User, error) {
	args := m.Called(ctx, id)
	var out models.User
	if val := args.Get(0); val != nil {
		out = val.(models.User)
	}
	return out, args.Error(1)
}

func (m *UserRepositoryMock) GetByUsername(ctx context.Context, username string) (models.User, error) {
	args := m.Called(ctx, username)
	var out models.User
	if val := args.Get(0); val != nil {
		out = val.(models.User)
	}
	return out, args.Error(1)
}

func (m *UserRepositoryMock) GetByEmail(ctx context.Context, email string) (models.User, error) {
	args := m.Called(ctx, email)
	var out models.User
	if val := args.Get(0); val != nil {
		out = val.(models.User)
	}
	return out, args.Error(1)
}

func (m *UserRepositoryMock) Exists(ctx context.Context, id int) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *UserRepositoryMock) Search(ctx context.Context, query string, limit int) ([]models.User, error) {
	args := m.Called(ctx, query, limit)
	var out []models.User
	if val := args.Get(0); val != nil {
		out = val.([]models.User)
	}
	return out, args.Error(1)
}

func (m *UserRepositoryMock) UpdateProfile(ctx context.Context, id int, displayName, about, avatarURL string) (models.User, error) {
	args := m.Called(ctx, id, displayName, about, avatarURL)
	var out models.User
	if val := args.Get(0); val != nil {
		out = val.(models.User)
	}
	return out, args.Error(1)
}

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) GetOrCreate(ctx context.Context, userX, userY int) (models.Conversation, error) {
	args := m.Called(ctx, userX, userY)
	var out models.Conversation
	if val := args.Get(0); val != nil {
		out = val.(models.Conversation)
	}
	return out, args.Error(1)
}

func (m *ConversationRepositoryMock) GetForParticipant(ctx context.Context, conversationID, userID int) (models.Conversation, error) {
	args := m.Called(ctx, conversationID, userID)
	var out models.Conversation
	if val := args.Get(0); val != nil {
		out = val.(models.Conversation)
	}
	return out, args.Error(1)
}

func (m *ConversationRepositoryMock) ListForUser(ctx context.Context, userID, limit int) ([]models.ConversationSummary, error) {
	args := m.Called(ctx, userID, limit)
	var out []models.ConversationSummary
	if val := args.Get(0); val != nil {
		out = val.([]models.ConversationSummary)
	}
	return out, args.Error(1)
}

func (m *ConversationRepositoryMock) IsParticipant(ctx context.Context, conversationID, userID int) (bool, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Bool(0), args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Send(ctx context.Context, conversationID, senderID int, content string, attachments []models.AttachmentInput) (models.Message, error) {
	args := m.Called(ctx, conversationID, senderID, content, attachments)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) SendDirect(ctx context.Context, senderID, recipientID int, content string) (models.Message, error) {
	args := m.Called(ctx, senderID, recipientID, content)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) Page(ctx context.Context, conversationID, requesterID, page, size int) ([]models.Message, error) {
	args := m.Called(ctx, conversationID, requesterID, page, size)
	var out []models.Message
	if val := args.Get(0); val != nil {
		out = val.([]models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) Before(ctx context.Context, conversationID, requesterID, messageID, limit int) ([]models.Message, error) {
	args := m.Called(ctx, conversationID, requesterID, messageID, limit)
	var out []models.Message
	if val := args.Get(0); val != nil {
		out = val.([]models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) After(ctx context.Context, conversationID, requesterID, messageID int) ([]models.Message, error) {
	args := m.Called(ctx, conversationID, requesterID, messageID)
	var out []models.Message
	if val := args.Get(0); val != nil {
		out = val.([]models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, conversationID, userID int, messageIDs []int) (int, error) {
	args := m.Called(ctx, conversationID, userID, messageIDs)
	return args.Int(0), args.Error(1)
}

func (m *MessageRepositoryMock) MarkDelivered(ctx context.Context, messageID, userID int) (bool, error) {
	args := m.Called(ctx, messageID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MessageRepositoryMock) SoftDelete(ctx context.Context, messageID, userID int) (bool, error) {
	args := m.Called(ctx, messageID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MessageRepositoryMock) Get(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) GetAttachment(ctx context.Context, attachmentID int) (models.Attachment, error) {
	args := m.Called(ctx, attachmentID)
	var out models.Attachment
	if val := args.Get(0); val != nil {
		out = val.(models.Attachment)
	}
	return out, args.Error(1)
}

type FriendshipRepositoryMock struct {
	mock.Mock
}

func (m *FriendshipRepositoryMock) SendRequest(ctx context.Context, senderID, receiverID int) (models.FriendRequest, error) {
	args := m.Called(ctx, senderID, receiverID)
	var out models.FriendRequest
	if val := args.Get(0); val != nil {
		out = val.(models.FriendRequest)
	}
	return out, args.Error(1)
}

func (m *FriendshipRepositoryMock) Accept(ctx context.Context, requestID, userID int) (models.Friendship, error) {
	args := m.Called(ctx, requestID, userID)
	var out models.Friendship
	if val := args.Get(0); val != nil {
		out = val.(models.Friendship)
	}
	return out, args.Error(1)
}

func (m *FriendshipRepositoryMock) Reject(ctx context.Context, requestID, userID int) (models.FriendRequest, error) {
	args := m.Called(ctx, requestID, userID)
	var out models.FriendRequest
	if val := args.Get(0); val != nil {
		out = val.(models.FriendRequest)
	}
	return out, args.Error(1)
}

func (m *FriendshipRepositoryMock) ListReceived(ctx context.Context, userID int) ([]models.FriendRequest, error) {
	args := m.Called(ctx, userID)
	var out []models.FriendRequest
	if val := args.Get(0); val != nil {
		out = val.([]models.FriendRequest)
	}
	return out, args.Error(1)
}

func (m *FriendshipRepositoryMock) ListSent(ctx context.Context, userID int) ([]models.FriendRequest, error) {
	args := m.Called(ctx, userID)
	var out []models.FriendRequest
	if val := args.Get(0); val != nil {
		out = val.([]models.FriendRequest)
	}
	return out, args.Error(1)
}

func (m *FriendshipRepositoryMock) ListFriends(ctx context.Context, userID int) ([]models.FriendEntry, error) {
	args := m.Called(ctx, userID)
	var out []models.FriendEntry
	if val := args.Get(0); val != nil {
		out = val.([]models.FriendEntry)
	}
	return out, args.Error(1)
}

func (m *FriendshipRepositoryMock) CheckRelationship(ctx context.Context, userA, userB int) (string, error) {
	args := m.Called(ctx, userA, userB)
	return args.String(0), args.Error(1)
}

func (m *FriendshipRepositoryMock) Remove(ctx context.Context, userID, friendID int) error {
	args := m.Called(ctx, userID, friendID)
	return args.Error(0)
}
