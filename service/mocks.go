package service

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockChatClient is a mock implementation of ChatClient
type MockChatClient struct {
	mock.Mock
}

func (m *MockChatClient) PostMessage(ctx context.Context, channel, text string) error {
	args := m.Called(ctx, channel, text)
	return args.Error(0)
}

func (m *MockChatClient) AddReaction(ctx context.Context, name, channel, timestamp string) error {
	args := m.Called(ctx, name, channel, timestamp)
	return args.Error(0)
}

func (m *MockChatClient) GetPermalink(ctx context.Context, channel, timestamp string) (string, error) {
	args := m.Called(ctx, channel, timestamp)
	return args.String(0), args.Error(1)
}

// MockUserResolver is a mock implementation of UserResolver
type MockUserResolver struct {
	mock.Mock
}

func (m *MockUserResolver) ResolveDisplayName(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}
