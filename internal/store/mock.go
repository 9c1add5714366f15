package store

import (
	"github.com/ncostello/go-messenger/internal/types"
	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	args := m.Called(params)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockRepository) GetAccountById(accountId int) (Account, error) {
	args := m.Called(accountId)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockRepository) GetAccountByUsername(username string) (Account, error) {
	args := m.Called(username)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockRepository) UpdateAccount(params UpdateAccountParams) (Account, error) {
	args := m.Called(params)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockRepository) SetBlocked(accountId int, blocked bool) error {
	args := m.Called(accountId, blocked)
	return args.Error(0)
}
func (m *MockRepository) AddFriend(accountId, friendId int) error {
	args := m.Called(accountId, friendId)
	return args.Error(0)
}
func (m *MockRepository) RemoveFriend(accountId, friendId int) error {
	args := m.Called(accountId, friendId)
	return args.Error(0)
}
func (m *MockRepository) IsFriend(userA, userB int) bool {
	args := m.Called(userA, userB)
	return args.Bool(0)
}
func (m *MockRepository) ListFriends(accountId int) ([]Account, error) {
	args := m.Called(accountId)
	return args.Get(0).([]Account), args.Error(1)
}
func (m *MockRepository) AppendPublic(from *int, text string, media *types.Media) (Message, error) {
	args := m.Called(from, text, media)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockRepository) AppendPrivate(from *int, to int, text string, media *types.Media) (Message, error) {
	args := m.Called(from, to, text, media)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockRepository) RecentPublic(limit int) ([]Message, error) {
	args := m.Called(limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockRepository) Conversation(userA, userB int) ([]Message, error) {
	args := m.Called(userA, userB)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}
