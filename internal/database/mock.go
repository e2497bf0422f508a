package database

import (
	"github.com/stretchr/testify/mock"
)

type MockRoomRepository struct {
	mock.Mock
}

func (m *MockRoomRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockRoomRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRoomRepository) GetRoom(id string) (Room, error) {
	args := m.Called(id)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRoomRepository) UpdateRoomMembers(id string, members []string, version int) (Room, error) {
	args := m.Called(id, members, version)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRoomRepository) DeleteRoom(id string) error {
	args := m.Called(id)
	return args.Error(0)
}
func (m *MockRoomRepository) ListActiveRooms(now int64) ([]Room, int, error) {
	args := m.Called(now)
	return args.Get(0).([]Room), args.Int(1), args.Error(2)
}
func (m *MockRoomRepository) CreateMessage(msg Message) error {
	args := m.Called(msg)
	return args.Error(0)
}
func (m *MockRoomRepository) GetMessages(roomId string) ([]Message, error) {
	args := m.Called(roomId)
	return args.Get(0).([]Message), args.Error(1)
}
