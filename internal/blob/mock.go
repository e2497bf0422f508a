package blob

import (
	"io"

	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Upload(objectName string, r io.Reader, contentType string) (string, error) {
	args := m.Called(objectName, r, contentType)
	return args.String(0), args.Error(1)
}
