package chunkstore_test

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/duracloud/duracloud-sub013/pkg/chunkstore"
)

// mockStore drains every Put body so the writer sees the bytes consumed
type mockStore struct {
	mock.Mock
}

func (m *mockStore) Put(ctx context.Context, container, objectID string, params chunkstore.PutParams, r io.Reader) (string, error) {
	_, _ = io.Copy(io.Discard, r)
	args := m.Called(container, objectID)
	return args.String(0), args.Error(1)
}

func (m *mockStore) Get(ctx context.Context, container, objectID string) (*chunkstore.Object, error) {
	args := m.Called(container, objectID)
	obj, _ := args.Get(0).(*chunkstore.Object)
	return obj, args.Error(1)
}

func (m *mockStore) GetProperties(ctx context.Context, container, objectID string) (chunkstore.Properties, error) {
	args := m.Called(container, objectID)
	props, _ := args.Get(0).(chunkstore.Properties)
	return props, args.Error(1)
}

func (m *mockStore) List(ctx context.Context, container, prefix string) ([]string, error) {
	args := m.Called(container, prefix)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func (m *mockStore) Delete(ctx context.Context, container, objectID string) error {
	return m.Called(container, objectID).Error(0)
}

func (m *mockStore) Copy(ctx context.Context, srcContainer, srcID, dstContainer, dstID string) error {
	return m.Called(srcContainer, srcID, dstContainer, dstID).Error(0)
}
