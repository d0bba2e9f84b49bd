// Package ldaptest provides a testify mock of ldap.Client.
package ldaptest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/isometry/admanager/internal/ldap"
)

// MockClient implements ldap.Client.
type MockClient struct {
	mock.Mock
}

var _ ldap.Client = (*MockClient)(nil)

func (m *MockClient) Connect(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockClient) Search(ctx context.Context, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ldap.SearchResult), args.Error(1)
}

func (m *MockClient) SearchWithPaging(ctx context.Context, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ldap.SearchResult), args.Error(1)
}

func (m *MockClient) Add(ctx context.Context, req *ldap.AddRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockClient) Delete(ctx context.Context, dn string) error {
	args := m.Called(ctx, dn)
	return args.Error(0)
}

func (m *MockClient) Modify(ctx context.Context, req *ldap.ModifyRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}
