package ldap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, open func(ctx context.Context) (conn, error)) *client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.LDAPURLs = []string{"ldaps://dc1.example.com"}
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 2 * time.Millisecond
	return &client{config: cfg, logger: hclog.NewNullLogger(), open: open}
}

func openWith(c conn) func(ctx context.Context) (conn, error) {
	return func(context.Context) (conn, error) { return c, nil }
}

func TestNewClient(t *testing.T) {
	t.Run("requires a target", func(t *testing.T) {
		_, err := NewClient(DefaultConfig(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "either domain or LDAP URLs must be specified")
	})

	t.Run("does not dial", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.LDAPURLs = []string{"ldaps://dc1.example.com"}
		cfg.Username = "admin@example.com"
		cfg.Password = "secret"

		c, err := NewClient(cfg, hclog.NewNullLogger())
		require.NoError(t, err)
		assert.NoError(t, c.Close())
	})

	t.Run("rejects negative retries", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Domain = "example.com"
		cfg.MaxRetries = -1

		_, err := NewClient(cfg, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "MaxRetries")
	})
}

func TestClient_Connect(t *testing.T) {
	mc := &mockConn{}
	mc.On("Search", mock.MatchedBy(func(req *ldap.SearchRequest) bool {
		return req.BaseDN == "" && req.Scope == ldap.ScopeBaseObject
	})).Return(&ldap.SearchResult{Entries: []*ldap.Entry{
		ldap.NewEntry("", map[string][]string{"defaultNamingContext": {"DC=example,DC=com"}}),
	}}, nil)
	mc.On("Close").Return(nil)

	c := newTestClient(t, openWith(mc))
	require.NoError(t, c.Connect(context.Background()))
	mc.AssertExpectations(t)
}

func TestClient_ConnectFailure(t *testing.T) {
	c := newTestClient(t, func(context.Context) (conn, error) {
		return nil, NewConnectionError("failed to connect to any server", true, errors.New("dial tcp: connection refused"))
	})

	err := c.Connect(context.Background())
	require.Error(t, err)

	var ldapErr *LDAPError
	require.ErrorAs(t, err, &ldapErr)
	assert.Equal(t, "connection_test", ldapErr.Operation)
	assert.Equal(t, ErrorCategoryConnection, ldapErr.Category)
}

func TestClient_Search(t *testing.T) {
	entry := ldap.NewEntry("CN=Jane Smith,OU=Staff,DC=example,DC=com", map[string][]string{
		"sAMAccountName": {"jsmith"},
	})

	mc := &mockConn{}
	mc.On("Search", mock.MatchedBy(func(req *ldap.SearchRequest) bool {
		return req.BaseDN == "DC=example,DC=com" &&
			req.Scope == ldap.ScopeWholeSubtree &&
			req.SizeLimit == 1 &&
			req.TimeLimit == 30 &&
			req.Filter == "(sAMAccountName=jsmith)"
	})).Return(&ldap.SearchResult{Entries: []*ldap.Entry{entry}}, nil)
	mc.On("Close").Return(nil)

	c := newTestClient(t, openWith(mc))
	result, err := c.Search(context.Background(), &SearchRequest{
		BaseDN:     "DC=example,DC=com",
		Scope:      ScopeWholeSubtree,
		Filter:     "(sAMAccountName=jsmith)",
		Attributes: []string{"sAMAccountName"},
		SizeLimit:  1,
		TimeLimit:  30 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	assert.True(t, result.HasMore)
	assert.Equal(t, entry, result.Entries[0])
	mc.AssertExpectations(t)
}

func TestClient_SearchSizeLimitExceeded(t *testing.T) {
	entry := ldap.NewEntry("CN=a,DC=example,DC=com", nil)

	mc := &mockConn{}
	mc.On("Search", mock.Anything).Return(
		&ldap.SearchResult{Entries: []*ldap.Entry{entry}},
		ldap.NewError(ldap.LDAPResultSizeLimitExceeded, errors.New("size limit exceeded")),
	)
	mc.On("Close").Return(nil)

	c := newTestClient(t, openWith(mc))
	result, err := c.Search(context.Background(), &SearchRequest{BaseDN: "DC=example,DC=com", Filter: "(cn=a)", SizeLimit: 1})
	require.NoError(t, err)
	assert.True(t, result.HasMore)
	assert.Len(t, result.Entries, 1)
}

func TestClient_SearchError(t *testing.T) {
	mc := &mockConn{}
	mc.On("Search", mock.Anything).Return(nil,
		ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("0000208D: NameErr")))
	mc.On("Close").Return(nil)

	c := newTestClient(t, openWith(mc))
	_, err := c.Search(context.Background(), &SearchRequest{BaseDN: "OU=Missing,DC=example,DC=com", Filter: "(objectClass=*)"})
	require.Error(t, err)
	assert.True(t, IsNotFoundError(err))
	mc.AssertCalled(t, "Close")
}

func TestClient_SearchNilRequest(t *testing.T) {
	c := newTestClient(t, func(context.Context) (conn, error) {
		t.Fatal("no connection expected")
		return nil, nil
	})

	_, err := c.Search(context.Background(), nil)
	assert.Error(t, err)
}

func TestClient_SearchWithPaging(t *testing.T) {
	entries := []*ldap.Entry{
		ldap.NewEntry("OU=A,DC=example,DC=com", nil),
		ldap.NewEntry("OU=B,DC=example,DC=com", nil),
	}

	mc := &mockConn{}
	mc.On("SearchWithPaging", mock.MatchedBy(func(req *ldap.SearchRequest) bool {
		return req.SizeLimit == 0 && req.Filter == "(objectClass=organizationalUnit)"
	}), uint32(pagingSize)).Return(&ldap.SearchResult{Entries: entries}, nil)
	mc.On("Close").Return(nil)

	c := newTestClient(t, openWith(mc))
	result, err := c.SearchWithPaging(context.Background(), &SearchRequest{
		BaseDN:    "DC=example,DC=com",
		Scope:     ScopeWholeSubtree,
		Filter:    "(objectClass=organizationalUnit)",
		SizeLimit: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.False(t, result.HasMore)
	mc.AssertExpectations(t)
}

func TestClient_Add(t *testing.T) {
	mc := &mockConn{}
	mc.On("Add", mock.MatchedBy(func(req *ldap.AddRequest) bool {
		if req.DN != "CN=Jane Smith,OU=Staff,DC=example,DC=com" || len(req.Attributes) != 2 {
			return false
		}
		return req.Attributes[0].Type == "objectClass" && req.Attributes[1].Type == "sAMAccountName"
	})).Return(nil)
	mc.On("Close").Return(nil)

	c := newTestClient(t, openWith(mc))
	err := c.Add(context.Background(), &AddRequest{
		DN: "CN=Jane Smith,OU=Staff,DC=example,DC=com",
		Attributes: map[string][]string{
			"sAMAccountName": {"jsmith"},
			"objectClass":    {"top", "user"},
		},
	})
	require.NoError(t, err)
	mc.AssertExpectations(t)
}

func TestClient_Delete(t *testing.T) {
	mc := &mockConn{}
	mc.On("Del", mock.MatchedBy(func(req *ldap.DelRequest) bool {
		return req.DN == "CN=Jane Smith,OU=Staff,DC=example,DC=com"
	})).Return(nil).Once()
	mc.On("Close").Return(nil)

	c := newTestClient(t, openWith(mc))
	require.NoError(t, c.Delete(context.Background(), "CN=Jane Smith,OU=Staff,DC=example,DC=com"))
	mc.AssertExpectations(t)

	assert.Error(t, c.Delete(context.Background(), ""))
}

func TestClient_Modify(t *testing.T) {
	t.Run("empty delta opens no connection", func(t *testing.T) {
		c := newTestClient(t, func(context.Context) (conn, error) {
			t.Fatal("no connection expected")
			return nil, nil
		})

		err := c.Modify(context.Background(), &ModifyRequest{DN: "CN=x,DC=example,DC=com"})
		assert.NoError(t, err)
	})

	t.Run("replace and clear", func(t *testing.T) {
		var got *ldap.ModifyRequest
		mc := &mockConn{}
		mc.On("Modify", mock.Anything).Run(func(args mock.Arguments) {
			got = args.Get(0).(*ldap.ModifyRequest)
		}).Return(nil)
		mc.On("Close").Return(nil)

		c := newTestClient(t, openWith(mc))
		err := c.Modify(context.Background(), &ModifyRequest{
			DN: "CN=Jane Smith,OU=Staff,DC=example,DC=com",
			ReplaceAttributes: map[string][]string{
				"title": {"Engineer"},
				"mail":  {"jane@example.com"},
			},
			ClearAttributes: []string{"telephoneNumber"},
		})
		require.NoError(t, err)
		require.NotNil(t, got)

		require.Len(t, got.Changes, 3)
		assert.Equal(t, "mail", got.Changes[0].Modification.Type)
		assert.Equal(t, "title", got.Changes[1].Modification.Type)
		assert.Equal(t, "telephoneNumber", got.Changes[2].Modification.Type)
		for _, change := range got.Changes {
			assert.Equal(t, uint(ldap.ReplaceAttribute), change.Operation)
		}
		assert.Empty(t, got.Changes[2].Modification.Vals)
	})

	t.Run("missing DN", func(t *testing.T) {
		c := newTestClient(t, nil)
		err := c.Modify(context.Background(), &ModifyRequest{ClearAttributes: []string{"title"}})
		assert.Error(t, err)
	})
}

func TestClient_Closed(t *testing.T) {
	c := newTestClient(t, func(context.Context) (conn, error) {
		t.Fatal("no connection expected")
		return nil, nil
	})
	require.NoError(t, c.Close())

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client is closed")
}

func TestClient_WithRetry(t *testing.T) {
	t.Run("no retries by default", func(t *testing.T) {
		attempts := 0
		c := newTestClient(t, func(context.Context) (conn, error) {
			attempts++
			return nil, NewConnectionError("failed to connect", true, errors.New("timeout"))
		})

		err := c.Connect(context.Background())
		require.Error(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("retries retryable errors", func(t *testing.T) {
		mc := &mockConn{}
		mc.On("Search", mock.Anything).Return(&ldap.SearchResult{}, nil)
		mc.On("Close").Return(nil)

		attempts := 0
		c := newTestClient(t, func(context.Context) (conn, error) {
			attempts++
			if attempts == 1 {
				return nil, NewConnectionError("failed to connect", true, errors.New("timeout"))
			}
			return mc, nil
		})
		c.config.MaxRetries = 2

		require.NoError(t, c.Connect(context.Background()))
		assert.Equal(t, 2, attempts)
	})

	t.Run("does not retry permanent errors", func(t *testing.T) {
		attempts := 0
		c := newTestClient(t, func(context.Context) (conn, error) {
			attempts++
			return nil, NewLDAPError("bind", ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("bad password")))
		})
		c.config.MaxRetries = 3

		err := c.Connect(context.Background())
		require.Error(t, err)
		assert.True(t, IsAuthenticationError(err))
		assert.Equal(t, 1, attempts)
	})
}
