package service

import (
	"errors"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/mock"

	"github.com/isometry/admanager/internal/ldap"
	"github.com/isometry/admanager/internal/ldap/ldaptest"
)

// MockClient is the shared ldap.Client mock.
type MockClient = ldaptest.MockClient

const (
	testBaseDN = "DC=example,DC=com"
	testUserDN = "CN=Jane Smith,OU=Staff,DC=example,DC=com"
)

func results(entries ...*goldap.Entry) *ldap.SearchResult {
	return &ldap.SearchResult{Entries: entries, Total: len(entries)}
}

func janeEntry() *goldap.Entry {
	return goldap.NewEntry(testUserDN, map[string][]string{
		"sAMAccountName":  {"jsmith"},
		"givenName":       {"Jane"},
		"sn":              {"Smith"},
		"displayName":     {"Jane Smith"},
		"telephoneNumber": {"+1 (555) 123-4567"},
	})
}

// lookedUp returns a record as produced by a successful lookup.
func lookedUp() *ldap.User {
	return &ldap.User{
		SAMAccountName:    ptr("jsmith"),
		DistinguishedName: ptr(testUserDN),
		GivenName:         ptr("Jane"),
		Surname:           ptr("Smith"),
		DisplayName:       ptr("Jane Smith"),
		Title:             ptr("Engineer"),
	}
}

// existingOU answers the base-scope lookup of the target OU.
func existingOU(mc *MockClient, dn string) {
	mc.On("Search", mock.Anything, mock.MatchedBy(func(req *ldap.SearchRequest) bool {
		return req.Scope == ldap.ScopeBaseObject && req.BaseDN == dn
	})).Return(results(goldap.NewEntry(dn, map[string][]string{"ou": {"Staff"}})), nil).Once()
}

func ptr(s string) *string {
	return &s
}

func connectionRefused() error {
	return ldap.NewConnectionError("failed to connect to any server", true,
		ldap.NewLDAPError("dial", errors.New("dial tcp 192.0.2.10:636: connect: connection refused")))
}

func ldapResult(code uint16, msg string) error {
	return ldap.NewLDAPError("modify", goldap.NewError(code, errors.New(msg)))
}
