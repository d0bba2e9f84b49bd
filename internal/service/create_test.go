package service

import (
	"context"
	"errors"
	"testing"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/isometry/admanager/internal/ldap"
)

func validInput() *CreateUserInput {
	return &CreateUserInput{
		SAMAccountName:       "jsmith",
		GivenName:            "Jane",
		Surname:              "Smith",
		Email:                "jane.smith@example.com",
		Password:             "Sup3rSecret!",
		PasswordConfirmation: "Sup3rSecret!",
		OrganizationalUnit:   "OU=Staff,DC=example,DC=com",
	}
}

func TestCreateUserInput_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(in *CreateUserInput)
		field  string
	}{
		{"missing username", func(in *CreateUserInput) { in.SAMAccountName = "" }, "username"},
		{"dotted username", func(in *CreateUserInput) { in.SAMAccountName = "jane.smith" }, "username"},
		{"missing given name", func(in *CreateUserInput) { in.GivenName = " " }, "given name"},
		{"missing surname", func(in *CreateUserInput) { in.Surname = "" }, "surname"},
		{"bad email", func(in *CreateUserInput) { in.Email = "a@b" }, "e-mail"},
		{"bad phone", func(in *CreateUserInput) { in.TelephoneNumber = "abc" }, "telephone number"},
		{"password mismatch", func(in *CreateUserInput) { in.PasswordConfirmation = "other" }, "password"},
		{"short password", func(in *CreateUserInput) { in.Password, in.PasswordConfirmation = "Ab1!", "Ab1!" }, "password"},
		{"missing ou", func(in *CreateUserInput) { in.OrganizationalUnit = "" }, "organizational unit"},
		{"malformed ou", func(in *CreateUserInput) { in.OrganizationalUnit = "Staff" }, "organizational unit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.modify(in)

			err := in.Validate()
			require.Error(t, err)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	assert.NoError(t, validInput().Validate())
}

func TestUserCreator_CreateUser(t *testing.T) {
	const wantDN = "CN=Smith Jane,OU=Staff,DC=example,DC=com"

	mc := &MockClient{}
	existingOU(mc, "OU=Staff,DC=example,DC=com")
	mc.On("Search", mock.Anything, mock.MatchedBy(func(req *ldap.SearchRequest) bool {
		return req.Scope == ldap.ScopeSingleLevel && req.Filter == "(&(objectClass=user)(cn=Smith Jane))"
	})).Return(results(), nil).Once()
	mc.On("Search", mock.Anything, mock.MatchedBy(func(req *ldap.SearchRequest) bool {
		return req.Scope == ldap.ScopeWholeSubtree && req.BaseDN == testBaseDN
	})).Return(results(), nil).Once()

	var added *ldap.AddRequest
	mc.On("Add", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		added = args.Get(1).(*ldap.AddRequest)
	}).Return(nil).Once()

	var modifies []*ldap.ModifyRequest
	mc.On("Modify", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		modifies = append(modifies, args.Get(1).(*ldap.ModifyRequest))
	}).Return(nil).Twice()

	user, err := NewUserCreator(mc, testBaseDN, SurnameFirst, nil).CreateUser(context.Background(), validInput())
	require.NoError(t, err)
	mc.AssertExpectations(t)

	require.NotNil(t, added)
	assert.Equal(t, wantDN, added.DN)
	assert.Equal(t, []string{"Smith Jane"}, added.Attributes["displayName"])
	assert.Equal(t, []string{"jsmith@example.com"}, added.Attributes["userPrincipalName"])
	assert.Equal(t, []string{"514"}, added.Attributes["userAccountControl"])

	require.Len(t, modifies, 2)
	assert.Contains(t, modifies[0].ReplaceAttributes, "unicodePwd")
	assert.Equal(t, []string{"512"}, modifies[1].ReplaceAttributes["userAccountControl"])

	assert.Equal(t, wantDN, *user.DistinguishedName)
	assert.Equal(t, "jsmith", *user.SAMAccountName)
}

func TestUserCreator_ExplicitDisplayName(t *testing.T) {
	mc := &MockClient{}
	existingOU(mc, "OU=Staff,DC=example,DC=com")
	mc.On("Search", mock.Anything, mock.Anything).Return(results(), nil)
	mc.On("Add", mock.Anything, mock.MatchedBy(func(req *ldap.AddRequest) bool {
		return req.DN == "CN=Smith\\, Jane,OU=Staff,DC=example,DC=com"
	})).Return(nil).Once()
	mc.On("Modify", mock.Anything, mock.Anything).Return(nil)

	in := validInput()
	in.DisplayName = "Smith, Jane"

	_, err := NewUserCreator(mc, testBaseDN, GivenFirst, nil).CreateUser(context.Background(), in)
	require.NoError(t, err)
	mc.AssertExpectations(t)
}

func TestUserCreator_Conflict(t *testing.T) {
	mc := &MockClient{}
	existingOU(mc, "OU=Staff,DC=example,DC=com")
	mc.On("Search", mock.Anything, mock.MatchedBy(func(req *ldap.SearchRequest) bool {
		return req.Scope == ldap.ScopeSingleLevel
	})).Return(results(), nil)
	mc.On("Search", mock.Anything, mock.MatchedBy(func(req *ldap.SearchRequest) bool {
		return req.Scope == ldap.ScopeWholeSubtree
	})).Return(results(goldap.NewEntry("CN=Jane Smith,OU=Former,DC=example,DC=com", nil)), nil)

	_, err := NewUserCreator(mc, testBaseDN, GivenFirst, nil).CreateUser(context.Background(), validInput())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
	mc.AssertNotCalled(t, "Add", mock.Anything, mock.Anything)
}

func TestUserCreator_InvalidInputSkipsNetwork(t *testing.T) {
	mc := &MockClient{}
	in := validInput()
	in.PasswordConfirmation = "nope"

	_, err := NewUserCreator(mc, testBaseDN, GivenFirst, nil).CreateUser(context.Background(), in)
	assert.ErrorIs(t, err, ErrValidation)
	mc.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)

	_, err = NewUserCreator(mc, testBaseDN, GivenFirst, nil).CreateUser(context.Background(), nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUserCreator_PasswordRejected(t *testing.T) {
	mc := &MockClient{}
	existingOU(mc, "OU=Staff,DC=example,DC=com")
	mc.On("Search", mock.Anything, mock.Anything).Return(results(), nil)
	mc.On("Add", mock.Anything, mock.Anything).Return(nil)
	mc.On("Modify", mock.Anything, mock.Anything).Return(
		ldapResult(goldap.LDAPResultUnwillingToPerform, "0000052D: password does not meet complexity requirements")).Once()

	mc.On("Delete", mock.Anything, "CN=Jane Smith,OU=Staff,DC=example,DC=com").Return(nil).Once()

	_, err := NewUserCreator(mc, testBaseDN, GivenFirst, nil).CreateUser(context.Background(), validInput())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	mc.AssertNumberOfCalls(t, "Modify", 1)
	mc.AssertExpectations(t)
}

func TestUserCreator_MissingOU(t *testing.T) {
	mc := &MockClient{}
	mc.On("Search", mock.Anything, mock.MatchedBy(func(req *ldap.SearchRequest) bool {
		return req.Scope == ldap.ScopeBaseObject
	})).Return(nil, ldap.NewLDAPError("search", goldap.NewError(goldap.LDAPResultNoSuchObject, errors.New("no such object")))).Once()

	_, err := NewUserCreator(mc, testBaseDN, GivenFirst, nil).CreateUser(context.Background(), validInput())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "OU=Staff,DC=example,DC=com")
	mc.AssertNotCalled(t, "Add", mock.Anything, mock.Anything)
}
