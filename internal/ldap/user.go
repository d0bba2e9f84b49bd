package ldap

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/go-hclog"
)

// userAccountControl flags used when creating accounts.
const (
	UACAccountDisabled int32 = 0x00000002
	UACNormalAccount   int32 = 0x00000200

	// UACDisabledUser is written on creation, before a password exists.
	UACDisabledUser = UACNormalAccount | UACAccountDisabled
	// UACEnabledUser is written once the password is set.
	UACEnabledUser = UACNormalAccount
)

// userFilter selects user objects, excluding computer accounts.
const userFilter = "(&(objectClass=user)(!(objectClass=computer)))"

// User is a flat view of an Active Directory user. A nil field means the
// attribute is absent on the entry.
type User struct {
	SAMAccountName    *string `json:"sAMAccountName,omitempty"`
	DistinguishedName *string `json:"distinguishedName,omitempty"`
	GivenName         *string `json:"givenName,omitempty"`
	Surname           *string `json:"sn,omitempty"`
	DisplayName       *string `json:"displayName,omitempty"`
	Description       *string `json:"description,omitempty"`
	Office            *string `json:"physicalDeliveryOfficeName,omitempty"`
	TelephoneNumber   *string `json:"telephoneNumber,omitempty"`
	Email             *string `json:"mail,omitempty"`
	WebPage           *string `json:"wWWHomePage,omitempty"`
	Initials          *string `json:"initials,omitempty"`
	Title             *string `json:"title,omitempty"`

	// Read-only.
	ObjectGUID string `json:"objectGUID,omitempty"`
	ObjectSID  string `json:"objectSid,omitempty"`
}

// UserAttribute binds a User field to its directory attribute.
type UserAttribute struct {
	Name    string // LDAP attribute name
	Label   string // human-readable name
	Mutable bool   // editable through a modify request
	field   func(u *User) **string
}

// Get returns the field value on u.
func (a UserAttribute) Get(u *User) *string {
	return *a.field(u)
}

// Set assigns the field value on u.
func (a UserAttribute) Set(u *User, value *string) {
	*a.field(u) = value
}

var userAttributes = []UserAttribute{
	{Name: "sAMAccountName", Label: "Username", field: func(u *User) **string { return &u.SAMAccountName }},
	{Name: "distinguishedName", Label: "Distinguished name", field: func(u *User) **string { return &u.DistinguishedName }},
	{Name: "givenName", Label: "Given name", Mutable: true, field: func(u *User) **string { return &u.GivenName }},
	{Name: "sn", Label: "Surname", Mutable: true, field: func(u *User) **string { return &u.Surname }},
	{Name: "displayName", Label: "Display name", Mutable: true, field: func(u *User) **string { return &u.DisplayName }},
	{Name: "description", Label: "Description", Mutable: true, field: func(u *User) **string { return &u.Description }},
	{Name: "physicalDeliveryOfficeName", Label: "Office", Mutable: true, field: func(u *User) **string { return &u.Office }},
	{Name: "telephoneNumber", Label: "Telephone", Mutable: true, field: func(u *User) **string { return &u.TelephoneNumber }},
	{Name: "mail", Label: "E-mail", Mutable: true, field: func(u *User) **string { return &u.Email }},
	{Name: "wWWHomePage", Label: "Web page", Mutable: true, field: func(u *User) **string { return &u.WebPage }},
	{Name: "initials", Label: "Initials", Mutable: true, field: func(u *User) **string { return &u.Initials }},
	{Name: "title", Label: "Title", Mutable: true, field: func(u *User) **string { return &u.Title }},
}

// UserAttributes returns every mapped attribute in display order.
func UserAttributes() []UserAttribute {
	out := make([]UserAttribute, len(userAttributes))
	copy(out, userAttributes)
	return out
}

// MutableUserAttributes returns the attributes a save may change.
func MutableUserAttributes() []UserAttribute {
	var out []UserAttribute
	for _, attr := range userAttributes {
		if attr.Mutable {
			out = append(out, attr)
		}
	}
	return out
}

// Clone returns a copy of u that shares no pointers with it.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}

	clone := &User{ObjectGUID: u.ObjectGUID, ObjectSID: u.ObjectSID}
	for _, attr := range userAttributes {
		if v := attr.Get(u); v != nil {
			s := *v
			attr.Set(clone, &s)
		}
	}
	return clone
}

// UserReader handles read-only Active Directory user operations.
type UserReader struct {
	client  Client
	baseDN  string
	timeout time.Duration
	logger  hclog.Logger
}

// NewUserReader creates a new user reader instance.
func NewUserReader(client Client, baseDN string, logger hclog.Logger) *UserReader {
	return &UserReader{
		client:  client,
		baseDN:  baseDN,
		timeout: 30 * time.Second,
		logger:  loggerOrNull(logger),
	}
}

// SetTimeout sets the LDAP operation timeout.
func (ur *UserReader) SetTimeout(timeout time.Duration) {
	ur.timeout = timeout
}

// GetUserBySAM retrieves a user by SAM account name with a subtree search of
// the base DN. The first match wins.
func (ur *UserReader) GetUserBySAM(ctx context.Context, samAccountName string) (*User, error) {
	if samAccountName == "" {
		return nil, fmt.Errorf("SAM account name cannot be empty")
	}

	req := &SearchRequest{
		BaseDN:     ur.baseDN,
		Scope:      ScopeWholeSubtree,
		Filter:     fmt.Sprintf("(&(objectClass=user)(sAMAccountName=%s))", ldap.EscapeFilter(samAccountName)),
		Attributes: userSearchAttributes(),
		SizeLimit:  1,
		TimeLimit:  ur.timeout,
	}

	result, err := ur.client.Search(ctx, req)
	if err != nil {
		return nil, WrapError("get_user_by_sam", err)
	}

	if len(result.Entries) == 0 {
		return nil, newNotFoundError("get_user_by_sam", fmt.Sprintf("user not found with SAM account name: %s", samAccountName))
	}

	ur.logger.Debug("User found", "sam_account_name", samAccountName, "dn", result.Entries[0].DN)
	return entryToUser(result.Entries[0]), nil
}

// ListUsers returns the users anywhere below containerDN.
func (ur *UserReader) ListUsers(ctx context.Context, containerDN string) ([]*User, error) {
	if err := ValidateDN(containerDN); err != nil {
		return nil, fmt.Errorf("invalid container DN: %w", err)
	}

	req := &SearchRequest{
		BaseDN:     containerDN,
		Scope:      ScopeWholeSubtree,
		Filter:     userFilter,
		Attributes: []string{"sAMAccountName", "displayName", "distinguishedName"},
		TimeLimit:  ur.timeout,
	}

	result, err := ur.client.SearchWithPaging(ctx, req)
	if err != nil {
		return nil, WrapError("list_users", err)
	}

	users := make([]*User, 0, len(result.Entries))
	for _, entry := range result.Entries {
		users = append(users, entryToUser(entry))
	}

	ur.logger.Debug("Listed users", "container_dn", containerDN, "count", len(users))
	return users, nil
}

// SAMAccountNameExists reports whether any user in the base DN subtree has samAccountName.
func (ur *UserReader) SAMAccountNameExists(ctx context.Context, samAccountName string) (bool, error) {
	return ur.exists(ctx, "check_sam_account_name", ur.baseDN, ScopeWholeSubtree,
		fmt.Sprintf("(&(objectClass=user)(sAMAccountName=%s))", ldap.EscapeFilter(samAccountName)))
}

// CommonNameExistsIn reports whether a user named cn sits directly in containerDN.
func (ur *UserReader) CommonNameExistsIn(ctx context.Context, containerDN, cn string) (bool, error) {
	return ur.exists(ctx, "check_common_name", containerDN, ScopeSingleLevel,
		fmt.Sprintf("(&(objectClass=user)(cn=%s))", ldap.EscapeFilter(cn)))
}

func (ur *UserReader) exists(ctx context.Context, operation, baseDN string, scope SearchScope, filter string) (bool, error) {
	result, err := ur.client.Search(ctx, &SearchRequest{
		BaseDN:     baseDN,
		Scope:      scope,
		Filter:     filter,
		Attributes: []string{"distinguishedName"},
		SizeLimit:  1,
		TimeLimit:  ur.timeout,
	})
	if err != nil {
		return false, WrapError(operation, err)
	}
	return len(result.Entries) > 0, nil
}

// entryToUser converts an LDAP entry to a User. Absent attributes stay nil.
func entryToUser(entry *ldap.Entry) *User {
	user := &User{}

	for _, attr := range userAttributes {
		if values := entry.GetEqualFoldAttributeValues(attr.Name); len(values) > 0 {
			v := values[0]
			attr.Set(user, &v)
		}
	}

	if entry.DN != "" {
		dn := entry.DN
		user.DistinguishedName = &dn
	}

	user.ObjectGUID = extractGUID(entry)
	user.ObjectSID = extractSID(entry)

	return user
}

// userSearchAttributes returns the attributes fetched for a full user record.
func userSearchAttributes() []string {
	attrs := make([]string, 0, len(userAttributes)+2)
	for _, attr := range userAttributes {
		attrs = append(attrs, attr.Name)
	}
	return append(attrs, "objectGUID", "objectSid")
}

// NewUser describes an account to create.
type NewUser struct {
	SAMAccountName string
	GivenName      string
	Surname        string
	DisplayName    string
	Description    string
	Office         string
	Telephone      string
	Email          string
	WebPage        string
	Password       string
	ContainerDN    string
}

// UserWriter creates user accounts.
type UserWriter struct {
	client Client
	reader *UserReader
	baseDN string
	logger hclog.Logger
}

// NewUserWriter creates a new user writer instance.
func NewUserWriter(client Client, baseDN string, logger hclog.Logger) *UserWriter {
	logger = loggerOrNull(logger)
	return &UserWriter{
		client: client,
		reader: NewUserReader(client, baseDN, logger),
		baseDN: baseDN,
		logger: logger,
	}
}

// CreateUser adds a disabled account named by DisplayName in ContainerDN,
// sets its password and then enables it. It refuses to create a duplicate
// common name in the container or a duplicate SAM account name in the domain.
func (uw *UserWriter) CreateUser(ctx context.Context, nu *NewUser) (*User, error) {
	if nu == nil {
		return nil, fmt.Errorf("new user cannot be nil")
	}

	dn := fmt.Sprintf("CN=%s,%s", EscapeDNValue(nu.DisplayName), nu.ContainerDN)
	if err := ValidateDN(dn); err != nil {
		return nil, NewLDAPError("create_user", err)
	}

	exists, err := uw.reader.CommonNameExistsIn(ctx, nu.ContainerDN, nu.DisplayName)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, newConflictError("create_user",
			fmt.Sprintf("a user named %s already exists in %s", nu.DisplayName, nu.ContainerDN), dn)
	}

	exists, err = uw.reader.SAMAccountNameExists(ctx, nu.SAMAccountName)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, newConflictError("create_user",
			fmt.Sprintf("a user with SAM account name %s already exists in the domain", nu.SAMAccountName), "")
	}

	domain, err := DomainFromBaseDN(uw.baseDN)
	if err != nil {
		return nil, NewLDAPError("create_user", fmt.Errorf("cannot derive UPN suffix: %w", err))
	}

	attrs := map[string][]string{
		"objectClass":        {"top", "person", "organizationalPerson", "user"},
		"cn":                 {nu.DisplayName},
		"sAMAccountName":     {nu.SAMAccountName},
		"userPrincipalName":  {nu.SAMAccountName + "@" + domain},
		"givenName":          {nu.GivenName},
		"sn":                 {nu.Surname},
		"displayName":        {nu.DisplayName},
		"userAccountControl": {strconv.Itoa(int(UACDisabledUser))},
	}
	for name, value := range map[string]string{
		"description":                nu.Description,
		"physicalDeliveryOfficeName": nu.Office,
		"telephoneNumber":            nu.Telephone,
		"mail":                       nu.Email,
		"wWWHomePage":                nu.WebPage,
	} {
		if value != "" {
			attrs[name] = []string{value}
		}
	}

	if err := uw.client.Add(ctx, &AddRequest{DN: dn, Attributes: attrs}); err != nil {
		return nil, WrapError("create_user", err)
	}
	uw.logger.Info("User entry created", "dn", dn, "sam_account_name", nu.SAMAccountName)

	if err := uw.SetPassword(ctx, dn, nu.Password); err != nil {
		return nil, uw.rollbackCreate(ctx, dn, err)
	}

	if err := uw.client.Modify(ctx, &ModifyRequest{
		DN:                dn,
		ReplaceAttributes: map[string][]string{"userAccountControl": {strconv.Itoa(int(UACEnabledUser))}},
	}); err != nil {
		return nil, uw.rollbackCreate(ctx, dn, WrapError("enable_user", err))
	}
	uw.logger.Info("User account enabled", "dn", dn)

	created := &User{}
	for _, attr := range userAttributes {
		if values, ok := attrs[attr.Name]; ok {
			v := values[0]
			attr.Set(created, &v)
		}
	}
	created.DistinguishedName = &dn

	return created, nil
}

// SetTimeout sets the time limit of the lookups CreateUser runs.
func (uw *UserWriter) SetTimeout(timeout time.Duration) {
	uw.reader.SetTimeout(timeout)
}

// rollbackCreate deletes the disabled entry left by a failed CreateUser and
// returns cause. If the delete fails too, the error names the leftover entry.
func (uw *UserWriter) rollbackCreate(ctx context.Context, dn string, cause error) error {
	if err := uw.client.Delete(context.WithoutCancel(ctx), dn); err != nil {
		uw.logger.Error("Rolling back user entry failed", "dn", dn, "error", err)
		return fmt.Errorf("%w; disabled entry %s was left behind: %v", cause, dn, err)
	}
	uw.logger.Warn("User entry rolled back", "dn", dn, "error", cause)
	return cause
}

// UpdateUser applies changes to the entry at dn. An empty value clears the
// attribute; any other value replaces it. No request is sent when changes is
// empty.
func (uw *UserWriter) UpdateUser(ctx context.Context, dn string, changes map[string]string) error {
	if len(changes) == 0 {
		return nil
	}
	if err := ValidateDN(dn); err != nil {
		return NewLDAPError("update_user", err)
	}

	req := &ModifyRequest{DN: dn, ReplaceAttributes: map[string][]string{}}
	for name, value := range changes {
		if value == "" {
			req.ClearAttributes = append(req.ClearAttributes, name)
		} else {
			req.ReplaceAttributes[name] = []string{value}
		}
	}
	sort.Strings(req.ClearAttributes)

	if err := uw.client.Modify(ctx, req); err != nil {
		return WrapError("update_user", err)
	}

	uw.logger.Info("User updated", "dn", dn, "replaced", len(req.ReplaceAttributes), "cleared", len(req.ClearAttributes))
	return nil
}

// SetPassword replaces unicodePwd on the entry at dn. AD only accepts this
// over an encrypted connection.
func (uw *UserWriter) SetPassword(ctx context.Context, dn, password string) error {
	encoded, err := EncodePassword(password)
	if err != nil {
		return NewLDAPError("set_password", err)
	}

	if err := uw.client.Modify(ctx, &ModifyRequest{
		DN:                dn,
		ReplaceAttributes: map[string][]string{"unicodePwd": {encoded}},
	}); err != nil {
		return WrapError("set_password", err)
	}

	uw.logger.Debug("Password set", "dn", dn)
	return nil
}
