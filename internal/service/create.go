package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/samber/oops"

	"github.com/isometry/admanager/internal/ldap"
)

// CreateUserInput is the user-creation form.
type CreateUserInput struct {
	SAMAccountName       string
	GivenName            string
	Surname              string
	DisplayName          string // composed from the name parts when empty
	Description          string
	Office               string
	TelephoneNumber      string
	Email                string
	WebPage              string
	Password             string
	PasswordConfirmation string
	OrganizationalUnit   string
}

// UserCreator creates enabled user accounts.
type UserCreator struct {
	writer *ldap.UserWriter
	ous    *ldap.OUManager
	order  NameOrder
	logger hclog.Logger
}

// NewUserCreator creates a creation service over client rooted at baseDN.
func NewUserCreator(client ldap.Client, baseDN string, order NameOrder, logger hclog.Logger) *UserCreator {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if order == "" {
		order = DefaultNameOrder
	}
	return &UserCreator{
		writer: ldap.NewUserWriter(client, baseDN, logger.Named("ldap")),
		ous:    ldap.NewOUManager(client, baseDN, logger.Named("ldap")),
		order:  order,
		logger: logger,
	}
}

// SetTimeout sets the time limit of the OU and duplicate lookups.
func (c *UserCreator) SetTimeout(timeout time.Duration) {
	c.writer.SetTimeout(timeout)
	c.ous.SetTimeout(timeout)
}

// Validate checks the form without touching the directory.
func (in *CreateUserInput) Validate() error {
	if err := validateNewSAMAccountName(in.SAMAccountName); err != nil {
		return err
	}
	if strings.TrimSpace(in.GivenName) == "" {
		return invalid("given name", "is required")
	}
	if strings.TrimSpace(in.Surname) == "" {
		return invalid("surname", "is required")
	}
	if err := ValidateTelephone(in.TelephoneNumber); err != nil {
		return err
	}
	if err := ValidateEmail(in.Email); err != nil {
		return err
	}
	if err := validateNewPassword(in.Password, in.PasswordConfirmation); err != nil {
		return err
	}
	if in.OrganizationalUnit == "" {
		return invalid("organizational unit", "is required")
	}
	if err := ldap.ValidateDN(in.OrganizationalUnit); err != nil {
		return invalid("organizational unit", err.Error())
	}
	return nil
}

// CreateUser validates in, then adds the account, sets its password and
// enables it.
func (c *UserCreator) CreateUser(ctx context.Context, in *CreateUserInput) (*ldap.User, error) {
	if in == nil {
		in = &CreateUserInput{}
	}
	errb := oops.In("user_create").With("username", in.SAMAccountName, "ou", in.OrganizationalUnit)

	if err := in.Validate(); err != nil {
		return nil, errb.Wrap(err)
	}

	exists, err := c.ous.OUExists(ctx, in.OrganizationalUnit)
	if err != nil {
		return nil, classify(errb, err, "checking organizational unit %s failed", in.OrganizationalUnit)
	}
	if !exists {
		return nil, errb.Wrap(&kindError{kind: ErrNotFound,
			err: fmt.Errorf("organizational unit %s does not exist", in.OrganizationalUnit)})
	}

	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" {
		displayName = ComposeDisplayName(in.GivenName, in.Surname, c.order)
	}

	c.logger.Info("Creating user", "username", in.SAMAccountName, "ou", in.OrganizationalUnit)

	user, err := c.writer.CreateUser(ctx, &ldap.NewUser{
		SAMAccountName: in.SAMAccountName,
		GivenName:      strings.TrimSpace(in.GivenName),
		Surname:        strings.TrimSpace(in.Surname),
		DisplayName:    displayName,
		Description:    in.Description,
		Office:         in.Office,
		Telephone:      in.TelephoneNumber,
		Email:          in.Email,
		WebPage:        in.WebPage,
		Password:       in.Password,
		ContainerDN:    in.OrganizationalUnit,
	})
	if err != nil {
		c.logger.Error("Creating user failed", "username", in.SAMAccountName, "error", err)
		return nil, classify(errb, err, "creating %s failed", in.SAMAccountName)
	}

	c.logger.Info("User created", "username", in.SAMAccountName, "dn", deref(user.DistinguishedName))
	return user, nil
}
