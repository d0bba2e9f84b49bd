package service

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/samber/oops"

	"github.com/isometry/admanager/internal/ldap"
)

// NotSpecified stands in for a missing value in list labels.
const NotSpecified = "not specified"

// UserSummary is one row of a user listing.
type UserSummary struct {
	SAMAccountName    *string `json:"sAMAccountName,omitempty"`
	DisplayName       *string `json:"displayName,omitempty"`
	DistinguishedName string  `json:"distinguishedName"`
}

// Label renders the row as "displayName (sAMAccountName)".
func (s UserSummary) Label() string {
	return fmt.Sprintf("%s (%s)", orNotSpecified(s.DisplayName), orNotSpecified(s.SAMAccountName))
}

func orNotSpecified(v *string) string {
	if v == nil || *v == "" {
		return NotSpecified
	}
	return *v
}

// UserQuery looks users up. It never writes to the directory.
type UserQuery struct {
	reader *ldap.UserReader
	logger hclog.Logger
}

// SetTimeout sets the server-side time limit of lookups.
func (q *UserQuery) SetTimeout(timeout time.Duration) {
	q.reader.SetTimeout(timeout)
}

// NewUserQuery creates a query service over client rooted at baseDN.
func NewUserQuery(client ldap.Client, baseDN string, logger hclog.Logger) *UserQuery {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &UserQuery{
		reader: ldap.NewUserReader(client, baseDN, logger.Named("ldap")),
		logger: logger,
	}
}

// FindUser returns the first user whose sAMAccountName is username.
func (q *UserQuery) FindUser(ctx context.Context, username string) (*ldap.User, error) {
	errb := oops.In("user_query").With("username", username)

	if err := ValidateUsername(username); err != nil {
		q.logger.Warn("Rejected username", "username", username, "error", err)
		return nil, errb.Wrap(err)
	}

	q.logger.Info("Looking up user", "username", username)

	user, err := q.reader.GetUserBySAM(ctx, username)
	if err != nil {
		if ldap.IsNotFoundError(err) {
			q.logger.Info("User not found", "username", username)
		} else {
			q.logger.Error("User lookup failed", "username", username, "error", err)
		}
		return nil, classify(errb, err, "lookup of %s failed", username)
	}

	q.logger.Info("User found", "username", username, "dn", deref(user.DistinguishedName))
	return user, nil
}

// ListUsers returns the users below the organizational unit ouDN.
func (q *UserQuery) ListUsers(ctx context.Context, ouDN string) ([]UserSummary, error) {
	errb := oops.In("user_query").With("ou", ouDN)

	if err := ldap.ValidateDN(ouDN); err != nil {
		return nil, errb.Wrap(invalid("organizational unit", err.Error()))
	}

	users, err := q.reader.ListUsers(ctx, ouDN)
	if err != nil {
		q.logger.Error("User listing failed", "ou", ouDN, "error", err)
		return nil, classify(errb, err, "listing users in %s failed", ouDN)
	}

	summaries := make([]UserSummary, 0, len(users))
	for _, u := range users {
		summaries = append(summaries, UserSummary{
			SAMAccountName:    u.SAMAccountName,
			DisplayName:       u.DisplayName,
			DistinguishedName: deref(u.DistinguishedName),
		})
	}

	q.logger.Debug("Listed users", "ou", ouDN, "count", len(summaries))
	return summaries, nil
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
