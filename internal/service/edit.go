package service

import (
	"context"

	"github.com/hashicorp/go-hclog"
	"github.com/samber/oops"

	"github.com/isometry/admanager/internal/ldap"
)

// UserEditor saves edits to a user that was looked up earlier.
type UserEditor struct {
	writer *ldap.UserWriter
	order  NameOrder
	logger hclog.Logger
}

// NewUserEditor creates an edit service. Display names are composed in order.
func NewUserEditor(client ldap.Client, baseDN string, order NameOrder, logger hclog.Logger) *UserEditor {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if order == "" {
		order = DefaultNameOrder
	}
	return &UserEditor{
		writer: ldap.NewUserWriter(client, baseDN, logger.Named("ldap")),
		order:  order,
		logger: logger,
	}
}

// SaveChanges writes edits against the account identified by previous and
// returns the resulting record.
//
// A nil field in edits leaves the attribute alone, an empty string clears it
// and any other value replaces it. Identity fields in edits are ignored. When
// previous has no display name and edits does not supply one, a display name
// is composed from the effective given name and surname and saved as well.
func (e *UserEditor) SaveChanges(ctx context.Context, previous, edits *ldap.User) (*ldap.User, error) {
	if previous == nil || deref(previous.SAMAccountName) == "" || deref(previous.DistinguishedName) == "" {
		return nil, ErrNoPriorLookup
	}

	username := *previous.SAMAccountName
	dn := *previous.DistinguishedName
	errb := oops.In("user_edit").With("username", username, "dn", dn)

	if edits == nil {
		edits = &ldap.User{}
	}

	if err := ValidateTelephone(deref(edits.TelephoneNumber)); err != nil {
		return nil, errb.Wrap(err)
	}
	if err := ValidateEmail(deref(edits.Email)); err != nil {
		return nil, errb.Wrap(err)
	}

	changes := make(map[string]string)
	for _, attr := range ldap.MutableUserAttributes() {
		if v := attr.Get(edits); v != nil {
			changes[attr.Name] = *v
		}
	}

	if deref(previous.DisplayName) == "" && deref(edits.DisplayName) == "" {
		given := effective(previous.GivenName, edits.GivenName)
		surname := effective(previous.Surname, edits.Surname)
		if composed := ComposeDisplayName(given, surname, e.order); composed != "" {
			changes["displayName"] = composed
			e.logger.Debug("Composed display name", "username", username, "display_name", composed)
		}
	}

	merged := mergeChanges(previous, changes)

	if len(changes) == 0 {
		e.logger.Info("No changes to save", "username", username)
		return merged, nil
	}

	if err := e.writer.UpdateUser(ctx, dn, changes); err != nil {
		e.logger.Error("Saving user failed", "username", username, "error", err)
		return nil, classify(errb, err, "saving %s failed", username)
	}

	e.logger.Info("User saved", "username", username, "attributes", len(changes))
	return merged, nil
}

// effective returns the value a field will hold after the edit is applied.
func effective(previous, edit *string) string {
	if edit != nil {
		return *edit
	}
	return deref(previous)
}

// mergeChanges overlays changes on a copy of previous. Cleared attributes
// become nil.
func mergeChanges(previous *ldap.User, changes map[string]string) *ldap.User {
	merged := previous.Clone()
	for _, attr := range ldap.MutableUserAttributes() {
		v, ok := changes[attr.Name]
		switch {
		case !ok:
		case v == "":
			attr.Set(merged, nil)
		default:
			attr.Set(merged, &v)
		}
	}
	return merged
}
