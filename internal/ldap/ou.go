package ldap

import (
	"context"
	"fmt"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/go-hclog"
)

const ouFilter = "(objectClass=organizationalUnit)"

// OU represents an Active Directory Organizational Unit.
type OU struct {
	DistinguishedName string `json:"distinguishedName"`
	ObjectGUID        string `json:"objectGUID,omitempty"`
	Name              string `json:"name"`
	Description       string `json:"description,omitempty"`
	Parent            string `json:"parent,omitempty"`
}

// OUManager handles read access to organizational units.
type OUManager struct {
	client  Client
	baseDN  string
	timeout time.Duration
	logger  hclog.Logger
}

// NewOUManager creates a new OU manager instance.
func NewOUManager(client Client, baseDN string, logger hclog.Logger) *OUManager {
	return &OUManager{
		client:  client,
		baseDN:  baseDN,
		timeout: 30 * time.Second,
		logger:  loggerOrNull(logger),
	}
}

// SetTimeout sets the LDAP operation timeout.
func (om *OUManager) SetTimeout(timeout time.Duration) {
	om.timeout = timeout
}

// ListOUs returns every OU below the base DN, in the order the server sent them.
func (om *OUManager) ListOUs(ctx context.Context) ([]*OU, error) {
	req := &SearchRequest{
		BaseDN:     om.baseDN,
		Scope:      ScopeWholeSubtree,
		Filter:     ouFilter,
		Attributes: ouAttributes(),
		TimeLimit:  om.timeout,
	}

	result, err := om.client.SearchWithPaging(ctx, req)
	if err != nil {
		return nil, WrapError("list_ous", err)
	}

	ous := make([]*OU, 0, len(result.Entries))
	for _, entry := range result.Entries {
		ou := entryToOU(entry)
		if ou.DistinguishedName == "" {
			om.logger.Warn("Skipping OU entry without a DN")
			continue
		}
		ous = append(ous, ou)
	}

	om.logger.Debug("Listed OUs", "base_dn", om.baseDN, "count", len(ous))
	return ous, nil
}

// GetOUByDN reads a single OU.
func (om *OUManager) GetOUByDN(ctx context.Context, dn string) (*OU, error) {
	if err := ValidateDN(dn); err != nil {
		return nil, NewLDAPError("get_ou", err)
	}

	result, err := om.client.Search(ctx, &SearchRequest{
		BaseDN:     dn,
		Scope:      ScopeBaseObject,
		Filter:     ouFilter,
		Attributes: ouAttributes(),
		SizeLimit:  1,
		TimeLimit:  om.timeout,
	})
	if err != nil {
		return nil, WrapError("get_ou", err)
	}

	if len(result.Entries) == 0 {
		return nil, newNotFoundError("get_ou", fmt.Sprintf("OU not found at DN: %s", dn))
	}

	return entryToOU(result.Entries[0]), nil
}

// OUExists reports whether dn names an existing OU.
func (om *OUManager) OUExists(ctx context.Context, dn string) (bool, error) {
	_, err := om.GetOUByDN(ctx, dn)
	if err == nil {
		return true, nil
	}
	if IsNotFoundError(err) {
		return false, nil
	}
	return false, err
}

func ouAttributes() []string {
	return []string{"distinguishedName", "objectGUID", "ou", "name", "description"}
}

// entryToOU converts an LDAP entry to an OU.
func entryToOU(entry *ldap.Entry) *OU {
	ou := &OU{
		DistinguishedName: entry.DN,
		ObjectGUID:        extractGUID(entry),
		Name:              entry.GetEqualFoldAttributeValue("ou"),
		Description:       entry.GetEqualFoldAttributeValue("description"),
	}

	if ou.DistinguishedName == "" {
		ou.DistinguishedName = entry.GetEqualFoldAttributeValue("distinguishedName")
	}

	if ou.Name == "" {
		ou.Name = entry.GetEqualFoldAttributeValue("name")
	}

	if parent, err := ParentDN(ou.DistinguishedName); err == nil {
		ou.Parent = parent
	}

	return ou
}
