package service

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/samber/oops"

	"github.com/isometry/admanager/internal/ldap"
)

// OUCatalog holds the organizational units of the domain, fetched once.
type OUCatalog struct {
	manager *ldap.OUManager
	logger  hclog.Logger
	units   []string
	loaded  bool
}

func (c *OUCatalog) SetTimeout(timeout time.Duration) {
	c.manager.SetTimeout(timeout)
}

// NewOUCatalog creates an empty catalog over client rooted at baseDN.
func NewOUCatalog(client ldap.Client, baseDN string, logger hclog.Logger) *OUCatalog {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &OUCatalog{
		manager: ldap.NewOUManager(client, baseDN, logger.Named("ldap")),
		logger:  logger,
	}
}

// Load fetches the unit list. It is a no-op once a load has succeeded. On
// failure the list is left empty and the error is returned.
func (c *OUCatalog) Load(ctx context.Context) error {
	if c.loaded {
		return nil
	}

	ous, err := c.manager.ListOUs(ctx)
	if err != nil {
		c.units = nil
		c.logger.Error("Loading organizational units failed", "error", err)
		return classify(oops.In("ou_catalog"), err, "loading organizational units failed")
	}

	units := make([]string, 0, len(ous))
	for _, ou := range ous {
		units = append(units, ou.DistinguishedName)
	}

	c.units = units
	c.loaded = true
	c.logger.Info("Loaded organizational units", "count", len(units))
	return nil
}

// Units returns a copy of the loaded distinguished names in directory order.
func (c *OUCatalog) Units() []string {
	out := make([]string, len(c.units))
	copy(out, c.units)
	return out
}
