package ldap

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/go-hclog"
)

// pagingSize is the page size requested by SearchWithPaging.
const pagingSize = 1000

// client implements the Client interface with one connection per call.
type client struct {
	config *ConnectionConfig
	logger hclog.Logger
	open   func(ctx context.Context) (conn, error)
	closed bool
}

// NewClient creates a new LDAP client. No connection is made until the first call.
func NewClient(config *ConnectionConfig, logger hclog.Logger) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	logger = loggerOrNull(logger)

	logger.Debug("Creating new LDAP client",
		"domain", config.Domain,
		"ldap_urls", config.LDAPURLs,
		"auth_method", config.GetAuthMethod().String(),
		"use_tls", config.UseTLS,
		"max_retries", config.MaxRetries,
	)

	connector, err := newConnector(config, logger)
	if err != nil {
		logger.Error("Failed to create LDAP client", "error", err)
		return nil, err
	}

	return &client{
		config: config,
		logger: logger,
		open:   connector.open,
	}, nil
}

// do runs fn on a freshly opened connection, closing it before returning.
// Failures are wrapped in *LDAPError with the operation name.
func (c *client) do(ctx context.Context, operation string, fields map[string]any, fn func(conn) error) error {
	if c.closed {
		return NewLDAPError(operation, errors.New("client is closed"))
	}

	err := LogOperation(c.logger, operation, fields, func() error {
		return c.withRetry(ctx, func() error {
			ldapConn, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer func() {
				_ = ldapConn.Close()
			}()

			return fn(ldapConn)
		})
	})
	if err != nil {
		LogLDAPError(c.logger, operation, err, fields)
		return WrapError(operation, err)
	}

	return nil
}

// Connect opens a bound connection and reads the root DSE.
func (c *client) Connect(ctx context.Context) error {
	return c.do(ctx, "connection_test", map[string]any{
		"domain":    c.config.Domain,
		"ldap_urls": c.config.LDAPURLs,
	}, func(ldapConn conn) error {
		result, err := ldapConn.Search(rootDSERequest())
		if err != nil {
			return err
		}
		if len(result.Entries) > 0 {
			c.logger.Info("Connection test successful",
				"default_naming_context", result.Entries[0].GetAttributeValue("defaultNamingContext"))
		}
		return nil
	})
}

// Close marks the client closed. Connections never outlive a call.
func (c *client) Close() error {
	c.closed = true
	return nil
}

// Search performs a single-round-trip LDAP search.
func (c *client) Search(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req == nil {
		return nil, fmt.Errorf("search request cannot be nil")
	}

	var searchResult *SearchResult
	err := c.do(ctx, "search", searchFields(req), func(ldapConn conn) error {
		result, err := ldapConn.Search(toLDAPSearchRequest(req, req.SizeLimit))
		if err != nil {
			// Hitting the size limit still returns the entries read so far.
			if ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) && result != nil && len(result.Entries) > 0 {
				searchResult = &SearchResult{Entries: result.Entries, Total: len(result.Entries), HasMore: true}
				return nil
			}
			return err
		}

		searchResult = &SearchResult{
			Entries: result.Entries,
			Total:   len(result.Entries),
			HasMore: req.SizeLimit > 0 && len(result.Entries) >= req.SizeLimit,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Trace("Search completed", "entries_found", searchResult.Total, "has_more", searchResult.HasMore)
	return searchResult, nil
}

// SearchWithPaging performs an LDAP search with the paged results control.
func (c *client) SearchWithPaging(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req == nil {
		return nil, fmt.Errorf("search request cannot be nil")
	}

	fields := searchFields(req)
	fields["page_size"] = pagingSize

	var searchResult *SearchResult
	err := c.do(ctx, "paged_search", fields, func(ldapConn conn) error {
		result, err := ldapConn.SearchWithPaging(toLDAPSearchRequest(req, 0), pagingSize)
		if err != nil {
			return err
		}

		searchResult = &SearchResult{
			Entries: result.Entries,
			Total:   len(result.Entries),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Paged search completed", "base_dn", req.BaseDN, "total_entries", searchResult.Total)
	return searchResult, nil
}

// Add creates a new LDAP entry.
func (c *client) Add(ctx context.Context, req *AddRequest) error {
	if req == nil {
		return fmt.Errorf("add request cannot be nil")
	}
	if req.DN == "" {
		return fmt.Errorf("DN cannot be empty")
	}

	return c.do(ctx, "add", map[string]any{
		"dn":         req.DN,
		"attributes": sortedKeys(req.Attributes),
	}, func(ldapConn conn) error {
		return ldapConn.Add(toLDAPAddRequest(req))
	})
}

// Modify applies an attribute delta to an existing entry.
func (c *client) Modify(ctx context.Context, req *ModifyRequest) error {
	if req == nil {
		return fmt.Errorf("modify request cannot be nil")
	}
	if req.DN == "" {
		return fmt.Errorf("DN cannot be empty")
	}
	if req.IsEmpty() {
		c.logger.Debug("Skipping empty modify request", "dn", req.DN)
		return nil
	}

	return c.do(ctx, "modify", map[string]any{
		"dn":      req.DN,
		"add":     sortedKeys(req.AddAttributes),
		"replace": sortedKeys(req.ReplaceAttributes),
		"clear":   req.ClearAttributes,
	}, func(ldapConn conn) error {
		return ldapConn.Modify(toLDAPModifyRequest(req))
	})
}

// Delete removes an LDAP entry.
func (c *client) Delete(ctx context.Context, dn string) error {
	if dn == "" {
		return fmt.Errorf("DN cannot be empty")
	}

	return c.do(ctx, "delete", map[string]any{"dn": dn}, func(ldapConn conn) error {
		return ldapConn.Del(ldap.NewDelRequest(dn, nil))
	})
}

// withRetry executes an operation with retry logic.
func (c *client) withRetry(ctx context.Context, operation func() error) error {
	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("Retrying operation",
				"attempt", attempt,
				"max_retry", c.config.MaxRetries,
				"backoff_ms", backoff.Milliseconds(),
				"last_error", lastErr.Error(),
			)
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryableError(err) || attempt == c.config.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			c.logger.Warn("Operation cancelled during retry", "context_error", ctx.Err().Error(), "attempt", attempt+1)
			return ctx.Err()
		case <-time.After(backoff):
			backoff = min(time.Duration(float64(backoff)*c.config.BackoffFactor), c.config.MaxBackoff)
		}
	}

	return lastErr
}

func rootDSERequest() *ldap.SearchRequest {
	return ldap.NewSearchRequest(
		"",
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		1, 5, false,
		"(objectClass=*)",
		[]string{"defaultNamingContext", "dnsHostName"},
		nil,
	)
}

func toLDAPSearchRequest(req *SearchRequest, sizeLimit int) *ldap.SearchRequest {
	return ldap.NewSearchRequest(
		req.BaseDN,
		int(req.Scope),
		int(req.DerefAliases),
		sizeLimit,
		int(req.TimeLimit.Seconds()),
		false,
		req.Filter,
		req.Attributes,
		nil,
	)
}

func toLDAPAddRequest(req *AddRequest) *ldap.AddRequest {
	ldapReq := ldap.NewAddRequest(req.DN, nil)
	for _, attr := range sortedKeys(req.Attributes) {
		ldapReq.Attribute(attr, req.Attributes[attr])
	}
	return ldapReq
}

// toLDAPModifyRequest builds the wire request with attributes in a stable order.
// Cleared attributes become a replace with no values.
func toLDAPModifyRequest(req *ModifyRequest) *ldap.ModifyRequest {
	ldapReq := ldap.NewModifyRequest(req.DN, nil)

	for _, attr := range sortedKeys(req.AddAttributes) {
		ldapReq.Add(attr, req.AddAttributes[attr])
	}
	for _, attr := range sortedKeys(req.ReplaceAttributes) {
		ldapReq.Replace(attr, req.ReplaceAttributes[attr])
	}
	for _, attr := range req.ClearAttributes {
		ldapReq.Replace(attr, []string{})
	}

	return ldapReq
}

func searchFields(req *SearchRequest) map[string]any {
	return map[string]any{
		"base_dn":    req.BaseDN,
		"scope":      req.Scope.String(),
		"filter":     req.Filter,
		"attributes": req.Attributes,
		"size_limit": req.SizeLimit,
	}
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
