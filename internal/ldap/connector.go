package ldap

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/go-hclog"
)

// conn is the part of *ldap.Conn a single operation needs.
type conn interface {
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	SearchWithPaging(req *ldap.SearchRequest, pagingSize uint32) (*ldap.SearchResult, error)
	Add(req *ldap.AddRequest) error
	Modify(req *ldap.ModifyRequest) error
	Del(req *ldap.DelRequest) error
	Close() error
}

// connector opens one bound connection per call. Servers are resolved on
// first use and tried in order until one accepts the connection and the bind.
type connector struct {
	config    *ConnectionConfig
	logger    hclog.Logger
	discovery *SRVDiscovery
	tlsConfig *tls.Config
	servers   []*ServerInfo
}

func newConnector(config *ConnectionConfig, logger hclog.Logger) (*connector, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	tlsConfig, err := buildTLSConfig(config)
	if err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}

	return &connector{
		config:    config,
		logger:    logger,
		discovery: NewSRVDiscovery(logger),
		tlsConfig: tlsConfig,
	}, nil
}

// resolveServers returns the configured URLs, or the SRV-discovered servers for the domain.
func (c *connector) resolveServers(ctx context.Context) ([]*ServerInfo, error) {
	if len(c.servers) > 0 {
		return c.servers, nil
	}

	var servers []*ServerInfo
	switch {
	case len(c.config.LDAPURLs) > 0:
		for _, u := range c.config.LDAPURLs {
			server, err := ParseLDAPURL(u)
			if err != nil {
				return nil, fmt.Errorf("invalid LDAP URL %s: %w", u, err)
			}
			servers = append(servers, server)
		}
	case c.config.Domain != "":
		discoverCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()

		discovered, err := c.discovery.DiscoverServers(discoverCtx, c.config.Domain)
		if err != nil {
			return nil, fmt.Errorf("SRV discovery failed: %w", err)
		}
		servers = discovered
	default:
		return nil, errors.New("either domain or LDAP URLs must be specified")
	}

	if len(servers) == 0 {
		return nil, errors.New("no servers discovered")
	}

	c.servers = servers
	return servers, nil
}

// open dials and binds the first reachable server.
func (c *connector) open(ctx context.Context) (conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	servers, err := c.resolveServers(ctx)
	if err != nil {
		return nil, NewConnectionError("server resolution failed", false, err)
	}

	var lastErr error
	for _, server := range servers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		url := ServerInfoToURL(server)
		LogConnectionEvent(c.logger, "connection_attempt", map[string]any{"server": url})

		ldapConn, err := c.dial(server)
		if err != nil {
			LogConnectionEvent(c.logger, "connection_failed", map[string]any{
				"server": url,
				"error":  err.Error(),
			})
			lastErr = err
			continue
		}

		if err := c.authenticate(ldapConn, server); err != nil {
			_ = ldapConn.Close()
			LogConnectionEvent(c.logger, "authentication_failed", map[string]any{
				"server":      url,
				"auth_method": c.config.GetAuthMethod().String(),
				"error":       err.Error(),
			})
			// A rejected bind is the same on every server.
			if IsAuthenticationError(err) {
				return nil, err
			}
			lastErr = err
			continue
		}

		LogConnectionEvent(c.logger, "connection_established", map[string]any{
			"server":      url,
			"auth_method": c.config.GetAuthMethod().String(),
		})
		return ldapConn, nil
	}

	return nil, NewConnectionError("failed to connect to any server", true, lastErr)
}

// dial connects to server, using LDAPS directly or upgrading with StartTLS.
func (c *connector) dial(server *ServerInfo) (*ldap.Conn, error) {
	url := ServerInfoToURL(server)
	dialer := &net.Dialer{Timeout: c.config.Timeout}

	var ldapConn *ldap.Conn
	var err error

	if server.UseTLS {
		ldapConn, err = ldap.DialURL(url, ldap.DialWithDialer(dialer), ldap.DialWithTLSConfig(c.tlsConfig))
	} else {
		ldapConn, err = ldap.DialURL(url, ldap.DialWithDialer(dialer))
		if err == nil && c.config.UseTLS && !c.config.SkipTLS {
			if err = ldapConn.StartTLS(c.tlsConfig); err != nil {
				_ = ldapConn.Close()
				return nil, fmt.Errorf("StartTLS with %s failed: %w", url, err)
			}
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	ldapConn.SetTimeout(c.config.Timeout)
	return ldapConn, nil
}

// authenticate binds ldapConn using the configured method.
func (c *connector) authenticate(ldapConn *ldap.Conn, server *ServerInfo) error {
	start := time.Now()
	method := c.config.GetAuthMethod()

	var err error
	switch method {
	case AuthMethodSimpleBind:
		if c.config.Username == "" {
			return fmt.Errorf("username is required for simple bind authentication")
		}
		err = ldapConn.Bind(c.config.Username, c.config.Password)
	case AuthMethodKerberos:
		err = performKerberosAuth(ldapConn, c.config, server, c.logger)
	case AuthMethodExternal:
		err = ldapConn.ExternalBind()
	default:
		return fmt.Errorf("unsupported authentication method: %s", method.String())
	}

	if err != nil {
		return NewLDAPError("bind", err)
	}

	c.logger.Debug("Authentication successful",
		"auth_method", method.String(), "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// buildTLSConfig clones the configured TLS settings and applies the CA bundle,
// client certificate and verification flags.
func buildTLSConfig(config *ConnectionConfig) (*tls.Config, error) {
	var tlsConfig *tls.Config
	if config.TLSConfig != nil {
		tlsConfig = config.TLSConfig.Clone()
	} else {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	if config.SkipTLS {
		tlsConfig.InsecureSkipVerify = true //nolint:gosec // explicit operator opt-in
	}

	if config.TLSCACertFile != "" {
		pem, err := os.ReadFile(config.TLSCACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", config.TLSCACertFile)
		}
		tlsConfig.RootCAs = pool
	}

	if config.TLSClientCertFile != "" || config.TLSClientKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(config.TLSClientCertFile, config.TLSClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// validateConfig validates the connection configuration.
func validateConfig(config *ConnectionConfig) error {
	if config == nil {
		return errors.New("configuration cannot be nil")
	}

	if len(config.LDAPURLs) == 0 && config.Domain == "" {
		return errors.New("either domain or LDAP URLs must be specified")
	}

	if config.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}

	if config.MaxRetries < 0 {
		return errors.New("MaxRetries cannot be negative")
	}

	if config.MaxRetries > 0 && config.BackoffFactor < 1.0 {
		return errors.New("BackoffFactor must be at least 1.0")
	}

	return nil
}
