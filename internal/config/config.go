// Package config loads admanager settings from defaults, an optional YAML
// file and AD_* environment variables.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"github.com/isometry/admanager/internal/ldap"
	"github.com/isometry/admanager/internal/service"
)

// Config holds every setting of the tool.
type Config struct {
	// URL is the directory target, ldap[s]://host[:port]/baseDN.
	URL string `yaml:"url"`
	// Domain triggers DNS SRV discovery when URL is empty.
	Domain string `yaml:"domain"`
	// BaseDN overrides the base DN taken from URL or Domain.
	BaseDN string `yaml:"base_dn"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`

	Kerberos KerberosConfig `yaml:"kerberos"`
	TLS      TLSConfig      `yaml:"tls"`

	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s"`
	MaxRetries     int           `yaml:"max_retries" default:"0"`

	DisplayNameOrder string `yaml:"display_name_order" default:"given_first"`

	LogFile  string `yaml:"log_file" default:"ad_manager.log"`
	LogLevel string `yaml:"log_level" default:"info"`
}

// KerberosConfig selects GSSAPI authentication when a keytab or ccache is set,
// or a realm together with a username.
type KerberosConfig struct {
	Realm  string `yaml:"realm"`
	Keytab string `yaml:"keytab"`
	Config string `yaml:"config"` // empty uses /etc/krb5.conf when present, else KDC discovery
	CCache string `yaml:"ccache"`
	SPN    string `yaml:"spn"`
}

// TLSConfig controls transport security.
type TLSConfig struct {
	// UseTLS upgrades ldap:// connections with StartTLS.
	UseTLS         bool   `yaml:"use_tls" default:"true"`
	SkipVerify     bool   `yaml:"skip_verify"`
	CACertFile     string `yaml:"ca_cert_file"`
	ClientCertFile string `yaml:"client_cert_file"`
	ClientKeyFile  string `yaml:"client_key_file"`
}

// Default returns a Config holding only default values.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to set default values: %w", err)
	}
	return cfg, nil
}

// Load applies defaults, then the YAML file at path (skipped when path is
// empty), then the environment.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnv overrides fields from AD_* environment variables that are set.
func (c *Config) ApplyEnv() error {
	// AD_URL wins over AD_LDAP_URL.
	for _, name := range []string{"AD_LDAP_URL", "AD_URL"} {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			c.URL = v
		}
	}

	strs := map[string]*string{
		"AD_DOMAIN":               &c.Domain,
		"AD_BASE_DN":              &c.BaseDN,
		"AD_USERNAME":             &c.Username,
		"AD_PASSWORD":             &c.Password,
		"AD_KERBEROS_REALM":       &c.Kerberos.Realm,
		"AD_KERBEROS_KEYTAB":      &c.Kerberos.Keytab,
		"AD_KERBEROS_CONFIG":      &c.Kerberos.Config,
		"AD_KERBEROS_CCACHE":      &c.Kerberos.CCache,
		"AD_KERBEROS_SPN":         &c.Kerberos.SPN,
		"AD_TLS_CA_CERT_FILE":     &c.TLS.CACertFile,
		"AD_TLS_CLIENT_CERT_FILE": &c.TLS.ClientCertFile,
		"AD_TLS_CLIENT_KEY_FILE":  &c.TLS.ClientKeyFile,
		"AD_DISPLAY_NAME_ORDER":   &c.DisplayNameOrder,
		"AD_LOG_FILE":             &c.LogFile,
		"AD_LOG_LEVEL":            &c.LogLevel,
	}
	for name, field := range strs {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*field = v
		}
	}

	bools := map[string]*bool{
		"AD_USE_TLS":         &c.TLS.UseTLS,
		"AD_SKIP_TLS_VERIFY": &c.TLS.SkipVerify,
	}
	for name, field := range bools {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", name, err)
			}
			*field = parsed
		}
	}

	if v, ok := os.LookupEnv("AD_CONNECT_TIMEOUT"); ok && v != "" {
		d, err := ParseTimeout(v)
		if err != nil {
			return fmt.Errorf("invalid AD_CONNECT_TIMEOUT: %w", err)
		}
		c.ConnectTimeout = d
	}

	if v, ok := os.LookupEnv("AD_MAX_RETRIES"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid AD_MAX_RETRIES: %w", err)
		}
		c.MaxRetries = n
	}

	return nil
}

// ParseTimeout accepts a Go duration or a bare number of seconds.
func ParseTimeout(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// Validate checks the settings needed to reach the directory.
func (c *Config) Validate() error {
	var errs []error

	switch {
	case c.URL == "" && c.Domain == "":
		errs = append(errs, errors.New("either url or domain must be set"))
	case c.URL != "":
		if _, _, err := ldap.ParseTarget(c.URL); err != nil {
			errs = append(errs, fmt.Errorf("url: %w", err))
		}
	}

	if c.BaseDN != "" {
		if err := ldap.ValidateDN(c.BaseDN); err != nil {
			errs = append(errs, fmt.Errorf("base_dn: %w", err))
		}
	}

	if _, err := service.ParseNameOrder(c.DisplayNameOrder); err != nil {
		errs = append(errs, fmt.Errorf("display_name_order: %w", err))
	}

	if c.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("connect_timeout must be positive"))
	}

	if c.MaxRetries < 0 {
		errs = append(errs, errors.New("max_retries cannot be negative"))
	}

	return errors.Join(errs...)
}

// NameOrder returns the parsed display name order.
func (c *Config) NameOrder() service.NameOrder {
	order, err := service.ParseNameOrder(c.DisplayNameOrder)
	if err != nil {
		return service.DefaultNameOrder
	}
	return order
}

// ResolveBaseDN returns the base DN: the explicit setting, else the URL path,
// else the DC form of Domain.
func (c *Config) ResolveBaseDN() (string, error) {
	if c.BaseDN != "" {
		return c.BaseDN, nil
	}

	if c.URL != "" {
		_, baseDN, err := ldap.ParseTarget(c.URL)
		if err != nil {
			return "", err
		}
		if baseDN != "" {
			return baseDN, nil
		}
	}

	if c.Domain != "" {
		return ldap.BaseDNFromDomain(c.Domain), nil
	}

	return "", errors.New("base DN unknown: include it in the URL path or set base_dn")
}

// ToConnectionConfig maps the settings onto a directory client configuration.
func (c *Config) ToConnectionConfig() (*ldap.ConnectionConfig, error) {
	baseDN, err := c.ResolveBaseDN()
	if err != nil {
		return nil, err
	}

	conn := ldap.DefaultConfig()
	conn.BaseDN = baseDN
	conn.Timeout = c.ConnectTimeout
	conn.MaxRetries = c.MaxRetries

	if c.URL != "" {
		conn.LDAPURLs = []string{c.URL}
	} else {
		conn.Domain = strings.TrimSpace(c.Domain)
	}

	conn.Username = c.Username
	conn.Password = c.Password
	conn.KerberosRealm = c.Kerberos.Realm
	conn.KerberosKeytab = c.Kerberos.Keytab
	conn.KerberosConfig = c.Kerberos.Config
	conn.KerberosCCache = c.Kerberos.CCache
	conn.KerberosSPN = c.Kerberos.SPN

	conn.UseTLS = c.TLS.UseTLS
	if c.TLS.SkipVerify {
		if conn.TLSConfig == nil {
			conn.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		conn.TLSConfig.InsecureSkipVerify = true //nolint:gosec // explicit operator opt-in
	}
	conn.TLSCACertFile = c.TLS.CACertFile
	conn.TLSClientCertFile = c.TLS.ClientCertFile
	conn.TLSClientKeyFile = c.TLS.ClientKeyFile

	return conn, nil
}

// NeedsPassword reports whether a simple bind is configured without a password.
func (c *Config) NeedsPassword() bool {
	if c.Username == "" || c.Password != "" || c.TLS.ClientCertFile != "" {
		return false
	}
	return c.Kerberos.Realm == "" && c.Kerberos.Keytab == "" && c.Kerberos.CCache == ""
}
