package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/admanager/internal/service"
)

// clearEnv unsets every variable ApplyEnv reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"AD_URL", "AD_LDAP_URL", "AD_DOMAIN", "AD_BASE_DN", "AD_USERNAME", "AD_PASSWORD",
		"AD_KERBEROS_REALM", "AD_KERBEROS_KEYTAB", "AD_KERBEROS_CONFIG", "AD_KERBEROS_CCACHE", "AD_KERBEROS_SPN",
		"AD_USE_TLS", "AD_SKIP_TLS_VERIFY", "AD_TLS_CA_CERT_FILE", "AD_TLS_CLIENT_CERT_FILE", "AD_TLS_CLIENT_KEY_FILE",
		"AD_CONNECT_TIMEOUT", "AD_MAX_RETRIES", "AD_DISPLAY_NAME_ORDER", "AD_LOG_FILE", "AD_LOG_LEVEL",
	} {
		t.Setenv(name, "")
	}
}

func TestDefault(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 0, cfg.MaxRetries)
	assert.Equal(t, "given_first", cfg.DisplayNameOrder)
	assert.Equal(t, "ad_manager.log", cfg.LogFile)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.TLS.UseTLS)
	assert.Empty(t, cfg.Kerberos.Config)
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "admanager.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
url: ldaps://dc1.example.com/DC=example,DC=com
username: admin@example.com
connect_timeout: 10s
display_name_order: surname_first
tls:
  skip_verify: true
`), 0o600))

	t.Setenv("AD_USERNAME", "operator@example.com")
	t.Setenv("AD_MAX_RETRIES", "2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ldaps://dc1.example.com/DC=example,DC=com", cfg.URL)
	assert.Equal(t, "operator@example.com", cfg.Username)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, service.SurnameFirst, cfg.NameOrder())
	assert.True(t, cfg.TLS.SkipVerify)
	assert.True(t, cfg.TLS.UseTLS, "defaults survive a partial file")
	assert.Equal(t, "ad_manager.log", cfg.LogFile)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("url: [unterminated"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)

	t.Setenv("AD_USE_TLS", "maybe")
	_, err = Load("")
	assert.ErrorContains(t, err, "AD_USE_TLS")
}

func TestApplyEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("AD_LDAP_URL", "ldap://legacy.example.com")
	t.Setenv("AD_URL", "ldap://dc1.example.com:3268/DC=example,DC=com")
	t.Setenv("AD_CONNECT_TIMEOUT", "45")
	t.Setenv("AD_SKIP_TLS_VERIFY", "true")
	t.Setenv("AD_KERBEROS_REALM", "EXAMPLE.COM")

	cfg, err := Default()
	require.NoError(t, err)
	require.NoError(t, cfg.ApplyEnv())

	assert.Equal(t, "ldap://dc1.example.com:3268/DC=example,DC=com", cfg.URL)
	assert.Equal(t, 45*time.Second, cfg.ConnectTimeout)
	assert.True(t, cfg.TLS.SkipVerify)
	assert.Equal(t, "EXAMPLE.COM", cfg.Kerberos.Realm)

	t.Setenv("AD_CONNECT_TIMEOUT", "1m30s")
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, 90*time.Second, cfg.ConnectTimeout)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Default()
		require.NoError(t, err)
		cfg.URL = "ldaps://dc1.example.com/DC=example,DC=com"
		return cfg
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"no target", func(c *Config) { c.URL = "" }, "either url or domain"},
		{"bad scheme", func(c *Config) { c.URL = "http://dc1.example.com" }, "url"},
		{"bad base dn", func(c *Config) { c.BaseDN = "example" }, "base_dn"},
		{"bad order", func(c *Config) { c.DisplayNameOrder = "alphabetical" }, "display_name_order"},
		{"zero timeout", func(c *Config) { c.ConnectTimeout = 0 }, "connect_timeout"},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, "max_retries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestResolveBaseDN(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{"from url", Config{URL: "ldap://dc1.example.com/OU=Staff,DC=example,DC=com"}, "OU=Staff,DC=example,DC=com", false},
		{"escaped url path", Config{URL: "ldap://dc1.example.com/DC=example%2CDC=com"}, "DC=example,DC=com", false},
		{"explicit wins", Config{URL: "ldap://dc1.example.com/DC=example,DC=com", BaseDN: "DC=corp,DC=example,DC=com"}, "DC=corp,DC=example,DC=com", false},
		{"from domain", Config{Domain: "corp.example.com"}, "DC=corp,DC=example,DC=com", false},
		{"url without path", Config{URL: "ldaps://dc1.example.com"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.ResolveBaseDN()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToConnectionConfig(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)
	cfg.URL = "ldap://dc1.example.com/DC=example,DC=com"
	cfg.Username = "admin@example.com"
	cfg.Password = "secret"
	cfg.MaxRetries = 1
	cfg.TLS.SkipVerify = true

	conn, err := cfg.ToConnectionConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"ldap://dc1.example.com/DC=example,DC=com"}, conn.LDAPURLs)
	assert.Empty(t, conn.Domain)
	assert.Equal(t, "DC=example,DC=com", conn.BaseDN)
	assert.Equal(t, "admin@example.com", conn.Username)
	assert.Equal(t, 30*time.Second, conn.Timeout)
	assert.Equal(t, 1, conn.MaxRetries)
	assert.True(t, conn.UseTLS)
	require.NotNil(t, conn.TLSConfig)
	assert.True(t, conn.TLSConfig.InsecureSkipVerify)

	cfg.URL = ""
	cfg.Domain = "example.com"
	conn, err = cfg.ToConnectionConfig()
	require.NoError(t, err)
	assert.Nil(t, conn.LDAPURLs)
	assert.Equal(t, "example.com", conn.Domain)
	assert.Equal(t, "DC=example,DC=com", conn.BaseDN)
}

func TestNeedsPassword(t *testing.T) {
	assert.True(t, (&Config{Username: "admin"}).NeedsPassword())
	assert.False(t, (&Config{Username: "admin", Password: "x"}).NeedsPassword())
	assert.False(t, (&Config{Username: "admin", Kerberos: KerberosConfig{Realm: "EXAMPLE.COM"}}).NeedsPassword())
	assert.False(t, (&Config{Username: "admin", Kerberos: KerberosConfig{Keytab: "/etc/admin.keytab"}}).NeedsPassword())
	assert.False(t, (&Config{}).NeedsPassword())
}
