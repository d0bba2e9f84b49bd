package ldap

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldap/v3/gssapi"
	"github.com/hashicorp/go-hclog"
	krb5client "github.com/jcmturner/gokrb5/v8/client"
)

// defaultKrb5Conf is used when present and no configuration path is set.
var defaultKrb5Conf = "/etc/krb5.conf"

// performKerberosAuth performs a GSSAPI bind on conn against server.
func performKerberosAuth(conn *ldap.Conn, cfg *ConnectionConfig, server *ServerInfo, logger hclog.Logger) error {
	krbCfg, err := prepareKerberosConfig(cfg)
	if err != nil {
		LogKerberosEvent(logger, "authentication_failed", map[string]any{"error": err.Error()})
		return fmt.Errorf("kerberos configuration error: %w", err)
	}

	gssapiClient, source, err := createGSSAPIClient(krbCfg, logger)
	if err != nil {
		LogKerberosEvent(logger, "ticket_acquisition_failed", map[string]any{"error": err.Error()})
		return fmt.Errorf("failed to create GSSAPI client: %w", err)
	}
	defer func() {
		_ = gssapiClient.DeleteSecContext()
	}()

	LogKerberosEvent(logger, "credentials_loaded", map[string]any{
		"source": source,
		"realm":  krbCfg.KerberosRealm,
	})

	spn, err := buildServicePrincipal(krbCfg, server)
	if err != nil {
		return fmt.Errorf("failed to build service principal: %w", err)
	}

	if err := conn.GSSAPIBind(gssapiClient, spn, ""); err != nil {
		LogKerberosEvent(logger, "authentication_failed", map[string]any{
			"spn":   spn,
			"error": err.Error(),
		})
		return fmt.Errorf("GSSAPI bind failed: %w", err)
	}

	LogKerberosEvent(logger, "ticket_acquired", map[string]any{"spn": spn})
	return nil
}

// createGSSAPIClient picks credentials in order: credential cache, keytab, password.
// It returns the client and a short label for the credential source. Without
// a configuration path, a runtime krb5.conf using DNS KDC discovery is used.
func createGSSAPIClient(cfg *ConnectionConfig, logger hclog.Logger) (ldap.GSSAPIClient, string, error) {
	krb5confPath := cfg.KerberosConfig

	if krb5confPath == "" {
		path, cleanup, err := writeRuntimeKrb5Conf(cfg, logger)
		if err != nil {
			return nil, "", err
		}
		// The gssapi constructors load the file immediately.
		defer cleanup()
		krb5confPath = path
	} else if !fileExists(krb5confPath) {
		return nil, "", fmt.Errorf("Kerberos configuration file not found at %s; "+
			"create it or set --kerberos-config. Example minimal configuration:\n%s",
			krb5confPath, generateExampleKrb5Conf(cfg))
	}

	if cfg.KerberosCCache != "" && fileExists(cfg.KerberosCCache) {
		c, err := gssapi.NewClientFromCCache(cfg.KerberosCCache, krb5confPath, krb5client.DisablePAFXFAST(true))
		return c, "ccache", err
	}

	if defaultCCache := getDefaultCCachePath(); fileExists(defaultCCache) {
		c, err := gssapi.NewClientFromCCache(defaultCCache, krb5confPath, krb5client.DisablePAFXFAST(true))
		return c, "default_ccache", err
	}

	if cfg.KerberosKeytab != "" && fileExists(cfg.KerberosKeytab) {
		c, err := gssapi.NewClientWithKeytab(cfg.Username, cfg.KerberosRealm, cfg.KerberosKeytab, krb5confPath, krb5client.DisablePAFXFAST(true))
		return c, "keytab", err
	}

	if cfg.Username != "" {
		if defaultKeytab := getDefaultKeytabPath(); fileExists(defaultKeytab) {
			c, err := gssapi.NewClientWithKeytab(cfg.Username, cfg.KerberosRealm, defaultKeytab, krb5confPath, krb5client.DisablePAFXFAST(true))
			return c, "default_keytab", err
		}
	}

	if cfg.Username != "" && cfg.Password != "" {
		c, err := gssapi.NewClientWithPassword(cfg.Username, cfg.KerberosRealm, cfg.Password, krb5confPath, krb5client.DisablePAFXFAST(true))
		return c, "password", err
	}

	return nil, "", fmt.Errorf("no suitable credentials found for Kerberos authentication")
}

// buildServicePrincipal returns the LDAP SPN for server, or the configured override.
func buildServicePrincipal(cfg *ConnectionConfig, server *ServerInfo) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("configuration is required for service principal")
	}

	if cfg.KerberosSPN != "" {
		return cfg.KerberosSPN, nil
	}

	if server == nil || server.Host == "" {
		return "", fmt.Errorf("hostname is required for service principal")
	}

	return "ldap/" + server.Host, nil
}

// prepareKerberosConfig returns a copy of cfg with Kerberos defaults filled in.
// A realm embedded in the username (user@REALM) is split out when no realm is set.
func prepareKerberosConfig(cfg *ConnectionConfig) (*ConnectionConfig, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}

	prepared := *cfg

	if prepared.KerberosConfig == "" && fileExists(defaultKrb5Conf) {
		prepared.KerberosConfig = defaultKrb5Conf
	}

	if prepared.KerberosRealm == "" {
		if user, realm, ok := strings.Cut(prepared.Username, "@"); ok && realm != "" {
			prepared.Username = user
			prepared.KerberosRealm = strings.ToUpper(realm)
		}
	}

	if prepared.KerberosRealm == "" && prepared.Domain != "" {
		prepared.KerberosRealm = realmFromDomain(prepared.Domain)
	}

	if prepared.KerberosRealm == "" && prepared.BaseDN != "" {
		if domain, err := DomainFromBaseDN(prepared.BaseDN); err == nil {
			prepared.KerberosRealm = realmFromDomain(domain)
		}
	}

	if prepared.KerberosRealm == "" {
		return nil, fmt.Errorf("kerberos realm is required (set --kerberos-realm, --domain or include realm in username)")
	}

	hasCCache := (prepared.KerberosCCache != "" && fileExists(prepared.KerberosCCache)) || fileExists(getDefaultCCachePath())
	hasKeytab := (prepared.KerberosKeytab != "" && fileExists(prepared.KerberosKeytab)) || fileExists(getDefaultKeytabPath())

	if prepared.Username == "" && !hasCCache {
		return nil, fmt.Errorf("username (principal) is required for Kerberos authentication without a credential cache")
	}

	if !hasCCache && !hasKeytab && prepared.Password == "" {
		return nil, fmt.Errorf("no suitable Kerberos credentials found: provide a credential cache, a keytab or a password")
	}

	return &prepared, nil
}

// getDefaultCCachePath returns the default credential cache location.
func getDefaultCCachePath() string {
	if ccache := os.Getenv("KRB5CCNAME"); ccache != "" {
		return strings.TrimPrefix(ccache, "FILE:")
	}
	return fmt.Sprintf("/tmp/krb5cc_%d", os.Getuid())
}

// getDefaultKeytabPath returns the default keytab location.
func getDefaultKeytabPath() string {
	if keytab := os.Getenv("KRB5_KTNAME"); keytab != "" {
		return strings.TrimPrefix(keytab, "FILE:")
	}
	return "/etc/krb5.keytab"
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	_ = file.Close()
	return true
}

// generateExampleKrb5Conf generates example krb5.conf content for error messages.
func generateExampleKrb5Conf(cfg *ConnectionConfig) string {
	realm := "YOUR.REALM.COM"
	if cfg != nil && cfg.KerberosRealm != "" {
		realm = strings.ToUpper(cfg.KerberosRealm)
	}
	domain := strings.ToLower(realm)
	kdcHost := "dc." + domain

	return fmt.Sprintf(`[libdefaults]
    default_realm = %s
    dns_lookup_realm = false
    dns_lookup_kdc = false

[realms]
    %s = {
        kdc = %s:88
        admin_server = %s:749
    }

[domain_realm]
    .%s = %s
    %s = %s`,
		realm,
		realm,
		kdcHost, kdcHost,
		domain, realm,
		domain, realm)
}
