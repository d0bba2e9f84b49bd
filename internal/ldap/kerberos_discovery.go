package ldap

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// runtimeKrb5Conf renders a krb5.conf that locates the KDCs of the realm
// through DNS SRV records.
func runtimeKrb5Conf(cfg *ConnectionConfig) (string, error) {
	if cfg == nil || cfg.KerberosRealm == "" {
		return "", fmt.Errorf("kerberos realm is required for KDC discovery")
	}

	realm := strings.ToUpper(cfg.KerberosRealm)
	domain := strings.ToLower(cfg.KerberosRealm)
	if cfg.Domain != "" {
		domain = strings.ToLower(cfg.Domain)
	}

	return fmt.Sprintf(`[libdefaults]
    default_realm = %s
    dns_lookup_kdc = true
    dns_lookup_realm = false
    rdns = false
    forwardable = true
    ticket_lifetime = 24h
    renew_lifetime = 7d

[realms]
    %s = {
    }

[domain_realm]
    .%s = %s
    %s = %s
`,
		realm,
		realm,
		domain, realm,
		domain, realm,
	), nil
}

// writeRuntimeKrb5Conf writes runtimeKrb5Conf to a temporary file. The
// returned cleanup removes it.
func writeRuntimeKrb5Conf(cfg *ConnectionConfig, logger hclog.Logger) (string, func(), error) {
	content, err := runtimeKrb5Conf(cfg)
	if err != nil {
		return "", nil, err
	}

	f, err := os.CreateTemp("", "admanager-krb5-*.conf")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create runtime krb5.conf: %w", err)
	}
	cleanup := func() { _ = os.Remove(f.Name()) }

	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to write runtime krb5.conf: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to write runtime krb5.conf: %w", err)
	}

	LogKerberosEvent(logger, "runtime_config_generated", map[string]any{
		"realm": strings.ToUpper(cfg.KerberosRealm),
		"path":  f.Name(),
	})
	return f.Name(), cleanup, nil
}

// realmFromDomain derives a realm from a DNS domain. AD realms are the
// upper-cased domain name.
func realmFromDomain(domain string) string {
	return strings.ToUpper(strings.Trim(strings.TrimSpace(domain), "."))
}
