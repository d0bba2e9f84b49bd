package ldap

import (
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// EscapeDNValue escapes a single RDN attribute value according to RFC 4514:
// the characters , + " \ < > ; always, a leading # and leading or trailing
// spaces, and NUL as \00.
//
//	"Doe, John" → "Doe\, John"
//	" John "    → "\ John\ "
func EscapeDNValue(value string) string {
	if value == "" {
		return value
	}

	var result strings.Builder
	result.Grow(len(value) + 8)

	for i, r := range value {
		switch r {
		case ',', '+', '"', '\\', '<', '>', ';':
			result.WriteRune('\\')
			result.WriteRune(r)
		case '#':
			if i == 0 {
				result.WriteRune('\\')
			}
			result.WriteRune(r)
		case ' ':
			if i == 0 || i == len(value)-1 {
				result.WriteRune('\\')
			}
			result.WriteRune(r)
		case 0:
			result.WriteString("\\00")
		default:
			result.WriteRune(r)
		}
	}

	return result.String()
}

// ValidateDN checks that dn is a non-empty, well-formed distinguished name.
func ValidateDN(dn string) error {
	if strings.TrimSpace(dn) == "" {
		return fmt.Errorf("DN cannot be empty")
	}

	if _, err := ldap.ParseDN(dn); err != nil {
		return fmt.Errorf("invalid DN syntax: %w", err)
	}

	return nil
}

// NormalizeDNCase upper-cases attribute types, leaving values as they are.
//
//	"cn=john,ou=users,dc=example,dc=com" → "CN=john,OU=users,DC=example,DC=com"
func NormalizeDNCase(dn string) (string, error) {
	dn = strings.TrimSpace(dn)
	if dn == "" {
		return "", nil
	}

	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return "", fmt.Errorf("invalid DN syntax: %w", err)
	}

	return formatDN(parsed.RDNs), nil
}

// ParentDN removes the first RDN.
// "CN=John,OU=Users,DC=example,DC=com" becomes "OU=Users,DC=example,DC=com".
func ParentDN(dn string) (string, error) {
	if dn == "" {
		return "", fmt.Errorf("DN cannot be empty")
	}

	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return "", fmt.Errorf("invalid DN syntax: %w", err)
	}

	if len(parsed.RDNs) <= 1 {
		return "", fmt.Errorf("DN has no parent: %s", dn)
	}

	return formatDN(parsed.RDNs[1:]), nil
}

// IsDNChild reports whether childDN sits anywhere below parentDN, ignoring case.
func IsDNChild(childDN, parentDN string) (bool, error) {
	if childDN == "" || parentDN == "" {
		return false, fmt.Errorf("DNs cannot be empty")
	}

	child, err := ldap.ParseDN(childDN)
	if err != nil {
		return false, fmt.Errorf("invalid child DN syntax: %w", err)
	}

	parent, err := ldap.ParseDN(parentDN)
	if err != nil {
		return false, fmt.Errorf("invalid parent DN syntax: %w", err)
	}

	return parent.AncestorOfFold(child), nil
}

// DomainFromBaseDN joins the DC components of a base DN into a DNS domain,
// as used for userPrincipalName suffixes.
//
//	"OU=Staff,DC=corp,DC=example,DC=com" → "corp.example.com"
func DomainFromBaseDN(baseDN string) (string, error) {
	parsed, err := ldap.ParseDN(baseDN)
	if err != nil {
		return "", fmt.Errorf("invalid DN syntax: %w", err)
	}

	var labels []string
	for _, rdn := range parsed.RDNs {
		for _, attr := range rdn.Attributes {
			if strings.EqualFold(attr.Type, "DC") {
				labels = append(labels, attr.Value)
			}
		}
	}

	if len(labels) == 0 {
		return "", fmt.Errorf("no DC components in %q", baseDN)
	}

	return strings.ToLower(strings.Join(labels, ".")), nil
}

// BaseDNFromDomain builds the naming context for a DNS domain.
//
//	"corp.example.com" → "DC=corp,DC=example,DC=com"
func BaseDNFromDomain(domain string) string {
	domain = strings.Trim(strings.TrimSpace(domain), ".")
	if domain == "" {
		return ""
	}

	labels := strings.Split(domain, ".")
	for i, label := range labels {
		labels[i] = "DC=" + EscapeDNValue(label)
	}
	return strings.Join(labels, ",")
}

// formatDN rebuilds a DN with upper-case attribute types and escaped values.
func formatDN(rdns []*ldap.RelativeDN) string {
	parts := make([]string, 0, len(rdns))
	for _, rdn := range rdns {
		attrs := make([]string, 0, len(rdn.Attributes))
		for _, attr := range rdn.Attributes {
			attrs = append(attrs, strings.ToUpper(attr.Type)+"="+EscapeDNValue(attr.Value))
		}
		parts = append(parts, strings.Join(attrs, "+"))
	}
	return strings.Join(parts, ",")
}
