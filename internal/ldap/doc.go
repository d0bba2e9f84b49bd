/*
Package ldap is the Active Directory access layer used by admanager.

# Connection Model

Client opens a fresh connection for every call: it resolves the target
servers (configured URLs, or DNS SRV records for a domain), dials with LDAPS
or StartTLS, binds and performs exactly one operation before closing. Nothing
is pooled or cached between calls. Retries are off by default and enabled
with ConnectionConfig.MaxRetries.

Supported binds:

  - simple bind with a DN, UPN or DOMAIN\user name and a password
  - Kerberos GSSAPI from a credential cache, a keytab or a password
  - SASL EXTERNAL with a TLS client certificate

# Directory Objects

  - UserReader: look up a user by sAMAccountName, list users below an OU
  - UserWriter: create a user (rolled back if the password or enable step
    fails), set its password and update attributes
  - OUManager: list and read organizational units

User holds every attribute as *string so that an absent attribute (nil) is
distinct from an empty value.

# Error Handling

Failures are returned as *LDAPError carrying the operation, the LDAP result
code and a category (connection, authentication, permission, not_found,
conflict, validation, server). IsNotFoundError, IsConflictError and friends
inspect the category through any wrapping.

# Example Usage

	cfg := ldap.DefaultConfig()
	cfg.LDAPURLs = []string{"ldaps://dc1.example.com"}
	cfg.Username = "admin@example.com"
	cfg.Password = password

	client, err := ldap.NewClient(cfg, logger.Named("ldap"))
	if err != nil {
		return err
	}
	defer client.Close()

	reader := ldap.NewUserReader(client, "DC=example,DC=com", logger)
	user, err := reader.GetUserBySAM(ctx, "jsmith")
*/
package ldap
