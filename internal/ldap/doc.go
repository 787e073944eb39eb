/*
Package ldap provides the Active Directory LDAP transport used by adlaps.

# Architecture Overview

  - Client: a single authenticated session per run, with server failover
  - Discovery: DNS SRV lookup of domain controllers
  - Authentication: simple bind, GSSAPI/Kerberos (machine keytab) or external
  - Errors: go-ldap result codes mapped to categories (permission, read_only, ...)
  - Identity: objectSid and objectGUID decoding

# Connection Management

Servers come from explicit LDAP URLs or, when none are configured, from SRV
records in this order:

  - _ldaps._tcp.<domain>
  - _ldap._tcp.<domain> (upgraded with StartTLS unless TLS is disabled)
  - _gc._tcp.<domain>

Each server is dialled once per attempt. MaxRetries defaults to 0, so a run
that cannot reach any controller fails immediately.

# Usage Example

	client, err := ldap.NewClient(&ldap.ConnectionConfig{
		Domain:         "example.com",
		Username:       "HOST$",
		KerberosRealm:  "EXAMPLE.COM",
		KerberosKeytab: "/etc/krb5.keytab",
		Timeout:        30 * time.Second,
		PageSize:       500,
		UseTLS:         true,
	}, ldap.NewHCLogger(hclog.Default()))
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Connect(ctx); err != nil {
		return err
	}

# Logging

All components log through the Logger interface. HCLogger adapts a go-hclog
logger and redacts sensitive fields such as passwords.
*/
package ldap
