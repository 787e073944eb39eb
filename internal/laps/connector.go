package laps

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"

	ldapclient "github.com/isometry/adlaps/internal/ldap"
)

// PreferredDCKey is the setting naming a domain controller to pin to.
const PreferredDCKey = "PreferredDC"

// DefaultMachineKeytab holds the computer account's keys on a joined host.
const DefaultMachineKeytab = "/etc/krb5.keytab"

const unreachableMessage = "Active Directory Node not available. Make sure your Active Directory is reachable via direct network connection or VPN."

// Settings is a read-only key/value source. *viper.Viper satisfies it.
type Settings interface {
	GetString(key string) string
}

// ClientFactory creates an LDAP client. ldapclient.NewClient is the default.
type ClientFactory func(config *ldapclient.ConnectionConfig, logger ldapclient.Logger) (ldapclient.Client, error)

// Connector opens the directory session of a run and resolves the host's
// computer account.
type Connector struct {
	settings  Settings
	base      *ldapclient.ConnectionConfig
	schema    Schema
	logger    ldapclient.Logger
	newClient ClientFactory

	client ldapclient.Client
}

// NewConnector creates a connector. base carries transport and credential
// settings; it is copied, never modified. schema selects the attributes
// fetched with the record.
func NewConnector(settings Settings, base *ldapclient.ConnectionConfig, schema Schema, logger ldapclient.Logger) *Connector {
	if base == nil {
		base = ldapclient.DefaultConfig()
	}
	if logger == nil {
		logger = ldapclient.NopLogger{}
	}
	if schema.ExpirationAttribute == "" {
		schema = LegacySchema
	}
	return &Connector{
		settings:  settings,
		base:      base,
		schema:    schema,
		logger:    logger,
		newClient: ldapclient.NewClient,
	}
}

// Connect opens a session for the domain of path and returns the computer
// records whose sAMAccountName equals info.TrustAccount. Exactly one record
// is returned on success.
func (c *Connector) Connect(ctx context.Context, path DirectoryPath, info *BindingInfo) ([]Record, error) {
	if info == nil || info.TrustAccount == "" || path.Domain == "" {
		return nil, newError(ErrNotBound, "connect", "incomplete binding", nil)
	}
	if c.client != nil {
		return nil, fmt.Errorf("connector is already connected")
	}

	cfg, err := c.sessionConfig(path, info)
	if err != nil {
		return nil, c.unreachable("invalid preferred domain controller", err)
	}

	client, err := c.newClient(cfg, c.logger)
	if err != nil {
		return nil, c.unreachable("client setup failed", err)
	}

	if err := client.Connect(ctx); err != nil {
		_ = client.Close()
		return nil, c.unreachable("session failed", err)
	}
	c.client = client

	entries, err := c.findAccount(ctx, info.TrustAccount)
	if err != nil {
		_ = c.Close()
		return nil, c.unreachable("computer account query failed", err)
	}

	if len(entries) != 1 {
		_ = c.Close()
		c.logger.Error("Computer account lookup did not return exactly one record", map[string]any{
			"trust_account": info.TrustAccount,
			"count":         len(entries),
		})
		return nil, newError(ErrAmbiguousRecord, "connect",
			fmt.Sprintf("%d records for %s", len(entries), info.TrustAccount), nil)
	}

	entry := entries[0]
	c.logAccount(entry)

	return []Record{newLDAPRecord(c.client, entry, cfg.Timeout)}, nil
}

// Close releases the session. It is safe to call more than once.
func (c *Connector) Close() error {
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

// sessionConfig derives the connection configuration of one run.
func (c *Connector) sessionConfig(path DirectoryPath, info *BindingInfo) (*ldapclient.ConnectionConfig, error) {
	cfg := c.base.Clone()
	cfg.Domain = path.Domain

	preferred := ""
	if c.settings != nil {
		preferred = strings.TrimSpace(c.settings.GetString(PreferredDCKey))
	}

	if preferred == "" {
		c.logger.Info("No Preferred Domain Controller Specified. Continuing...", nil)
		cfg.LDAPURLs = nil
	} else {
		c.logger.Info("Using Preferred Domain Controller "+preferred+"...", nil)
		url, err := ldapclient.PreferredServerURL(preferred, cfg.UseTLS && !cfg.SkipTLS)
		if err != nil {
			return nil, err
		}
		cfg.LDAPURLs = []string{url}
	}

	// Without a configured principal the session binds as the computer
	// account from the machine keytab.
	if cfg.Username == "" {
		cfg.Username = info.TrustAccount
		if cfg.KerberosKeytab == "" && cfg.KerberosCCache == "" {
			cfg.KerberosKeytab = DefaultMachineKeytab
		}
	}
	// A password means a simple bind; anything else is Kerberos in the
	// binding's realm.
	if cfg.Password == "" && cfg.KerberosRealm == "" {
		cfg.KerberosRealm = info.KerberosRealm()
	}

	return cfg, nil
}

// findAccount searches for computer and server objects with the given
// sAMAccountName. Partial results are an error.
func (c *Connector) findAccount(ctx context.Context, trustAccount string) ([]*ldap.Entry, error) {
	baseDN, err := c.client.GetBaseDN(ctx)
	if err != nil {
		return nil, err
	}

	result, err := c.client.SearchWithPaging(ctx, &ldapclient.SearchRequest{
		BaseDN: baseDN,
		Scope:  ldapclient.ScopeWholeSubtree,
		Filter: fmt.Sprintf("(&(|(objectClass=computer)(objectClass=server))(sAMAccountName=%s))",
			ldap.EscapeFilter(trustAccount)),
		Attributes: []string{
			"distinguishedName",
			"sAMAccountName",
			"objectSid",
			"objectGUID",
			"userAccountControl",
			"dNSHostName",
			c.schema.ExpirationAttribute,
		},
	})
	if err != nil {
		return nil, err
	}

	return result.Entries, nil
}

func (c *Connector) logAccount(entry *ldap.Entry) {
	fields := ldapclient.IdentityFields(entry)
	if dn, err := ldapclient.NormalizeDNCase(entry.DN); err == nil {
		fields["dn"] = dn
	}
	fields["sam_account_name"] = entry.GetAttributeValue("sAMAccountName")
	if host := entry.GetAttributeValue("dNSHostName"); host != "" {
		fields["dns_host_name"] = host
	}
	if uac, err := ldapclient.ParseUserAccountControl(entry.GetAttributeValue("userAccountControl")); err == nil {
		fields["account_kind"] = ldapclient.AccountKind(uac)
		fields["disabled"] = uac&ldapclient.UACAccountDisabled != 0
	}
	fields["expiration_present"] = entry.GetEqualFoldAttributeValue(c.schema.ExpirationAttribute) != ""
	if server := c.client.Server(); server != nil {
		fields["server"] = ldapclient.ServerInfoToURL(server)
	}
	c.logger.Info("Resolved computer account", fields)
}

func (c *Connector) unreachable(detail string, err error) error {
	fields := map[string]any{"reason": detail}
	if err != nil {
		fields["error"] = err.Error()
		fields["category"] = string(ldapclient.GetErrorCategory(err))
	}
	c.logger.Error(unreachableMessage, fields)
	return newError(ErrDirectoryUnreachable, "connect", detail, err)
}
