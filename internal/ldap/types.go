package ldap

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// ConnectionConfig describes one directory session: where to connect, how to
// authenticate and how hard to try.
type ConnectionConfig struct {
	// Domain is resolved through DNS SRV records unless LDAPURLs is set.
	Domain   string
	LDAPURLs []string
	// BaseDN overrides the root DSE defaultNamingContext.
	BaseDN   string
	Timeout  time.Duration
	PageSize uint32

	// Username is a DN, UPN, SAM name or machine account (HOST$). With a
	// Password and no realm it is used for a simple bind.
	Username string
	Password string

	KerberosRealm  string
	KerberosKeytab string
	KerberosCCache string
	// KerberosConfig is a krb5.conf path. A missing file is replaced by a
	// generated one.
	KerberosConfig string
	// KerberosSPN overrides ldap/<server host>.
	KerberosSPN string
	// KerberosKDC pins the KDC in a generated krb5.conf; empty means DNS lookup.
	KerberosKDC string

	TLSConfig *tls.Config
	// UseTLS upgrades plain connections with StartTLS unless SkipTLS is set.
	UseTLS        bool
	SkipTLS       bool

	// MaxRetries of zero means every operation, including connecting, is
	// attempted once.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultConfig returns a TLS-only configuration that never retries.
func DefaultConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Timeout:        30 * time.Second,
		PageSize:       500,
		KerberosConfig: "/etc/krb5.conf",
		UseTLS:         true,
		TLSConfig:      &tls.Config{MinVersion: tls.VersionTLS12},
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
	}
}

// Clone returns a deep copy of c.
func (c *ConnectionConfig) Clone() *ConnectionConfig {
	if c == nil {
		return nil
	}
	clone := *c
	clone.LDAPURLs = append([]string(nil), c.LDAPURLs...)
	if c.TLSConfig != nil {
		clone.TLSConfig = c.TLSConfig.Clone()
	}
	return &clone
}

// ServerInfo identifies one domain controller endpoint.
type ServerInfo struct {
	Host     string
	Port     int
	UseTLS   bool
	Priority int
	Weight   int
	Source   string // srv, config, preferred or fallback
}

// Client is a single authenticated directory session.
type Client interface {
	Connect(ctx context.Context) error
	Close() error

	Search(ctx context.Context, req *SearchRequest) (*SearchResult, error)
	SearchWithPaging(ctx context.Context, req *SearchRequest) (*SearchResult, error)
	Modify(ctx context.Context, req *ModifyRequest) error

	GetBaseDN(ctx context.Context) (string, error)
	WhoAmI(ctx context.Context) (*WhoAmIResult, error)
	// Server is the connected controller, or nil.
	Server() *ServerInfo
}

// SearchRequest describes a search. Aliases are never dereferenced.
type SearchRequest struct {
	BaseDN     string
	Scope      SearchScope
	Filter     string
	Attributes []string
	SizeLimit  int // ignored by SearchWithPaging
	TimeLimit  time.Duration
}

// SearchResult holds the entries of a complete search.
type SearchResult struct {
	Entries []*ldap.Entry
}

// ModifyRequest replaces the values of attributes on one entry.
type ModifyRequest struct {
	DN                string
	ReplaceAttributes map[string][]string
}

// WhoAmIResult holds the authorization identity the session is bound as.
type WhoAmIResult struct {
	AuthzID  string // raw value, e.g. "u:EXAMPLE\\HOST$"
	Identity string // AuthzID without its u: or dn: prefix
	Format   string // dn, upn, sam, sid, empty or unknown
}

// SearchScope mirrors the LDAP scope values.
type SearchScope int

const (
	ScopeBaseObject SearchScope = iota
	ScopeSingleLevel
	ScopeWholeSubtree
)

func (s SearchScope) String() string {
	switch s {
	case ScopeBaseObject:
		return "base"
	case ScopeSingleLevel:
		return "one"
	case ScopeWholeSubtree:
		return "sub"
	}
	return "unknown"
}

// AuthMethod is how a session binds.
type AuthMethod int

const (
	AuthMethodSimpleBind AuthMethod = iota
	AuthMethodKerberos
	AuthMethodExternal
)

func (a AuthMethod) String() string {
	switch a {
	case AuthMethodSimpleBind:
		return "simple"
	case AuthMethodKerberos:
		return "kerberos"
	case AuthMethodExternal:
		return "external"
	}
	return "unknown"
}

// GetAuthMethod picks Kerberos when a realm and some Kerberos credential or
// principal are set, a simple bind for username and password, and an
// anonymous external bind otherwise.
func (c *ConnectionConfig) GetAuthMethod() AuthMethod {
	switch {
	case c.KerberosRealm != "" && (c.KerberosKeytab != "" || c.KerberosCCache != "" || c.Username != ""):
		return AuthMethodKerberos
	case c.Username != "" && c.Password != "":
		return AuthMethodSimpleBind
	default:
		return AuthMethodExternal
	}
}
