package laps

import (
	"context"
	"errors"
	"strings"
)

// ActiveDirectoryNodePrefix prefixes the node name of every Active Directory
// binding.
const ActiveDirectoryNodePrefix = "/Active Directory/"

// ErrNoBinding is returned by a BindingSource when the host has no Active
// Directory binding.
var ErrNoBinding = errors.New("no Active Directory binding")

// DirectoryPath identifies the directory node a host is bound to.
type DirectoryPath struct {
	Node   string // e.g. "/Active Directory/EXAMPLE"
	Domain string // e.g. "example.com"
}

// String renders the path as Node/Domain.
func (p DirectoryPath) String() string {
	return p.Node + "/" + p.Domain
}

// BindingInfo is the host's domain binding.
type BindingInfo struct {
	NodeName      string // Directory node name
	DomainNameDns string // DNS name of the domain
	TrustAccount  string // sAMAccountName of the computer account, e.g. "HOST$"
	Realm         string // Kerberos realm, optional
	Server        string // Server the binding was made against, optional
}

// KerberosRealm returns the configured realm, or the upper-cased domain.
func (b *BindingInfo) KerberosRealm() string {
	if b.Realm != "" {
		return strings.ToUpper(b.Realm)
	}
	return strings.ToUpper(b.DomainNameDns)
}

// BindingSource reports the host's Active Directory binding.
type BindingSource interface {
	// Binding returns the binding, or ErrNoBinding if the host is unbound.
	Binding(ctx context.Context) (*BindingInfo, error)
}

// NodeNameForDomain returns the node name for a DNS domain:
// "/Active Directory/" followed by the upper-cased first label.
func NodeNameForDomain(domain string) string {
	domain = strings.Trim(strings.TrimSpace(domain), ".")
	if domain == "" {
		return ""
	}
	short, _, _ := strings.Cut(domain, ".")
	return ActiveDirectoryNodePrefix + strings.ToUpper(short)
}

// TrustAccountForHost returns the computer account name for a host name:
// the upper-cased short name, truncated to 15 characters, with "$" appended.
func TrustAccountForHost(hostname string) string {
	short, _, _ := strings.Cut(strings.TrimSpace(hostname), ".")
	if short == "" {
		return ""
	}
	short = strings.ToUpper(short)
	if len(short) > 15 {
		short = short[:15]
	}
	return short + "$"
}
