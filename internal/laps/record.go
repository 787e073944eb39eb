package laps

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"

	ldapclient "github.com/isometry/adlaps/internal/ldap"
)

// ErrAttributeNotFound is returned by Record.ReadAttribute when the entry has
// no value for the attribute.
var ErrAttributeNotFound = errors.New("attribute not present")

// Record is one computer account entry in the directory.
type Record interface {
	// Name returns the account's sAMAccountName.
	Name() string
	// DN returns the entry's distinguished name.
	DN() string
	// ReadAttribute returns the first value of an attribute as stored now.
	ReadAttribute(ctx context.Context, name string) (string, error)
	// WriteAttribute replaces all values of an attribute with value.
	WriteAttribute(ctx context.Context, name, value string) error
}

// ldapRecord is a Record backed by an LDAP session.
type ldapRecord struct {
	client  ldapclient.Client
	dn      string
	name    string
	timeout time.Duration
}

func newLDAPRecord(client ldapclient.Client, entry *ldap.Entry, timeout time.Duration) *ldapRecord {
	name := entry.GetAttributeValue("sAMAccountName")
	if name == "" {
		if cn, err := ldapclient.ExtractRDNValue(entry.DN, "CN"); err == nil {
			name = strings.ToUpper(cn) + "$"
		}
	}
	return &ldapRecord{
		client:  client,
		dn:      entry.DN,
		name:    name,
		timeout: timeout,
	}
}

func (r *ldapRecord) Name() string { return r.name }

func (r *ldapRecord) DN() string { return r.dn }

// ReadAttribute re-reads the entry so the value reflects earlier writes of
// the same run.
func (r *ldapRecord) ReadAttribute(ctx context.Context, name string) (string, error) {
	result, err := r.client.Search(ctx, &ldapclient.SearchRequest{
		BaseDN:     r.dn,
		Scope:      ldapclient.ScopeBaseObject,
		Filter:     "(objectClass=*)",
		Attributes: []string{name},
		SizeLimit:  1,
		TimeLimit:  r.timeout,
	})
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	if len(result.Entries) == 0 {
		return "", fmt.Errorf("entry %s not found", r.dn)
	}

	values := result.Entries[0].GetEqualFoldAttributeValues(name)
	if len(values) == 0 || values[0] == "" {
		return "", ErrAttributeNotFound
	}
	return values[0], nil
}

func (r *ldapRecord) WriteAttribute(ctx context.Context, name, value string) error {
	return r.client.Modify(ctx, &ldapclient.ModifyRequest{
		DN:                r.dn,
		ReplaceAttributes: map[string][]string{name: {value}},
	})
}
