package laps

import (
	"context"
	"errors"

	ldapclient "github.com/isometry/adlaps/internal/ldap"
)

// Locator derives the directory path of the host from its binding.
type Locator struct {
	source BindingSource
	logger ldapclient.Logger
}

// NewLocator creates a locator over source.
func NewLocator(source BindingSource, logger ldapclient.Logger) *Locator {
	if logger == nil {
		logger = ldapclient.NopLogger{}
	}
	return &Locator{source: source, logger: logger}
}

// Locate returns the directory path and binding of the host. Any failure to
// obtain a complete binding is reported as ErrNotBound.
func (l *Locator) Locate(ctx context.Context) (DirectoryPath, *BindingInfo, error) {
	info, err := l.source.Binding(ctx)
	switch {
	case errors.Is(err, ErrNoBinding):
		return l.notBound("no binding found", nil)
	case err != nil:
		return l.notBound("binding unreadable", err)
	case info == nil:
		return l.notBound("no binding found", nil)
	case info.NodeName == "" || info.DomainNameDns == "":
		return l.notBound("binding has no node name or domain", nil)
	case info.TrustAccount == "":
		return l.notBound("binding has no trust account", nil)
	}

	path := DirectoryPath{Node: info.NodeName, Domain: info.DomainNameDns}
	l.logger.Debug("Located Active Directory binding", map[string]any{
		"path":          path.String(),
		"trust_account": info.TrustAccount,
		"realm":         info.KerberosRealm(),
		"server":        info.Server,
	})

	return path, info, nil
}

func (l *Locator) notBound(detail string, err error) (DirectoryPath, *BindingInfo, error) {
	fields := map[string]any{"reason": detail}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.logger.Error("This machine does not appear to be bound to Active Directory", fields)
	return DirectoryPath{}, nil, newError(ErrNotBound, "locate", detail, err)
}
