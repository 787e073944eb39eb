package ldap

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// client implements Client over a single session.
type client struct {
	session *session
	config  *ConnectionConfig
	logger  Logger
}

// NewClient returns a Client for config. Nothing is dialed until Connect.
func NewClient(config *ConnectionConfig, logger Logger) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = NopLogger{}
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Debug("Creating LDAP client", map[string]any{
		"domain":      config.Domain,
		"ldap_urls":   config.LDAPURLs,
		"auth_method": config.GetAuthMethod().String(),
		"use_tls":     config.UseTLS,
		"max_retries": config.MaxRetries,
	})

	return &client{
		session: newSession(config, logger),
		config:  config,
		logger:  logger,
	}, nil
}

func validateConfig(config *ConnectionConfig) error {
	switch {
	case len(config.LDAPURLs) == 0 && config.Domain == "":
		return errors.New("either domain or LDAP URLs must be specified")
	case config.Timeout <= 0:
		return errors.New("timeout must be positive")
	case config.MaxRetries < 0:
		return errors.New("MaxRetries cannot be negative")
	case config.MaxRetries > 0 && config.BackoffFactor <= 1.0:
		return errors.New("BackoffFactor must be greater than 1.0")
	case config.PageSize == 0:
		return errors.New("PageSize must be positive")
	}
	return nil
}

// Connect opens and binds the session, then logs the bound identity.
func (c *client) Connect(ctx context.Context) error {
	return LogOperation(c.logger, "connect", map[string]any{"domain": c.config.Domain}, func() error {
		if err := c.session.open(ctx); err != nil {
			return err
		}

		who, err := c.WhoAmI(ctx)
		if err != nil {
			c.logger.Debug("WhoAmI failed after bind", map[string]any{"error": err.Error()})
			return nil
		}
		c.logger.Info("Bound to directory", map[string]any{
			"server":   ServerInfoToURL(c.session.server),
			"authz_id": who.AuthzID,
			"format":   who.Format,
		})
		return nil
	})
}

func (c *client) Close() error {
	return c.session.close()
}

// Server returns the connected server, or nil.
func (c *client) Server() *ServerInfo {
	return c.session.server
}

func (c *client) active() (conn, error) {
	if c.session.conn == nil {
		return nil, NewConnectionError("not connected", false, nil)
	}
	return c.session.conn, nil
}

// Search runs a single-request search.
func (c *client) Search(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	return c.search(ctx, "search", req, func(cn conn, r *ldap.SearchRequest) (*ldap.SearchResult, error) {
		return cn.Search(r)
	})
}

// SearchWithPaging runs a search with the simple paged results control. A
// failure on any page discards everything read so far.
func (c *client) SearchWithPaging(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	return c.search(ctx, "paged_search", req, func(cn conn, r *ldap.SearchRequest) (*ldap.SearchResult, error) {
		return cn.SearchWithPaging(r, c.config.PageSize)
	})
}

type searchFunc func(conn, *ldap.SearchRequest) (*ldap.SearchResult, error)

// search runs one search request. Paged searches carry no size limit, so a
// server limit surfaces as an error rather than a short result.
func (c *client) search(ctx context.Context, operation string, req *SearchRequest, run searchFunc) (*SearchResult, error) {
	if req == nil {
		return nil, errors.New("search request cannot be nil")
	}

	paged := operation == "paged_search"
	sizeLimit := req.SizeLimit
	if paged {
		sizeLimit = 0
	}

	fields := map[string]any{
		"operation":  operation,
		"base_dn":    req.BaseDN,
		"scope":      req.Scope.String(),
		"filter":     req.Filter,
		"attributes": req.Attributes,
		"size_limit": sizeLimit,
	}
	if paged {
		fields["page_size"] = c.config.PageSize
	}

	cn, err := c.active()
	if err != nil {
		return nil, err
	}

	ldapReq := ldap.NewSearchRequest(
		req.BaseDN,
		int(req.Scope),
		ldap.NeverDerefAliases,
		sizeLimit,
		int(req.TimeLimit.Seconds()),
		false,
		req.Filter,
		req.Attributes,
		nil,
	)

	start := time.Now()
	c.logger.Debug("Starting search", fields)

	var result *ldap.SearchResult
	err = c.withRetry(ctx, func() error {
		var searchErr error
		result, searchErr = run(cn, ldapReq)
		return searchErr
	})
	fields["duration_ms"] = time.Since(start).Milliseconds()
	if err != nil {
		LogLDAPError(c.logger, operation, err, fields)
		return nil, NewLDAPErrorWithDN(strings.ReplaceAll(operation, "_", " "), req.BaseDN, err)
	}

	fields["entries_found"] = len(result.Entries)
	c.logger.Debug("Search completed", fields)
	return &SearchResult{Entries: result.Entries}, nil
}

// Modify replaces attribute values on an existing entry.
func (c *client) Modify(ctx context.Context, req *ModifyRequest) error {
	if req == nil {
		return errors.New("modify request cannot be nil")
	}
	if req.DN == "" {
		return errors.New("DN cannot be empty")
	}

	cn, err := c.active()
	if err != nil {
		return err
	}

	ldapReq := ldap.NewModifyRequest(req.DN, nil)
	attrs := make([]string, 0, len(req.ReplaceAttributes))
	for attr, values := range req.ReplaceAttributes {
		ldapReq.Replace(attr, values)
		attrs = append(attrs, attr)
	}
	slices.Sort(attrs)

	fields := map[string]any{
		"dn":         req.DN,
		"attributes": attrs,
	}

	return LogOperation(c.logger, "modify", fields, func() error {
		err := c.withRetry(ctx, func() error {
			return cn.Modify(ldapReq)
		})
		if err != nil {
			LogLDAPError(c.logger, "modify", err, fields)
			return NewLDAPErrorWithDN("modify", req.DN, err)
		}
		return nil
	})
}

// GetBaseDN returns the configured base DN, else the defaultNamingContext of
// the root DSE, else one derived from the domain.
func (c *client) GetBaseDN(ctx context.Context) (string, error) {
	if c.config.BaseDN != "" {
		return c.config.BaseDN, nil
	}

	result, err := c.Search(ctx, &SearchRequest{
		Scope:      ScopeBaseObject,
		Filter:     "(objectClass=*)",
		Attributes: []string{"defaultNamingContext"},
		SizeLimit:  1,
		TimeLimit:  5 * time.Second,
	})
	if err != nil {
		return "", fmt.Errorf("failed to get base DN: %w", err)
	}
	if len(result.Entries) == 0 {
		return "", errors.New("no root DSE found")
	}

	baseDN := result.Entries[0].GetAttributeValue("defaultNamingContext")
	if baseDN == "" {
		if c.config.Domain == "" {
			return "", errors.New("no defaultNamingContext found in root DSE")
		}
		baseDN = DomainToBaseDN(c.config.Domain)
		c.logger.Debug("Root DSE has no defaultNamingContext, using the domain", map[string]any{
			"base_dn": baseDN,
		})
	}
	return baseDN, nil
}

// WhoAmI runs the Who Am I? extended operation (RFC 4532).
func (c *client) WhoAmI(ctx context.Context) (*WhoAmIResult, error) {
	cn, err := c.active()
	if err != nil {
		return nil, err
	}

	var result *ldap.WhoAmIResult
	err = c.withRetry(ctx, func() error {
		var whoamiErr error
		result, whoamiErr = cn.WhoAmI(nil)
		return whoamiErr
	})
	if err != nil {
		return nil, fmt.Errorf("WhoAmI operation failed: %w", err)
	}
	if result == nil {
		return nil, errors.New("WhoAmI operation returned nil result")
	}

	out := &WhoAmIResult{AuthzID: result.AuthzID}
	parseAuthzID(out)
	return out, nil
}

var sidPattern = regexp.MustCompile(`^S-\d+(-\d+)+$`)

// parseAuthzID fills Identity and Format from AuthzID.
func parseAuthzID(result *WhoAmIResult) {
	id := result.AuthzID
	if id == "" {
		result.Format = "empty"
		return
	}

	// Active Directory prefixes u: or dn:
	id = strings.TrimPrefix(strings.TrimPrefix(id, "u:"), "dn:")
	result.Identity = id

	upper := strings.ToUpper(id)
	switch {
	case strings.Contains(upper, "DC=") || strings.Contains(upper, "CN="):
		result.Format = "dn"
	case sidPattern.MatchString(id):
		result.Format = "sid"
	case strings.Contains(id, "\\"):
		result.Format = "sam"
	case strings.Contains(id, "@"):
		result.Format = "upn"
	default:
		result.Format = "unknown"
	}
}

// withRetry runs operation up to MaxRetries+1 times with exponential backoff
// while it fails with a retryable error.
func (c *client) withRetry(ctx context.Context, operation func() error) error {
	backoff := c.config.InitialBackoff

	for attempt := 0; ; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		if !IsRetryableError(err) {
			return err
		}
		if attempt == c.config.MaxRetries {
			if attempt == 0 {
				return err
			}
			return NewConnectionError("operation failed after retries", false, err)
		}

		c.logger.Debug("Retrying operation", map[string]any{
			"attempt":    attempt + 1,
			"max_retry":  c.config.MaxRetries,
			"backoff_ms": backoff.Milliseconds(),
			"last_error": err.Error(),
		})

		select {
		case <-ctx.Done():
			c.logger.Warn("Operation cancelled during retry", map[string]any{
				"context_error": ctx.Err().Error(),
				"attempt":       attempt + 1,
			})
			return ctx.Err()
		case <-time.After(backoff):
			backoff = min(time.Duration(float64(backoff)*c.config.BackoffFactor), c.config.MaxBackoff)
		}
	}
}
