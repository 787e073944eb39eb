package ldap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// conn is the part of *ldap.Conn a session uses.
type conn interface {
	Bind(username, password string) error
	UnauthenticatedBind(username string) error
	GSSAPIBind(client ldap.GSSAPIClient, servicePrincipal, authzid string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	SearchWithPaging(req *ldap.SearchRequest, pagingSize uint32) (*ldap.SearchResult, error)
	Modify(req *ldap.ModifyRequest) error
	WhoAmI(controls []ldap.Control) (*ldap.WhoAmIResult, error)
	Close() error
}

// dialFunc opens a transport-level connection to one server.
type dialFunc func(ctx context.Context, server *ServerInfo, cfg *ConnectionConfig) (conn, error)

// session owns the single authenticated connection of a run.
type session struct {
	config    *ConnectionConfig
	logger    Logger
	discovery *SRVDiscovery
	dial      dialFunc
	authn     func(c conn, cfg *ConnectionConfig, server *ServerInfo, logger Logger) error

	servers []*ServerInfo
	conn    conn
	server  *ServerInfo
}

func newSession(cfg *ConnectionConfig, logger Logger) *session {
	return &session{
		config:    cfg,
		logger:    logger,
		discovery: NewSRVDiscovery(logger),
		dial:      dialServer,
		authn:     authenticate,
	}
}

// resolveServers returns the configured servers, or the ones discovered for
// the domain when no URLs are configured.
func (s *session) resolveServers(ctx context.Context) ([]*ServerInfo, error) {
	if s.servers != nil {
		return s.servers, nil
	}

	start := time.Now()
	var servers []*ServerInfo

	switch {
	case len(s.config.LDAPURLs) > 0:
		s.logger.Debug("Using configured LDAP URLs", map[string]any{
			"urls": s.config.LDAPURLs,
		})
		for _, url := range s.config.LDAPURLs {
			server, err := ParseLDAPURL(url)
			if err != nil {
				return nil, fmt.Errorf("invalid LDAP URL %s: %w", url, err)
			}
			servers = append(servers, server)
		}
	case s.config.Domain != "":
		dctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()

		discovered, err := s.discovery.DiscoverServers(dctx, s.config.Domain)
		if err != nil {
			return nil, fmt.Errorf("SRV discovery failed: %w", err)
		}
		servers = discovered
	default:
		return nil, errors.New("either domain or LDAP URLs must be specified")
	}

	if len(servers) == 0 {
		return nil, errors.New("no servers discovered")
	}

	s.logger.Debug("Server resolution completed", map[string]any{
		"duration":     time.Since(start).String(),
		"server_count": len(servers),
	})

	s.servers = servers
	return servers, nil
}

// open connects and authenticates against the first server that accepts the
// session, trying servers in priority order.
func (s *session) open(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}

	servers, err := s.resolveServers(ctx)
	if err != nil {
		return NewConnectionError("failed to resolve directory servers", false, err)
	}

	var lastErr error
	backoff := s.config.InitialBackoff

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		for _, server := range servers {
			if err := ctx.Err(); err != nil {
				return err
			}

			c, err := s.openServer(ctx, server)
			if err != nil {
				lastErr = err
				LogConnectionEvent(s.logger, "connection_failed", map[string]any{
					"server": ServerInfoToURL(server),
					"error":  err.Error(),
				})
				continue
			}

			s.conn = c
			s.server = server
			LogConnectionEvent(s.logger, "connection_established", map[string]any{
				"server":      ServerInfoToURL(server),
				"source":      server.Source,
				"auth_method": s.config.GetAuthMethod().String(),
			})
			return nil
		}

		if attempt < s.config.MaxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff = min(time.Duration(float64(backoff)*s.config.BackoffFactor), s.config.MaxBackoff)
			}
		}
	}

	return NewConnectionError("failed to connect to any directory server", false, lastErr)
}

// openServer dials and authenticates against a single server.
func (s *session) openServer(ctx context.Context, server *ServerInfo) (conn, error) {
	url := ServerInfoToURL(server)
	LogConnectionEvent(s.logger, "connection_attempt", map[string]any{
		"server": url,
	})

	c, err := s.dial(ctx, server, s.config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	if err := s.authn(c, s.config, server, s.logger); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to authenticate connection to %s: %w", url, err)
	}

	return c, nil
}

// close releases the connection. It is safe to call more than once.
func (s *session) close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.server = nil
	return err
}

// dialServer opens an LDAPS connection or a plain one upgraded with StartTLS.
func dialServer(_ context.Context, server *ServerInfo, cfg *ConnectionConfig) (conn, error) {
	url := ServerInfoToURL(server)
	dialer := &net.Dialer{Timeout: cfg.Timeout}

	var c *ldap.Conn
	var err error

	if server.UseTLS {
		c, err = ldap.DialURL(url, ldap.DialWithTLSConfig(serverTLSConfig(cfg.TLSConfig, server.Host)), ldap.DialWithDialer(dialer))
	} else {
		c, err = ldap.DialURL(url, ldap.DialWithDialer(dialer))
		if err == nil && cfg.UseTLS && !cfg.SkipTLS {
			if tlsErr := c.StartTLS(serverTLSConfig(cfg.TLSConfig, server.Host)); tlsErr != nil {
				_ = c.Close()
				return nil, fmt.Errorf("StartTLS failed: %w", tlsErr)
			}
		}
	}
	if err != nil {
		return nil, err
	}

	c.SetTimeout(cfg.Timeout)
	return c, nil
}

// serverTLSConfig clones the TLS configuration for one server so the
// certificate is verified against that host name.
func serverTLSConfig(base *tls.Config, host string) *tls.Config {
	if base == nil {
		return &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}
	}
	cfg := base.Clone()
	if !cfg.InsecureSkipVerify {
		cfg.ServerName = host
	}
	return cfg
}

// authenticate binds the connection using the configured method.
func authenticate(c conn, cfg *ConnectionConfig, server *ServerInfo, logger Logger) error {
	authMethod := cfg.GetAuthMethod()
	fields := map[string]any{
		"auth_method": authMethod.String(),
		"username":    cfg.Username,
	}
	LogConnectionEvent(logger, "authentication_attempt", fields)

	var err error
	switch authMethod {
	case AuthMethodSimpleBind:
		err = c.Bind(cfg.Username, cfg.Password)
	case AuthMethodKerberos:
		err = performKerberosAuth(c, cfg, server, logger)
	case AuthMethodExternal:
		err = c.UnauthenticatedBind("")
	default:
		err = fmt.Errorf("unsupported authentication method: %s", authMethod.String())
	}

	if err != nil {
		LogLDAPError(logger, "bind", err, fields)
		LogConnectionEvent(logger, "authentication_failed", fields)
		return err
	}

	LogConnectionEvent(logger, "authentication_success", fields)
	return nil
}
