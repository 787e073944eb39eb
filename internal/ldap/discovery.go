package ldap

import (
	"cmp"
	"context"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"
)

// SRVResolver is the subset of *net.Resolver used for discovery.
type SRVResolver interface {
	LookupSRV(ctx context.Context, service, proto, name string) (string, []*net.SRV, error)
}

// SRVDiscovery finds the domain controllers of a domain through DNS.
type SRVDiscovery struct {
	logger   Logger
	resolver SRVResolver
}

// NewSRVDiscovery returns a discovery using the default resolver.
func NewSRVDiscovery(logger Logger) *SRVDiscovery {
	if logger == nil {
		logger = NopLogger{}
	}
	return &SRVDiscovery{logger: logger, resolver: net.DefaultResolver}
}

// srvServices are queried in order. LDAPS answers end the search; plain LDAP
// and global catalog answers are collected together.
var srvServices = []struct {
	prefix string
	useTLS bool
}{
	{"_ldaps._tcp.", true},
	{"_ldap._tcp.", false},
	{"_gc._tcp.", false},
}

// DiscoverServers returns the controllers of domain ordered by SRV priority
// and weight. With no SRV answers it falls back to the domain name itself.
func (d *SRVDiscovery) DiscoverServers(ctx context.Context, domain string) ([]*ServerInfo, error) {
	if domain == "" {
		return nil, fmt.Errorf("domain cannot be empty")
	}

	start := time.Now()
	d.logger.Debug("Discovering domain controllers", map[string]any{"domain": domain})

	var servers []*ServerInfo
	for _, svc := range srvServices {
		found, err := d.lookupSRV(ctx, svc.prefix+domain, svc.useTLS)
		if err != nil {
			d.logger.Debug("SRV lookup failed", map[string]any{
				"service": svc.prefix + domain,
				"error":   err.Error(),
			})
			continue
		}
		servers = append(servers, found...)
		if svc.useTLS {
			break
		}
	}

	if len(servers) == 0 {
		d.logger.Debug("No SRV records found, using the domain name", map[string]any{
			"domain":   domain,
			"duration": time.Since(start).String(),
		})
		return []*ServerInfo{
			{Host: domain, Port: 636, UseTLS: true, Priority: 0, Weight: 100, Source: "fallback"},
			{Host: domain, Port: 389, UseTLS: false, Priority: 1, Weight: 100, Source: "fallback"},
		}, nil
	}

	sortServersByPriority(servers)

	d.logger.Debug("Discovered domain controllers", map[string]any{
		"duration":     time.Since(start).String(),
		"server_count": len(servers),
	})
	return servers, nil
}

func (d *SRVDiscovery) lookupSRV(ctx context.Context, name string, useTLS bool) ([]*ServerInfo, error) {
	_, records, err := d.resolver.LookupSRV(ctx, "", "", name)
	if err != nil {
		return nil, fmt.Errorf("SRV lookup failed for %s: %w", name, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no SRV records found for %s", name)
	}

	servers := make([]*ServerInfo, 0, len(records))
	for _, srv := range records {
		servers = append(servers, &ServerInfo{
			Host:     strings.TrimSuffix(srv.Target, "."),
			Port:     int(srv.Port),
			UseTLS:   useTLS,
			Priority: int(srv.Priority),
			Weight:   int(srv.Weight),
			Source:   "srv",
		})
	}
	return servers, nil
}

// sortServersByPriority orders by ascending priority, then descending weight
// (RFC 2782), keeping the order of equal entries.
func sortServersByPriority(servers []*ServerInfo) {
	slices.SortStableFunc(servers, func(a, b *ServerInfo) int {
		if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}
		return cmp.Compare(b.Weight, a.Weight)
	})
}

// ValidateServerInfo checks host, port and SRV fields.
func ValidateServerInfo(server *ServerInfo) error {
	switch {
	case server == nil:
		return fmt.Errorf("server info cannot be nil")
	case server.Host == "":
		return fmt.Errorf("server host cannot be empty")
	case server.Port <= 0 || server.Port > 65535:
		return fmt.Errorf("invalid port number: %d", server.Port)
	case server.Priority < 0:
		return fmt.Errorf("priority cannot be negative: %d", server.Priority)
	case server.Weight < 0:
		return fmt.Errorf("weight cannot be negative: %d", server.Weight)
	}
	return nil
}

// ServerInfoToURL renders server as scheme://host:port.
func ServerInfoToURL(server *ServerInfo) string {
	scheme := "ldap"
	if server.UseTLS {
		scheme = "ldaps"
	}
	return scheme + "://" + net.JoinHostPort(server.Host, strconv.Itoa(server.Port))
}

func defaultPort(useTLS bool) int {
	if useTLS {
		return 636
	}
	return 389
}

// PreferredServerURL turns a preferred domain controller setting into an LDAP
// URL. Full ldap:// or ldaps:// URLs are kept; a bare host (optionally with a
// port) gets LDAPS on 636, or plain LDAP on 389 when useTLS is false.
func PreferredServerURL(preferred string, useTLS bool) (string, error) {
	preferred = strings.TrimSpace(preferred)
	if preferred == "" {
		return "", fmt.Errorf("preferred server cannot be empty")
	}

	if strings.Contains(preferred, "://") {
		server, err := ParseLDAPURL(preferred)
		if err != nil {
			return "", err
		}
		return ServerInfoToURL(server), nil
	}

	server := &ServerInfo{Host: preferred, Port: defaultPort(useTLS), UseTLS: useTLS, Weight: 100, Source: "preferred"}
	if host, port, err := net.SplitHostPort(preferred); err == nil {
		p, err := strconv.Atoi(port)
		if err != nil {
			return "", fmt.Errorf("invalid port number: %s", port)
		}
		server.Host, server.Port = host, p
	}

	if err := ValidateServerInfo(server); err != nil {
		return "", err
	}
	return ServerInfoToURL(server), nil
}

// ParseLDAPURL parses an ldap:// or ldaps:// URL. Any DN in the path is
// ignored.
func ParseLDAPURL(rawURL string) (*ServerInfo, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid LDAP URL: %w", err)
	}

	var useTLS bool
	switch strings.ToLower(u.Scheme) {
	case "ldaps":
		useTLS = true
	case "ldap":
	default:
		return nil, fmt.Errorf("unsupported scheme, must be ldap:// or ldaps://")
	}

	server := &ServerInfo{
		Host:   u.Hostname(),
		Port:   defaultPort(useTLS),
		UseTLS: useTLS,
		Weight: 100,
		Source: "config",
	}
	if p := u.Port(); p != "" {
		if server.Port, err = strconv.Atoi(p); err != nil {
			return nil, fmt.Errorf("invalid port number: %s", p)
		}
	}

	return server, ValidateServerInfo(server)
}
