package laps

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/ini.v1"
)

// DefaultSSSDConfPath is where realmd writes the sssd configuration of a
// joined host.
const DefaultSSSDConfPath = "/etc/sssd/sssd.conf"

const sssdDomainPrefix = "domain/"

// SSSDSource reads the binding of a host joined with realmd/sssd.
type SSSDSource struct {
	path     string
	hostname func() (string, error)
}

// NewSSSDSource returns a source reading path, or DefaultSSSDConfPath when
// path is empty. hostname is used to derive the trust account when sssd.conf
// does not name it; nil means os.Hostname.
func NewSSSDSource(path string, hostname func() (string, error)) *SSSDSource {
	if path == "" {
		path = DefaultSSSDConfPath
	}
	if hostname == nil {
		hostname = os.Hostname
	}
	return &SSSDSource{path: path, hostname: hostname}
}

// Binding returns the first sssd domain served by the ad provider. A missing
// file or a file without such a domain means the host is unbound.
func (s *SSSDSource) Binding(_ context.Context) (*BindingInfo, error) {
	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoBinding
	}

	cfg, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}

	for _, section := range s.domainSections(cfg) {
		if !strings.EqualFold(section.Key("id_provider").String(), "ad") {
			continue
		}
		return s.bindingFromSection(section)
	}

	return nil, ErrNoBinding
}

// domainSections returns the [domain/*] sections, in the order the [sssd]
// domains list gives when present, else in file order.
func (s *SSSDSource) domainSections(cfg *ini.File) []*ini.Section {
	var sections []*ini.Section

	if listed := cfg.Section("sssd").Key("domains").Strings(","); len(listed) > 0 {
		for _, name := range listed {
			if section, err := cfg.GetSection(sssdDomainPrefix + name); err == nil {
				sections = append(sections, section)
			}
		}
		return sections
	}

	for _, section := range cfg.Sections() {
		if strings.HasPrefix(section.Name(), sssdDomainPrefix) {
			sections = append(sections, section)
		}
	}
	return sections
}

func (s *SSSDSource) bindingFromSection(section *ini.Section) (*BindingInfo, error) {
	domain := section.Key("ad_domain").String()
	if domain == "" {
		domain = strings.TrimPrefix(section.Name(), sssdDomainPrefix)
	}
	domain = strings.ToLower(strings.TrimSpace(domain))

	info := &BindingInfo{
		NodeName:      NodeNameForDomain(domain),
		DomainNameDns: domain,
		Realm:         strings.ToUpper(section.Key("krb5_realm").String()),
	}

	for _, server := range section.Key("ad_server").Strings(",") {
		if server != "_srv_" {
			info.Server = server
			break
		}
	}

	switch authid := section.Key("ldap_sasl_authid").String(); {
	case authid != "":
		account, _, _ := strings.Cut(authid, "@")
		info.TrustAccount = account
	default:
		host := section.Key("ad_hostname").String()
		if host == "" {
			h, err := s.hostname()
			if err != nil {
				return nil, fmt.Errorf("failed to determine host name: %w", err)
			}
			host = h
		}
		info.TrustAccount = TrustAccountForHost(host)
	}

	return info, nil
}
