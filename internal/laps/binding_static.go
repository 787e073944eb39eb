package laps

import (
	"context"
	"strings"
)

// StaticSource returns a binding taken from configuration.
type StaticSource struct {
	info BindingInfo
}

// NewStaticSource returns a source for info. A missing NodeName is derived
// from the domain.
func NewStaticSource(info BindingInfo) *StaticSource {
	info.DomainNameDns = strings.ToLower(strings.TrimSpace(info.DomainNameDns))
	if info.NodeName == "" {
		info.NodeName = NodeNameForDomain(info.DomainNameDns)
	}
	return &StaticSource{info: info}
}

// Binding returns the configured binding, or ErrNoBinding when neither the
// domain nor the trust account is configured.
func (s *StaticSource) Binding(_ context.Context) (*BindingInfo, error) {
	if s.info.DomainNameDns == "" && s.info.TrustAccount == "" {
		return nil, ErrNoBinding
	}
	info := s.info
	return &info, nil
}
