package transport

import (
	"context"
	"fmt"
	"net"
	"slices"
	"strconv"
)

// NetResolver resolves hosts through DNS. Candidates keep the order the
// resolver returned them in.
type NetResolver struct {
	Resolver *net.Resolver // nil uses net.DefaultResolver
}

// Resolve returns host:port endpoints for every address of host.
func (r NetResolver) Resolve(ctx context.Context, host string, port int) ([]string, error) {
	p := strconv.Itoa(port)

	if ip := net.ParseIP(host); ip != nil {
		return []string{net.JoinHostPort(host, p)}, nil
	}

	res := r.Resolver
	if res == nil {
		res = net.DefaultResolver
	}

	addrs, err := res.LookupHost(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoEndpoints, host)
	}

	endpoints := make([]string, 0, len(addrs))
	for _, a := range addrs {
		endpoints = append(endpoints, net.JoinHostPort(a, p))
	}
	return endpoints, nil
}

// StaticResolver always returns the same endpoints, ignoring host and port.
type StaticResolver []string

// Resolve returns a copy of the configured endpoints.
func (s StaticResolver) Resolve(_ context.Context, _ string, _ int) ([]string, error) {
	if len(s) == 0 {
		return nil, ErrNoEndpoints
	}
	return slices.Clone([]string(s)), nil
}
