// Package netguard restricts outbound connections when no-network mode
// is on. The policy is an injected dependency consulted at dial time by
// every component that talks to the network, so the restriction is
// explicit in the wiring rather than hidden in process-global state.
package netguard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// ErrNetworkBlocked means no-network mode rejected a non-loopback dial.
var ErrNetworkBlocked = errors.New("netguard: outbound network access blocked")

// Policy gates outbound dials. LoopbackOnly still permits talking to
// local services (the Ollama daemon runs on localhost).
type Policy struct {
	loopbackOnly bool
	dialer       *net.Dialer
}

// New returns a policy. loopbackOnly=false allows everything.
func New(loopbackOnly bool) *Policy {
	return &Policy{
		loopbackOnly: loopbackOnly,
		dialer:       &net.Dialer{Timeout: 10 * time.Second},
	}
}

// LoopbackOnly reports whether the policy restricts to local services.
func (p *Policy) LoopbackOnly() bool { return p.loopbackOnly }

// DialContext is a net.Dialer-compatible dial function that enforces the
// policy.
func (p *Policy) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if p.loopbackOnly && !isLoopbackAddr(addr) {
		return nil, fmt.Errorf("%w: %s", ErrNetworkBlocked, addr)
	}
	return p.dialer.DialContext(ctx, network, addr)
}

// HTTPClient builds an http.Client whose transport dials through the
// policy.
func (p *Policy) HTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: p.DialContext,
		},
	}
}

func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
