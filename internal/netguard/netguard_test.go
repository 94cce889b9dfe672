package netguard

import (
	"context"
	"errors"
	"net"
	"testing"
)

func TestLoopbackOnlyBlocksRemoteHosts(t *testing.T) {
	p := New(true)
	for _, addr := range []string{"example.com:443", "10.0.0.5:80", "8.8.8.8:53"} {
		_, err := p.DialContext(context.Background(), "tcp", addr)
		if !errors.Is(err, ErrNetworkBlocked) {
			t.Errorf("dial %s: expected ErrNetworkBlocked, got %v", addr, err)
		}
	}
}

func TestLoopbackOnlyAllowsLocalServices(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	p := New(true)
	conn, err := p.DialContext(context.Background(), "tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial loopback: %v", err)
	}
	conn.Close()
}

func TestUnrestrictedPolicyChecksNothing(t *testing.T) {
	p := New(false)
	if p.LoopbackOnly() {
		t.Error("policy should be unrestricted")
	}
	// A refused connection is a dial error, never a policy error.
	_, err := p.DialContext(context.Background(), "tcp", "127.0.0.1:1")
	if errors.Is(err, ErrNetworkBlocked) {
		t.Errorf("unrestricted policy returned ErrNetworkBlocked: %v", err)
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	cases := map[string]bool{
		"localhost:11434": true,
		"127.0.0.1:11434": true,
		"[::1]:11434":     true,
		"example.com:80":  false,
		"192.168.1.4:80":  false,
	}
	for addr, want := range cases {
		if got := isLoopbackAddr(addr); got != want {
			t.Errorf("isLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}
