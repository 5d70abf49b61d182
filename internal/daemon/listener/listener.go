// Package listener binds the daemon's control socket: a Unix socket by
// default, or a TCP listener that refuses non-loopback addresses unless
// remote access is explicitly allowed.
package listener

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/castd/castd/internal/config"
)

// New opens the listener described by cfg. A TCP address takes
// precedence over a socket path; the unused socket is never created.
func New(cfg config.ListenConfig) (net.Listener, error) {
	if cfg.TCPAddr != "" {
		return newTCP(cfg.TCPAddr, cfg.AllowRemote)
	}
	if cfg.SocketPath != "" {
		return newUnix(cfg.SocketPath)
	}
	return nil, fmt.Errorf("no listen address configured")
}

func newTCP(addr string, allowRemote bool) (net.Listener, error) {
	if !allowRemote && isRemoteAddr(addr) {
		return nil, fmt.Errorf("refusing to bind non-local address %q: set daemon.listen.allow_remote to expose the API", addr)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	return ln, nil
}

// newUnix binds a Unix socket with owner-only permissions. A stale
// socket or leftover file at the path is removed first; a daemon that
// is actually still running holds the PID file, not the inode.
func newUnix(path string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating socket directory: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale socket: %w", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("restricting socket permissions: %w", err)
	}
	return ln, nil
}

// isRemoteAddr reports whether addr would accept connections from other
// hosts. Empty hosts bind every interface, so they count as remote.
func isRemoteAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		// No port; treat the whole string as the host.
		host = addr
	}
	if host == "" {
		return true
	}
	if host == "localhost" {
		return false
	}
	ip := net.ParseIP(host)
	if ip == nil {
		// Hostnames other than localhost may resolve anywhere.
		return true
	}
	return !ip.IsLoopback()
}

// ParseCastdHost turns a CASTD_HOST-style value into listen settings.
// Accepted forms are unix:///path/to/socket and tcp://host:port; the
// empty string means no override and yields a nil config. The API is
// plaintext HTTP, so TLS schemes are rejected rather than silently
// downgraded.
func ParseCastdHost(host string) (*config.ListenConfig, error) {
	if host == "" {
		return nil, nil
	}

	switch {
	case strings.HasPrefix(host, "unix://"):
		return &config.ListenConfig{SocketPath: strings.TrimPrefix(host, "unix://")}, nil

	case strings.HasPrefix(host, "tcp://"):
		return &config.ListenConfig{TCPAddr: strings.TrimPrefix(host, "tcp://")}, nil

	case strings.HasPrefix(host, "http://"), strings.HasPrefix(host, "https://"):
		return nil, fmt.Errorf("unsupported scheme in %q: the control API speaks plain HTTP over unix:// or tcp://", host)

	default:
		return nil, fmt.Errorf("invalid listen address %q (must start with unix:// or tcp://)", host)
	}
}
