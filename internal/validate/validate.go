// Package validate checks user-supplied names and addresses before they
// reach the settings store or a listener.
package validate

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
)

// IdentRe matches valid instance names.
// Must start with alphanumeric, followed by alphanumeric, dots, hyphens, or underscores.
var IdentRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// MaxIdentLen is the maximum length for instance names.
const MaxIdentLen = 128

// Ident reports whether s is usable as an instance name, which becomes a
// directory under the hmibridge home.
func Ident(s string) bool {
	return len(s) > 0 && len(s) <= MaxIdentLen && IdentRe.MatchString(s)
}

// ListenAddr checks that addr is a host:port pair a TCP listener accepts.
// The host may be empty (all interfaces) and port 0 asks for any free port.
func ListenAddr(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("invalid port %q in listen address %q", port, addr)
	}
	if host != "" && host != "localhost" && net.ParseIP(host) == nil && !IdentRe.MatchString(host) {
		return fmt.Errorf("invalid host %q in listen address %q", host, addr)
	}
	return nil
}
