package pool

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/zero-day-ai/climber/beanstalk"
)

const (
	// Scheme is the only URL scheme accepted in address specs.
	Scheme = "beanstalk"

	// EnvAddresses names the environment variable consulted when no address
	// is given.
	EnvAddresses = "BEANSTALK_URL"

	// DefaultAddress is used when neither addresses nor the environment
	// name a server.
	DefaultAddress = "localhost:11300"
)

var (
	// ErrInvalidScheme is returned for a URL whose scheme is not beanstalk.
	ErrInvalidScheme = errors.New("invalid beanstalk URI scheme")

	// ErrInvalidAddress is returned for a spec with no host or a bad port.
	ErrInvalidAddress = errors.New("invalid beanstalk address")

	// ErrNoAddresses is returned when a list of specs holds no address.
	ErrNoAddresses = errors.New("no beanstalk addresses")
)

var separators = regexp.MustCompile(`[\s,]+`)

// ParseAddresses normalizes address specs into host:port strings. Each spec
// may hold several addresses separated by whitespace or commas, and each
// address is one of:
//
//	localhost
//	192.168.1.100:11300
//	beanstalk://127.0.0.1:11300
//
// The port defaults to 11300. Order is preserved.
func ParseAddresses(specs ...string) ([]string, error) {
	var addrs []string
	for _, spec := range specs {
		for _, field := range separators.Split(spec, -1) {
			if field == "" {
				continue
			}
			addr, err := parseAddress(field)
			if err != nil {
				return nil, err
			}
			addrs = append(addrs, addr)
		}
	}
	if len(addrs) == 0 {
		return nil, ErrNoAddresses
	}
	return addrs, nil
}

// Resolve is ParseAddresses with fallbacks: when specs hold no address the
// BEANSTALK_URL environment variable is parsed instead, and when that is
// unset DefaultAddress is used.
func Resolve(specs ...string) ([]string, error) {
	addrs, err := ParseAddresses(specs...)
	if !errors.Is(err, ErrNoAddresses) {
		return addrs, err
	}
	if env := os.Getenv(EnvAddresses); strings.TrimSpace(env) != "" {
		return ParseAddresses(env)
	}
	return []string{DefaultAddress}, nil
}

func parseAddress(raw string) (string, error) {
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrInvalidAddress, raw, err)
		}
		if u.Scheme != Scheme {
			return "", fmt.Errorf("%w: %s", ErrInvalidScheme, raw)
		}
		return joinHostPort(raw, u.Hostname(), u.Port())
	}

	host, port := raw, ""
	if strings.Contains(raw, ":") {
		var err error
		host, port, err = net.SplitHostPort(raw)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrInvalidAddress, raw, err)
		}
	}
	return joinHostPort(raw, host, port)
}

func joinHostPort(raw, host, port string) (string, error) {
	if host == "" {
		return "", fmt.Errorf("%w: %s: missing host", ErrInvalidAddress, raw)
	}
	if port == "" {
		port = strconv.Itoa(beanstalk.DefaultPort)
	}
	if n, err := strconv.ParseUint(port, 10, 16); err != nil || n == 0 {
		return "", fmt.Errorf("%w: %s: bad port %q", ErrInvalidAddress, raw, port)
	}
	return net.JoinHostPort(host, port), nil
}
