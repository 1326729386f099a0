package security

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
	"time"
)

// privateIPRanges contains CIDR ranges the stream proxy must never reach
var privateIPRanges = []string{
	"127.0.0.0/8",    // IPv4 loopback
	"10.0.0.0/8",     // RFC1918 private
	"172.16.0.0/12",  // RFC1918 private
	"192.168.0.0/16", // RFC1918 private
	"100.64.0.0/10",  // Carrier-grade NAT
	"169.254.0.0/16", // Link-local and cloud metadata
	"::1/128",        // IPv6 loopback
	"fc00::/7",       // IPv6 unique local
	"fe80::/10",      // IPv6 link-local
	"0.0.0.0/8",      // "This" network
}

// blockedHostnames are refused before any DNS lookup
var blockedHostnames = []string{
	"localhost",
	"localhost.localdomain",
	"ip6-localhost",
	"ip6-loopback",
	"metadata.google.internal",
	"kubernetes.default.svc",
	"kubernetes.default",
}

var parsedCIDRs []*net.IPNet

func init() {
	for _, cidr := range privateIPRanges {
		_, network, err := net.ParseCIDR(cidr)
		if err == nil {
			parsedCIDRs = append(parsedCIDRs, network)
		}
	}
}

// IsPrivateIP checks if an IP address is in a private/internal range
func IsPrivateIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if ip.IsUnspecified() || ip.IsMulticast() {
		return true
	}
	for _, network := range parsedCIDRs {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// IsBlockedHostname checks a hostname and its parents against the blocklist
func IsBlockedHostname(hostname string) bool {
	hostname = strings.ToLower(strings.TrimSuffix(hostname, "."))
	for _, blocked := range blockedHostnames {
		if hostname == blocked || strings.HasSuffix(hostname, "."+blocked) {
			return true
		}
	}
	return false
}

// ValidateUpstreamURL checks a URL the stream proxy is asked to fetch. It
// rejects non-http schemes, blocked hostnames and literal private IPs.
// Hostnames are checked against their resolved address at dial time by
// SafeDialer, so this function never does DNS.
func ValidateUpstreamURL(rawURL string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("only http and https schemes are allowed")
	}

	hostname := parsedURL.Hostname()
	if hostname == "" {
		return fmt.Errorf("URL must have a hostname")
	}

	if IsBlockedHostname(hostname) {
		return fmt.Errorf("access to internal hostname '%s' is not allowed", hostname)
	}

	if ip := net.ParseIP(hostname); ip != nil && IsPrivateIP(ip) {
		return fmt.Errorf("access to private IP address '%s' is not allowed", hostname)
	}

	return nil
}

// SafeDialer returns a dialer that refuses connections to private addresses
// after DNS resolution, which also covers rebinding between check and fetch
func SafeDialer(timeout time.Duration) *net.Dialer {
	return &net.Dialer{
		Timeout: timeout,
		Control: func(network, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			if IsPrivateIP(net.ParseIP(host)) {
				return fmt.Errorf("connection to private address %s blocked", host)
			}
			return nil
		},
	}
}
