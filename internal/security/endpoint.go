package security

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidateUpstreamURL checks a configured provider base URL before the
// service starts sending credentials to it. The URL must be absolute http(s)
// with a host. Unless allowPrivate is set, it must also be https and must
// not name a loopback, private, link-local or metadata host; development
// setups pass allowPrivate to reach local model servers and test doubles.
// Only literal hosts are checked; no DNS lookup is made.
func ValidateUpstreamURL(rawURL string, allowPrivate bool) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format")
	}

	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("URL scheme must be http or https")
	}

	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}

	if allowPrivate {
		return nil
	}

	if u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be https")
	}

	host := u.Hostname()

	blocked := []string{"localhost", "metadata.google.internal", "metadata.google"}
	for _, b := range blocked {
		if strings.EqualFold(host, b) {
			return fmt.Errorf("URL host %q is not allowed", host)
		}
	}

	if ip := net.ParseIP(host); ip != nil {
		return checkIP(ip)
	}
	return nil
}

func checkIP(ip net.IP) error {
	if ip.IsLoopback() {
		return fmt.Errorf("loopback addresses are not allowed")
	}
	if ip.IsPrivate() {
		return fmt.Errorf("private addresses are not allowed")
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return fmt.Errorf("link-local addresses are not allowed")
	}
	if ip.IsUnspecified() {
		return fmt.Errorf("unspecified addresses are not allowed")
	}
	return nil
}
