package workflows

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

// ValidateWebhookURL vets a tenant-supplied webhook target before it is saved
// and again before every dispatch. Tenants control these URLs, so the guard
// assumes hostile input.
//
// Rejected:
// - non-http(s) schemes
// - embedded credentials
// - localhost / loopback / metadata-service hostnames
// - RFC1918 IPv4 (10/8, 172.16/12, 192.168/16) and 169.254/16 link-local,
//   including literal IP hosts
// - IPv6 loopback, unique-local (fc00::/7) and link-local (fe80::/10)
//
// Hostname-based targets that resolve to private addresses at connect time
// are outside this check's reach; egress should also be network-restricted.
func ValidateWebhookURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: unparseable url", ErrWebhookURLDenied)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrWebhookURLDenied, u.Scheme)
	}
	if u.User != nil {
		return fmt.Errorf("%w: embedded credentials", ErrWebhookURLDenied)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrWebhookURLDenied)
	}

	switch host {
	case "localhost", "metadata", "metadata.google.internal", "metadata.internal":
		return fmt.Errorf("%w: host %q", ErrWebhookURLDenied, host)
	}
	if strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
		return fmt.Errorf("%w: host %q", ErrWebhookURLDenied, host)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if err := vetAddr(addr); err != nil {
			return err
		}
	}
	return nil
}

func vetAddr(addr netip.Addr) error {
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() || addr.IsUnspecified() {
		return fmt.Errorf("%w: address %s", ErrWebhookURLDenied, addr)
	}
	if addr.Is4() {
		if isPrivateIPv4(addr) {
			return fmt.Errorf("%w: private address %s", ErrWebhookURLDenied, addr)
		}
		return nil
	}
	// fc00::/7 unique-local.
	if b := addr.As16(); b[0]&0xfe == 0xfc {
		return fmt.Errorf("%w: unique-local address %s", ErrWebhookURLDenied, addr)
	}
	return nil
}

func isPrivateIPv4(addr netip.Addr) bool {
	b := addr.As4()
	switch {
	case b[0] == 10:
		return true
	case b[0] == 172 && b[1] >= 16 && b[1] <= 31:
		return true
	case b[0] == 192 && b[1] == 168:
		return true
	case b[0] == 169 && b[1] == 254:
		return true
	}
	return false
}
