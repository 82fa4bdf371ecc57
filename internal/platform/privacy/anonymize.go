// Package privacy keeps PII out of logs. Attempt metadata stores full
// addresses for incident response; everything written to the log stream goes
// through here first.
package privacy

import (
	"fmt"
	"net"
)

// AnonymizeIP truncates an address to its network prefix before logging:
// IPv4 to /24 (last octet zeroed), IPv6 to /48. Empty input reads as
// "unknown", unparseable input as "invalid".
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "invalid"
	}

	if v4 := parsed.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.%d.0", v4[0], v4[1], v4[2])
	}

	return fmt.Sprintf("%02x%02x:%02x%02x:%02x%02x::",
		parsed[0], parsed[1],
		parsed[2], parsed[3],
		parsed[4], parsed[5])
}
