package trust

import "net"

// IsPublicIP reports whether the address is a routable public IP.
// Private, loopback, link-local, unspecified, and otherwise reserved
// ranges all return false. Unparseable input returns false: an address
// we cannot classify is not treated as public.
func IsPublicIP(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	switch {
	case ip.IsPrivate(),
		ip.IsLoopback(),
		ip.IsLinkLocalUnicast(),
		ip.IsLinkLocalMulticast(),
		ip.IsMulticast(),
		ip.IsUnspecified():
		return false
	}
	// Carrier-grade NAT (100.64.0.0/10) is not covered by IsPrivate.
	if v4 := ip.To4(); v4 != nil && v4[0] == 100 && v4[1] >= 64 && v4[1] <= 127 {
		return false
	}
	return true
}
