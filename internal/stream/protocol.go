package stream

import "strings"

// Protocol selects the delivery mechanism for a stream session.
type Protocol string

// Supported delivery protocols. DefaultProtocol applies when a PLAY command
// carries no PROTOCOL suffix.
const (
	ProtocolUDP Protocol = "UDP"     // continuous push over UDP
	ProtocolTCP Protocol = "TCP"     // listen-mode push over TCP
	ProtocolRTP Protocol = "RTP/UDP" // session-described push
	ProtocolHLS Protocol = "HLS"     // manifest-driven segmented delivery

	DefaultProtocol = ProtocolUDP
)

// ParseProtocol matches a protocol token case-insensitively.
func ParseProtocol(s string) (Protocol, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "UDP":
		return ProtocolUDP, true
	case "TCP":
		return ProtocolTCP, true
	case "RTP/UDP", "RTP":
		return ProtocolRTP, true
	case "HLS":
		return ProtocolHLS, true
	}
	return "", false
}
