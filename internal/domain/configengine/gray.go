package configengine

import (
	"net"
	"strings"

	"github.com/batata-io/batata/internal/transport"
)

// Subscriber is the minimal shape the gray evaluator needs out of a
// connection, kept narrow so configengine never needs to import the
// connection package itself.
type Subscriber struct {
	ConnID string
	PeerIP string
	Labels map[string]string
}

// grayPredicate evaluates a transport.GraySelector against a subscriber,
// implementing staged release as one of three concrete predicate kinds
// matching transport.GraySelector.Kind.
func grayPredicate(sel *transport.GraySelector, sub Subscriber) bool {
	if sel == nil {
		return false
	}
	switch sel.Kind {
	case "ip_range":
		return matchesAnyCIDR(sel.IPRanges, sub.PeerIP)
	case "label_match":
		return matchesLabels(sel.LabelMatch, sub.Labels)
	case "connection_set":
		return containsString(sel.ConnectionIDs, sub.ConnID)
	default:
		return false
	}
}

func matchesAnyCIDR(ranges []string, ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, r := range ranges {
		if !strings.Contains(r, "/") {
			if r == ip {
				return true
			}
			continue
		}
		_, cidr, err := net.ParseCIDR(r)
		if err != nil {
			continue
		}
		if cidr.Contains(parsed) {
			return true
		}
	}
	return false
}

func matchesLabels(want, have map[string]string) bool {
	if len(want) == 0 {
		return false
	}
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// stripPort normalizes "1.2.3.4:5555" peer addresses down to the bare IP
// for CIDR matching.
func stripPort(peerAddr string) string {
	host, _, err := net.SplitHostPort(peerAddr)
	if err != nil {
		return peerAddr
	}
	return host
}
