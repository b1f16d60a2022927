package broker

import "strings"

// MatchTopic reports whether a dot-segmented routing key matches a binding
// pattern. "*" matches exactly one segment, "#" matches zero or more.
//
//	order.created          matches order.* and #
//	order.payment.completed matches # but not order.*
func MatchTopic(pattern, routingKey string) bool {
	return matchSegments(strings.Split(pattern, "."), strings.Split(routingKey, "."))
}

func matchSegments(pattern, key []string) bool {
	if len(pattern) == 0 {
		return len(key) == 0
	}

	switch pattern[0] {
	case "#":
		// Try consuming zero segments first, then one more each time.
		for i := 0; i <= len(key); i++ {
			if matchSegments(pattern[1:], key[i:]) {
				return true
			}
		}
		return false
	case "*":
		return len(key) > 0 && matchSegments(pattern[1:], key[1:])
	default:
		return len(key) > 0 && pattern[0] == key[0] && matchSegments(pattern[1:], key[1:])
	}
}
