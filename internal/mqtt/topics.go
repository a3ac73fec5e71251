package mqtt

import "strings"

// Message kinds, the last topic segment.
const (
	KindSolve     = "solve"
	KindSolved    = "solved"
	KindStrike    = "strike"
	KindRegister  = "register"
	KindHeartbeat = "heartbeat"
)

// Topics builds and parses the topic tree under a prefix:
//
//	<prefix>/devices/<device>/register            device -> engine
//	<prefix>/devices/<device>/heartbeat           device -> engine
//	<prefix>/devices/<device>/strike              device -> engine
//	<prefix>/devices/<device>/status              engine -> device
//	<prefix>/devices/<device>/modules/<m>/solve   device -> engine
//	<prefix>/devices/<device>/modules/<m>/solved  device -> engine
//	<prefix>/devices/<device>/modules/<m>/result  engine -> device
type Topics struct {
	Prefix string
}

// Subscriptions returns the wildcard topics the engine listens on.
func (t Topics) Subscriptions() []string {
	base := t.Prefix + "/devices/+/"
	return []string{
		base + KindRegister,
		base + KindHeartbeat,
		base + KindStrike,
		base + "modules/+/" + KindSolve,
		base + "modules/+/" + KindSolved,
	}
}

// Result is where solve results for a module are published.
func (t Topics) Result(deviceID, moduleID string) string {
	return t.Prefix + "/devices/" + deviceID + "/modules/" + moduleID + "/result"
}

// Status is where replies to device-level messages are published.
func (t Topics) Status(deviceID string) string {
	return t.Prefix + "/devices/" + deviceID + "/status"
}

// Route is a parsed inbound topic.
type Route struct {
	Kind     string
	DeviceID string
	ModuleID string
}

// Parse splits an inbound topic. ok is false for topics outside the tree.
func (t Topics) Parse(topic string) (Route, bool) {
	rest, found := strings.CutPrefix(topic, t.Prefix+"/devices/")
	if !found {
		return Route{}, false
	}
	parts := strings.Split(rest, "/")
	switch len(parts) {
	case 2:
		switch parts[1] {
		case KindRegister, KindHeartbeat, KindStrike:
			if parts[0] == "" {
				return Route{}, false
			}
			return Route{Kind: parts[1], DeviceID: parts[0]}, true
		}
	case 4:
		if parts[1] != "modules" || parts[0] == "" || parts[2] == "" {
			return Route{}, false
		}
		switch parts[3] {
		case KindSolve, KindSolved:
			return Route{Kind: parts[3], DeviceID: parts[0], ModuleID: parts[2]}, true
		}
	}
	return Route{}, false
}
