package mqtt

import "testing"

func TestTopicsParse(t *testing.T) {
	topics := Topics{Prefix: "defusal"}

	tests := []struct {
		topic string
		want  Route
		ok    bool
	}{
		{"defusal/devices/b1/register", Route{Kind: KindRegister, DeviceID: "b1"}, true},
		{"defusal/devices/b1/heartbeat", Route{Kind: KindHeartbeat, DeviceID: "b1"}, true},
		{"defusal/devices/b1/strike", Route{Kind: KindStrike, DeviceID: "b1"}, true},
		{"defusal/devices/b1/modules/w/solve", Route{Kind: KindSolve, DeviceID: "b1", ModuleID: "w"}, true},
		{"defusal/devices/b1/modules/w/solved", Route{Kind: KindSolved, DeviceID: "b1", ModuleID: "w"}, true},
		{"defusal/devices/b1/modules/w/result", Route{}, false},
		{"defusal/devices/b1/status", Route{}, false},
		{"defusal/devices//strike", Route{}, false},
		{"other/devices/b1/strike", Route{}, false},
		{"defusal/devices/b1/parts/w/solve", Route{}, false},
	}
	for _, tt := range tests {
		got, ok := topics.Parse(tt.topic)
		if ok != tt.ok || got != tt.want {
			t.Errorf("Parse(%q) = %+v, %v; want %+v, %v", tt.topic, got, ok, tt.want, tt.ok)
		}
	}
}

func TestTopicsBuild(t *testing.T) {
	topics := Topics{Prefix: "lab"}

	if got := topics.Result("b1", "w"); got != "lab/devices/b1/modules/w/result" {
		t.Errorf("unexpected result topic %q", got)
	}
	if got := topics.Status("b1"); got != "lab/devices/b1/status" {
		t.Errorf("unexpected status topic %q", got)
	}

	subs := topics.Subscriptions()
	if len(subs) != 5 {
		t.Fatalf("expected 5 subscriptions, got %d", len(subs))
	}
	if subs[3] != "lab/devices/+/modules/+/solve" {
		t.Errorf("unexpected solve subscription %q", subs[3])
	}
}
