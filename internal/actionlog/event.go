package actionlog

import "time"

// Kind classifies a hook event. The aggregator only acts on bans and
// unbans; any other kind is carried through and ignored downstream.
type Kind string

const (
	KindBan   Kind = "ban"
	KindUnban Kind = "unban"
)

// Event is one hook invocation recorded by the blocking tool.
type Event struct {
	Timestamp time.Time
	Kind      Kind
	IP        string
	Jail      string
	Reason    string
	MatchTS   string
	LogLine   string
	Extra     string
}

// wireEvent is the JSON-lines shape. Writers emit every key so rows stay
// column-stable for ad-hoc tooling; readers accept the legacy ts key and
// fill in defaults for optional fields.
type wireEvent struct {
	Timestamp string `json:"timestamp"`
	TS        string `json:"ts,omitempty"`
	Action    string `json:"action"`
	IP        string `json:"ip"`
	Jail      string `json:"jail"`
	Reason    string `json:"reason"`
	MatchTS   string `json:"match_ts"`
	LogLine   string `json:"log_line"`
	Extra     string `json:"extra"`
}
