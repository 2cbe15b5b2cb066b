package pipeline

import (
	"encoding/json"
)

// Response status codes.
const (
	StatusOK             = "ok"
	StatusSessionExpired = "session_expired"
	StatusDecodeError    = "decode_error"
	StatusInvalidRequest = "invalid_request"
)

// Request commands.
const (
	// CommandNewSession explicitly opens a session. The requested token
	// is honored when free; a taken or empty token yields a fresh one.
	CommandNewSession = "new_session"

	// CommandRemoveSession tears the session down immediately instead of
	// waiting for the idle timeout.
	CommandRemoveSession = "remove_session"
)

// Options carries per-request processing flags.
type Options struct {
	// ReportUndecoded controls whether lines no decoder recognizes are
	// still pushed through rule matching. Nil means the service default.
	ReportUndecoded *bool `json:"report_undecoded,omitempty"`

	// Ruleset is an inline override ruleset document. Only honored on
	// session creation; the session compiles and keeps a private copy.
	Ruleset json.RawMessage `json:"ruleset,omitempty"`
}

// Request is one client frame: a log line to test plus session routing.
type Request struct {
	Token   string   `json:"token,omitempty"`
	LogLine string   `json:"log_line,omitempty"`
	Options *Options `json:"options,omitempty"`
	Command string   `json:"command,omitempty"`
}

// RuleInfo is the matched-rule metadata echoed to the client.
type RuleInfo struct {
	ID          int      `json:"id"`
	Level       int      `json:"level"`
	Description string   `json:"description,omitempty"`
	Groups      []string `json:"groups,omitempty"`
}

// Response is the outcome of one request frame.
type Response struct {
	Status  string `json:"status"`
	Token   string `json:"token,omitempty"`
	Decoder string `json:"decoder,omitempty"`

	// LoggedAt is the RFC3339 time the line claims it was written, empty
	// when no timestamp was recognized.
	LoggedAt string `json:"logged_at,omitempty"`

	Fields    map[string]string `json:"fields,omitempty"`
	Undecoded bool              `json:"undecoded,omitempty"`
	Rule      *RuleInfo         `json:"rule,omitempty"`

	// FTS is set only when the matched rule requests first-time-seen
	// filtering: true on the fingerprint's first appearance.
	FTS *bool `json:"fts,omitempty"`

	Messages []string `json:"messages,omitempty"`
}

func invalidRequest(token string, msgs ...string) *Response {
	return &Response{Status: StatusInvalidRequest, Token: token, Messages: msgs}
}

func sessionExpired(token string) *Response {
	return &Response{
		Status:   StatusSessionExpired,
		Token:    token,
		Messages: []string{"session not found or expired, open a new session"},
	}
}
