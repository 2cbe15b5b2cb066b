// Package pipeline drives one log-test request end to end: session
// resolution, decode, rule match, first-time-seen filtering, accumulator
// bookkeeping, history update, and response assembly. All per-request
// errors become response payloads; nothing escapes across the worker
// boundary.
package pipeline

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/c360/logtest/engine"
	"github.com/c360/logtest/errors"
	"github.com/c360/logtest/metric"
	"github.com/c360/logtest/pkg/timestamp"
	"github.com/c360/logtest/session"
)

// Config carries orchestrator defaults.
type Config struct {
	// ReportUndecoded is the default for requests that do not set the
	// option themselves.
	ReportUndecoded bool
}

// Orchestrator turns request frames into response frames against the
// shared session store. Safe for concurrent use; per-session work is
// serialized on the session's own mutex.
type Orchestrator struct {
	store   *session.Store
	engine  *engine.Engine
	loader  *engine.Loader
	cfg     Config
	logger  *slog.Logger
	metrics *metric.Metrics
}

// New creates an orchestrator. metrics may be nil.
func New(store *session.Store, eng *engine.Engine, loader *engine.Loader, cfg Config, logger *slog.Logger, metrics *metric.Metrics) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:   store,
		engine:  eng,
		loader:  loader,
		cfg:     cfg,
		logger:  logger.With("component", "orchestrator"),
		metrics: metrics,
	}
}

// Handle processes one request frame and always returns a response. A
// panic anywhere below is converted to an error response so a bad request
// can never take a worker down.
func (o *Orchestrator) Handle(req *Request) (resp *Response) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("request panicked", "panic", r, "token", req.Token)
			if o.metrics != nil {
				o.metrics.ErrorsTotal.WithLabelValues("orchestrator", "fatal").Inc()
			}
			resp = &Response{
				Status:   StatusDecodeError,
				Token:    req.Token,
				Messages: []string{"internal processing error"},
			}
		}
		if o.metrics != nil {
			o.metrics.ProcessingDuration.WithLabelValues("request").Observe(time.Since(start).Seconds())
		}
	}()

	switch req.Command {
	case CommandRemoveSession:
		return o.removeSession(req)
	case CommandNewSession, "":
	default:
		return invalidRequest(req.Token, fmt.Sprintf("unknown command %q", req.Command))
	}

	sess, resp := o.resolveSession(req)
	if resp != nil {
		return resp
	}

	// Session opened without a line to test: just hand back the token.
	if req.LogLine == "" && req.Command == CommandNewSession {
		return &Response{Status: StatusOK, Token: sess.Token}
	}
	if strings.TrimSpace(req.LogLine) == "" {
		return invalidRequest(sess.Token, "log_line is required")
	}

	sess.Lock()
	defer sess.Unlock()

	// The reaper may have evicted the session between resolution and
	// lock acquisition.
	if sess.Removed() {
		return sessionExpired(req.Token)
	}

	resp = o.process(sess, req)
	if resp.Status == StatusOK {
		sess.Touch()
	}
	return resp
}

// resolveSession finds or creates the target session. A non-nil response
// means resolution failed and the request is already answered.
func (o *Orchestrator) resolveSession(req *Request) (*session.Session, *Response) {
	if req.Command == CommandNewSession {
		sess, err := o.createSession(req)
		if err != nil {
			o.logger.Warn("session creation failed", "error", err)
			return nil, invalidRequest(req.Token, "session creation failed: "+err.Error())
		}
		return sess, nil
	}

	// A bare token references an existing session; only an empty token
	// implies creation.
	if req.Token == "" {
		sess, err := o.createSession(req)
		if err != nil {
			return nil, invalidRequest("", "session creation failed: "+err.Error())
		}
		return sess, nil
	}

	sess, ok := o.store.Get(req.Token)
	if !ok {
		return nil, sessionExpired(req.Token)
	}
	return sess, nil
}

// createSession registers a new session, compiling an override ruleset
// first when the request carries one. A compile failure registers nothing.
func (o *Orchestrator) createSession(req *Request) (*session.Session, error) {
	var override *engine.Ruleset
	if req.Options != nil && len(req.Options.Ruleset) > 0 {
		compiled, err := o.loader.CompileRaw(req.Options.Ruleset)
		if err != nil {
			return nil, errors.Wrap(err, "Orchestrator", "createSession", "compile override ruleset")
		}
		override = compiled
	}
	return o.store.Create(req.Token, override)
}

func (o *Orchestrator) removeSession(req *Request) *Response {
	if req.Token == "" {
		return invalidRequest("", "remove_session requires a token")
	}

	sess, ok := o.store.Get(req.Token)
	if !ok {
		return sessionExpired(req.Token)
	}

	// Removal must not overlap an in-flight request on the same session,
	// so take its mutex before tearing it down. Another remover may have
	// won the race while we waited.
	sess.Lock()
	defer sess.Unlock()
	if sess.Removed() || !o.store.Remove(req.Token) {
		return sessionExpired(req.Token)
	}
	if o.metrics != nil {
		o.metrics.SessionsRemoved.Inc()
	}
	return &Response{Status: StatusOK, Token: req.Token, Messages: []string{"session removed"}}
}

// process runs the analysis steps in fixed order against a locked session.
func (o *Orchestrator) process(sess *session.Session, req *Request) *Response {
	ruleset := sess.Ruleset()

	reportUndecoded := o.cfg.ReportUndecoded
	if req.Options != nil && req.Options.ReportUndecoded != nil {
		reportUndecoded = *req.Options.ReportUndecoded
	}

	ev, decoded := o.engine.Decode(req.LogLine, ruleset.Decoders)

	resp := &Response{
		Status:   StatusOK,
		Token:    sess.Token,
		Decoder:  ev.DecoderName,
		LoggedAt: timestamp.Format(ev.LoggedAt),
		Fields:   ev.Fields,
	}

	if !decoded {
		resp.Undecoded = true
		if !reportUndecoded {
			resp.Messages = append(resp.Messages, "line did not match any decoder")
			return resp
		}
	}

	history := sess.History().Recent(0)
	rule, msgs, err := o.engine.Match(ev, ruleset.Rules, history, ruleset.Lists)
	resp.Messages = append(resp.Messages, msgs...)
	if err != nil {
		if errors.IsInvalid(err) {
			resp.Status = StatusInvalidRequest
		} else {
			resp.Status = StatusDecodeError
		}
		resp.Messages = append(resp.Messages, err.Error())
		return resp
	}

	// A level-0 rule exists to silence the events it matches. The match
	// is still recorded on the event so chained conditions see it, but
	// the response carries no alert.
	if rule != nil && rule.Level == 0 {
		ev.RuleID = rule.ID
		ev.Level = 0
		resp.Messages = append(resp.Messages,
			fmt.Sprintf("rule %d matched at level 0, event suppressed", rule.ID))
		rule = nil
	}

	if rule != nil {
		resp.Rule = &RuleInfo{
			ID:          rule.ID,
			Level:       rule.Level,
			Description: rule.Description,
			Groups:      rule.Groups,
		}
		ev.RuleID = rule.ID
		ev.Level = rule.Level

		if len(rule.FTS) > 0 {
			first := sess.FirstTimeSeen(ftsFingerprint(rule, ev))
			resp.FTS = &first
		}

		if rule.Correlates() {
			count, _ := sess.Accumulate(correlationKey(rule, ev), ev.Timestamp)
			if count > 1 {
				resp.Messages = append(resp.Messages,
					fmt.Sprintf("rule %d: %d correlated events in window", rule.ID, count))
			}
		}
	}

	sess.History().Push(ev)
	return resp
}

// ftsFingerprint joins the rule's FTS field values into the dedup key.
// Missing fields contribute empty segments so the shape stays stable.
func ftsFingerprint(rule *engine.Rule, ev *engine.Event) string {
	parts := make([]string, 0, len(rule.FTS)+1)
	parts = append(parts, fmt.Sprintf("rule:%d", rule.ID))
	for _, field := range rule.FTS {
		parts = append(parts, ev.Field(field))
	}
	return strings.Join(parts, "|")
}

func correlationKey(rule *engine.Rule, ev *engine.Event) string {
	if field := rule.CorrelationField(); field != "" {
		return fmt.Sprintf("rule:%d|%s=%s", rule.ID, field, ev.Field(field))
	}
	return fmt.Sprintf("rule:%d", rule.ID)
}
