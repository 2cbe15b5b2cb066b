package pipeline

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/logtest/engine"
	"github.com/c360/logtest/session"
)

const failedLine = "Aug 30 10:15:01 web01 sshd[4242]: Failed password for root from 10.0.0.5 port 2222 ssh2"

func testOrchestrator(t *testing.T) (*Orchestrator, *session.Store) {
	t.Helper()

	loader := engine.NewLoader()
	ruleset, err := loader.Compile(&engine.RulesetSpec{
		Decoders: []engine.DecoderSpec{{
			Name:    "sshd",
			Program: "sshd",
			Regex:   `^Failed password for (\S+) from (\S+) port (\d+)`,
			Fields:  []string{"user", "srcip", "srcport"},
		}},
		Rules: []engine.RuleSpec{
			{
				ID: 100, Level: 5,
				Description: "sshd authentication failed",
				DecodedAs:   "sshd",
				Match:       "Failed password",
				FTS:         []string{"user", "srcip"},
			},
			{
				ID: 101, Level: 10,
				Description: "sshd brute force",
				IfSID:       100, IfMatched: 100,
				Frequency: 3, Timeframe: 120, SameField: "srcip",
			},
		},
	})
	require.NoError(t, err)

	store := session.NewStore(ruleset, session.StoreConfig{
		HistorySize: 16,
		Accumulator: session.AccumulatorConfig{
			PurgeLookups:  100,
			PurgeInterval: time.Minute,
			Window:        time.Minute,
		},
	}, nil, nil)

	orch := New(store, engine.New(nil), loader, Config{ReportUndecoded: true}, nil, nil)
	return orch, store
}

func TestHandle_EndToEnd(t *testing.T) {
	orch, store := testOrchestrator(t)

	// First submission on a fresh session: decode, match, FTS true
	resp := orch.Handle(&Request{Token: "s1", LogLine: failedLine, Command: CommandNewSession})
	require.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, "s1", resp.Token)
	assert.Equal(t, "sshd", resp.Decoder)
	assert.Equal(t, "root", resp.Fields["user"])
	loggedAt, err := time.Parse(time.RFC3339, resp.LoggedAt)
	require.NoError(t, err)
	assert.False(t, loggedAt.IsZero())
	require.NotNil(t, resp.Rule)
	assert.Equal(t, 100, resp.Rule.ID)
	require.NotNil(t, resp.FTS)
	assert.True(t, *resp.FTS)

	// Same line again: same match, FTS suppressed
	resp = orch.Handle(&Request{Token: "s1", LogLine: failedLine})
	require.Equal(t, StatusOK, resp.Status)
	require.NotNil(t, resp.Rule)
	assert.Equal(t, 100, resp.Rule.ID)
	require.NotNil(t, resp.FTS)
	assert.False(t, *resp.FTS)

	// Independent session sees the fingerprint fresh
	resp = orch.Handle(&Request{Token: "s2", LogLine: failedLine, Command: CommandNewSession})
	require.Equal(t, StatusOK, resp.Status)
	require.NotNil(t, resp.FTS)
	assert.True(t, *resp.FTS)

	// Evicted session token comes back expired
	require.True(t, store.Remove("s1"))
	resp = orch.Handle(&Request{Token: "s1", LogLine: failedLine})
	assert.Equal(t, StatusSessionExpired, resp.Status)
}

func TestHandle_FrequencyEscalation(t *testing.T) {
	orch, _ := testOrchestrator(t)

	resp := orch.Handle(&Request{LogLine: failedLine})
	require.Equal(t, StatusOK, resp.Status)
	token := resp.Token
	require.NotEmpty(t, token)
	assert.Equal(t, 100, resp.Rule.ID)

	for i := 0; i < 2; i++ {
		resp = orch.Handle(&Request{Token: token, LogLine: failedLine})
		require.Equal(t, StatusOK, resp.Status)
	}

	// Fourth identical failure inside the window satisfies frequency 3
	resp = orch.Handle(&Request{Token: token, LogLine: failedLine})
	require.NotNil(t, resp.Rule)
	assert.Equal(t, 101, resp.Rule.ID)
	assert.Equal(t, 10, resp.Rule.Level)
}

func TestHandle_NewSessionWithoutLine(t *testing.T) {
	orch, store := testOrchestrator(t)

	resp := orch.Handle(&Request{Command: CommandNewSession})
	require.Equal(t, StatusOK, resp.Status)
	assert.NotEmpty(t, resp.Token)
	assert.Nil(t, resp.Rule)

	_, ok := store.Get(resp.Token)
	assert.True(t, ok)
}

func TestHandle_UnknownTokenExpired(t *testing.T) {
	orch, _ := testOrchestrator(t)

	resp := orch.Handle(&Request{Token: "never-created", LogLine: failedLine})
	assert.Equal(t, StatusSessionExpired, resp.Status)
}

func TestHandle_EmptyLogLine(t *testing.T) {
	orch, _ := testOrchestrator(t)

	resp := orch.Handle(&Request{LogLine: "   "})
	assert.Equal(t, StatusInvalidRequest, resp.Status)
}

func TestHandle_UnknownCommand(t *testing.T) {
	orch, _ := testOrchestrator(t)

	resp := orch.Handle(&Request{Command: "reboot"})
	assert.Equal(t, StatusInvalidRequest, resp.Status)
}

func TestHandle_RemoveSession(t *testing.T) {
	orch, store := testOrchestrator(t)

	created := orch.Handle(&Request{Command: CommandNewSession})
	require.Equal(t, StatusOK, created.Status)

	resp := orch.Handle(&Request{Token: created.Token, Command: CommandRemoveSession})
	assert.Equal(t, StatusOK, resp.Status)
	_, ok := store.Get(created.Token)
	assert.False(t, ok)

	// Removing again reports the session as gone
	resp = orch.Handle(&Request{Token: created.Token, Command: CommandRemoveSession})
	assert.Equal(t, StatusSessionExpired, resp.Status)

	resp = orch.Handle(&Request{Command: CommandRemoveSession})
	assert.Equal(t, StatusInvalidRequest, resp.Status)
}

func TestHandle_RemoveSessionWaitsForBusySession(t *testing.T) {
	orch, store := testOrchestrator(t)

	created := orch.Handle(&Request{Token: "busy", Command: CommandNewSession})
	require.Equal(t, StatusOK, created.Status)

	sess, ok := store.Get("busy")
	require.True(t, ok)
	sess.Lock()

	done := make(chan *Response, 1)
	go func() {
		done <- orch.Handle(&Request{Token: "busy", Command: CommandRemoveSession})
	}()

	// Removal must wait for the in-flight holder, not destroy the session
	// out from under it.
	select {
	case <-done:
		t.Fatal("removal completed while the session was held")
	case <-time.After(50 * time.Millisecond):
	}

	sess.Unlock()

	select {
	case resp := <-done:
		assert.Equal(t, StatusOK, resp.Status)
	case <-time.After(time.Second):
		t.Fatal("removal never completed after the session was released")
	}

	_, ok = store.Get("busy")
	assert.False(t, ok)
}

func TestHandle_LevelZeroRuleSuppressed(t *testing.T) {
	orch, _ := testOrchestrator(t)

	override := json.RawMessage(`{
		"decoders": [{"name": "any", "prematch": "."}],
		"rules": [{"id": 5, "level": 0, "match": "heartbeat"}]
	}`)

	resp := orch.Handle(&Request{
		LogLine: "heartbeat from node-7",
		Options: &Options{Ruleset: override},
		Command: CommandNewSession,
	})
	require.Equal(t, StatusOK, resp.Status)
	assert.Nil(t, resp.Rule, "a level-0 match must not surface as an alert")
	assert.Nil(t, resp.FTS)
	require.NotEmpty(t, resp.Messages)
	assert.Contains(t, resp.Messages[0], "suppressed")
}

func TestHandle_UndecodedLine(t *testing.T) {
	orch, _ := testOrchestrator(t)

	resp := orch.Handle(&Request{LogLine: "freeform text no decoder knows"})
	require.Equal(t, StatusOK, resp.Status)
	assert.True(t, resp.Undecoded)
	assert.Nil(t, resp.Rule)
}

func TestHandle_UndecodedSuppressed(t *testing.T) {
	orch, _ := testOrchestrator(t)

	off := false
	resp := orch.Handle(&Request{
		LogLine: "freeform text no decoder knows",
		Options: &Options{ReportUndecoded: &off},
	})
	require.Equal(t, StatusOK, resp.Status)
	assert.True(t, resp.Undecoded)
	assert.NotEmpty(t, resp.Messages)
}

func TestHandle_OverrideRuleset(t *testing.T) {
	orch, _ := testOrchestrator(t)

	override := json.RawMessage(`{
		"decoders": [{"name": "custom", "regex": "^custom: (\\w+)", "fields": ["what"]}],
		"rules": [{"id": 900100, "level": 7, "decoded_as": "custom", "description": "custom event"}]
	}`)

	resp := orch.Handle(&Request{
		LogLine: "custom: thing",
		Options: &Options{Ruleset: override},
		Command: CommandNewSession,
	})
	require.Equal(t, StatusOK, resp.Status)
	require.NotNil(t, resp.Rule)
	assert.Equal(t, 900100, resp.Rule.ID)
	assert.Equal(t, "thing", resp.Fields["what"])
}

func TestHandle_OverrideCompileFailureLeavesNoSession(t *testing.T) {
	orch, store := testOrchestrator(t)

	resp := orch.Handle(&Request{
		Token:   "broken",
		LogLine: failedLine,
		Options: &Options{Ruleset: json.RawMessage(`{"rules": [{"id": 1, "regex": "(["}]}`)},
		Command: CommandNewSession,
	})
	assert.Equal(t, StatusInvalidRequest, resp.Status)

	_, ok := store.Get("broken")
	assert.False(t, ok, "failed override compilation must not register a session")
	assert.Equal(t, 0, store.Len())
}

func TestHandle_SessionRemovedBetweenResolveAndLock(t *testing.T) {
	orch, store := testOrchestrator(t)

	created := orch.Handle(&Request{Token: "racy", Command: CommandNewSession})
	require.Equal(t, StatusOK, created.Status)

	sess, ok := store.Get("racy")
	require.True(t, ok)
	store.Remove("racy")

	// The session object is still resolvable by a holder even though the
	// store entry is gone; processing must report expiry, not proceed.
	assert.True(t, sess.Removed())
	resp := orch.Handle(&Request{Token: "racy", LogLine: failedLine})
	assert.Equal(t, StatusSessionExpired, resp.Status)
}
