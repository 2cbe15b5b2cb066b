package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/logtest/engine"
	"github.com/c360/logtest/pipeline"
	"github.com/c360/logtest/session"
)

const failedLine = "Aug 30 10:15:01 web01 sshd[4242]: Failed password for root from 10.0.0.5 port 2222 ssh2"

func startTestListener(t *testing.T) *Listener {
	t.Helper()

	loader := engine.NewLoader()
	ruleset, err := loader.Compile(&engine.RulesetSpec{
		Decoders: []engine.DecoderSpec{{
			Name:    "sshd",
			Program: "sshd",
			Regex:   `^Failed password for (\S+) from (\S+) port (\d+)`,
			Fields:  []string{"user", "srcip", "srcport"},
		}},
		Rules: []engine.RuleSpec{{
			ID: 100, Level: 5,
			Description: "sshd authentication failed",
			DecodedAs:   "sshd",
			FTS:         []string{"user", "srcip"},
		}},
	})
	require.NoError(t, err)

	store := session.NewStore(ruleset, session.StoreConfig{HistorySize: 8}, nil, nil)
	orch := pipeline.New(store, engine.New(nil), loader, pipeline.Config{ReportUndecoded: true}, nil, nil)

	l := NewListener(Config{
		Network:       "tcp",
		Address:       "127.0.0.1:0",
		Workers:       2,
		QueueSize:     4,
		MaxFrameBytes: 2048,
	}, orch, nil, nil)
	require.NoError(t, l.Initialize())
	require.NoError(t, l.Start(context.Background()))
	t.Cleanup(func() {
		require.NoError(t, l.Stop(2*time.Second))
	})
	return l
}

func dial(t *testing.T, l *Listener) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	return conn, bufio.NewReader(conn)
}

func exchange(t *testing.T, conn net.Conn, r *bufio.Reader, req *pipeline.Request) *pipeline.Response {
	t.Helper()
	payload, err := json.Marshal(req)
	require.NoError(t, err)
	payload = append(payload, '\n')
	_, err = conn.Write(payload)
	require.NoError(t, err)

	line, err := r.ReadBytes('\n')
	require.NoError(t, err)
	var resp pipeline.Response
	require.NoError(t, json.Unmarshal(line, &resp))
	return &resp
}

func TestListener_RequestResponseLoop(t *testing.T) {
	l := startTestListener(t)
	conn, r := dial(t, l)

	// Multiple exchanges on one connection
	resp := exchange(t, conn, r, &pipeline.Request{LogLine: failedLine})
	require.Equal(t, pipeline.StatusOK, resp.Status)
	token := resp.Token
	require.NotEmpty(t, token)
	require.NotNil(t, resp.Rule)
	assert.Equal(t, 100, resp.Rule.ID)
	require.NotNil(t, resp.FTS)
	assert.True(t, *resp.FTS)

	resp = exchange(t, conn, r, &pipeline.Request{Token: token, LogLine: failedLine})
	require.Equal(t, pipeline.StatusOK, resp.Status)
	require.NotNil(t, resp.FTS)
	assert.False(t, *resp.FTS, "repeat submission is not first-time-seen")
}

func TestListener_MalformedFrameKeepsConnection(t *testing.T) {
	l := startTestListener(t)
	conn, r := dial(t, l)

	_, err := conn.Write([]byte("this is not json\n"))
	require.NoError(t, err)

	line, err := r.ReadBytes('\n')
	require.NoError(t, err)
	var resp pipeline.Response
	require.NoError(t, json.Unmarshal(line, &resp))
	assert.Equal(t, pipeline.StatusInvalidRequest, resp.Status)

	// The connection survives a clean parse error
	good := exchange(t, conn, r, &pipeline.Request{LogLine: failedLine})
	assert.Equal(t, pipeline.StatusOK, good.Status)
}

func TestListener_OversizedFrameClosesConnection(t *testing.T) {
	l := startTestListener(t)
	conn, r := dial(t, l)

	huge := strings.Repeat("x", 4096)
	_, err := conn.Write([]byte(huge + "\n"))
	require.NoError(t, err)

	line, err := r.ReadBytes('\n')
	require.NoError(t, err)
	var resp pipeline.Response
	require.NoError(t, json.Unmarshal(line, &resp))
	assert.Equal(t, pipeline.StatusInvalidRequest, resp.Status)

	// The stream was desynchronized, so the server hangs up
	_, err = r.ReadBytes('\n')
	assert.Error(t, err)
}

func TestListener_SessionSurvivesDisconnect(t *testing.T) {
	l := startTestListener(t)

	conn, r := dial(t, l)
	resp := exchange(t, conn, r, &pipeline.Request{Token: "sticky", Command: pipeline.CommandNewSession})
	require.Equal(t, pipeline.StatusOK, resp.Status)
	conn.Close()

	conn2, r2 := dial(t, l)
	resp = exchange(t, conn2, r2, &pipeline.Request{Token: "sticky", LogLine: failedLine})
	assert.Equal(t, pipeline.StatusOK, resp.Status, "sessions outlive connections")
}

func TestListener_InitializeValidation(t *testing.T) {
	assert.Error(t, NewListener(Config{Network: "tcp", Address: "x"}, nil, nil, nil).Initialize())

	orchOnly := &pipeline.Orchestrator{}
	assert.Error(t, NewListener(Config{Network: "sctp", Address: "x"}, orchOnly, nil, nil).Initialize())
	assert.Error(t, NewListener(Config{Network: "tcp"}, orchOnly, nil, nil).Initialize())
}
