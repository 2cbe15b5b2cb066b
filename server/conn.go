package server

import (
	"bufio"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net"

	"github.com/c360/logtest/pipeline"
)

// handleConn serves one client connection: read a frame, orchestrate,
// write the response, repeat until the client disconnects. Framing errors
// that desynchronize the stream close the connection; a frame that parsed
// as a line but not as a request only fails that exchange.
func (l *Listener) handleConn(ctx context.Context, conn net.Conn) error {
	defer conn.Close()

	if l.metrics != nil {
		l.metrics.ConnectionsActive.Inc()
		defer l.metrics.ConnectionsActive.Dec()
	}

	remote := conn.RemoteAddr().String()
	l.logger.Debug("connection opened", "remote", remote)
	defer l.logger.Debug("connection closed", "remote", remote)

	scanner := bufio.NewScanner(conn)
	// cap(buf) must not exceed the limit or the scanner raises it.
	scanner.Buffer(nil, l.cfg.MaxFrameBytes)

	for {
		if ctx.Err() != nil {
			return nil
		}

		if !scanner.Scan() {
			err := scanner.Err()
			switch {
			case err == nil: // clean EOF
				return nil
			case stderrors.Is(err, bufio.ErrTooLong):
				// The rest of the oversized frame is still in flight;
				// the stream cannot be resynchronized.
				l.respond(conn, "socket", &pipeline.Response{
					Status:   pipeline.StatusInvalidRequest,
					Messages: []string{"request frame exceeds maximum size"},
				})
				return nil
			case isClosedErr(err):
				return nil
			default:
				l.logger.Debug("read failed", "remote", remote, "error", err)
				return nil
			}
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req pipeline.Request
		if err := json.Unmarshal(line, &req); err != nil {
			// The line itself framed cleanly, so the stream is intact.
			l.respond(conn, "socket", &pipeline.Response{
				Status:   pipeline.StatusInvalidRequest,
				Messages: []string{"malformed request: " + err.Error()},
			})
			continue
		}

		resp := l.orch.Handle(&req)
		if !l.respond(conn, "socket", resp) {
			return nil
		}
	}
}

// respond writes one response frame, reporting whether the connection is
// still usable.
func (l *Listener) respond(conn net.Conn, transport string, resp *pipeline.Response) bool {
	if l.metrics != nil {
		l.metrics.RequestsTotal.WithLabelValues(transport, resp.Status).Inc()
	}
	return writeResponse(conn, resp)
}

func writeResponse(w io.Writer, resp *pipeline.Response) bool {
	payload, err := json.Marshal(resp)
	if err != nil {
		return false
	}
	payload = append(payload, '\n')
	_, err = w.Write(payload)
	return err == nil
}
