package source

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type twilioResult struct {
	frames  int
	callSid string
	err     error
}

func startTwilioServer(t *testing.T) (*websocket.Conn, <-chan twilioResult) {
	t.Helper()

	results := make(chan twilioResult, 1)
	handler := HandleTwilioWS(16000, 320, func(_ *http.Request, src *TwilioSource) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		res := twilioResult{}
		if err := src.Open(ctx); err != nil {
			res.err = err
			results <- res
			return
		}
		for {
			_, err := src.ReadFrame(ctx)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					res.err = err
				}
				break
			}
			res.frames++
		}
		res.callSid = src.CallSid()
		results <- res
	})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, results
}

func send(t *testing.T, conn *websocket.Conn, msg TwilioMessage) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func mediaMessage(n int) TwilioMessage {
	payload := make([]byte, n)
	for i := range payload {
		payload[i] = 0xFF
	}
	return TwilioMessage{
		Event: "media",
		Media: &TwilioMedia{Track: "inbound", Payload: base64.StdEncoding.EncodeToString(payload)},
	}
}

func TestTwilioSource_Stream(t *testing.T) {
	conn, results := startTwilioServer(t)

	send(t, conn, TwilioMessage{Event: "connected"})
	send(t, conn, TwilioMessage{
		Event:     "start",
		StreamSid: "MZ123",
		Start:     &TwilioStart{CallSid: "CA123", StreamSid: "MZ123"},
	})
	// 20ms of 8 kHz audio becomes one 320-sample frame at 16 kHz
	send(t, conn, mediaMessage(160))
	send(t, conn, mediaMessage(160))
	send(t, conn, TwilioMessage{Event: "mark"})
	send(t, conn, TwilioMessage{Event: "stop", Stop: &TwilioStop{CallSid: "CA123"}})

	select {
	case res := <-results:
		require.NoError(t, res.err)
		assert.Equal(t, 2, res.frames)
		assert.Equal(t, "CA123", res.callSid)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the stream to end")
	}
}

func TestTwilioSource_IgnoresBadMessages(t *testing.T) {
	conn, results := startTwilioServer(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	send(t, conn, TwilioMessage{Event: "media", Media: &TwilioMedia{Payload: "!!!"}})
	send(t, conn, TwilioMessage{Event: "media", Media: &TwilioMedia{}})
	send(t, conn, mediaMessage(160))
	send(t, conn, TwilioMessage{Event: "stop"})

	select {
	case res := <-results:
		require.NoError(t, res.err)
		assert.Equal(t, 1, res.frames)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the stream to end")
	}
}

func TestTwilioSource_NormalCloseEndsStream(t *testing.T) {
	conn, results := startTwilioServer(t)

	send(t, conn, mediaMessage(320))
	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))

	select {
	case res := <-results:
		require.NoError(t, res.err)
		assert.Equal(t, 2, res.frames)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the stream to end")
	}
}
