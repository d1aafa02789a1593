package source

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/speech-segmenter/internal/audio"
	"github.com/lexiqai/speech-segmenter/internal/observability"
)

// Twilio Media Streams carry 8 kHz G.711 μ-law
const twilioSampleRate = 8000

var upgrader = websocket.Upgrader{
	// Twilio does not send an Origin header
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// TwilioMessage represents a message from Twilio Media Streams
type TwilioMessage struct {
	Event          string       `json:"event"`
	SequenceNumber string       `json:"sequenceNumber,omitempty"`
	StreamSid      string       `json:"streamSid,omitempty"`
	Media          *TwilioMedia `json:"media,omitempty"`
	Start          *TwilioStart `json:"start,omitempty"`
	Stop           *TwilioStop  `json:"stop,omitempty"`
}

// TwilioMedia represents the media payload in a media event
type TwilioMedia struct {
	Track     string `json:"track"`
	Chunk     string `json:"chunk"`
	Timestamp string `json:"timestamp"`
	Payload   string `json:"payload"` // base64 μ-law
}

// TwilioStart represents the start event payload
type TwilioStart struct {
	AccountSid       string            `json:"accountSid"`
	CallSid          string            `json:"callSid"`
	StreamSid        string            `json:"streamSid"`
	Tracks           []string          `json:"tracks"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
	MediaFormat      struct {
		Encoding   string `json:"encoding"`
		SampleRate int    `json:"sampleRate"`
		Channels   int    `json:"channels"`
	} `json:"mediaFormat"`
}

// TwilioStop represents the stop event payload
type TwilioStop struct {
	AccountSid string `json:"accountSid"`
	CallSid    string `json:"callSid"`
}

// TwilioSource reads inbound call audio from a Twilio Media Streams
// websocket. The μ-law payload is decoded and resampled to the target rate.
// A stop event or a normal close ends the stream.
type TwilioSource struct {
	conn       *websocket.Conn
	sampleRate int
	frameSize  int
	stream     *stream
	logger     zerolog.Logger

	mu        sync.RWMutex
	callSid   string
	streamSid string
	started   bool

	closing   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewTwilioSource wraps an upgraded websocket connection
func NewTwilioSource(conn *websocket.Conn, sampleRate, frameSize int) *TwilioSource {
	return &TwilioSource{
		conn:       conn,
		sampleRate: sampleRate,
		frameSize:  frameSize,
		stream:     newStream("twilio", sampleRate, frameSize, sampleRate*2),
		logger:     observability.WithComponent("twilio"),
		done:       make(chan struct{}),
	}
}

func (s *TwilioSource) Name() string { return "twilio" }

// CallSid returns the call identifier once the start event was received
func (s *TwilioSource) CallSid() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.callSid
}

// Open starts reading messages from the connection
func (s *TwilioSource) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.started = true

	go s.readMessages()
	return nil
}

// ReadFrame blocks until a full frame of call audio was received
func (s *TwilioSource) ReadFrame(ctx context.Context) (audio.Frame, error) {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return audio.Frame{}, ErrNotOpen
	}
	return s.stream.next(ctx)
}

// Close closes the websocket and waits for the reader to exit
func (s *TwilioSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		s.stream.finish(ErrClosed)
		err = s.conn.Close()

		s.mu.RLock()
		started := s.started
		s.mu.RUnlock()
		if started {
			<-s.done
		}
	})
	return err
}

func (s *TwilioSource) readMessages() {
	defer close(s.done)

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if s.closing.Load() {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.stream.finish(nil)
				return
			}
			s.logger.Warn().Err(err).Msg("websocket read error")
			observability.RecordSourceError(s.Name())
			s.stream.finish(fmt.Errorf("twilio: read: %w", err))
			return
		}

		var msg TwilioMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			s.logger.Error().Err(err).Msg("failed to parse Twilio message")
			continue
		}

		if done := s.handle(&msg); done {
			return
		}
	}
}

// handle processes one message and reports whether the stream ended
func (s *TwilioSource) handle(msg *TwilioMessage) bool {
	switch msg.Event {
	case "connected":
		s.logger.Debug().Msg("Twilio stream connected")

	case "start":
		s.mu.Lock()
		s.streamSid = msg.StreamSid
		if msg.Start != nil {
			s.callSid = msg.Start.CallSid
		}
		s.mu.Unlock()
		s.logger.Info().
			Str("call_sid", s.CallSid()).
			Str("stream_sid", msg.StreamSid).
			Msg("call started")

	case "media":
		if msg.Media == nil {
			return false
		}
		if msg.Media.Track != "" && msg.Media.Track != "inbound" {
			return false
		}
		if err := s.handleMedia(msg.Media); err != nil {
			s.logger.Warn().Err(err).Msg("dropping media event")
		}

	case "stop":
		s.logger.Info().Str("call_sid", s.CallSid()).Msg("call stopped")
		s.stream.finish(nil)
		return true

	case "mark", "dtmf":
		// not audio

	default:
		s.logger.Debug().Str("event", msg.Event).Msg("unknown Twilio event")
	}
	return false
}

func (s *TwilioSource) handleMedia(media *TwilioMedia) error {
	chunk := media.Payload
	if chunk == "" {
		chunk = media.Chunk
	}
	if chunk == "" {
		return errors.New("media event missing payload")
	}

	data, err := base64.StdEncoding.DecodeString(chunk)
	if err != nil {
		return fmt.Errorf("failed to decode base64 audio: %w", err)
	}
	observability.RecordAudioBytes(s.Name(), len(data))

	samples := audio.Resample(audio.DecodeMulaw(data), twilioSampleRate, s.sampleRate)
	s.stream.write(samples)
	return nil
}

// HandleTwilioWS upgrades Twilio Media Streams connections and hands each
// one to onStream as a TwilioSource. The connection is closed when onStream
// returns.
func HandleTwilioWS(sampleRate, frameSize int, onStream func(r *http.Request, src *TwilioSource)) http.HandlerFunc {
	logger := observability.WithComponent("twilio")

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already replied to the client
			logger.Warn().Err(err).Msg("failed to upgrade connection to websocket")
			return
		}

		src := NewTwilioSource(conn, sampleRate, frameSize)
		defer src.Close()

		logger.Info().Str("remote", r.RemoteAddr).Msg("Twilio websocket connection established")
		onStream(r, src)
	}
}
