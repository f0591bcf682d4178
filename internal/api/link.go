package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"campusnav/internal/i18n"
	"campusnav/internal/location"
	"campusnav/internal/model"
	"campusnav/internal/speech"
)

// Client link message types.
const (
	msgSpeak            = "speak"
	msgSpeechCancel     = "speech_cancel"
	msgListen           = "listen"
	msgEvent            = "event"
	msgPong             = "pong"
	msgPosition         = "position"
	msgPositionError    = "position_error"
	msgSpeechStart      = "speech_start"
	msgSpeechEnd        = "speech_end"
	msgTranscript       = "transcript"
	msgRecognitionError = "recognition_error"
	msgVoices           = "voices"
	msgPing             = "ping"
)

const (
	writeWait   = 5 * time.Second
	speakLimit  = time.Minute
	listenLimit = 20 * time.Second
)

var (
	errNotConnected = errors.New("client link: not connected")
	errLinkClosed   = errors.New("client link: closed")
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type positionPayload struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	TS        int64   `json:"ts,omitempty"` // unix ms
	AccuracyM float64 `json:"accuracy,omitempty"`
}

func (p positionPayload) sample() model.PositionSample {
	s := model.PositionSample{Lat: p.Lat, Lng: p.Lng, AccuracyM: p.AccuracyM}
	if p.TS > 0 {
		s.Timestamp = time.UnixMilli(p.TS)
	}
	return s
}

type positionErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type listenPayload struct {
	Language model.Language `json:"language"`
	Locale   string         `json:"locale"`
}

type reply struct {
	typ    string
	text   string
	closed bool
}

// ClientLink is the WebSocket connection to the browser of one session. It
// plays utterances and runs recognition on the client (speech.Engine and
// speech.Recognizer) and feeds device positions into the session source.
type ClientLink struct {
	// OnTranscript receives transcripts the client recognized on its own.
	OnTranscript func(text string)

	src *location.PushSource

	mu      sync.Mutex
	conn    *websocket.Conn
	voices  []speech.Voice
	waiters map[string]chan reply

	writeMu sync.Mutex
}

func NewClientLink(src *location.PushSource) *ClientLink {
	return &ClientLink{src: src, waiters: map[string]chan reply{}}
}

// Attach makes conn the active connection, replacing any previous one.
func (l *ClientLink) Attach(conn *websocket.Conn) {
	l.mu.Lock()
	old := l.conn
	l.conn = conn
	l.failWaitersLocked()
	l.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
}

// Detach forgets conn if it is still the active connection.
func (l *ClientLink) Detach(conn *websocket.Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == conn {
		l.conn = nil
		l.failWaitersLocked()
	}
}

func (l *ClientLink) Close() {
	l.mu.Lock()
	conn := l.conn
	l.conn = nil
	l.failWaitersLocked()
	l.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (l *ClientLink) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}

func (l *ClientLink) failWaitersLocked() {
	for id, ch := range l.waiters {
		ch <- reply{closed: true}
		delete(l.waiters, id)
	}
}

func (l *ClientLink) send(msg wsMessage) error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return errNotConnected
	}
	return l.writeTo(conn, msg)
}

// writeTo writes on a specific connection, which need not be the attached one.
func (l *ClientLink) writeTo(conn *websocket.Conn, msg wsMessage) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}

func (l *ClientLink) sendPayload(typ, id string, payload any) error {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		raw = b
	}
	return l.send(wsMessage{Type: typ, ID: id, Payload: raw})
}

// request sends typ and waits for the client's correlated reply. When ctx
// ends first and cancelTyp is set, the client is told to stop.
func (l *ClientLink) request(ctx context.Context, typ, cancelTyp string, payload any) (reply, error) {
	id := uuid.NewString()
	ch := make(chan reply, 1)
	l.mu.Lock()
	if l.conn == nil {
		l.mu.Unlock()
		return reply{}, errNotConnected
	}
	l.waiters[id] = ch
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.waiters, id)
		l.mu.Unlock()
	}()

	if err := l.sendPayload(typ, id, payload); err != nil {
		return reply{}, errNotConnected
	}
	select {
	case rep := <-ch:
		if rep.closed {
			return reply{}, errLinkClosed
		}
		return rep, nil
	case <-ctx.Done():
		if cancelTyp != "" {
			_ = l.send(wsMessage{Type: cancelTyp, ID: id})
		}
		return reply{}, ctx.Err()
	}
}

func (l *ClientLink) resolve(id string, rep reply) {
	l.mu.Lock()
	ch, ok := l.waiters[id]
	delete(l.waiters, id)
	l.mu.Unlock()
	if ok {
		ch <- rep
	}
}

// Speak implements speech.Engine.
func (l *ClientLink) Speak(ctx context.Context, u speech.Utterance) error {
	ctx, cancel := context.WithTimeout(ctx, speakLimit)
	defer cancel()
	_, err := l.request(ctx, msgSpeak, msgSpeechCancel, u)
	switch {
	case errors.Is(err, errNotConnected), errors.Is(err, errLinkClosed):
		return speech.ErrEngineUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("speak: no acknowledgement: %w", err)
	}
	return err
}

// Voices implements speech.Engine with the voice list the client reported.
func (l *ClientLink) Voices() []speech.Voice {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]speech.Voice(nil), l.voices...)
}

// Listen implements speech.Recognizer.
func (l *ClientLink) Listen(ctx context.Context, lang model.Language) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, listenLimit)
	defer cancel()
	locale := "en-US"
	if i18n.Tag(lang).String() == "ta" {
		locale = "ta-IN"
	}
	rep, err := l.request(ctx, msgListen, "", listenPayload{Language: lang, Locale: locale})
	if errors.Is(err, errNotConnected) || errors.Is(err, errLinkClosed) {
		return "", speech.ErrRecognitionUnsupported
	}
	if err != nil {
		return "", err
	}
	if rep.typ == msgRecognitionError {
		return "", fmt.Errorf("recognition: %s", rep.text)
	}
	return rep.text, nil
}

// Dispatch handles one message read from the client.
func (l *ClientLink) Dispatch(msg wsMessage) {
	switch msg.Type {
	case msgPosition:
		var p positionPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || validatePosition(p.Lat, p.Lng) != nil {
			return
		}
		l.src.Push(p.sample())
	case msgPositionError:
		var p positionErrorPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return
		}
		l.src.PushError(p.Code, p.Message)
	case msgSpeechStart:
	case msgSpeechEnd:
		l.resolve(msg.ID, reply{typ: msgSpeechEnd})
	case msgTranscript, msgRecognitionError:
		var p struct {
			Text  string `json:"text"`
			Error string `json:"error"`
		}
		_ = json.Unmarshal(msg.Payload, &p)
		if msg.ID == "" {
			if msg.Type == msgTranscript && p.Text != "" && l.OnTranscript != nil {
				go l.OnTranscript(p.Text)
			}
			return
		}
		text := p.Text
		if msg.Type == msgRecognitionError {
			text = p.Error
		}
		l.resolve(msg.ID, reply{typ: msg.Type, text: text})
	case msgVoices:
		var vs []speech.Voice
		if err := json.Unmarshal(msg.Payload, &vs); err != nil {
			return
		}
		l.mu.Lock()
		l.voices = vs
		l.mu.Unlock()
	case msgPing:
		_ = l.send(wsMessage{Type: msgPong})
	default:
		log.Printf("client link: unknown message %q", msg.Type)
	}
}
