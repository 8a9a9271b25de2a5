package canvas

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oomph-ac/turtle/oerror"
	"github.com/oomph-ac/turtle/simulation"
	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

const (
	clientQueueSize = 16
	writeWait       = 5 * time.Second
)

// Command is a control message sent by a stream client.
type Command struct {
	// Cmd is one of "pause", "resume", "toggle" or "speed".
	Cmd string `json:"cmd"`
	// Value is the new animation speed for the "speed" command.
	Value float64 `json:"value,omitempty"`
}

// Message is a message sent to stream clients.
type Message struct {
	Type string `json:"type"`

	Frame *Frame `json:"frame,omitempty"`

	Paused bool    `json:"paused"`
	Speed  float64 `json:"speed,omitempty"`
	Error  string  `json:"error,omitempty"`
}

const (
	MessageTypeFrame    = "frame"
	MessageTypeSettings = "settings"
)

// Stream publishes frames to websocket clients and lets them control the simulation settings.
type Stream struct {
	log      *logrus.Logger
	settings *simulation.Settings
	upgrader websocket.Upgrader

	mu      deadlock.RWMutex
	clients map[*client]struct{}
	closed  bool

	dropped atomic.Uint64
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// NewStream creates a stream that applies client commands to the settings passed.
func NewStream(settings *simulation.Settings, log *logrus.Logger) *Stream {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Stream{
		log:      log,
		settings: settings,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request to a websocket connection and serves the client until it disconnects.
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("stream upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientQueueSize)}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	s.log.Debugf("stream client %s connected", conn.RemoteAddr())

	go s.write(c)
	s.reply(c, s.settingsMessage(""))
	s.read(c)
}

func (s *Stream) read(c *client) {
	defer s.remove(c)

	for {
		var cmd Command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debugf("stream client %s read failed: %v", c.conn.RemoteAddr(), err)
			}
			return
		}

		var errMsg string
		if err := s.apply(cmd); err != nil {
			errMsg = err.Error()
		}
		s.reply(c, s.settingsMessage(errMsg))
	}
}

func (s *Stream) write(c *client) {
	defer c.conn.Close()

	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.log.Debugf("stream client %s write failed: %v", c.conn.RemoteAddr(), err)
			s.remove(c)
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

// apply executes a client command against the simulation settings.
func (s *Stream) apply(cmd Command) error {
	switch cmd.Cmd {
	case "pause":
		s.settings.Pause()
	case "resume":
		s.settings.Unpause()
	case "toggle":
		s.settings.TogglePause()
	case "speed":
		return s.settings.SetAnimationSpeed(cmd.Value)
	default:
		return oerror.New("unknown command %q", cmd.Cmd)
	}
	s.log.Infof("stream command %q applied (paused=%v)", cmd.Cmd, s.settings.Paused())
	return nil
}

func (s *Stream) settingsMessage(errMsg string) Message {
	return Message{
		Type:   MessageTypeSettings,
		Paused: s.settings.Paused(),
		Speed:  s.settings.AnimationSpeed(),
		Error:  errMsg,
	}
}

func (s *Stream) reply(c *client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.log.Errorf("failed to encode stream message: %v", err)
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.clients[c]; ok {
		s.enqueue(c, data)
	}
}

// Publish sends the frame to every connected client. Clients that cannot keep up miss frames.
func (s *Stream) Publish(f Frame) {
	data, err := json.Marshal(Message{Type: MessageTypeFrame, Frame: &f, Paused: s.settings.Paused(), Speed: s.settings.AnimationSpeed()})
	if err != nil {
		s.log.Errorf("failed to encode frame %d: %v", f.Seq, err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		s.enqueue(c, data)
	}
}

// enqueue must be called with s.mu held.
func (s *Stream) enqueue(c *client, data []byte) {
	select {
	case c.send <- data:
	default:
		s.dropped.Inc()
	}
}

func (s *Stream) remove(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		c.close()
	}
}

// Clients returns the amount of connected clients.
func (s *Stream) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Dropped returns the amount of messages that were not delivered because a client was too slow.
func (s *Stream) Dropped() uint64 {
	return s.dropped.Load()
}

// Close disconnects every client and rejects new ones.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for c := range s.clients {
		delete(s.clients, c)
		c.close()
	}
}
