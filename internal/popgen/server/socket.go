package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/popgen/internal/common/logctx"
	"github.com/G-Research/popgen/internal/popgen/request"
	"github.com/G-Research/popgen/internal/popgen/stream"
)

const writeWait = 10 * time.Second

// handleStream streams the records of a single request, closing after the terminal status frame.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sub, err := s.manager.Subscribe(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.manager.Unsubscribe(sub)
		s.log.WithError(err).Debug("Websocket upgrade failed")
		return
	}
	session := newSession(s, conn)
	session.closeWhenDrained = true
	session.follow(sub)
	session.readLoop(func([]byte) {})
}

// handleSocket speaks the legacy operation protocol: JSON messages carrying an
// "operation" of configure, subscribe, start, pause, resume or stop.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("Websocket upgrade failed")
		return
	}
	session := newSession(s, conn)
	session.readLoop(session.handleOperation)
}

type operation struct {
	Operation     string          `json:"operation"`
	Uuid          string          `json:"uuid"`
	Configuration json.RawMessage `json:"configuration"`
}

type socketReply struct {
	Uuid          string                 `json:"uuid,omitempty"`
	Status        string                 `json:"status,omitempty"`
	Error         string                 `json:"error,omitempty"`
	Configuration *request.Configuration `json:"configuration,omitempty"`
}

// session is one websocket connection. gorilla connections allow a single concurrent writer, so every
// write goes through send.
type session struct {
	server *Server
	conn   *websocket.Conn
	log    *log.Entry
	// closeWhenDrained ends the connection once a followed subscription has ended.
	closeWhenDrained bool

	writeLock sync.Mutex

	subsLock sync.Mutex
	subs     map[*stream.Subscription]struct{}
	wg       sync.WaitGroup
}

func newSession(s *Server, conn *websocket.Conn) *session {
	return &session{
		server: s,
		conn:   conn,
		log:    s.log.WithField("remote", conn.RemoteAddr().String()),
		subs:   map[*stream.Subscription]struct{}{},
	}
}

// readLoop hands every text message to handle until the peer disconnects, then releases the session.
func (ss *session) readLoop(handle func([]byte)) {
	defer ss.close()
	for {
		messageType, data, err := ss.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				ss.log.WithError(err).Debug("Websocket closed unexpectedly")
			}
			return
		}
		if messageType == websocket.TextMessage {
			handle(data)
		}
	}
}

func (ss *session) close() {
	ss.subsLock.Lock()
	subs := make([]*stream.Subscription, 0, len(ss.subs))
	for sub := range ss.subs {
		subs = append(subs, sub)
	}
	ss.subsLock.Unlock()
	for _, sub := range subs {
		ss.server.manager.Unsubscribe(sub)
	}
	ss.wg.Wait()
	_ = ss.conn.Close()
}

func (ss *session) handleOperation(data []byte) {
	var op operation
	if err := json.Unmarshal(data, &op); err != nil || op.Operation == "" {
		ss.reply(socketReply{Error: "Could not parse operation"})
		return
	}
	switch op.Operation {
	case "configure":
		ss.configure(op)
	case "subscribe":
		sub, err := ss.server.manager.Subscribe(op.Uuid)
		if err != nil {
			ss.replyError(op.Uuid, err)
			return
		}
		ss.follow(sub)
		ss.reply(socketReply{Uuid: op.Uuid, Status: "Subscribed"})
	case "start", "pause", "resume", "stop":
		t := transitions[op.Operation]
		if err := t.apply(ss.server.manager, op.Uuid); err != nil {
			ss.replyError(op.Uuid, err)
			return
		}
		ss.reply(socketReply{Uuid: op.Uuid, Status: t.reply})
	default:
		ss.log.Warnf("Unsupported operation: %s", op.Operation)
		ss.reply(socketReply{Error: "Unsupported operation: " + op.Operation})
	}
}

// configure creates a request and subscribes this session to it, so its records arrive here once started.
func (ss *session) configure(op operation) {
	config, err := request.ParseConfiguration(op.Configuration, ss.server.manager.Policy())
	if err != nil {
		ss.replyError("", err)
		return
	}
	id, err := ss.server.manager.Create(logctx.New(logctx.Background(), ss.log), config)
	if err != nil {
		ss.replyError("", err)
		return
	}
	sub, err := ss.server.manager.Subscribe(id)
	if err != nil {
		ss.replyError(id, err)
		return
	}
	ss.follow(sub)
	ss.reply(socketReply{Uuid: id, Status: "Configured", Configuration: &config})
}

// follow forwards sub to the peer until it ends.
func (ss *session) follow(sub *stream.Subscription) {
	ss.subsLock.Lock()
	ss.subs[sub] = struct{}{}
	ss.subsLock.Unlock()

	ss.wg.Add(1)
	go func() {
		defer ss.wg.Done()
		defer func() {
			ss.subsLock.Lock()
			delete(ss.subs, sub)
			ss.subsLock.Unlock()
		}()
		for msg := range sub.Messages() {
			if msg.IsTerminal() {
				ss.reply(socketReply{Uuid: sub.RequestId(), Status: string(msg.Status)})
				continue
			}
			if err := ss.send([]byte(msg.Record)); err != nil {
				ss.server.manager.Unsubscribe(sub)
			}
		}
		if ss.closeWhenDrained {
			closing := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = ss.conn.WriteControl(websocket.CloseMessage, closing, time.Now().Add(writeWait))
			_ = ss.conn.Close()
		}
	}()
}

func (ss *session) replyError(id string, err error) {
	ss.reply(socketReply{Uuid: id, Error: errors.Cause(err).Error()})
}

func (ss *session) reply(r socketReply) {
	data, err := json.Marshal(r)
	if err != nil {
		ss.log.WithError(err).Error("Failed to encode reply")
		return
	}
	if err := ss.send(data); err != nil {
		ss.log.WithError(err).Debug("Failed to send reply")
	}
}

func (ss *session) send(data []byte) error {
	ss.writeLock.Lock()
	defer ss.writeLock.Unlock()
	if err := ss.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(ss.conn.WriteMessage(websocket.TextMessage, data))
}
