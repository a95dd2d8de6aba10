package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/session"
	"github.com/gorilla/websocket"
)

// WSHandler runs one live quiz attempt per socket. The socket reader and the
// session's ticker both feed the session's owner goroutine; a single writer
// goroutine owns the connection's write side.
type WSHandler struct {
	attempts *app.AttemptService
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewWSHandler(attempts *app.AttemptService, log *slog.Logger) *WSHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WSHandler{
		attempts: attempts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type navigatePayload struct {
	Direction string `json:"direction"`
}

type selectPayload struct {
	QuestionIndex int   `json:"questionIndex"`
	OptionID      int64 `json:"optionId"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// frame is one item for the writer; closing asks it to end the socket.
type frame struct {
	msg     outboundMessage[any]
	closing bool
}

const writeWait = 5 * time.Second

// ServeWS upgrades the request and starts an attempt for ?quizId=&userId=.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID, errQuiz := strconv.ParseInt(r.URL.Query().Get("quizId"), 10, 64)
	userID, errUser := strconv.ParseInt(r.URL.Query().Get("userId"), 10, 64)
	if errQuiz != nil || errUser != nil {
		http.Error(w, "missing or invalid quizId or userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	sess, _, err := h.attempts.StartAttempt(ctx, quizID, userID)
	if err != nil {
		h.log.Info("attempt not started", "quiz_id", quizID, "user_id", userID, "err", err)
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: newErrorPayload(err)})
		return
	}
	log := h.log.With("session_id", sess.ID(), "quiz_id", quizID, "user_id", userID)
	log.Info("ws session attached")

	send := make(chan frame, 16)
	writerDone := make(chan struct{})
	pumpDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		failed := false
		for f := range send {
			// keep draining after a failure so senders never block
			if failed {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if f.closing {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session finished"))
				_ = conn.Close()
				failed = true
				continue
			}
			if err := conn.WriteJSON(f.msg); err != nil {
				log.Warn("ws write error", "err", err)
				failed = true
			}
		}
	}()

	go func() {
		defer close(pumpDone)
		for ev := range sess.Events() {
			send <- frame{msg: eventMessage(ev)}
		}
		send <- frame{closing: true}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if msg, ok := h.dispatch(ctx, sess, inbound); ok {
			send <- frame{msg: msg}
		}
	}

	// no-op when the attempt already finished; abandons it otherwise
	sess.Close()
	<-pumpDone
	close(send)
	<-writerDone
	log.Info("ws session detached")
}

// dispatch turns one client message into a session intent. Successful intents
// are reported through session events, so only errors and explicit snapshot
// requests are answered directly.
func (h *WSHandler) dispatch(ctx context.Context, sess *session.Session, in inboundMessage) (outboundMessage[any], bool) {
	var err error
	switch in.Type {
	case "navigate":
		var p navigatePayload
		if err = json.Unmarshal(in.Payload, &p); err != nil {
			return errorMessage(domain.ErrValidation), true
		}
		var dir session.Direction
		if dir, err = session.ParseDirection(p.Direction); err == nil {
			_, err = sess.Navigate(ctx, dir)
		}
	case "select":
		var p selectPayload
		if err = json.Unmarshal(in.Payload, &p); err != nil {
			return errorMessage(domain.ErrValidation), true
		}
		_, err = sess.SelectOption(ctx, p.QuestionIndex, p.OptionID)
	case "submit":
		_, err = sess.RequestSubmit(ctx)
		if errors.Is(err, domain.ErrPersistence) {
			// already delivered as a failed event
			return outboundMessage[any]{}, false
		}
	case "cancel":
		err = sess.Cancel(ctx)
	case "snapshot":
		snap, err := sess.Snapshot(ctx)
		if err != nil {
			return errorMessage(err), true
		}
		return outboundMessage[any]{Type: "snapshot", Payload: snap}, true
	default:
		return outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "validation", Message: "unsupported message type"}}, true
	}
	if err != nil {
		return errorMessage(err), true
	}
	return outboundMessage[any]{}, false
}

func eventMessage(ev session.Event) outboundMessage[any] {
	switch ev.Type {
	case session.EventTick:
		return outboundMessage[any]{Type: "tick", Payload: ev.Snapshot}
	case session.EventCompleted:
		return outboundMessage[any]{Type: "completed", Payload: ev.Completion}
	case session.EventCancelled:
		return outboundMessage[any]{Type: "cancelled", Payload: ev.Snapshot}
	case session.EventFailed:
		return errorMessage(ev.Err)
	default:
		return outboundMessage[any]{Type: "snapshot", Payload: ev.Snapshot}
	}
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: newErrorPayload(err)}
}
