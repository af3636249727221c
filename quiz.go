// Quizly live session transport
//
// A host creates a session for a quiz and shares its pin. Players connect
// over a WebSocket per pin and the engine in games/quiz keeps every
// connection converged on the session's state.
//
// Routes:
// - POST $path                → create a session, returns its pin
// - GET  $path/:pin           → read-only session snapshot (JSON), no identities
// - GET  $path/:pin/ws        → WebSocket for that session
// - GET  $path/:pin/qr        → PNG QR code of the session URL
//
// Identity precedence: X-Quizly-Identity header, then the identity named
// in the join message, then the quizly_id cookie.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"
	"golang.org/x/time/rate"

	"github.com/OmgRod/quizly-ts-sub000/games/quiz"
)

const (
	playerCookieName = "quizly_id"
	identityHeader   = "X-Quizly-Identity"

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 10
	sendBuffer     = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type outbound struct {
	data  []byte
	final bool
}

// Client is one WebSocket connection. It implements quiz.Transport.
type Client struct {
	id      quiz.TransportID
	conn    *websocket.Conn
	send    chan outbound
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter
	log     zerolog.Logger

	pin      string
	header   string
	cookie   string
	identity string
}

func newClient(conn *websocket.Conn, pin string, cfg *Config, log zerolog.Logger) *Client {
	id := quiz.TransportID(uuid.NewString())
	return &Client{
		id:      id,
		conn:    conn,
		send:    make(chan outbound, sendBuffer),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(cfg.rateLimit), cfg.rateBurst),
		log:     log.With().Str("transport", string(id)).Str("pin", pin).Logger(),
		pin:     pin,
	}
}

func (c *Client) ID() quiz.TransportID { return c.id }

// Send queues ev without blocking. A client whose buffer is full is too
// slow to keep up and gets disconnected.
func (c *Client) Send(ev quiz.Event) bool {
	data, err := quiz.Encode(ev)
	if err != nil {
		c.log.Error().Err(err).Str("event", string(ev.Kind())).Msg("encode event")
		return false
	}

	var final bool
	switch ev.(type) {
	case quiz.KickedEvent, quiz.GameEndedEvent:
		final = true
	}

	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- outbound{data: data, final: final}:
		return true
	case <-c.done:
		return false
	default:
		c.log.Warn().Msg("send buffer full, closing connection")
		c.close()
		return false
	}
}

func (c *Client) Alive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *Client) readPump(ctx context.Context, engine *quiz.Engine) {
	defer func() {
		c.close()
		engine.Disconnect(context.WithoutCancel(ctx), c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("connection closed")
			}
			return
		}

		if !c.limiter.Allow() {
			c.Send(quiz.ErrorEventFor(quiz.ErrRateLimited))
			continue
		}

		cmd, err := quiz.DecodeCommand(data)
		if err == nil {
			err = c.dispatch(ctx, engine, cmd)
		}
		if err != nil {
			c.log.Debug().Err(err).Str("identity", c.identity).Msg("command rejected")
			c.Send(quiz.ErrorEventFor(err))
		}
	}
}

func (c *Client) dispatch(ctx context.Context, engine *quiz.Engine, cmd quiz.Command) error {
	if join, ok := cmd.(quiz.JoinCommand); ok {
		return c.join(ctx, engine, join)
	}
	if c.identity == "" {
		return quiz.ErrUnknownPlayer
	}

	switch cmd := cmd.(type) {
	case quiz.AnswerCommand:
		return engine.SubmitAnswer(ctx, quiz.AnswerRequest{
			Pin:        c.pin,
			Identity:   c.identity,
			OnBehalfOf: cmd.As,
			Index:      cmd.Index,
			Answer:     cmd.Answer,
		})
	case quiz.AdvanceCommand:
		_, err := engine.Advance(ctx, c.pin, c.identity, quiz.Proposal{From: cmd.From, Index: cmd.Index})
		return err
	case quiz.RosterCommand:
		_, err := engine.EditRoster(ctx, c.pin, c.identity, quiz.RosterEdit{
			Op:       cmd.Op,
			Identity: cmd.Identity,
			Name:     cmd.Name,
		})
		return err
	case quiz.AckCommand:
		engine.Ack(c.pin, c.identity, cmd.Seq)
		return nil
	case quiz.EndCommand:
		return engine.EndGame(ctx, c.pin, c.identity)
	}
	return quiz.ErrInvalidCommand
}

func (c *Client) join(ctx context.Context, engine *quiz.Engine, cmd quiz.JoinCommand) error {
	identity := firstNonEmpty(c.header, cmd.Identity, c.cookie)
	if c.identity != "" && identity != c.identity {
		return quiz.ErrAlreadyJoined
	}

	_, err := engine.Join(ctx, quiz.JoinRequest{
		Pin:         c.pin,
		Identity:    identity,
		DisplayName: cmd.Name,
		Host:        cmd.Host,
		Transport:   c,
	})
	if err != nil {
		return err
	}
	c.identity = identity
	return nil
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg.data); err != nil {
				return
			}
			if msg.final {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	id := uuid.NewString()

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, quiz.ErrRoomNotFound), errors.Is(err, quiz.ErrQuizNotFound):
		return http.StatusNotFound
	case errors.Is(err, quiz.ErrQuizNotHostable):
		return http.StatusForbidden
	case errors.Is(err, quiz.ErrInvalidCommand), errors.Is(err, quiz.ErrNoQuestions):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(cfg *Config, w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	return json.NewEncoder(w).Encode(v)
}

func writeError(cfg *Config, w http.ResponseWriter, err error) error {
	return writeJSON(cfg, w, statusFor(err), quiz.ErrorEventFor(err))
}

type createRequest struct {
	Quiz     string `json:"quiz"`
	Name     string `json:"name"`
	Identity string `json:"identity,omitempty"`
	Solo     bool   `json:"solo"`
}

type createResponse struct {
	Pin       string `json:"pin"`
	Host      string `json:"host"`
	JoinURL   string `json:"joinUrl"`
	QRCode    string `json:"qrCode"`
	Questions int    `json:"questions"`
}

func serveCreate(cfg *Config, path string, engine *quiz.Engine, quizzes quiz.QuizSource, log zerolog.Logger, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		var req createRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageSize)).Decode(&req); err != nil {
			if err := writeError(cfg, w, quiz.ErrInvalidCommand); err != nil {
				errs <- err
			}
			return
		}

		identity := firstNonEmpty(r.Header.Get(identityHeader), req.Identity, getOrSetPlayerID(w, r))

		q, err := quizzes.GetQuiz(r.Context(), req.Quiz)
		if err == nil {
			err = quiz.CheckHostable(q, identity)
		}
		var s *quiz.Session
		if err == nil {
			s, err = engine.CreateSession(r.Context(), quiz.CreateRequest{
				QuizRef:      req.Quiz,
				HostIdentity: identity,
				HostName:     req.Name,
				Solo:         req.Solo,
			})
		}
		if err != nil {
			log.Debug().Err(err).Str("quiz", req.Quiz).Str("ip", realIP(r)).Msg("create rejected")
			if err := writeError(cfg, w, err); err != nil {
				errs <- err
			}
			return
		}

		url := sessionURL(cfg, r, path, s.Pin)
		err = writeJSON(cfg, w, http.StatusCreated, createResponse{
			Pin:       s.Pin,
			Host:      identity,
			JoinURL:   url,
			QRCode:    url + "/qr",
			Questions: len(q.Questions),
		})
		if err != nil {
			errs <- err
			return
		}

		log.Info().
			Str("pin", s.Pin).
			Str("quiz", req.Quiz).
			Str("ip", realIP(r)).
			Dur("took", time.Since(startTime).Round(time.Microsecond)).
			Msg("served session create")
	}
}

func serveSnapshot(cfg *Config, engine *quiz.Engine, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		view, err := engine.Snapshot(r.Context(), ps.ByName("pin"))
		if err != nil {
			err = writeError(cfg, w, err)
		} else {
			err = writeJSON(cfg, w, http.StatusOK, view.Anonymous())
		}
		if err != nil {
			errs <- err
		}
	}
}

// serveWS upgrades the request into a Client seated at :pin. The seat
// itself is taken by the join message that follows.
func serveWS(cfg *Config, engine *quiz.Engine, log zerolog.Logger) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		pin := ps.ByName("pin")

		if _, err := engine.Snapshot(r.Context(), pin); err != nil {
			http.Error(w, "session not found", statusFor(err))
			return
		}

		cookie := getOrSetPlayerID(w, r)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug().Err(err).Str("ip", realIP(r)).Msg("websocket upgrade failed")
			return
		}

		client := newClient(conn, pin, cfg, log)
		client.header = r.Header.Get(identityHeader)
		client.cookie = cookie

		log.Debug().
			Str("pin", pin).
			Str("transport", string(client.id)).
			Str("ip", realIP(r)).
			Msg("websocket connected")

		go client.writePump()
		client.readPump(r.Context(), engine)
	}
}

func sessionURL(cfg *Config, r *http.Request, path, pin string) string {
	scheme := cfg.scheme()
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + cfg.prefix + path + "/" + pin
}

// qrHandler renders a PNG QR code of the session URL using go-qrcode.
func qrHandler(cfg *Config, path string, engine *quiz.Engine) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		pin := ps.ByName("pin")

		if _, err := engine.Snapshot(r.Context(), pin); err != nil {
			http.Error(w, "session not found", statusFor(err))
			return
		}

		const qrSize = 320
		png, err := qrcode.Encode(sessionURL(cfg, r, path, pin), qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(cfg, w)
		_, _ = w.Write(png)
	}
}

func registerQuizGame(cfg *Config, path string, mux *httprouter.Router, engine *quiz.Engine, quizzes quiz.QuizSource, log zerolog.Logger, errs chan<- error) {
	mux.POST(cfg.prefix+path, serveCreate(cfg, path, engine, quizzes, log, errs))

	mux.GET(cfg.prefix+path+"/:pin", serveSnapshot(cfg, engine, errs))

	mux.GET(cfg.prefix+path+"/:pin/ws", serveWS(cfg, engine, log))

	mux.GET(cfg.prefix+path+"/:pin/qr", qrHandler(cfg, path, engine))
}
