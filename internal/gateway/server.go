package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/tgienger/stmbot/internal/bot"
	"github.com/tgienger/stmbot/internal/dialogue"
	"github.com/tgienger/stmbot/internal/models"
)

const (
	maxFrameSize    = 4096
	shutdownTimeout = 5 * time.Second
)

// Dispatcher handles chat events. *bot.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev bot.Event) bot.Response
}

// Server exposes the bot over websocket, one JSON frame per message
type Server struct {
	echo       *echo.Echo
	dispatcher Dispatcher
	log        *zap.Logger
	upgrader   websocket.Upgrader

	mu    sync.Mutex
	conns map[models.Owner]map[*conn]struct{}
}

// conn serializes writes to one websocket
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) write(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, err := c.ws.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return err
	}
	return w.Close()
}

// New creates a server. A nil logger discards logs.
func New(d Dispatcher, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		echo:       echo.New(),
		dispatcher: d,
		log:        log,
		conns:      make(map[models.Owner]map[*conn]struct{}),
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Debug("request", zap.String("uri", v.URI), zap.Int("status", v.Status))
			return nil
		},
	}))
	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/health", s.health)
	s.echo.GET("/ws", s.chat)
}

// Handler exposes the router, mainly for httptest
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until ctx is done
func (s *Server) Start(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() {
		errc <- s.echo.Start(addr)
	}()
	s.log.Info("gateway listening", zap.String("addr", addr))

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.closeAll()
	err := s.echo.Shutdown(shutdownCtx)
	<-errc
	return err
}

func (s *Server) health(c echo.Context) error {
	s.mu.Lock()
	n := 0
	for _, set := range s.conns {
		n += len(set)
	}
	s.mu.Unlock()
	return c.JSON(http.StatusOK, echo.Map{"status": "ok", "connections": n})
}

func (s *Server) chat(c echo.Context) error {
	owner, err := strconv.ParseInt(c.QueryParam("owner"), 10, 64)
	if err != nil || owner <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "owner must be a positive integer"})
	}

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader already wrote the error response
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return nil
	}
	ws.SetReadLimit(maxFrameSize)

	cn := &conn{ws: ws}
	s.register(models.Owner(owner), cn)
	defer func() {
		s.unregister(models.Owner(owner), cn)
		ws.Close()
	}()

	s.serve(c.Request().Context(), models.Owner(owner), cn)
	return nil
}

// serve reads frames until the client goes away
func (s *Server) serve(ctx context.Context, owner models.Owner, cn *conn) {
	log := s.log.With(zap.Int64("owner", int64(owner)))
	for {
		var in Inbound
		if err := cn.ws.ReadJSON(&in); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				if werr := cn.write(Outbound{Type: TypeError, Error: "malformed frame"}); werr != nil {
					return
				}
				continue
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("websocket closed", zap.Error(err))
			}
			return
		}

		ev, err := in.event(owner)
		if err != nil {
			if werr := cn.write(Outbound{Type: TypeError, Error: err.Error()}); werr != nil {
				return
			}
			continue
		}

		resp := s.dispatcher.Dispatch(ctx, ev)
		out, err := outbound(resp, dialogue.MessageRef(in.Ref), uuid.NewString)
		if err != nil {
			log.Error("render response", zap.Error(err))
			out = Outbound{Type: TypeError, Error: "internal error"}
		}
		if err := cn.write(out); err != nil {
			log.Debug("write failed", zap.Error(err))
			return
		}
	}
}

func (s *Server) register(owner models.Owner, cn *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.conns[owner]
	if !ok {
		set = make(map[*conn]struct{})
		s.conns[owner] = set
	}
	set[cn] = struct{}{}
}

func (s *Server) unregister(owner models.Owner, cn *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns[owner], cn)
	if len(s.conns[owner]) == 0 {
		delete(s.conns, owner)
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, set := range s.conns {
		for cn := range set {
			cn.ws.Close()
		}
	}
}

// NotifyExpired tells every connection of the owner to drop the prompt message
func (s *Server) NotifyExpired(p bot.ExpiredPrompt) {
	if p.Slot.Context.Anchor == "" {
		return
	}
	s.mu.Lock()
	targets := make([]*conn, 0, len(s.conns[p.Owner]))
	for cn := range s.conns[p.Owner] {
		targets = append(targets, cn)
	}
	s.mu.Unlock()

	out := Outbound{
		Type:    TypeExpired,
		Notice:  bot.NoticeExpired,
		Cleanup: []string{string(p.Slot.Context.Anchor)},
	}
	for _, cn := range targets {
		if err := cn.write(out); err != nil {
			s.log.Debug("expired notice not delivered", zap.Int64("owner", int64(p.Owner)), zap.Error(err))
		}
	}
}
