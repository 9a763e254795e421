package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/duelquiz/internal/domain"
	"github.com/victornm/duelquiz/internal/errors"
	"github.com/victornm/duelquiz/internal/notify"
)

// ParticipantHeader carries the caller's id, set by the identity gateway in
// front of the service.
const ParticipantHeader = "X-Participant-ID"

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (a *API) registerHTTP(r gin.IRouter) {
	v1 := r.Group("/v1", requireParticipant)

	v1.POST("/matches", a.httpFindOrCreate)
	v1.GET("/sessions", a.httpListOpen)
	v1.GET("/sessions/:id", a.httpGetSession)
	v1.POST("/sessions/:id/join", a.httpJoin)
	v1.POST("/sessions/:id/answers", a.httpSubmitAnswer)
	v1.GET("/sessions/:id/questions", a.httpQuestions)
	v1.GET("/sessions/:id/events", a.httpEvents)
}

func requireParticipant(c *gin.Context) {
	p := c.GetHeader(ParticipantHeader)
	if p == "" {
		abort(c, errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("missing %s header", ParticipantHeader)))
		return
	}

	c.Request = c.Request.WithContext(withParticipant(c.Request.Context(), p))
	c.Next()
}

func abort(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{"error": e})
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		abort(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid request body: %v", err)))
		return false
	}
	return true
}

func (a *API) httpFindOrCreate(c *gin.Context) {
	var req FindOrCreateRequest
	if !bind(c, &req) {
		return
	}

	resp, err := a.FindOrCreate(c.Request.Context(), &req)
	if err != nil {
		abort(c, err)
		return
	}

	code := http.StatusOK
	if resp.Created {
		code = http.StatusCreated
	}
	c.JSON(code, resp)
}

func (a *API) httpListOpen(c *gin.Context) {
	resp, err := a.ListOpen(c.Request.Context(), &ListOpenRequest{
		Filter: domain.Filter{
			Category:   c.Query("category"),
			Difficulty: c.Query("difficulty"),
		},
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) httpGetSession(c *gin.Context) {
	resp, err := a.GetSession(c.Request.Context(), &GetSessionRequest{SessionID: c.Param("id")})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) httpJoin(c *gin.Context) {
	resp, err := a.Join(c.Request.Context(), &JoinRequest{SessionID: c.Param("id")})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) httpSubmitAnswer(c *gin.Context) {
	var req SubmitAnswerRequest
	if !bind(c, &req) {
		return
	}
	req.SessionID = c.Param("id")

	resp, err := a.SubmitAnswer(c.Request.Context(), &req)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) httpQuestions(c *gin.Context) {
	resp, err := a.GetSession(c.Request.Context(), &GetSessionRequest{SessionID: c.Param("id")})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"questions": resp.Questions})
}

// httpEvents upgrades to a websocket and pushes the session's notifications as
// JSON messages. The server closes the socket after game_completed.
func (a *API) httpEvents(c *gin.Context) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sub, ss, err := a.subscribe(ctx, c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}
	defer sub.Close()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.WarnContext(ctx, "api: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	if ss.Status == domain.StatusCompleted {
		closeSocket(conn)
		return
	}

	var eg errgroup.Group
	eg.Go(func() error {
		defer cancel()
		return readPump(conn)
	})
	eg.Go(func() error {
		// Unblocks readPump once writing is over.
		defer conn.Close()
		return writePump(ctx, conn, sub)
	})

	if err := eg.Wait(); err != nil {
		slog.DebugContext(ctx, "api: websocket closed", "session", ss.SessionID, "error", err)
	}
}

// readPump discards client messages and keeps the read deadline fresh on pongs.
// It returns when the peer goes away.
func readPump(conn *websocket.Conn) error {
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return err
			}
			return nil
		}
	}
}

// writePump forwards notifications and pings the peer until the game
// completes, then sends a normal close.
func writePump(ctx context.Context, conn *websocket.Conn, sub *notify.Subscription) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pings := make(chan error, 1)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					pings <- err
					cancel()
					return
				}
			}
		}
	}()

	err := forward(ctx, sub, func(e *Event) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(e)
	})
	if err != nil {
		return err
	}

	select {
	case err := <-pings:
		return err
	default:
	}

	closeSocket(conn)
	return nil
}

func closeSocket(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
