package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

const (
	maxFrameBytes = 16 << 20
	// healthySession is how long a session must last before the reconnect
	// backoff resets.
	healthySession = time.Minute
)

// Close codes after which reconnecting cannot help.
var fatalCloseCodes = map[websocket.StatusCode]string{
	4004: "authentication failed",
	4010: "invalid shard",
	4011: "sharding required",
	4012: "invalid api version",
	4013: "invalid intents",
	4014: "disallowed intents (enable the message content and server members intents)",
}

var (
	errReconnectRequested = errors.New("discord: gateway requested reconnect")
	errInvalidSession     = errors.New("discord: invalid session")
	errZombie             = errors.New("discord: heartbeat not acknowledged")
)

// FatalError means the gateway refused the bot permanently.
type FatalError struct {
	Code   websocket.StatusCode
	Reason string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("discord: gateway closed with %d: %s", int(e.Code), e.Reason)
}

// Gateway maintains the websocket session and delivers dispatch events.
type Gateway struct {
	url        string
	token      string
	intents    int
	minBackoff time.Duration
	maxBackoff time.Duration
	logger     *slog.Logger

	onReady   func(User)
	onGuild   func(Guild)
	onChannel func(Channel)
	onMessage func(Message)

	connected atomic.Bool
	sessions  atomic.Int64
}

// GatewayHandlers receive dispatch events. Nil handlers are skipped.
type GatewayHandlers struct {
	Ready   func(User)
	Guild   func(Guild)
	Channel func(Channel)
	Message func(Message)
}

// NewGateway creates a Gateway.
func NewGateway(cfg Config, h GatewayHandlers, logger *slog.Logger) *Gateway {
	return &Gateway{
		url:        cfg.GatewayURL,
		token:      cfg.Token,
		intents:    defaultIntents,
		minBackoff: cfg.ReconnectMin,
		maxBackoff: cfg.ReconnectMax,
		logger:     logger,
		onReady:    h.Ready,
		onGuild:    h.Guild,
		onChannel:  h.Channel,
		onMessage:  h.Message,
	}
}

// Connected reports whether a session is currently established.
func (g *Gateway) Connected() bool {
	return g.connected.Load()
}

// Run keeps a session open until ctx ends or the gateway refuses the bot.
// It returns nil on cancellation and a *FatalError otherwise.
func (g *Gateway) Run(ctx context.Context) error {
	backoff := g.minBackoff
	for {
		start := time.Now()
		err := g.session(ctx)
		g.connected.Store(false)

		if ctx.Err() != nil {
			return nil
		}
		var fatal *FatalError
		if errors.As(err, &fatal) {
			g.logger.Error("discord: gateway refused the bot", "code", int(fatal.Code), "reason", fatal.Reason)
			return fatal
		}

		if time.Since(start) > healthySession {
			backoff = g.minBackoff
		}
		wait := backoff
		if errors.Is(err, errInvalidSession) {
			// Discord asks clients to wait 1-5s before identifying again.
			wait = max(wait, time.Second+rand.N(4*time.Second))
		}
		g.logger.Warn("discord: gateway disconnected, reconnecting", "error", err, "in", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		backoff = min(backoff*2, g.maxBackoff)
	}
}

// session runs one connection from dial to close.
func (g *Gateway) session(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, g.url, nil)
	if err != nil {
		return fmt.Errorf("discord: dial gateway: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxFrameBytes)

	first, err := g.read(ctx, conn)
	if err != nil {
		return err
	}
	if first.Op != opHello {
		return fmt.Errorf("discord: expected hello, got op %d", first.Op)
	}
	var h hello
	if err := json.Unmarshal(first.D, &h); err != nil || h.HeartbeatInterval <= 0 {
		return fmt.Errorf("discord: bad hello payload: %s", first.D)
	}

	ctx, cancel := context.WithCancelCause(ctx)

	var seq atomic.Int64
	seq.Store(-1)
	var acked atomic.Bool
	acked.Store(true)

	beating := make(chan struct{})
	go func() {
		defer close(beating)
		g.heartbeat(ctx, cancel, conn, time.Duration(h.HeartbeatInterval)*time.Millisecond, &seq, &acked)
	}()
	defer func() {
		cancel(nil)
		<-beating
	}()

	if err := g.write(ctx, conn, opIdentify, identify{
		Token:   g.token,
		Intents: g.intents,
		Properties: identifyProperties{
			OS:      "linux",
			Browser: "sandy",
			Device:  "sandy",
		},
	}); err != nil {
		return err
	}

	for {
		p, err := g.read(ctx, conn)
		if err != nil {
			if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
				return cause
			}
			return err
		}
		if p.S != nil {
			seq.Store(*p.S)
		}

		switch p.Op {
		case opDispatch:
			g.dispatch(p)
		case opHeartbeat:
			if err := g.beat(ctx, conn, &seq); err != nil {
				return err
			}
		case opHeartbeatAck:
			acked.Store(true)
		case opReconnect:
			_ = conn.Close(websocket.StatusCode(4000), "reconnect requested")
			return errReconnectRequested
		case opInvalidSession:
			_ = conn.Close(websocket.StatusNormalClosure, "invalid session")
			return errInvalidSession
		}
	}
}

// heartbeat sends a beat every interval, the first after a random jitter.
// A beat sent while the previous one is unacknowledged ends the session.
func (g *Gateway) heartbeat(ctx context.Context, cancel context.CancelCauseFunc, conn *websocket.Conn, interval time.Duration, seq *atomic.Int64, acked *atomic.Bool) {
	timer := time.NewTimer(time.Duration(rand.Float64() * float64(interval)))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if !acked.Swap(false) {
			cancel(errZombie)
			_ = conn.Close(websocket.StatusCode(4000), "heartbeat timeout")
			return
		}
		if err := g.beat(ctx, conn, seq); err != nil {
			cancel(err)
			return
		}
		timer.Reset(interval)
	}
}

func (g *Gateway) beat(ctx context.Context, conn *websocket.Conn, seq *atomic.Int64) error {
	d := json.RawMessage("null")
	if s := seq.Load(); s >= 0 {
		d = json.RawMessage(strconv.FormatInt(s, 10))
	}
	return g.write(ctx, conn, opHeartbeat, d)
}

func (g *Gateway) dispatch(p payload) {
	switch p.T {
	case eventReady:
		var r ready
		if err := json.Unmarshal(p.D, &r); err != nil {
			g.logger.Warn("discord: bad READY payload", "error", err)
			return
		}
		g.connected.Store(true)
		g.sessions.Add(1)
		g.logger.Info("discord: gateway ready", "user", r.User.Username, "id", r.User.ID.String())
		if g.onReady != nil {
			g.onReady(r.User)
		}
	case eventGuildCreate, eventGuildUpdate:
		var gd Guild
		if err := json.Unmarshal(p.D, &gd); err != nil {
			g.logger.Warn("discord: bad guild payload", "event", p.T, "error", err)
			return
		}
		if g.onGuild != nil {
			g.onGuild(gd)
		}
	case eventChannelCreate, eventChannelUpdate:
		var ch Channel
		if err := json.Unmarshal(p.D, &ch); err != nil {
			g.logger.Warn("discord: bad channel payload", "event", p.T, "error", err)
			return
		}
		if g.onChannel != nil {
			g.onChannel(ch)
		}
	case eventMessageCreate:
		var m Message
		if err := json.Unmarshal(p.D, &m); err != nil {
			g.logger.Warn("discord: bad message payload", "error", err)
			return
		}
		if g.onMessage != nil {
			g.onMessage(m)
		}
	}
}

func (g *Gateway) read(ctx context.Context, conn *websocket.Conn) (payload, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		code := websocket.CloseStatus(err)
		if reason, ok := fatalCloseCodes[code]; ok {
			return payload{}, &FatalError{Code: code, Reason: reason}
		}
		return payload{}, fmt.Errorf("discord: read gateway: %w", err)
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return payload{}, fmt.Errorf("discord: decode gateway frame: %w", err)
	}
	return p, nil
}

func (g *Gateway) write(ctx context.Context, conn *websocket.Conn, op int, d any) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("discord: encode op %d: %w", op, err)
	}
	data, err := json.Marshal(payload{Op: op, D: raw})
	if err != nil {
		return fmt.Errorf("discord: encode op %d: %w", op, err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("discord: write op %d: %w", op, err)
	}
	return nil
}
