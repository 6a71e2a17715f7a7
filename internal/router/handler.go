package router

import (
	"context"
	"strings"

	"github.com/flemzord/sandy/internal/agent"
	"github.com/flemzord/sandy/internal/channel"
	"github.com/flemzord/sandy/internal/history"
	"github.com/flemzord/sandy/internal/provider"
	"github.com/flemzord/sandy/internal/tool"
	"github.com/flemzord/sandy/pkg/message"
)

// handle runs one queued turn: log it, answer it when the gate says so,
// then write it back.
func (r *Router) handle(ctx context.Context, env envelope) {
	turn := env.Turn
	r.logger.Info("["+turn.ServerName+"/"+turn.ChannelName+"] "+turn.Author.Display()+": "+message.SingleLine(turn.ResolveMentions()),
		"room", turn.Room.String(),
		"queued", r.config.Now().Sub(env.Received),
	)

	if !turn.Author.Bot && !turn.Self {
		r.answer(ctx, turn)
	}
	r.writeBack(turn)
}

// answer holds the room's lane while the gate and, on yes, generation run.
func (r *Router) answer(ctx context.Context, turn message.Turn) {
	r.laneLock.Acquire(turn.Room)
	defer r.laneLock.Release(turn.Room)

	if ctx.Err() != nil {
		return
	}

	self, _ := r.config.Channel.Self()
	botName := r.config.Persona.Name
	if botName == "" {
		botName = self.Display()
	}

	snap := r.config.Cache.Snapshot(turn.Room)
	now := r.config.Now()
	narrative := history.Narrative(snap, now, r.config.GateMessages)
	if d := r.config.Gate.Decide(ctx, narrative, botName); !d.Respond {
		return
	}

	if tc, ok := r.config.Channel.(channel.TypingChannel); ok {
		stop := channel.StartTypingLoop(ctx, tc, turn.Room.ChannelID, r.config.TypingInterval)
		defer stop()
	}

	var recalled string
	if r.config.RAG && r.config.Memory != nil {
		recalled = r.config.Memory.Recall(ctx, turn.Content, turn.Room.ServerID)
	}

	persona := r.config.Persona
	persona.Name = botName
	res, err := r.config.Agent.Generate(ctx, agent.Request{
		History: history.Alternating(snap, self.ID, now),
		Persona: persona,
		Memory:  recalled,
		Scope:   tool.Scope{ServerID: turn.Room.ServerID, ServerName: turn.ServerName},
		Channel: turn.ChannelName,
		Tools:   r.config.Tools,
		Send: func(ctx context.Context, text string) error {
			return r.send(ctx, turn.Room.ChannelID, text)
		},
	})
	if err != nil {
		r.logger.Error("router: generation failed, no reply",
			"room", turn.Room.String(),
			"transient", provider.IsRetryable(err),
			"error", err,
		)
		r.config.Metrics.RecordError()
		return
	}
	if strings.TrimSpace(res.Content) == "" {
		r.logger.Warn("router: empty reply, nothing sent", "room", turn.Room.String(), "rounds", res.Rounds)
		return
	}
	if err := r.send(ctx, turn.Room.ChannelID, res.Content); err != nil {
		r.logger.Error("router: send failed", "room", turn.Room.String(), "error", err)
		r.config.Metrics.RecordError()
		return
	}
	r.config.Metrics.RecordReply()
}

func (r *Router) send(ctx context.Context, channelID int64, text string) error {
	return r.config.Channel.Send(ctx, message.Outbound{ChannelID: channelID, Text: text})
}
