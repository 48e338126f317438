package swarm

import (
	"context"
	"fmt"
	"log"
)

// MessageWriter queues a message for an agent's next prompt.
// *signals.Watcher implements it.
type MessageWriter interface {
	WriteAgentMessage(agentID, message string) error
}

// MessageHooks delivers directives as agent messages, which the agent sees
// at the start of its next task.
type MessageHooks struct {
	w MessageWriter
}

// NewMessageHooks returns Hooks writing through w.
func NewMessageHooks(w MessageWriter) *MessageHooks {
	return &MessageHooks{w: w}
}

// OnDirective implements Hooks.
func (h *MessageHooks) OnDirective(_ context.Context, d Directive) {
	if d.AgentID == "" {
		return
	}
	msg := fmt.Sprintf("[%s] %s", d.Kind, d.Message)
	if err := h.w.WriteAgentMessage(d.AgentID, msg); err != nil {
		log.Printf("[swarm] warning: deliver %s directive to %s: %v", d.Kind, d.AgentID, err)
	}
}

// MultiHooks fans a directive out to several hooks in order.
type MultiHooks []Hooks

// OnDirective implements Hooks.
func (m MultiHooks) OnDirective(ctx context.Context, d Directive) {
	for _, h := range m {
		if h != nil {
			h.OnDirective(ctx, d)
		}
	}
}

var (
	_ Hooks = (*MessageHooks)(nil)
	_ Hooks = MultiHooks(nil)
	_ Hooks = HooksFunc(nil)
)
