package swarm

import (
	"log"

	"github.com/ShayCichocki/swarmer/pkg/models"
)

// appendLocked stamps ev with the next sequence number and appends it to the
// coordination log, trimming the oldest entries beyond MaxLogEntries.
// Caller holds s.mu.
func (s *Swarm) appendLocked(ev models.CoordinationEvent) models.CoordinationEvent {
	s.seq++
	ev.Seq = s.seq
	if ev.Time.IsZero() {
		ev.Time = s.now()
	}
	s.state.Events = append(s.state.Events, ev)
	if over := len(s.state.Events) - s.cfg.MaxLogEntries; over > 0 {
		s.state.Events = append([]models.CoordinationEvent(nil), s.state.Events[over:]...)
		s.state.Trimmed += over
	}
	return ev
}

// export journals and publishes ev. Failures are logged and dropped.
func (s *Swarm) export(ev models.CoordinationEvent) {
	if audit := s.c.opts.audit; audit != nil {
		if err := audit.AppendEvent(s.id, ev); err != nil {
			log.Printf("[swarm] warning: journal event %d (%s): %v", ev.Seq, ev.Type, err)
		}
	}
	if pub := s.c.opts.publisher; pub != nil {
		if err := pub.Publish(s.id, ev); err != nil {
			log.Printf("[swarm] warning: publish event %d (%s): %v", ev.Seq, ev.Type, err)
		}
	}
	s.debug.Log("event %d %s agent=%s task=%s %s", ev.Seq, ev.Type, ev.AgentID, ev.TaskID, ev.Message)
}

func (s *Swarm) emit(ev models.CoordinationEvent) models.CoordinationEvent {
	s.mu.Lock()
	ev = s.appendLocked(ev)
	s.mu.Unlock()
	s.export(ev)
	return ev
}

// recentEventsLocked returns up to n of agentID's latest events, oldest first.
func (s *Swarm) recentEventsLocked(agentID string, n int) []models.CoordinationEvent {
	var out []models.CoordinationEvent
	for i := len(s.state.Events) - 1; i >= 0 && len(out) < n; i-- {
		if s.state.Events[i].AgentID == agentID {
			out = append(out, cloneEvent(s.state.Events[i]))
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func cloneEvent(ev models.CoordinationEvent) models.CoordinationEvent {
	if ev.Data != nil {
		data := make(map[string]string, len(ev.Data))
		for k, v := range ev.Data {
			data[k] = v
		}
		ev.Data = data
	}
	return ev
}
