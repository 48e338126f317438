package swarm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ShayCichocki/swarmer/pkg/models"
)

// Coordination phases, in the order a cycle runs them.
const (
	PhasePathology   = "pathology"
	PhaseReplanning  = "replanning"
	PhaseConflicts   = "conflicts"
	PhaseRebalancing = "rebalancing"
	PhaseMetrics     = "metrics"
)

// recentWindow is how many of an agent's events the tunnel-vision predicate sees.
const recentWindow = 10

type phase struct {
	name string
	run  func(ctx context.Context) error
}

func (s *Swarm) phases() []phase {
	return []phase{
		{PhasePathology, s.detectPathologies},
		{PhaseReplanning, s.drainWakeups},
		{PhaseConflicts, s.resolveConflicts},
		{PhaseRebalancing, s.monitorLoad},
		{PhaseMetrics, s.updatePerformance},
	}
}

func (s *Swarm) startLoop() error {
	s.loopMu.Lock()
	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	s.cron.Start()
	s.loopMu.Unlock()
	return s.Rearm(s.cfg.CoordinationInterval)
}

// Rearm schedules the coordination cycle every interval, replacing the
// current schedule. Re-arming with the active interval changes nothing.
// cron rounds intervals below one second up to one second.
func (s *Swarm) Rearm(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("coordination interval must be positive, got %s", interval)
	}
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if s.cron == nil {
		return ErrNotRunning
	}
	if s.entry != 0 && s.interval == interval {
		return nil
	}
	id, err := s.cron.AddFunc("@every "+interval.String(), s.cycle)
	if err != nil {
		return fmt.Errorf("schedule coordination: %w", err)
	}
	if s.entry != 0 {
		s.cron.Remove(s.entry)
	}
	s.entry, s.interval = id, interval
	s.debug.Log("coordination every %s", interval)
	return nil
}

// stopLoop releases the schedule and waits for a running cycle to return.
func (s *Swarm) stopLoop() {
	s.loopMu.Lock()
	c := s.cron
	s.cron = nil
	s.entry = 0
	s.loopMu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
}

// cycle is the scheduled job. It does nothing unless the swarm is active.
func (s *Swarm) cycle() {
	if s.Status() != models.SwarmStatusActive {
		return
	}
	s.RunCycle(s.runCtx)
}

// RunCycle runs every coordination phase once, in order. A phase that fails
// or panics is logged and recorded; the phases after it still run.
func (s *Swarm) RunCycle(ctx context.Context) []error {
	start := s.now()
	var errs []error
	for _, p := range s.phases() {
		if err := s.runPhase(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}

	s.mu.Lock()
	s.cycleTime += s.now().Sub(start)
	s.cycles++
	s.mu.Unlock()
	s.c.opts.metrics.Cycle()
	return errs
}

func (s *Swarm) runPhase(ctx context.Context, p phase) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PhaseError{Phase: p.name, Err: fmt.Errorf("%v", r), Panicked: true}
		}
		if err == nil {
			return
		}
		log.Printf("[coordination] %v", err)
		s.c.opts.metrics.PhaseError(p.name)
		s.emit(models.CoordinationEvent{
			Type:    models.EventPhaseError,
			Message: err.Error(),
			Data:    map[string]string{"phase": p.name},
		})
	}()
	if perr := p.run(ctx); perr != nil {
		return &PhaseError{Phase: p.name, Err: perr}
	}
	return nil
}

// working reports whether the agent is mid-task or just failed one.
func working(a *models.Agent) bool {
	return a.Status == models.AgentStatusActive || a.Status == models.AgentStatusError
}

type agentView struct {
	agent  models.Agent
	recent []models.CoordinationEvent
}

// detectPathologies looks at every working agent: drift triggers a fresh
// start; otherwise tunnel vision triggers an alternative-approach directive;
// otherwise an active agent running long since its last fresh start gets a
// checkpoint request.
func (s *Swarm) detectPathologies(ctx context.Context) error {
	now := s.now()

	s.mu.Lock()
	var views []agentView
	for _, a := range s.state.Agents {
		if !working(a) {
			continue
		}
		v := agentView{agent: *a.Clone()}
		if s.c.opts.tunnelVision != nil {
			v.recent = s.recentEventsLocked(a.ID, recentWindow)
		}
		views = append(views, v)
	}
	s.mu.Unlock()

	for _, v := range views {
		a := v.agent
		switch {
		case a.Performance.DriftDetected:
			s.FreshStart(ctx, a.ID)
		case s.c.opts.tunnelVision != nil && s.c.opts.tunnelVision(a, v.recent):
			s.direct(ctx, DirectiveAlternativeApproach, a.ID, a.CurrentTaskID,
				"You appear to be repeating an approach that is not working. Step back and try a different one.")
		case a.Status == models.AgentStatusActive &&
			now.Sub(a.Performance.LastFreshStart) > s.cfg.CheckpointAfter && s.checkpointDue(a.ID, now):
			s.direct(ctx, DirectiveCheckpoint, a.ID, a.CurrentTaskID,
				fmt.Sprintf("Running for over %s. Commit what works and summarise progress.", s.cfg.CheckpointAfter))
		}
	}
	return nil
}

// checkpointDue limits checkpoint requests to one per CheckpointAfter per agent.
func (s *Swarm) checkpointDue(agentID string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.checkpoints[agentID]; ok && now.Sub(last) < s.cfg.CheckpointAfter {
		return false
	}
	s.checkpoints[agentID] = now
	return true
}

// FreshStart clears agentID's drift state and stamps LastFreshStart.
func (s *Swarm) FreshStart(ctx context.Context, agentID string) {
	now := s.now()
	s.mu.Lock()
	a, ok := s.agents[agentID]
	if !ok {
		s.mu.Unlock()
		return
	}
	a.Performance.DriftDetected = false
	a.Performance.ConsecutiveFailures = 0
	a.Performance.LastFreshStart = now
	delete(s.checkpoints, agentID)
	taskID := a.CurrentTaskID
	s.mu.Unlock()

	log.Printf("[coordination] fresh start for agent %s", agentID)
	s.direct(ctx, DirectiveFreshStart, agentID, taskID,
		"Your recent attempts failed. Start over from the current state of the repository.")
}

var directiveEvents = map[DirectiveKind]models.EventType{
	DirectiveFreshStart:          models.EventFreshStart,
	DirectiveAlternativeApproach: models.EventAlternativeApproach,
	DirectiveCheckpoint:          models.EventCheckpointRequest,
	DirectivePlannerWakeup:       models.EventPlannerWakeup,
}

// direct logs a directive and hands it to the hooks.
func (s *Swarm) direct(ctx context.Context, kind DirectiveKind, agentID, taskID, message string) {
	ev := s.emit(models.CoordinationEvent{
		Type:    directiveEvents[kind],
		AgentID: agentID,
		TaskID:  taskID,
		Message: message,
	})
	s.c.opts.metrics.Directive(string(kind))
	if h := s.c.opts.hooks; h != nil {
		h.OnDirective(ctx, Directive{
			Kind:    kind,
			SwarmID: s.id,
			AgentID: agentID,
			TaskID:  taskID,
			Message: message,
			Time:    ev.Time,
		})
	}
}

type wakeup struct {
	agentID string
	fn      func(context.Context)
}

// drainWakeups runs and removes the queued wake-up of every idle agent.
func (s *Swarm) drainWakeups(ctx context.Context) error {
	s.mu.Lock()
	var due []wakeup
	remaining := s.wakeupOrder[:0]
	for _, id := range s.wakeupOrder {
		if s.agents[id].Status == models.AgentStatusIdle {
			due = append(due, wakeup{agentID: id, fn: s.wakeups[id]})
			delete(s.wakeups, id)
			continue
		}
		remaining = append(remaining, id)
	}
	s.wakeupOrder = remaining
	s.mu.Unlock()

	for _, w := range due {
		if w.fn != nil {
			w.fn(ctx)
		}
		s.direct(ctx, DirectivePlannerWakeup, w.agentID, "", "Replanning requested: review the remaining work.")
	}
	return nil
}

type pendingConflict struct {
	conflict models.Conflict
	strategy models.ConflictStrategy
}

// resolveConflicts reports outstanding conflicts and, with a resolver set,
// tries each one using the owning agent's strategy.
func (s *Swarm) resolveConflicts(ctx context.Context) error {
	s.mu.Lock()
	var pending []pendingConflict
	for _, c := range s.state.Conflicts {
		if c.Resolved {
			continue
		}
		strategy := models.ConflictDemocratic
		if a, ok := s.agents[c.AgentID]; ok && a.Preferences.ConflictResolution != "" {
			strategy = a.Preferences.ConflictResolution
		}
		pending = append(pending, pendingConflict{conflict: c, strategy: strategy})
	}
	s.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}
	s.debug.Log("%d outstanding conflict(s)", len(pending))
	resolver := s.c.opts.resolver
	if resolver == nil {
		return nil
	}

	var errs []error
	for _, p := range pending {
		outcome, ok, err := resolver.Resolve(ctx, p.conflict, p.strategy)
		if err != nil {
			errs = append(errs, fmt.Errorf("conflict %s: %w", p.conflict.ID, err))
			continue
		}
		if !ok {
			continue
		}
		s.markResolved(p, outcome)
	}
	return errors.Join(errs...)
}

func (s *Swarm) markResolved(p pendingConflict, outcome string) {
	now := s.now()
	s.mu.Lock()
	for i := range s.state.Conflicts {
		if s.state.Conflicts[i].ID == p.conflict.ID {
			s.state.Conflicts[i].Resolved = true
		}
	}
	s.state.Resolutions = append(s.state.Resolutions, models.Resolution{
		ConflictID: p.conflict.ID,
		Time:       now,
		Strategy:   p.strategy,
		Outcome:    outcome,
	})
	ev := s.appendLocked(models.CoordinationEvent{
		Time:    now,
		Type:    models.EventConflictResolved,
		AgentID: p.conflict.AgentID,
		TaskID:  p.conflict.TaskID,
		Message: outcome,
		Data: map[string]string{
			"conflict": p.conflict.ID,
			"strategy": string(p.strategy),
		},
	})
	s.mu.Unlock()
	s.export(ev)
}

// monitorLoad logs how many unfinished tasks each agent still holds.
// Tasks are never moved between agents.
func (s *Swarm) monitorLoad(context.Context) error {
	s.mu.Lock()
	load := make(map[string]int, len(s.agents))
	for _, taskID := range s.alloc.Order {
		if !s.finished[taskID] {
			load[s.alloc.Assignments[taskID].AgentID]++
		}
	}
	agents := make([]models.Agent, 0, len(s.state.Agents))
	for _, a := range s.state.Agents {
		agents = append(agents, *a)
	}
	s.mu.Unlock()

	for _, a := range agents {
		s.debug.Log("load %s %s: %d pending task(s), status %s", a.Role, a.ID, load[a.ID], a.Status)
	}
	return nil
}

// updatePerformance refreshes throughput, efficiency and coordination overhead.
func (s *Swarm) updatePerformance(context.Context) error {
	s.mu.Lock()
	elapsed := s.now().Sub(s.state.StartedAt).Seconds()
	completed := float64(s.state.CompletedTasks)
	active := 0
	for _, a := range s.state.Agents {
		if a.Status == models.AgentStatusActive {
			active++
		}
	}
	var perf models.SwarmPerformance
	if elapsed > 0 {
		perf.Throughput = completed / elapsed
		perf.CoordinationOverhead = s.cycleTime.Seconds() / elapsed
	}
	if active > 0 {
		perf.Efficiency = completed / float64(active)
	}
	s.state.Performance = perf
	s.mu.Unlock()

	s.c.opts.metrics.SetPerformance(s.id, perf.Throughput, perf.Efficiency, perf.CoordinationOverhead)
	return nil
}
