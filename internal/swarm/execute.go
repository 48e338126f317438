package swarm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ShayCichocki/swarmer/internal/capability"
	"github.com/ShayCichocki/swarmer/internal/isolation"
	"github.com/ShayCichocki/swarmer/internal/subagent"
	"github.com/ShayCichocki/swarmer/pkg/models"
)

// runUnit executes one assignment. Units of the same agent run one after
// another; units of different agents run in parallel.
func (s *Swarm) runUnit(ctx context.Context, task models.SwarmTask, agentID string) {
	defer close(s.taskDone[task.ID])

	if s.cfg.RespectDependencies && !s.waitForDependencies(ctx, task) {
		s.skip(task, agentID, "stopped while waiting for dependencies")
		return
	}

	lock := s.unitLocks[agentID]
	lock.Lock()
	defer lock.Unlock()

	if s.stopping() || ctx.Err() != nil {
		s.skip(task, agentID, "swarm is stopping")
		return
	}

	agent, err := s.beginUnit(task, agentID)
	if err != nil {
		s.skip(task, agentID, err.Error())
		return
	}
	s.c.opts.metrics.AgentStarted()
	defer s.c.opts.metrics.AgentFinished()

	start := s.now()
	owner := isolation.OwnerOf(agent)
	iso := s.c.opts.isolation

	hasBranch := false
	if iso != nil {
		branch, err := iso.InitializeAgentWorkflow(ctx, owner, task)
		if err != nil {
			s.vcsDegraded(agent, task, "initialize", err)
		} else {
			hasBranch = true
			s.debug.Log("agent %s working on %s", agent.ID, branch)
		}
	}

	req := subagent.Request{
		Type:          string(agent.Role),
		Task:          s.composeTask(agent, task),
		Context:       s.composeContext(agent),
		MaxIterations: task.Effort.IterationBudget(),
		WorkDir:       s.workDirFor(agent),
	}
	resp, err := s.c.exec.Execute(ctx, req)
	elapsed := s.now().Sub(start)

	if err == nil && (resp == nil || !resp.Success) {
		err = errors.New("subagent reported failure")
		if resp != nil && resp.Result != "" {
			err = fmt.Errorf("subagent reported failure: %s", truncate(resp.Result, 200))
		}
	}
	if err != nil {
		s.recordFailure(agent, task, elapsed, &TaskExecutionError{TaskID: task.ID, AgentID: agent.ID, Err: err})
		return
	}

	data := map[string]string{"elapsed": elapsed.Round(time.Millisecond).String()}
	if resp.Tokens != nil {
		data["tokens"] = fmt.Sprint(*resp.Tokens)
		s.c.opts.metrics.AddTokens(string(agent.Role), *resp.Tokens)
		s.mu.Lock()
		s.tokens += *resp.Tokens
		s.mu.Unlock()
	}
	if hasBranch {
		s.landWork(ctx, agent, task, data)
	}
	s.recordSuccess(agent, task, elapsed, data)
}

// waitForDependencies blocks until every dependency of task has finished.
// Tasks caught in a dependency cycle are not waited for.
func (s *Swarm) waitForDependencies(ctx context.Context, task models.SwarmTask) bool {
	cyclic := make(map[string]bool, len(s.alloc.Cyclic))
	for _, id := range s.alloc.Cyclic {
		cyclic[id] = true
	}
	for _, dep := range task.DependsOn {
		done, ok := s.taskDone[dep]
		if !ok || cyclic[dep] {
			continue
		}
		select {
		case <-done:
		case <-s.stopReq:
			return false
		case <-ctx.Done():
			return false
		}
	}
	return true
}

// beginUnit marks the agent active on task and returns a copy of it.
func (s *Swarm) beginUnit(task models.SwarmTask, agentID string) (*models.Agent, error) {
	s.mu.Lock()
	a := s.agents[agentID]
	if err := s.transitionLocked(a, models.AgentStatusActive); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	a.CurrentTaskID = task.ID
	s.state.ActiveTasks++
	agent := a.Clone()
	ev := s.appendLocked(models.CoordinationEvent{
		Type:    models.EventTaskStarted,
		AgentID: agentID,
		TaskID:  task.ID,
		Message: task.Title,
	})
	s.mu.Unlock()

	s.export(ev)
	log.Printf("[swarm] %s agent %s started %q", agent.Role, agent.ID, task.Title)
	return agent, nil
}

// transitionLocked moves a to next, rejecting transitions the state machine forbids.
func (s *Swarm) transitionLocked(a *models.Agent, next models.AgentStatus) error {
	if !a.Status.CanTransitionTo(next) {
		err := fmt.Errorf("agent %s: invalid transition %s -> %s", a.ID, a.Status, next)
		log.Printf("[swarm] %v", err)
		return err
	}
	a.Status = next
	return nil
}

// landWork commits the agent's branch and merges it into the baseline.
// Failures leave the unit degraded, not failed.
func (s *Swarm) landWork(ctx context.Context, agent *models.Agent, task models.SwarmTask, data map[string]string) {
	iso := s.c.opts.isolation
	owner := isolation.OwnerOf(agent)

	committed, err := iso.CommitAgentWork(ctx, owner, task, 1)
	if err != nil {
		s.vcsDegraded(agent, task, "commit", err)
		return
	}
	data["committed"] = fmt.Sprint(committed)

	res, err := iso.MergeAgentWork(ctx, owner, task)
	if err != nil {
		s.vcsDegraded(agent, task, "merge", err)
		return
	}
	data["branch"] = res.Branch
	data["merge_strategy"] = string(res.Strategy)
	if res.PullRequestURL != "" {
		data["pull_request"] = res.PullRequestURL
	}
	if len(res.Resolved) > 0 {
		data["auto_resolved"] = strings.Join(res.Resolved, ",")
	}
}

func (s *Swarm) vcsDegraded(agent *models.Agent, task models.SwarmTask, op string, err error) {
	log.Printf("[swarm] warning: %s for %s agent %s failed, continuing without isolation: %v", op, agent.Role, agent.ID, err)
	s.emit(models.CoordinationEvent{
		Type:    models.EventVCSDegraded,
		AgentID: agent.ID,
		TaskID:  task.ID,
		Message: err.Error(),
		Data:    map[string]string{"op": op},
	})
}

func (s *Swarm) recordSuccess(agent *models.Agent, task models.SwarmTask, elapsed time.Duration, data map[string]string) {
	s.mu.Lock()
	a := s.agents[agent.ID]
	p := &a.Performance
	p.TasksCompleted++
	p.AverageTaskTime += (elapsed - p.AverageTaskTime) / time.Duration(p.TasksCompleted)
	p.ConsecutiveFailures = 0
	a.CurrentTaskID = ""
	_ = s.transitionLocked(a, models.AgentStatusIdle)

	s.state.ActiveTasks--
	s.state.CompletedTasks++
	s.completed = append(s.completed, task.ID)
	s.finished[task.ID] = true
	ev := s.appendLocked(models.CoordinationEvent{
		Type:    models.EventTaskCompleted,
		AgentID: agent.ID,
		TaskID:  task.ID,
		Message: task.Title,
		Data:    data,
	})
	s.mu.Unlock()

	s.export(ev)
	s.c.opts.metrics.TaskFinished(string(agent.Role), true, elapsed)
	log.Printf("[swarm] %s agent %s completed %q in %s", agent.Role, agent.ID, task.Title, elapsed.Round(time.Millisecond))
}

func (s *Swarm) recordFailure(agent *models.Agent, task models.SwarmTask, elapsed time.Duration, err *TaskExecutionError) {
	conflict := models.Conflict{
		ID:      "conflict-" + uuid.New().String()[:8],
		Time:    s.now(),
		AgentID: agent.ID,
		TaskID:  task.ID,
		Reason:  err.Error(),
	}

	s.mu.Lock()
	a := s.agents[agent.ID]
	p := &a.Performance
	p.SuccessRate = decaySuccessRate(p.SuccessRate, p.TasksCompleted)
	p.ConsecutiveFailures++
	drift := false
	if p.ConsecutiveFailures >= s.cfg.DriftFailureThreshold && !p.DriftDetected {
		p.DriftDetected = true
		drift = true
	}
	a.CurrentTaskID = ""
	_ = s.transitionLocked(a, models.AgentStatusError)

	s.state.ActiveTasks--
	s.state.FailedTasks++
	s.state.Conflicts = append(s.state.Conflicts, conflict)
	s.failed = append(s.failed, task.ID)
	s.failures = append(s.failures, err)
	s.finished[task.ID] = true
	ev := s.appendLocked(models.CoordinationEvent{
		Type:    models.EventTaskFailed,
		AgentID: agent.ID,
		TaskID:  task.ID,
		Message: err.Err.Error(),
		Data: map[string]string{
			"conflict": conflict.ID,
			"elapsed":  elapsed.Round(time.Millisecond).String(),
		},
	})
	s.mu.Unlock()

	s.export(ev)
	s.c.opts.metrics.TaskFinished(string(agent.Role), false, elapsed)
	log.Printf("[swarm] %s agent %s failed %q: %v", agent.Role, agent.ID, task.Title, err.Err)
	if drift {
		log.Printf("[swarm] agent %s drifting after %d consecutive failures", agent.ID, s.cfg.DriftFailureThreshold)
	}
}

// skip records a unit that never ran.
func (s *Swarm) skip(task models.SwarmTask, agentID, reason string) {
	s.mu.Lock()
	s.skipped = append(s.skipped, task.ID)
	s.finished[task.ID] = true
	s.mu.Unlock()
	s.debug.Log("skipped task %s for agent %s: %s", task.ID, agentID, reason)
}

// decaySuccessRate scales rate by (n-1)/n for n completed tasks. Success
// never raises the rate again; with nothing completed it drops to zero.
func decaySuccessRate(rate float64, completed int) float64 {
	if completed <= 0 {
		return 0
	}
	r := rate * float64(completed-1) / float64(completed)
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

// composeTask builds the task prompt: description, acceptance criteria and
// any messages queued for the agent.
func (s *Swarm) composeTask(agent *models.Agent, task models.SwarmTask) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n%s\n", task.Title, task.Description)

	if len(task.AcceptanceCriteria) > 0 {
		b.WriteString("\n## Acceptance criteria\n")
		for i, c := range task.AcceptanceCriteria {
			fmt.Fprintf(&b, "%d. %s\n", i+1, c)
		}
	}

	if src := s.c.opts.signals; src != nil {
		if msg := strings.TrimSpace(src.TakeAgentMessage(agent.ID)); msg != "" {
			b.WriteString("\n## Messages from the coordinator\n")
			b.WriteString(msg)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// composeContext builds the system context: role instructions and a live
// view of what the other agents are working on.
func (s *Swarm) composeContext(agent *models.Agent) string {
	var b strings.Builder
	b.WriteString(capability.Instructions(agent.Role))
	fmt.Fprintf(&b, "\n\nCommunication style: %s\n", agent.Preferences.CommunicationStyle)

	b.WriteString("\n## Other active agents\n")
	others := s.activeOthers(agent.ID)
	if len(others) == 0 {
		b.WriteString("None.\n")
	}
	for _, line := range others {
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (s *Swarm) activeOthers(self string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var lines []string
	for _, a := range s.state.Agents {
		if a.ID == self || a.Status != models.AgentStatusActive || a.CurrentTaskID == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s (%s): %s", a.Role, a.ID, s.tasks[a.CurrentTaskID].Title))
	}
	return lines
}

func (s *Swarm) workDirFor(agent *models.Agent) string {
	if s.cfg.RepoPath != "" {
		return s.cfg.RepoPath
	}
	return agent.WorkDir
}

// truncate cuts str to at most n runes.
func truncate(str string, n int) string {
	if utf8.RuneCountInString(str) <= n {
		return str
	}
	return string([]rune(str)[:n]) + "..."
}
