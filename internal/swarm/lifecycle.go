package swarm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ShayCichocki/swarmer/internal/state"
	"github.com/ShayCichocki/swarmer/pkg/models"
)

// Report is the outcome of a swarm run.
type Report struct {
	SwarmID string
	Status  models.SwarmStatus
	// Completed, Failed, Unallocated and Skipped hold task IDs.
	Completed   []string
	Failed      []string
	Unallocated []string
	Skipped     []string
	// Partial is set when any task did not complete.
	Partial bool
	// Errors holds one *TaskExecutionError per failed task.
	Errors   []error
	Tokens   int64
	Duration time.Duration
}

// Summary renders the report as one line.
func (r *Report) Summary() string {
	parts := []string{
		fmt.Sprintf("%d completed", len(r.Completed)),
		fmt.Sprintf("%d failed", len(r.Failed)),
	}
	if len(r.Unallocated) > 0 {
		parts = append(parts, fmt.Sprintf("%d unallocated", len(r.Unallocated)))
	}
	if len(r.Skipped) > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", len(r.Skipped)))
	}
	s := fmt.Sprintf("%s %s: %s", r.SwarmID, r.Status, strings.Join(parts, ", "))
	if r.Partial {
		s += " (partial)"
	}
	return s
}

// Report returns the outcome so far.
func (s *Swarm) Report() *Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reportLocked()
}

func (s *Swarm) reportLocked() *Report {
	end := s.now()
	if s.state.EndedAt != nil {
		end = *s.state.EndedAt
	}
	r := &Report{
		SwarmID:     s.id,
		Status:      s.state.Status,
		Completed:   append([]string(nil), s.completed...),
		Failed:      append([]string(nil), s.failed...),
		Unallocated: append([]string(nil), s.state.Unallocated...),
		Skipped:     append([]string(nil), s.skipped...),
		Errors:      append([]error(nil), s.failures...),
		Tokens:      s.tokens,
		Duration:    end.Sub(s.state.StartedAt),
	}
	r.Partial = len(r.Completed) < len(s.tasks)
	return r
}

// outcomeLocked is the terminal status once every unit has returned: failed
// when nothing completed but something failed, completed otherwise.
func (s *Swarm) outcomeLocked() models.SwarmStatus {
	if len(s.completed) == 0 && len(s.failed) > 0 {
		return models.SwarmStatusFailed
	}
	return models.SwarmStatusCompleted
}

// finish runs once after the last unit returns.
func (s *Swarm) finish() {
	if s.cfg.IntegrateOnFinish && s.c.opts.isolation != nil && !s.stopping() {
		s.integrate()
	}

	s.mu.Lock()
	if s.state.Status == models.SwarmStatusActive {
		s.state.Status = s.outcomeLocked()
	}
	report := s.reportLocked()
	ev := s.appendLocked(models.CoordinationEvent{
		Type:    models.EventSwarmFinished,
		Message: report.Summary(),
		Data:    map[string]string{"status": string(report.Status)},
	})
	s.mu.Unlock()

	s.export(ev)
	log.Printf("[swarm] %s", report.Summary())
	close(s.done)
}

// integrate folds branches still mapped to agents through an integration branch.
func (s *Swarm) integrate() {
	res, err := s.c.opts.isolation.CoordinateMerges(s.runCtx)
	if err != nil {
		log.Printf("[swarm] warning: integration failed: %v", err)
		return
	}
	if res.Branch == "" {
		return
	}
	s.emit(models.CoordinationEvent{
		Type:    models.EventIntegrated,
		Message: fmt.Sprintf("integration %s: folded %d, skipped %d, tests passed %t", res.Branch, len(res.Folded), len(res.Skipped), res.Passed),
		Data: map[string]string{
			"integration_branch": res.Branch,
			"merged":             fmt.Sprint(res.Merged),
		},
	})
}

// Stop ends the swarm gracefully: no new units start, in-flight units are
// awaited (until ctx is done, then cancelled), each agent is stopped in turn,
// branches are cleaned up and the swarm is unregistered. Per-agent and
// cleanup failures are collected and returned together with the report.
// Later calls return the same result.
func (s *Swarm) Stop(ctx context.Context) (*Report, error) {
	s.stopOnce.Do(func() { s.report, s.stopErr = s.stop(ctx) })
	return s.report, s.stopErr
}

func (s *Swarm) stop(ctx context.Context) (*Report, error) {
	s.requestStop()

	s.mu.Lock()
	finished := s.state.Status.Terminal()
	if !finished {
		s.state.Status = models.SwarmStatusStopping
	}
	s.mu.Unlock()

	s.stopLoop()
	s.stopSignals()

	select {
	case <-s.done:
	case <-ctx.Done():
		log.Printf("[swarm] %s: stop deadline reached, cancelling in-flight units", s.id)
		s.cancel()
		<-s.done
	}

	var errs []error
	s.mu.Lock()
	agents := append([]*models.Agent(nil), s.state.Agents...)
	s.mu.Unlock()
	for _, a := range agents {
		if err := s.stopAgent(a.ID); err != nil {
			log.Printf("[swarm] warning: %v", err)
			errs = append(errs, err)
		}
	}

	if iso := s.c.opts.isolation; iso != nil {
		if err := iso.Cleanup(context.WithoutCancel(ctx)); err != nil {
			log.Printf("[swarm] warning: isolation cleanup: %v", err)
			errs = append(errs, fmt.Errorf("isolation cleanup: %w", err))
		}
	}

	report := s.close(!finished)
	s.cancel()
	return report, errors.Join(errs...)
}

func (s *Swarm) stopAgent(agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.agents[agentID]
	if err := s.transitionLocked(a, models.AgentStatusStopped); err != nil {
		return fmt.Errorf("stop agent: %w", err)
	}
	a.CurrentTaskID = ""
	return nil
}

// ForceStop abandons the swarm immediately: in-flight units are cancelled
// but not awaited, agents are marked stopped and pending wake-ups are dropped.
// Branch cleanup is left to the owner of the isolation manager.
func (s *Swarm) ForceStop() *Report {
	s.stopOnce.Do(func() {
		s.requestStop()
		s.cancel()
		s.stopLoop()
		s.stopSignals()

		s.mu.Lock()
		for _, a := range s.state.Agents {
			a.Status = models.AgentStatusStopped
			a.CurrentTaskID = ""
		}
		s.wakeups = make(map[string]func(context.Context))
		s.wakeupOrder = nil
		s.mu.Unlock()

		s.report = s.close(true)
		log.Printf("[swarm] %s force-stopped", s.id)
	})
	return s.report
}

// close stamps the end time, closes the audit frame and unregisters the swarm.
func (s *Swarm) close(markStopped bool) *Report {
	s.mu.Lock()
	if markStopped {
		s.state.Status = models.SwarmStatusStopped
	}
	end := s.now()
	s.state.EndedAt = &end
	report := s.reportLocked()
	s.mu.Unlock()

	if audit := s.c.opts.audit; audit != nil && s.frameID != "" {
		out := state.FrameOutcome{
			Status:      report.Status,
			Completed:   len(report.Completed),
			Failed:      len(report.Failed),
			Unallocated: len(report.Unallocated),
			Summary:     report.Summary(),
		}
		if err := audit.CloseFrame(s.frameID, out); err != nil {
			log.Printf("[swarm] warning: close audit frame %s: %v", s.frameID, err)
		}
	}
	if r := s.c.opts.registry; r != nil {
		r.Unregister(s.id)
	}
	s.c.opts.metrics.Forget(s.id)
	return report
}

func (s *Swarm) stopSignals() {
	select {
	case <-s.sigQuit:
	default:
		close(s.sigQuit)
	}
	s.sigWG.Wait()
}
