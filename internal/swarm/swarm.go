package swarm

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/swarmer/internal/allocate"
	"github.com/ShayCichocki/swarmer/internal/logging"
	"github.com/ShayCichocki/swarmer/internal/registry"
	"github.com/ShayCichocki/swarmer/internal/signals"
	"github.com/ShayCichocki/swarmer/internal/state"
	"github.com/ShayCichocki/swarmer/pkg/models"
)

// Swarm is one launched run. All methods are safe for concurrent use.
type Swarm struct {
	c     *Coordinator
	cfg   Config
	now   func() time.Time
	debug *logging.DebugLogger

	id      string
	frameID string
	runCtx  context.Context
	cancel  context.CancelFunc

	// Immutable after newSwarm.
	tasks     map[string]models.SwarmTask
	alloc     *allocate.Allocation
	unitLocks map[string]*sync.Mutex
	taskDone  map[string]chan struct{}

	mu          sync.Mutex
	state       models.SwarmState
	agents      map[string]*models.Agent
	seq         int64
	completed   []string
	failed      []string
	skipped     []string
	failures    []error
	finished    map[string]bool
	tokens      int64
	wakeups     map[string]func(context.Context)
	wakeupOrder []string
	checkpoints map[string]time.Time
	cycleTime   time.Duration
	cycles      int

	loopMu   sync.Mutex
	cron     *cron.Cron
	entry    cron.EntryID
	interval time.Duration

	done        chan struct{}
	stopReq     chan struct{}
	stopReqOnce sync.Once
	sigQuit     chan struct{}
	sigWG       sync.WaitGroup
	stopOnce    sync.Once
	report      *Report
	stopErr     error
}

var _ registry.Source = (*Swarm)(nil)

func newSwarm(c *Coordinator, description string, tasks []models.SwarmTask, agents []*models.Agent, alloc *allocate.Allocation) *Swarm {
	s := &Swarm{
		c:           c,
		cfg:         c.opts.config,
		now:         c.opts.now,
		debug:       c.opts.logger.With("[swarm]"),
		tasks:       make(map[string]models.SwarmTask, len(tasks)),
		alloc:       alloc,
		unitLocks:   make(map[string]*sync.Mutex, len(agents)),
		taskDone:    make(map[string]chan struct{}, len(tasks)),
		agents:      make(map[string]*models.Agent, len(agents)),
		finished:    make(map[string]bool),
		wakeups:     make(map[string]func(context.Context)),
		checkpoints: make(map[string]time.Time),
		done:        make(chan struct{}),
		stopReq:     make(chan struct{}),
		sigQuit:     make(chan struct{}),
	}
	for _, t := range tasks {
		s.tasks[t.ID] = t
		s.taskDone[t.ID] = make(chan struct{})
	}
	for _, a := range agents {
		s.agents[a.ID] = a
		s.unitLocks[a.ID] = &sync.Mutex{}
	}
	for _, id := range alloc.Unallocated() {
		close(s.taskDone[id])
		s.finished[id] = true
	}

	s.state = models.SwarmState{
		Description: description,
		Status:      models.SwarmStatusIdle,
		Agents:      agents,
		Tasks:       tasks,
		Unallocated: alloc.Unallocated(),
	}
	for _, taskID := range alloc.Order {
		s.state.Assignments = append(s.state.Assignments, alloc.Assignments[taskID])
	}
	return s
}

func (s *Swarm) start(ctx context.Context) {
	s.runCtx, s.cancel = context.WithCancel(ctx)

	if r := s.c.opts.registry; r != nil {
		s.id = r.Register(s, s.state.Description)
	} else {
		s.id = "swarm-" + uuid.New().String()[:8]
	}

	s.mu.Lock()
	s.state.ID = s.id
	s.state.Status = models.SwarmStatusActive
	s.state.StartedAt = s.now()
	s.mu.Unlock()

	s.openFrame()

	log.Printf("[swarm] %s started: %d agent(s), %d task(s), %d unallocated",
		s.id, len(s.agents), len(s.tasks), len(s.alloc.Gaps))
	s.emit(models.CoordinationEvent{
		Type:    models.EventSwarmStarted,
		Message: s.state.Description,
		Data: map[string]string{
			"agents": fmt.Sprint(len(s.agents)),
			"tasks":  fmt.Sprint(len(s.tasks)),
		},
	})
	for _, taskID := range s.alloc.Order {
		a := s.alloc.Assignments[taskID]
		s.emit(models.CoordinationEvent{
			Type:    models.EventTaskAssigned,
			AgentID: a.AgentID,
			TaskID:  taskID,
			Message: s.tasks[taskID].Title,
		})
	}
	for _, gap := range s.alloc.Gaps {
		err := fmt.Errorf("%w: %w", ErrAllocationGap, gap)
		log.Printf("[swarm] warning: %v", err)
		s.emit(models.CoordinationEvent{
			Type:    models.EventTaskUnallocated,
			TaskID:  gap.TaskID,
			Message: err.Error(),
		})
	}
	s.c.opts.metrics.Unallocated(len(s.alloc.Gaps))

	if err := s.startLoop(); err != nil {
		log.Printf("[swarm] warning: coordination loop not started: %v", err)
	}
	s.watchSignals()
	go s.runUnits()
}

func (s *Swarm) openFrame() {
	audit := s.c.opts.audit
	if audit == nil {
		return
	}
	f := &state.Frame{
		SwarmID:     s.id,
		Description: s.state.Description,
		Agents:      len(s.agents),
		Tasks:       len(s.tasks),
		StartedAt:   s.state.StartedAt,
	}
	if err := audit.CreateFrame(f); err != nil {
		log.Printf("[swarm] warning: audit frame not created: %v", err)
		return
	}
	s.frameID = f.ID
}

// runUnits starts one unit per assignment. Units never cancel each other:
// every unit records its own outcome and returns nil.
func (s *Swarm) runUnits() {
	var g errgroup.Group
	for _, taskID := range s.alloc.Order {
		task := s.tasks[taskID]
		agentID := s.alloc.Assignments[taskID].AgentID
		g.Go(func() error {
			s.runUnit(s.runCtx, task, agentID)
			return nil
		})
	}
	_ = g.Wait()
	s.finish()
}

// ID returns the swarm id.
func (s *Swarm) ID() string {
	return s.id
}

// Status returns the current swarm status.
func (s *Swarm) Status() models.SwarmStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Status
}

// Done is closed once every execution unit has returned.
func (s *Swarm) Done() <-chan struct{} {
	return s.done
}

// StopRequested is closed when a stop was asked for, by Stop or by an
// operator signal.
func (s *Swarm) StopRequested() <-chan struct{} {
	return s.stopReq
}

// Wait blocks until every unit has returned or ctx is done.
func (s *Swarm) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Swarm) requestStop() {
	s.stopReqOnce.Do(func() { close(s.stopReq) })
}

func (s *Swarm) stopping() bool {
	select {
	case <-s.stopReq:
		return true
	default:
		return false
	}
}

// Snapshot returns a deep copy of the swarm state.
func (s *Swarm) Snapshot() models.SwarmState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.state
	out.Agents = make([]*models.Agent, len(s.state.Agents))
	for i, a := range s.state.Agents {
		out.Agents[i] = a.Clone()
	}
	out.Tasks = append([]models.SwarmTask(nil), s.state.Tasks...)
	out.Assignments = append([]models.Assignment(nil), s.state.Assignments...)
	out.Unallocated = append([]string(nil), s.state.Unallocated...)
	out.Conflicts = append([]models.Conflict(nil), s.state.Conflicts...)
	out.Resolutions = append([]models.Resolution(nil), s.state.Resolutions...)
	out.Events = make([]models.CoordinationEvent, len(s.state.Events))
	for i, ev := range s.state.Events {
		out.Events[i] = cloneEvent(ev)
	}
	if s.state.EndedAt != nil {
		end := *s.state.EndedAt
		out.EndedAt = &end
	}
	return out
}

// Agent returns a copy of the agent with id.
func (s *Swarm) Agent(id string) (*models.Agent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// QueuePlannerWakeup registers a one-shot callback run by the coordination
// loop the next time agentID is idle. A later call for the same agent
// replaces the pending callback. fn may be nil.
func (s *Swarm) QueuePlannerWakeup(agentID string, fn func(context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[agentID]; !ok {
		return fmt.Errorf("queue wake-up: unknown agent %s", agentID)
	}
	if _, queued := s.wakeups[agentID]; !queued {
		s.wakeupOrder = append(s.wakeupOrder, agentID)
	}
	s.wakeups[agentID] = fn
	return nil
}

// MarkDrift flags agentID for a fresh start on the next coordination cycle.
func (s *Swarm) MarkDrift(agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[agentID]
	if !ok {
		return fmt.Errorf("mark drift: unknown agent %s", agentID)
	}
	a.Performance.DriftDetected = true
	return nil
}

func (s *Swarm) watchSignals() {
	src := s.c.opts.signals
	if src == nil {
		return
	}
	ch := src.Signals()
	s.sigWG.Add(1)
	go func() {
		defer s.sigWG.Done()
		for {
			select {
			case <-s.sigQuit:
				return
			case sig, ok := <-ch:
				if !ok {
					return
				}
				s.handleSignal(sig)
			}
		}
	}()
}

func (s *Swarm) handleSignal(sig signals.Signal) {
	switch sig.Kind {
	case signals.KindStop:
		log.Printf("[swarm] %s: stop requested by operator", s.id)
		s.requestStop()
	case signals.KindDrift:
		if err := s.MarkDrift(sig.AgentID); err != nil {
			log.Printf("[swarm] ignoring drift signal: %v", err)
			return
		}
		s.debug.Log("drift flagged for %s by operator", sig.AgentID)
	case signals.KindWakeup:
		if err := s.QueuePlannerWakeup(sig.AgentID, nil); err != nil {
			log.Printf("[swarm] ignoring wake-up signal: %v", err)
			return
		}
		s.debug.Log("wake-up queued for %s by operator", sig.AgentID)
	}
}
