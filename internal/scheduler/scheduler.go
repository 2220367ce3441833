// Package scheduler runs named periodic jobs on a cron/v3 timer with
// per-job overlap control: a tick that would overlap a still-running
// invocation of the same job is skipped, never queued.
package scheduler

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "streamwatch/pkg/logx"
)

type runState struct {
	mu      sync.Mutex
	running bool
}

// tryAcquire marks the job running; false means an invocation is already
// in flight and this tick must be skipped.
func (r *runState) tryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	return true
}

func (r *runState) release() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

type entryDef struct {
	id      string
	every   time.Duration
	job     func(ctx context.Context)
	entryID cron.EntryID
	state   *runState
}

// Service owns one cron runner and the set of registered periodic jobs.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	c       *cron.Cron
	entries map[string]*entryDef

	runCtx    context.Context
	runCancel context.CancelFunc
	jobWG     sync.WaitGroup
}

func New(log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{log: log, entries: map[string]*entryDef{}}
}

// Start arms the timer. Idempotent.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	s.c = cron.New()
	for _, def := range s.entries {
		s.scheduleLocked(def)
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.Int("jobs", len(s.entries)))
}

// Stop disarms the timer and waits for in-flight jobs to drain, bounded
// by ctx. Idempotent.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	cancel := s.runCancel
	s.c = nil
	s.runCtx = nil
	s.runCancel = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()

	done := make(chan struct{})
	go func() {
		s.jobWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		// In-flight jobs keep draining in the background.
		if cancel != nil {
			cancel()
		}
	}
}

// AddEvery registers (or replaces) a fixed-period job. Takes effect
// immediately when the service is running.
func (s *Service) AddEvery(id string, every time.Duration, job func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[id]; ok && s.c != nil {
		s.c.Remove(old.entryID)
	}
	def := &entryDef{id: id, every: every, job: job, state: &runState{}}
	s.entries[id] = def
	if s.c != nil {
		s.scheduleLocked(def)
	}
}

// Remove deregisters a job. In-flight invocations finish undisturbed.
func (s *Service) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.entries[id]
	if !ok {
		return
	}
	delete(s.entries, id)
	if s.c != nil {
		s.c.Remove(def.entryID)
	}
}

// RunNow fires one invocation of the job outside its timer, with the
// same overlap control as timer ticks.
func (s *Service) RunNow(id string) {
	s.mu.Lock()
	def, ok := s.entries[id]
	ctx := s.runCtx
	s.mu.Unlock()
	if !ok || ctx == nil {
		return
	}
	s.execOne(ctx, def)
}

func (s *Service) scheduleLocked(def *entryDef) {
	ctx := s.runCtx
	def.entryID = s.c.Schedule(cron.Every(def.every), cron.FuncJob(func() {
		s.execOne(ctx, def)
	}))
}

func (s *Service) execOne(ctx context.Context, def *entryDef) {
	if !def.state.tryAcquire() {
		s.log.Debug("tick skipped, previous run still in flight", logx.String("job", def.id))
		return
	}
	defer def.state.release()

	s.jobWG.Add(1)
	defer s.jobWG.Done()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in scheduled job",
				logx.String("job", def.id), logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()

	start := time.Now()
	def.job(ctx)
	s.log.Debug("job completed", logx.String("job", def.id), logx.Duration("dur", time.Since(start)))
}
