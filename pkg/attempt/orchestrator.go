// Package attempt coordinates a code-entry run: it iterates the code
// space on a dedicated goroutine, supervises the concurrent evidence
// recorder, and guarantees the actuator is left de-energized on every
// exit path.
package attempt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/meterblink/meterblink/internal/log"
)

// Config bounds the code space and pacing of a run.
type Config struct {
	// FirstCode and LastCode bound the inclusive numeric range attempted,
	// formatted as zero-padded four-digit codes.
	FirstCode int
	LastCode  int
	// InterCodePause is the wait between consecutive codes. A stop
	// request takes effect within one code plus this pause.
	InterCodePause time.Duration
	// CaptureJoinTimeout bounds how long a stopping run waits for the
	// recorder to finalize its video before giving up on it.
	CaptureJoinTimeout time.Duration
}

// DefaultConfig covers the full 0000-9999 space with the standard pacing.
func DefaultConfig() Config {
	return Config{
		FirstCode:          0,
		LastCode:           9999,
		InterCodePause:     3 * time.Second,
		CaptureJoinTimeout: 5 * time.Second,
	}
}

// Orchestrator owns the run lifecycle. At most one run is active at a
// time, enforced under concurrent start requests.
type Orchestrator struct {
	cfg         Config
	sender      CodeSender
	output      Output
	camera      FrameSource
	newRecorder RecorderFactory
	notifiers   []Notifier

	mu        sync.Mutex
	phase     phase
	cancel    context.CancelFunc
	done      chan struct{}
	runID     string
	startedAt time.Time

	active  atomic.Bool
	current atomic.Value // string
	codes   atomic.Int64
}

// New creates an Orchestrator. sender and output may be nil when the
// actuator failed to open at startup; starts are then rejected with
// ErrActuatorUnavailable while the rest of the service stays up.
func New(cfg Config, sender CodeSender, output Output, camera FrameSource, newRecorder RecorderFactory, notifiers ...Notifier) *Orchestrator {
	o := &Orchestrator{
		cfg:         cfg,
		sender:      sender,
		output:      output,
		camera:      camera,
		newRecorder: newRecorder,
		notifiers:   notifiers,
	}
	o.current.Store("")
	return o
}

// Start begins a run. The run executes on its own goroutine; Start
// returns once the transition to running is committed. ctx is the
// process-lifetime context: cancelling it stops the run.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.phase != phaseIdle {
		return ErrAlreadyRunning
	}
	if o.sender == nil || o.output == nil {
		return ErrActuatorUnavailable
	}

	// Recording is best-effort evidence, not a gate: a camera that will
	// not open costs us the footage, never the run.
	if o.camera != nil && !o.camera.IsOpen() {
		if err := o.camera.Open(); err != nil {
			log.Warn("camera open failed, run will not be recorded", "error", err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.phase = phaseRunning
	o.cancel = cancel
	o.done = make(chan struct{})
	o.runID = uuid.NewString()
	o.startedAt = time.Now()
	o.codes.Store(0)
	o.current.Store("")
	o.active.Store(true)

	go o.run(runCtx, o.runID, o.startedAt, o.done)
	return nil
}

// Stop requests the active run to halt. It returns true if a run was
// active; stopping an idle orchestrator is a no-op. The run itself ends
// asynchronously, within one code's worth of latency.
func (o *Orchestrator) Stop() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase != phaseRunning {
		return false
	}
	o.phase = phaseStopping
	o.cancel()
	return true
}

// Close stops any active run and waits for it to reach idle, bounded by
// timeout. For process shutdown.
func (o *Orchestrator) Close(timeout time.Duration) {
	o.mu.Lock()
	done := o.done
	running := o.phase == phaseRunning || o.phase == phaseStopping
	if o.phase == phaseRunning {
		o.phase = phaseStopping
		o.cancel()
	}
	o.mu.Unlock()

	if !running {
		return
	}
	select {
	case <-done:
	case <-time.After(timeout):
		log.Warn("run did not reach idle before shutdown deadline")
	}
}

// Status returns a point-in-time view of the orchestrator.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := Status{
		Active:      o.active.Load(),
		CurrentCode: o.CurrentCode(),
		CodesSent:   int(o.codes.Load()),
	}
	if st.Active {
		st.RunID = o.runID
		st.StartedAt = o.startedAt
	}
	return st
}

// CurrentCode returns the code being entered right now, or "".
func (o *Orchestrator) CurrentCode() string {
	if c, ok := o.current.Load().(string); ok {
		return c
	}
	return ""
}

// run is the body of one execution episode. It owns the capture
// goroutine and performs the ordered teardown on every exit path.
func (o *Orchestrator) run(ctx context.Context, runID string, startedAt time.Time, done chan struct{}) {
	defer close(done)

	rec := o.newRecorder(o.CurrentCode)
	capCtx, capCancel := context.WithCancel(context.Background())
	capDone := make(chan struct{})
	go func() {
		defer close(capDone)
		if err := rec.Run(capCtx); err != nil {
			log.Warn("evidence recording unavailable for this run", "error", err)
		}
	}()

	first := fmt.Sprintf("%04d", o.cfg.FirstCode)
	last := fmt.Sprintf("%04d", o.cfg.LastCode)
	o.notifyStarted(Run{ID: runID, StartedAt: startedAt, FirstCode: first, LastCode: last})
	log.Info("run started", "run_id", runID, "first_code", first, "last_code", last)

	reason := ReasonExhausted
	lastSent := ""
	for i := o.cfg.FirstCode; i <= o.cfg.LastCode; i++ {
		if ctx.Err() != nil {
			reason = ReasonStopped
			break
		}
		code := fmt.Sprintf("%04d", i)
		o.current.Store(code)
		log.Info("entering code", "code", code)

		if err := o.sender.Send(ctx, code); err != nil {
			if ctx.Err() != nil {
				reason = ReasonStopped
			} else {
				reason = ReasonFault
				log.Error("code entry failed, aborting run", "code", code, "error", err)
			}
			break
		}
		lastSent = code
		o.codes.Add(1)
		o.notifyCode(runID, code)

		if i < o.cfg.LastCode {
			if !sleepCtx(ctx, o.cfg.InterCodePause) {
				reason = ReasonStopped
				break
			}
		}
	}

	// Ordered teardown: clear the active flag, stop the recorder, force
	// the actuator low, join the recorder bounded by the timeout, then
	// clear the current code.
	o.active.Store(false)
	capCancel()
	if err := o.output.SetLow(); err != nil {
		log.Error("forcing actuator low", "error", err)
	}
	select {
	case <-capDone:
	case <-time.After(o.cfg.CaptureJoinTimeout):
		log.Warn("capture did not finalize in time, proceeding", "timeout", o.cfg.CaptureJoinTimeout)
	}
	o.current.Store("")

	o.mu.Lock()
	o.phase = phaseIdle
	o.cancel = nil
	o.mu.Unlock()

	finished := Run{
		ID:         runID,
		StartedAt:  startedAt,
		EndedAt:    time.Now(),
		FirstCode:  first,
		LastCode:   last,
		LastSent:   lastSent,
		CodesSent:  int(o.codes.Load()),
		StopReason: reason,
		VideoPath:  rec.VideoPath(),
		Images:     rec.Images(),
	}
	o.notifyFinished(finished)
	log.Info("run finished", "run_id", runID, "reason", reason,
		"codes_sent", finished.CodesSent, "images", finished.Images)
}

func (o *Orchestrator) notifyStarted(r Run) {
	for _, n := range o.notifiers {
		n.RunStarted(r)
	}
}

func (o *Orchestrator) notifyCode(runID, code string) {
	for _, n := range o.notifiers {
		n.CodeSent(runID, code)
	}
}

func (o *Orchestrator) notifyFinished(r Run) {
	for _, n := range o.notifiers {
		n.RunFinished(r)
	}
}

// sleepCtx waits d, returning false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
