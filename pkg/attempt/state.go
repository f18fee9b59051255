package attempt

import (
	"context"
	"time"
)

// phase is the orchestrator's lifecycle state. There are no other states:
// stopping is running with a cancel in flight, and idle is only reached
// after the capture goroutine has been joined.
type phase int

const (
	phaseIdle phase = iota
	phaseRunning
	phaseStopping
)

// Stop reasons recorded on a finished run.
const (
	ReasonExhausted = "exhausted"
	ReasonStopped   = "stopped"
	ReasonFault     = "fault"
)

// Status is a point-in-time view of the orchestrator, served verbatim by
// the /pin endpoint.
type Status struct {
	Active      bool      `json:"running"`
	CurrentCode string    `json:"current_pin"`
	RunID       string    `json:"run_id,omitempty"`
	CodesSent   int       `json:"codes_sent"`
	StartedAt   time.Time `json:"started_at"`
}

// Run describes one execution episode for history and status consumers.
type Run struct {
	ID         string
	StartedAt  time.Time
	EndedAt    time.Time
	FirstCode  string
	LastCode   string
	LastSent   string
	CodesSent  int
	StopReason string
	VideoPath  string
	Images     int
}

// CodeSender enters one code into the meter. Send blocks for the full
// entry duration.
type CodeSender interface {
	Send(ctx context.Context, code string) error
}

// Output is the actuator line as seen by the orchestrator: it only ever
// needs to force it low.
type Output interface {
	SetLow() error
}

// FrameSource is the camera handle the orchestrator ensures is open at
// run start. Open failures degrade the run to unrecorded, they do not
// block it.
type FrameSource interface {
	Open() error
	IsOpen() bool
}

// Recorder captures evidence for the duration of one run and finalizes
// its video before Run returns.
type Recorder interface {
	Run(ctx context.Context) error
	Images() int
	VideoPath() string
}

// RecorderFactory builds a fresh Recorder per run; each run gets its own
// video artifact. The current func reports the code being entered.
type RecorderFactory func(current func() string) Recorder

// Notifier observes run lifecycle transitions. Implementations must not
// block for long; they run on the orchestrator goroutine.
type Notifier interface {
	RunStarted(r Run)
	CodeSent(runID, code string)
	RunFinished(r Run)
}
