package goproc

// Status is the lifecycle state of a Process. It is monotonic: ready →
// started → terminated. Restarting a Process never reuses a terminated
// instance — Clone/Restart produce a new Process in StatusReady.
type Status string

const (
	StatusReady      Status = "ready"
	StatusStarted    Status = "started"
	StatusTerminated Status = "terminated"
)

// OutputType distinguishes which of the child's standard streams a chunk of
// output came from.
type OutputType string

const (
	OUT OutputType = "out"
	ERR OutputType = "err"
)

// Standard stream file descriptor numbers, as used by DescriptorSpec and the
// sigchild-compat fallback channel.
const (
	STDIN  = 0
	STDOUT = 1
	STDERR = 2
)

// sigchildStream is the fourth descriptor used to echo $? when waitpid
// cannot be trusted to report the exit code.
const sigchildStream = 3

// TimeoutPrecision is the polling granularity timeouts are enforced at.
// Matches the 0.2s quantum the Pipe Backend's readiness primitive blocks for.
const TimeoutPrecision = 0.2

// ProcessInformation is the last snapshot of OS-reported child status, as
// produced by the platform spawn primitive's status query.
type ProcessInformation struct {
	Running  bool
	PID      int
	Signaled bool
	TermSig  int
	Stopped  bool
	StopSig  int
	ExitCode int // -1 when not yet known
}
