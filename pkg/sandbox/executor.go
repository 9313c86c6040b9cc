package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	sandboxDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "intervo",
		Subsystem: "sandbox",
		Name:      "execution_duration_seconds",
		Help:      "Duration of sandboxed executions",
		Buckets:   prometheus.DefBuckets,
	}, []string{"backend"})

	sandboxTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "intervo",
		Subsystem: "sandbox",
		Name:      "execution_timeouts_total",
		Help:      "Number of executions that hit the timeout",
	}, []string{"backend"})

	sandboxFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "intervo",
		Subsystem: "sandbox",
		Name:      "execution_failures_total",
		Help:      "Number of executions that could not be launched",
	}, []string{"backend"})
)

// DefaultTimeout bounds a single execution when the request does not set one.
const DefaultTimeout = 5 * time.Second

// RunRequest describes one program to execute in isolation.
type RunRequest struct {
	Source  string
	Timeout time.Duration
}

// RunOutput is the raw captured outcome of an execution. Timeouts and
// abnormal termination are reported here, not as errors.
type RunOutput struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	TimedOut bool
}

// Executor runs untrusted candidate programs in isolation. Run returns an
// error only when the program could not be launched at all.
type Executor interface {
	Run(ctx context.Context, req RunRequest) (RunOutput, error)
}

// ProcessConfig groups process executor configuration values.
type ProcessConfig struct {
	Interpreter string
	Timeout     time.Duration
	Logger      zerolog.Logger
}

// ProcessExecutor runs programs as a separate OS process with a wall-clock
// timeout. It is the default sandbox backend.
type ProcessExecutor struct {
	cfg    ProcessConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewProcessExecutor constructs a process backed executor.
func NewProcessExecutor(cfg ProcessConfig) *ProcessExecutor {
	if cfg.Interpreter == "" {
		cfg.Interpreter = "python3"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &ProcessExecutor{
		cfg:    cfg,
		tracer: otel.Tracer("github.com/intervo-dev/intervo-go-api/pkg/sandbox"),
		logger: logger,
	}
}

// Run writes the program to a scratch directory and executes it as a child
// process. The child is killed when the timeout elapses.
func (e *ProcessExecutor) Run(parent context.Context, req RunRequest) (RunOutput, error) {
	ctx, span := e.tracer.Start(parent, "sandbox.process.run", trace.WithAttributes(
		attribute.String("sandbox.interpreter", e.cfg.Interpreter),
	))
	defer span.End()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.cfg.Timeout
	}

	workspace, err := os.MkdirTemp("", "sandbox-")
	if err != nil {
		sandboxFailures.WithLabelValues("process").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return RunOutput{}, fmt.Errorf("create workspace: %w", err)
	}
	defer os.RemoveAll(workspace)

	sourcePath := filepath.Join(workspace, "candidate.py")
	if err := os.WriteFile(sourcePath, []byte(req.Source), 0o600); err != nil {
		sandboxFailures.WithLabelValues("process").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return RunOutput{}, fmt.Errorf("write source: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, e.cfg.Interpreter, sourcePath)
	cmd.Dir = workspace
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// Candidate code may fork. The child runs in its own process group so the
	// whole tree can be killed on deadline, and WaitDelay stops Run from
	// blocking on pipes still held by orphaned grandchildren.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = time.Second

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)
	sandboxDuration.WithLabelValues("process").Observe(elapsed.Seconds())

	output := RunOutput{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: elapsed,
	}

	if runCtx.Err() == context.DeadlineExceeded {
		output.TimedOut = true
		output.ExitCode = -1
		if output.Stderr == "" {
			output.Stderr = "execution timed out"
		}
		sandboxTimeouts.WithLabelValues("process").Inc()
		e.logger.Warn().Dur("elapsed", elapsed).Msg("sandboxed execution timed out")
		return output, nil
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			output.ExitCode = exitErr.ExitCode()
			return output, nil
		}
		sandboxFailures.WithLabelValues("process").Inc()
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		return RunOutput{}, fmt.Errorf("launch sandbox process: %w", runErr)
	}

	output.ExitCode = 0
	return output, nil
}
