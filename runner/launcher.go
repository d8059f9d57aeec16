package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/specrunner/specrunner/types"
)

// Env var names injected into every worker process.
const (
	EnvCID           = "SPECRUNNER_CID"
	EnvSpecs         = "SPECRUNNER_SPECS"
	EnvCapability    = "SPECRUNNER_CAPABILITY"
	EnvAttempt       = "SPECRUNNER_ATTEMPT"
	EnvIsMultiremote = "SPECRUNNER_MULTIREMOTE"
)

// LaunchRequest describes one attempt of one assignment.
type LaunchRequest struct {
	CID     string
	Unit    types.WorkUnit
	Session types.SessionDescriptor
	Attempt int // 0-based
}

// LaunchResult is the worker's reported outcome for a completed attempt.
type LaunchResult struct {
	Failures  int
	SessionID string
	Duration  time.Duration
}

// Launcher runs one attempt to completion. Implementations must honor
// context cancellation by terminating the attempt.
type Launcher interface {
	Launch(ctx context.Context, req LaunchRequest) (LaunchResult, error)
}

// DispatchError marks an attempt whose worker process never started. It is
// a failed attempt for the assignment, eligible for the normal retry
// policy, never fatal for the pool.
type DispatchError struct {
	Err error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch error: %v", e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// IsDispatchError checks if the error is or wraps a DispatchError.
func IsDispatchError(err error) bool {
	var dispatchErr *DispatchError
	return err != nil && errors.As(err, &dispatchErr)
}

// LogSink routes a worker's combined output somewhere durable.
type LogSink interface {
	Writer(cid string, specs []string) (io.WriteCloser, error)
}

// CommandBuilder constructs the worker command. Tests swap this out to
// avoid spawning real processes.
type CommandBuilder func(ctx context.Context, name string, arg ...string) *exec.Cmd

// ProcessLauncherConfig configures the production launcher.
type ProcessLauncherConfig struct {
	Log            *zap.SugaredLogger
	Command        []string // worker binary plus fixed arguments
	ExecArgv       []string // extra arguments appended to every spawn
	Env            map[string]string
	Sink           LogSink
	CommandBuilder CommandBuilder
}

// ProcessLauncher spawns one OS process per attempt, injects the configured
// environment, streams output to the log sink and reads the worker's
// terminal result line.
type ProcessLauncher struct {
	cfg ProcessLauncherConfig
}

// NewProcessLauncher validates the config and builds a launcher.
func NewProcessLauncher(cfg ProcessLauncherConfig) (*ProcessLauncher, error) {
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("worker command cannot be empty")
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop().Sugar()
	}
	if cfg.CommandBuilder == nil {
		cfg.CommandBuilder = exec.CommandContext
	}
	return &ProcessLauncher{cfg: cfg}, nil
}

// workerResult is the terminal JSON line a worker writes on stdout.
type workerResult struct {
	Type      string `json:"type"`
	Failures  int    `json:"failures"`
	SessionID string `json:"sessionId"`
}

// Launch runs one worker process to completion.
func (l *ProcessLauncher) Launch(ctx context.Context, req LaunchRequest) (LaunchResult, error) {
	start := time.Now()

	args := append([]string{}, l.cfg.Command[1:]...)
	args = append(args, l.cfg.ExecArgv...)
	cmd := l.cfg.CommandBuilder(ctx, l.cfg.Command[0], args...)

	env, err := l.buildEnv(req)
	if err != nil {
		return LaunchResult{}, &DispatchError{Err: err}
	}
	cmd.Env = env

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return LaunchResult{}, &DispatchError{Err: errors.Wrap(err, "opening worker stdout")}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return LaunchResult{}, &DispatchError{Err: errors.Wrap(err, "opening worker stderr")}
	}

	var sink io.WriteCloser
	if l.cfg.Sink != nil {
		sink, err = l.cfg.Sink.Writer(req.CID, req.Unit.Specs)
		if err != nil {
			return LaunchResult{}, &DispatchError{Err: errors.Wrap(err, "opening worker log")}
		}
		defer func() { _ = sink.Close() }()
	} else {
		sink = nopWriteCloser{io.Discard}
	}

	if err := cmd.Start(); err != nil {
		return LaunchResult{}, &DispatchError{Err: errors.Wrapf(err, "spawning worker process %q", l.cfg.Command[0])}
	}
	l.cfg.Log.Debugw("Worker started", "cid", req.CID, "pid", cmd.Process.Pid, "attempt", req.Attempt)

	var result *workerResult
	g := new(errgroup.Group)
	g.Go(func() error {
		found, scanErr := scanWorkerOutput(stdout, sink)
		if found != nil {
			result = found
		}
		return scanErr
	})
	g.Go(func() error {
		_, copyErr := io.Copy(sink, stderr)
		return copyErr
	})

	pumpErr := g.Wait()
	waitErr := cmd.Wait()
	duration := time.Since(start)

	if ctx.Err() != nil {
		return LaunchResult{Duration: duration}, fmt.Errorf("worker %s terminated: %w", req.CID, ctx.Err())
	}
	if pumpErr != nil {
		return LaunchResult{Duration: duration}, fmt.Errorf("reading worker %s output: %w", req.CID, pumpErr)
	}
	if result == nil {
		if waitErr != nil {
			return LaunchResult{Duration: duration}, fmt.Errorf("worker %s exited without a result: %w", req.CID, waitErr)
		}
		return LaunchResult{Duration: duration}, fmt.Errorf("worker %s exited without a result", req.CID)
	}

	// A nonzero exit paired with a parsed result is the normal shape of a
	// failing attempt; the failure count is authoritative.
	return LaunchResult{
		Failures:  result.Failures,
		SessionID: result.SessionID,
		Duration:  duration,
	}, nil
}

func (l *ProcessLauncher) buildEnv(req LaunchRequest) ([]string, error) {
	specsJSON, err := json.Marshal(req.Unit.Specs)
	if err != nil {
		return nil, errors.Wrap(err, "encoding specs")
	}
	capJSON, err := json.Marshal(req.Session.InstanceOptions())
	if err != nil {
		return nil, errors.Wrap(err, "encoding capability")
	}

	env := os.Environ()
	for k, v := range l.cfg.Env {
		env = append(env, k+"="+v)
	}
	env = append(env,
		EnvCID+"="+req.CID,
		EnvSpecs+"="+string(specsJSON),
		EnvCapability+"="+string(capJSON),
		fmt.Sprintf("%s=%d", EnvAttempt, req.Attempt),
		fmt.Sprintf("%s=%t", EnvIsMultiremote, req.Session.IsMultiremote()),
	)
	return env, nil
}

// scanWorkerOutput copies worker stdout to the sink line by line, keeping
// the last result line it sees.
func scanWorkerOutput(r io.Reader, sink io.Writer) (*workerResult, error) {
	var result *workerResult
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if _, err := sink.Write(append(line, '\n')); err != nil {
			return result, err
		}
		var candidate workerResult
		if err := json.Unmarshal(line, &candidate); err == nil && candidate.Type == "result" {
			parsed := candidate
			result = &parsed
		}
	}
	return result, scanner.Err()
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
