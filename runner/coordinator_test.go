package runner

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specrunner/specrunner/types"
)

// fakeLauncher scripts attempt outcomes per cid and records dispatch order
// and observed concurrency.
type fakeLauncher struct {
	mu             sync.Mutex
	failFirst      map[string]int // cid -> number of failing attempts before success
	hold           time.Duration
	blockUntilKill bool

	calls         []string
	callTimes     []time.Time
	concurrent    int
	maxConcurrent int
	groupBusy     map[string]int
	maxGroupBusy  map[string]int
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{
		failFirst:    make(map[string]int),
		groupBusy:    make(map[string]int),
		maxGroupBusy: make(map[string]int),
	}
}

func (f *fakeLauncher) Launch(ctx context.Context, req LaunchRequest) (LaunchResult, error) {
	group := req.Session.GroupKey

	f.mu.Lock()
	f.calls = append(f.calls, req.CID)
	f.callTimes = append(f.callTimes, time.Now())
	f.concurrent++
	if f.concurrent > f.maxConcurrent {
		f.maxConcurrent = f.concurrent
	}
	f.groupBusy[group]++
	if f.groupBusy[group] > f.maxGroupBusy[group] {
		f.maxGroupBusy[group] = f.groupBusy[group]
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.concurrent--
		f.groupBusy[group]--
		f.mu.Unlock()
	}()

	if f.blockUntilKill {
		<-ctx.Done()
		return LaunchResult{}, fmt.Errorf("worker %s terminated: %w", req.CID, ctx.Err())
	}
	if f.hold > 0 {
		time.Sleep(f.hold)
	}

	f.mu.Lock()
	failing := f.failFirst[req.CID]
	f.mu.Unlock()
	session := fmt.Sprintf("sess-%s-%d", req.CID, req.Attempt)
	if req.Attempt < failing {
		return LaunchResult{Failures: 1, SessionID: session}, nil
	}
	return LaunchResult{SessionID: session}, nil
}

func (f *fakeLauncher) callOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.calls...)
}

// recordingSink captures emitted runner events.
type recordingSink struct {
	starts []types.RunnerStart
	ends   []types.RunnerEnd
}

func (s *recordingSink) RunnerStarted(ev types.RunnerStart) { s.starts = append(s.starts, ev) }
func (s *recordingSink) RunnerEnded(ev types.RunnerEnd)     { s.ends = append(s.ends, ev) }

func units(names ...string) []types.WorkUnit {
	out := make([]types.WorkUnit, 0, len(names))
	for i, n := range names {
		out = append(out, types.NewWorkUnit(i, []string{n}))
	}
	return out
}

func chromeSession() types.SessionDescriptor {
	return types.SessionDescriptor{
		Kind:       types.SessionSingle,
		GroupKey:   "chrome",
		Capability: types.Capability{"browserName": "chrome"},
	}
}

func baseConfig(l Launcher, sink EventSink) Config {
	cfg := Config{
		Launcher:                  l,
		MaxInstances:              2,
		MaxInstancesPerCapability: 2,
		DrainGrace:                time.Second,
	}
	if sink != nil {
		cfg.Sinks = []EventSink{sink}
	}
	return cfg
}

func TestRunAllPass(t *testing.T) {
	launcher := newFakeLauncher()
	sink := &recordingSink{}
	c, err := NewCoordinator(baseConfig(launcher, sink))
	require.NoError(t, err)

	result, err := c.Run(context.Background(), units("a.spec.js", "b.spec.js", "c.spec.js"), nil,
		[]types.SessionDescriptor{chromeSession()})
	require.NoError(t, err)

	assert.Equal(t, types.UnitStatePassed, result.Status)
	assert.Equal(t, ResultStats{Total: 3, Passed: 3}, result.Stats)
	assert.Equal(t, PhaseCompleting, result.Phase)
	assert.Len(t, sink.starts, 3)
	assert.Len(t, sink.ends, 3)
	for _, end := range sink.ends {
		assert.Zero(t, end.Failures)
	}
}

func TestRunSkippedUnitsExcludedFromFailureAccounting(t *testing.T) {
	launcher := newFakeLauncher()
	c, err := NewCoordinator(baseConfig(launcher, nil))
	require.NoError(t, err)

	owned := units("a.spec.js")
	skipped := []types.WorkUnit{types.NewWorkUnit(1, []string{"b.spec.js"})}

	result, err := c.Run(context.Background(), owned, skipped, []types.SessionDescriptor{chromeSession()})
	require.NoError(t, err)

	assert.Equal(t, types.UnitStatePassed, result.Status)
	assert.Equal(t, ResultStats{Total: 2, Passed: 1, Skipped: 1}, result.Stats)
	// The skipped unit never reached the launcher.
	assert.Equal(t, []string{"0-0"}, launcher.callOrder())
}

func TestRetryImmediateRunsBeforeFreshUnits(t *testing.T) {
	launcher := newFakeLauncher()
	launcher.failFirst["0-0"] = 1

	cfg := baseConfig(launcher, nil)
	cfg.MaxInstances = 1
	cfg.MaxInstancesPerCapability = 1
	cfg.SpecFileRetries = 1
	cfg.RetriesDeferred = false
	c, err := NewCoordinator(cfg)
	require.NoError(t, err)

	result, err := c.Run(context.Background(), units("a.spec.js", "b.spec.js"), nil,
		[]types.SessionDescriptor{chromeSession()})
	require.NoError(t, err)

	assert.Equal(t, []string{"0-0", "0-0", "0-1"}, launcher.callOrder())
	assert.Equal(t, types.UnitStatePassed, result.Status)
	assert.Equal(t, 1, result.Stats.Retries)
}

func TestRetryDeferredRunsAfterUnattemptedUnits(t *testing.T) {
	launcher := newFakeLauncher()
	launcher.failFirst["0-0"] = 1

	cfg := baseConfig(launcher, nil)
	cfg.MaxInstances = 1
	cfg.MaxInstancesPerCapability = 1
	cfg.SpecFileRetries = 1
	cfg.RetriesDeferred = true
	c, err := NewCoordinator(cfg)
	require.NoError(t, err)

	result, err := c.Run(context.Background(), units("a.spec.js", "b.spec.js"), nil,
		[]types.SessionDescriptor{chromeSession()})
	require.NoError(t, err)

	// The requeued unit never jumps ahead of a unit without a first attempt.
	assert.Equal(t, []string{"0-0", "0-1", "0-0"}, launcher.callOrder())
	assert.Equal(t, types.UnitStatePassed, result.Status)
}

func TestRetryExhaustionIsTerminal(t *testing.T) {
	launcher := newFakeLauncher()
	launcher.failFirst["0-0"] = 99

	sink := &recordingSink{}
	cfg := baseConfig(launcher, sink)
	cfg.MaxInstances = 1
	cfg.MaxInstancesPerCapability = 1
	cfg.SpecFileRetries = 1
	c, err := NewCoordinator(cfg)
	require.NoError(t, err)

	result, err := c.Run(context.Background(), units("a.spec.js"), nil,
		[]types.SessionDescriptor{chromeSession()})
	require.NoError(t, err)

	// specFileRetries=1 allows two attempts total, never more.
	assert.Equal(t, []string{"0-0", "0-0"}, launcher.callOrder())
	assert.Equal(t, types.UnitStateFailed, result.Status)
	assert.Equal(t, ResultStats{Total: 1, Failed: 1, Retries: 1}, result.Stats)

	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, 2, result.Outcomes[0].Attempts)

	// Start events carry the attempt number, end events the retries used.
	require.Len(t, sink.starts, 2)
	assert.Equal(t, 0, sink.starts[0].Retry)
	assert.Equal(t, 1, sink.starts[1].Retry)
	require.Len(t, sink.ends, 2)
	assert.Equal(t, 0, sink.ends[0].Retries)
	assert.Equal(t, 1, sink.ends[1].Retries)
}

func TestRunForwardsWorkerSessionID(t *testing.T) {
	launcher := newFakeLauncher()
	launcher.failFirst["0-0"] = 1

	sink := &recordingSink{}
	cfg := baseConfig(launcher, sink)
	cfg.MaxInstances = 1
	cfg.MaxInstancesPerCapability = 1
	cfg.SpecFileRetries = 1
	c, err := NewCoordinator(cfg)
	require.NoError(t, err)

	result, err := c.Run(context.Background(), units("a.spec.js"), nil,
		[]types.SessionDescriptor{chromeSession()})
	require.NoError(t, err)

	// Every end event carries the session its worker reported.
	require.Len(t, sink.ends, 2)
	assert.Equal(t, "sess-0-0-0", sink.ends[0].SessionID)
	assert.Equal(t, "sess-0-0-1", sink.ends[1].SessionID)

	// The outcome keeps the final attempt's session.
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, "sess-0-0-1", result.Outcomes[0].SessionID)
}

func TestRetryDelayPostponesDispatch(t *testing.T) {
	launcher := newFakeLauncher()
	launcher.failFirst["0-0"] = 1

	cfg := baseConfig(launcher, nil)
	cfg.MaxInstances = 1
	cfg.MaxInstancesPerCapability = 1
	cfg.SpecFileRetries = 1
	cfg.RetryDelay = 80 * time.Millisecond
	c, err := NewCoordinator(cfg)
	require.NoError(t, err)

	result, err := c.Run(context.Background(), units("a.spec.js"), nil,
		[]types.SessionDescriptor{chromeSession()})
	require.NoError(t, err)
	assert.Equal(t, types.UnitStatePassed, result.Status)

	require.Len(t, launcher.callTimes, 2)
	gap := launcher.callTimes[1].Sub(launcher.callTimes[0])
	assert.GreaterOrEqual(t, gap, 70*time.Millisecond, "retry dispatched before its delay elapsed")
}

func TestGlobalConcurrencyCeiling(t *testing.T) {
	launcher := newFakeLauncher()
	launcher.hold = 20 * time.Millisecond

	cfg := baseConfig(launcher, nil)
	cfg.MaxInstances = 2
	cfg.MaxInstancesPerCapability = 2
	c, err := NewCoordinator(cfg)
	require.NoError(t, err)

	_, err = c.Run(context.Background(),
		units("a.spec.js", "b.spec.js", "c.spec.js", "d.spec.js", "e.spec.js", "f.spec.js"), nil,
		[]types.SessionDescriptor{chromeSession()})
	require.NoError(t, err)

	assert.LessOrEqual(t, launcher.maxConcurrent, 2)
}

func TestPerCapabilityConcurrencyCeiling(t *testing.T) {
	launcher := newFakeLauncher()
	launcher.hold = 20 * time.Millisecond

	cfg := baseConfig(launcher, nil)
	cfg.MaxInstances = 4
	cfg.MaxInstancesPerCapability = 1
	c, err := NewCoordinator(cfg)
	require.NoError(t, err)

	firefox := types.SessionDescriptor{
		Kind:       types.SessionSingle,
		GroupKey:   "firefox",
		Capability: types.Capability{"browserName": "firefox"},
	}
	_, err = c.Run(context.Background(), units("a.spec.js", "b.spec.js"), nil,
		[]types.SessionDescriptor{chromeSession(), firefox})
	require.NoError(t, err)

	assert.LessOrEqual(t, launcher.maxGroupBusy["chrome"], 1)
	assert.LessOrEqual(t, launcher.maxGroupBusy["firefox"], 1)
	// Different groups do run side by side under the global ceiling.
	assert.LessOrEqual(t, launcher.maxConcurrent, 4)
}

func TestBailStopsFurtherDispatch(t *testing.T) {
	launcher := newFakeLauncher()
	launcher.failFirst["0-0"] = 99

	cfg := baseConfig(launcher, nil)
	cfg.MaxInstances = 1
	cfg.MaxInstancesPerCapability = 1
	cfg.Bail = 1
	c, err := NewCoordinator(cfg)
	require.NoError(t, err)

	result, err := c.Run(context.Background(), units("a.spec.js", "b.spec.js", "c.spec.js"), nil,
		[]types.SessionDescriptor{chromeSession()})
	require.NoError(t, err)

	// Only the failing unit was ever dispatched.
	assert.Equal(t, []string{"0-0"}, launcher.callOrder())
	assert.True(t, result.Bailed)
	assert.Equal(t, types.UnitStateFailed, result.Status)
	assert.Equal(t, 1, result.Stats.Failed)
	assert.Equal(t, 2, result.Stats.Skipped)
}

func TestMultiremoteOccupiesOneSlot(t *testing.T) {
	launcher := newFakeLauncher()
	launcher.hold = 20 * time.Millisecond

	sink := &recordingSink{}
	cfg := baseConfig(launcher, sink)
	cfg.MaxInstances = 4
	cfg.MaxInstancesPerCapability = 1
	c, err := NewCoordinator(cfg)
	require.NoError(t, err)

	multi := types.SessionDescriptor{
		Kind:     types.SessionMultiremote,
		GroupKey: "multiremote",
		Members: []types.NamedSession{
			{Name: "guest", Capability: types.Capability{"browserName": "firefox"}},
			{Name: "host", Capability: types.Capability{"browserName": "chrome"}},
		},
	}
	result, err := c.Run(context.Background(), units("a.spec.js", "b.spec.js"), nil,
		[]types.SessionDescriptor{multi})
	require.NoError(t, err)

	assert.Equal(t, types.UnitStatePassed, result.Status)
	// The whole multiremote set is one atomic slot per assignment.
	assert.LessOrEqual(t, launcher.maxGroupBusy["multiremote"], 1)
	require.NotEmpty(t, sink.starts)
	assert.True(t, sink.starts[0].IsMultiremote)
	assert.Contains(t, sink.starts[0].InstanceOptions, "host")
}

func TestCancelDrainsAndKillsAfterGrace(t *testing.T) {
	launcher := newFakeLauncher()
	launcher.blockUntilKill = true

	cfg := baseConfig(launcher, nil)
	cfg.MaxInstances = 1
	cfg.MaxInstancesPerCapability = 1
	cfg.SpecFileRetries = 3
	cfg.DrainGrace = 30 * time.Millisecond
	c, err := NewCoordinator(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	result, err := c.Run(ctx, units("a.spec.js", "b.spec.js"), nil,
		[]types.SessionDescriptor{chromeSession()})
	require.NoError(t, err)

	// The killed in-flight unit is terminal without retries; the undispatched
	// unit never ran.
	assert.Equal(t, []string{"0-0"}, launcher.callOrder())
	assert.Equal(t, 1, result.Stats.Failed)
	assert.Equal(t, 1, result.Stats.Skipped)
	assert.Equal(t, 0, result.Stats.Retries)
}

func TestShardScenarioWithRetries(t *testing.T) {
	// 5 spec files, shard 1 of 2 owns indices 0,2,4; maxInstances=2;
	// specFileRetries=1; the first owned file is flaky.
	all := units("s0.spec.js", "s1.spec.js", "s2.spec.js", "s3.spec.js", "s4.spec.js")
	var owned, skipped []types.WorkUnit
	shard := types.ShardOptions{Total: 2, Current: 1}
	for i, u := range all {
		if shard.Owns(i) {
			owned = append(owned, u)
		} else {
			skipped = append(skipped, u)
		}
	}
	require.Len(t, owned, 3)

	launcher := newFakeLauncher()
	launcher.failFirst["0-0"] = 1

	cfg := baseConfig(launcher, nil)
	cfg.SpecFileRetries = 1
	c, err := NewCoordinator(cfg)
	require.NoError(t, err)

	result, err := c.Run(context.Background(), owned, skipped, []types.SessionDescriptor{chromeSession()})
	require.NoError(t, err)

	assert.Equal(t, types.UnitStatePassed, result.Status)
	assert.Equal(t, ResultStats{Total: 5, Passed: 3, Skipped: 2, Retries: 1}, result.Stats)
}

func TestNewCoordinatorValidation(t *testing.T) {
	_, err := NewCoordinator(Config{MaxInstances: 1})
	assert.Error(t, err)

	_, err = NewCoordinator(Config{Launcher: newFakeLauncher(), MaxInstances: 0})
	assert.Error(t, err)
}

func TestRunWithoutSessionsFails(t *testing.T) {
	c, err := NewCoordinator(baseConfig(newFakeLauncher(), nil))
	require.NoError(t, err)

	_, err = c.Run(context.Background(), units("a.spec.js"), nil, nil)
	assert.Error(t, err)
}
