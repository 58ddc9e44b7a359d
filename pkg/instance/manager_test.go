package instance_test

import (
	"bytes"
	"context"
	"errors"
	"runtime/pprof"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dispatchkit/core"
	"github.com/dmitrymomot/dispatchkit/pkg/instance"
	"github.com/dmitrymomot/dispatchkit/pkg/metrics"
)

type counting struct {
	inits    atomic.Int32
	destroys atomic.Int32
	initErr  error
	destErr  error
	onInit   func(core.Config)
}

func (c *counting) Init(cfg core.Config) error {
	c.inits.Add(1)
	if c.onInit != nil {
		c.onInit(cfg)
	}
	return c.initErr
}

func (c *counting) Serve(core.Response, core.Request) error { return nil }

func (c *counting) Destroy() error {
	c.destroys.Add(1)
	return c.destErr
}

type pooled struct {
	core.SingleInstance
	counting
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type destroyHook struct {
	counting
	hook func() error
}

func (d *destroyHook) Destroy() error {
	d.destroys.Add(1)
	return d.hook()
}

// goroutineLabels returns the pprof labels of the goroutine whose stack
// contains fn, or "" when it carries none.
func goroutineLabels(t *testing.T, fn string) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, pprof.Lookup("goroutine").WriteTo(&buf, 1))
	for _, rec := range strings.Split(buf.String(), "\n\n") {
		if !strings.Contains(rec, fn) {
			continue
		}
		for _, line := range strings.Split(rec, "\n") {
			if labels, ok := strings.CutPrefix(line, "# labels: "); ok {
				return labels
			}
		}
		return ""
	}
	t.Fatalf("no goroutine running %s", fn)
	return ""
}

func register(t *testing.T, m *instance.Manager, name string, f instance.Factory, opts ...instance.RegistrationOption) *instance.Registration {
	t.Helper()
	reg := instance.NewRegistration(name, f, opts...)
	require.NoError(t, m.Register(reg))
	return reg
}

func TestRegister(t *testing.T) {
	t.Parallel()

	m := instance.NewManager()
	h := &counting{}
	reg := register(t, m, "A", func() (core.Handler, error) { return h, nil })

	err := m.Register(instance.NewRegistration("A", func() (core.Handler, error) { return h, nil }))
	assert.ErrorIs(t, err, instance.ErrDuplicateRegistration)
	assert.ErrorIs(t, m.Register(nil), instance.ErrNilRegistration)

	got, ok := m.Registration("A")
	require.True(t, ok)
	assert.Same(t, reg, got)
	_, ok = m.Registration("B")
	assert.False(t, ok)
	assert.Equal(t, -1, reg.LoadPriority())

	assert.Panics(t, func() { instance.NewRegistration("", func() (core.Handler, error) { return h, nil }) })
	assert.Panics(t, func() { instance.NewRegistration("X", nil) })
}

func TestAllocate_SingletonInitializedOnce(t *testing.T) {
	t.Parallel()

	m := instance.NewManager()
	var created atomic.Int32
	h := &counting{}
	var seen []string
	h.onInit = func(cfg core.Config) { seen = cfg.InitParameterNames() }
	reg := register(t, m, "A", func() (core.Handler, error) {
		created.Add(1)
		time.Sleep(5 * time.Millisecond)
		return h, nil
	}, instance.WithInitParams(core.Param{Name: "b", Value: "2"}, core.Param{Name: "a", Value: "1"}))

	const n = 32
	insts := make([]*instance.Instance, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inst, err := m.Allocate(context.Background(), reg)
			assert.NoError(t, err)
			insts[i] = inst
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, int32(1), h.inits.Load())
	assert.Equal(t, []string{"b", "a"}, seen)
	assert.Equal(t, int64(n), reg.Outstanding())
	assert.False(t, reg.Pooled())
	for _, inst := range insts {
		assert.Same(t, insts[0], inst)
	}

	for _, inst := range insts {
		require.NoError(t, m.Deallocate(reg, inst))
	}
	assert.Equal(t, int64(0), reg.Outstanding())
	assert.ErrorIs(t, m.Deallocate(reg, insts[0]), instance.ErrNotAllocated)
	assert.Equal(t, int64(0), reg.Outstanding())
}

func TestAllocate_PoolInvariant(t *testing.T) {
	t.Parallel()

	const maxInstances = 4
	m := instance.NewManager(instance.WithMaxInstances(maxInstances))
	var created atomic.Int32
	reg := register(t, m, "STM", func() (core.Handler, error) {
		created.Add(1)
		return &pooled{}, nil
	})

	var (
		mu    sync.Mutex
		inUse = map[*instance.Instance]bool{}
		wg    sync.WaitGroup
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				inst, err := m.Allocate(context.Background(), reg)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				assert.False(t, inUse[inst], "instance handed out twice")
				inUse[inst] = true
				mu.Unlock()

				assert.GreaterOrEqual(t, reg.Outstanding(), int64(1))
				assert.LessOrEqual(t, reg.Outstanding(), int64(maxInstances))

				mu.Lock()
				delete(inUse, inst)
				mu.Unlock()
				assert.NoError(t, m.Deallocate(reg, inst))
				assert.GreaterOrEqual(t, reg.Outstanding(), int64(0))
			}
		}()
	}
	wg.Wait()

	assert.True(t, reg.Pooled())
	assert.Equal(t, int64(0), reg.Outstanding())
	assert.LessOrEqual(t, created.Load(), int32(maxInstances))
	assert.Equal(t, int(created.Load()), reg.Idle())
}

func TestDeallocate_NeverPoolsTwice(t *testing.T) {
	t.Parallel()

	m := instance.NewManager()
	reg := register(t, m, "STM", func() (core.Handler, error) { return &pooled{}, nil })
	other := register(t, m, "other", func() (core.Handler, error) { return &counting{}, nil })

	inst, err := m.Allocate(context.Background(), reg)
	require.NoError(t, err)
	require.NoError(t, m.Deallocate(reg, inst))
	assert.Equal(t, 1, reg.Idle())

	assert.ErrorIs(t, m.Deallocate(reg, inst), instance.ErrInstanceAlreadyPooled)
	assert.Equal(t, 1, reg.Idle())
	assert.Equal(t, int64(0), reg.Outstanding())

	assert.ErrorIs(t, m.Deallocate(other, inst), instance.ErrForeignInstance)
	assert.ErrorIs(t, m.Deallocate(reg, nil), instance.ErrNilInstance)

	again, err := m.Allocate(context.Background(), reg)
	require.NoError(t, err)
	assert.Same(t, inst, again, "idle instance is reused")
	assert.Equal(t, 0, reg.Idle())
}

func TestAllocate_WaitsForRelease(t *testing.T) {
	t.Parallel()

	m := instance.NewManager(instance.WithMaxInstances(1))
	reg := register(t, m, "STM", func() (core.Handler, error) { return &pooled{}, nil })

	held, err := m.Allocate(context.Background(), reg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Allocate(ctx, reg)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	got := make(chan *instance.Instance, 1)
	go func() {
		inst, err := m.Allocate(context.Background(), reg)
		assert.NoError(t, err)
		got <- inst
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, m.Deallocate(reg, held))

	select {
	case inst := <-got:
		assert.Same(t, held, inst)
	case <-time.After(time.Second):
		t.Fatal("waiter was not released")
	}
}

func TestUnload_WakesWaiters(t *testing.T) {
	t.Parallel()

	m := instance.NewManager(
		instance.WithMaxInstances(1),
		instance.WithUnloadDelay(20*time.Millisecond),
		instance.WithUnloadRetries(2),
	)
	reg := register(t, m, "STM", func() (core.Handler, error) { return &pooled{}, nil })

	held, err := m.Allocate(context.Background(), reg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	errs := make(chan error, 1)
	go func() {
		_, err := m.Allocate(ctx, reg)
		errs <- err
	}()
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, m.Unload(context.Background(), reg))
	require.NoError(t, m.Deallocate(reg, held))

	select {
	case err := <-errs:
		ue, ok := core.AsUnavailable(err)
		require.True(t, ok, "got %v", err)
		assert.True(t, ue.Permanent)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("waiting allocation was not failed by unload")
	}
	assert.NoError(t, ctx.Err())
	assert.Zero(t, reg.Idle())
}

func TestAllocate_RefusedAfterUnload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		factory func() core.Handler
	}{
		{"singleton", func() core.Handler { return &counting{} }},
		{"pooled", func() core.Handler { return &pooled{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := instance.NewManager(instance.WithUnloadDelay(time.Millisecond))
			var created atomic.Int32
			reg := register(t, m, "A", func() (core.Handler, error) {
				created.Add(1)
				return tt.factory(), nil
			})
			require.NoError(t, m.Load(context.Background(), reg))
			require.NoError(t, m.Unload(context.Background(), reg))

			// clearing the window does not bring an unloaded handler back
			m.MarkAvailable(reg)
			_, err := m.Allocate(context.Background(), reg)
			ue, ok := core.AsUnavailable(err)
			require.True(t, ok, "got %v", err)
			assert.True(t, ue.Permanent)
			assert.Equal(t, int32(1), created.Load())

			require.NoError(t, m.Load(context.Background(), reg))
			inst, err := m.Allocate(context.Background(), reg)
			require.NoError(t, err)
			require.NoError(t, m.Deallocate(reg, inst))
			assert.Equal(t, int32(2), created.Load())
		})
	}
}

func TestAllocate_UnavailableWindow(t *testing.T) {
	t.Parallel()

	clk := &clock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	m := instance.NewManager(instance.WithClock(clk.Now))
	reg := register(t, m, "A", func() (core.Handler, error) { return &counting{}, nil })

	m.MarkUnavailable(reg, 5)

	_, err := m.Allocate(context.Background(), reg)
	require.ErrorIs(t, err, core.ErrUnavailable)
	ue, ok := core.AsUnavailable(err)
	require.True(t, ok)
	assert.Equal(t, 5, ue.Seconds)
	assert.False(t, ue.Permanent)
	assert.Equal(t, "A", ue.Handler)
	assert.Equal(t, 5, ue.RetryAfter(clk.Now()))

	clk.Advance(4*time.Second + 500*time.Millisecond)
	_, err = m.Allocate(context.Background(), reg)
	ue, ok = core.AsUnavailable(err)
	require.True(t, ok)
	assert.Equal(t, 1, ue.Seconds)

	clk.Advance(500 * time.Millisecond)
	inst, err := m.Allocate(context.Background(), reg)
	require.NoError(t, err)
	require.NoError(t, m.Deallocate(reg, inst))

	until, permanent := reg.AvailableUntil()
	assert.True(t, until.IsZero())
	assert.False(t, permanent)
}

func TestMarkUnavailable_DefaultWindow(t *testing.T) {
	t.Parallel()

	clk := &clock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	m := instance.NewManager(instance.WithClock(clk.Now))
	reg := register(t, m, "A", func() (core.Handler, error) { return &counting{}, nil })

	for _, seconds := range []int{0, -3} {
		ue := m.MarkUnavailable(reg, seconds)
		assert.Equal(t, core.DefaultUnavailableSeconds, ue.Seconds)
		until, permanent := reg.AvailableUntil()
		assert.False(t, permanent)
		assert.True(t, clk.Now().Add(60*time.Second).Equal(until))
	}
}

func TestMarkPermanentlyUnavailable(t *testing.T) {
	t.Parallel()

	m := instance.NewManager()
	reg := register(t, m, "A", func() (core.Handler, error) { return &counting{}, nil })

	m.MarkPermanentlyUnavailable(reg)
	_, err := m.Allocate(context.Background(), reg)
	ue, ok := core.AsUnavailable(err)
	require.True(t, ok)
	assert.True(t, ue.Permanent)
	assert.Equal(t, 0, ue.RetryAfter(time.Now()))

	m.MarkAvailable(reg)
	inst, err := m.Allocate(context.Background(), reg)
	require.NoError(t, err)
	assert.NotNil(t, inst.Handler())
}

func TestAllocate_InitFailure(t *testing.T) {
	t.Parallel()

	t.Run("singleton is retried", func(t *testing.T) {
		t.Parallel()

		m := instance.NewManager()
		var calls atomic.Int32
		reg := register(t, m, "A", func() (core.Handler, error) {
			h := &counting{}
			if calls.Add(1) == 1 {
				h.initErr = errors.New("db down")
			}
			return h, nil
		})

		_, err := m.Allocate(context.Background(), reg)
		assert.ErrorIs(t, err, core.ErrInitializationFailed)
		assert.Equal(t, int64(0), reg.Outstanding())

		inst, err := m.Allocate(context.Background(), reg)
		require.NoError(t, err)
		assert.Equal(t, int64(1), reg.Outstanding())
		require.NoError(t, m.Deallocate(reg, inst))
	})

	t.Run("pooled slot is returned", func(t *testing.T) {
		t.Parallel()

		m := instance.NewManager(instance.WithMaxInstances(1))
		var calls atomic.Int32
		reg := register(t, m, "STM", func() (core.Handler, error) {
			h := &pooled{}
			if calls.Add(1) == 2 {
				h.initErr = errors.New("flaky")
			}
			return h, nil
		})

		first, err := m.Allocate(context.Background(), reg)
		require.NoError(t, err)
		require.NoError(t, m.Deallocate(reg, first))

		// destroy the idle instance so the next allocation has to grow
		require.NoError(t, m.Unload(context.Background(), reg))
		err = m.Load(context.Background(), reg)
		require.ErrorIs(t, err, core.ErrInitializationFailed)
		assert.Equal(t, int64(0), reg.Outstanding())

		require.NoError(t, m.Load(context.Background(), reg))
		assert.Equal(t, int32(3), calls.Load())
		assert.Equal(t, 1, reg.Idle())
	})

	t.Run("factory error", func(t *testing.T) {
		t.Parallel()

		m := instance.NewManager()
		reg := register(t, m, "A", func() (core.Handler, error) { return nil, errors.New("boom") })
		_, err := m.Allocate(context.Background(), reg)
		assert.ErrorIs(t, err, core.ErrInitializationFailed)

		nilReg := register(t, m, "B", func() (core.Handler, error) { return nil, nil })
		_, err = m.Allocate(context.Background(), nilReg)
		assert.ErrorIs(t, err, instance.ErrNilHandler)
	})

	t.Run("init panics", func(t *testing.T) {
		t.Parallel()

		m := instance.NewManager()
		h := &counting{onInit: func(core.Config) { panic("bad config") }}
		reg := register(t, m, "A", func() (core.Handler, error) { return h, nil })
		_, err := m.Allocate(context.Background(), reg)
		assert.ErrorIs(t, err, core.ErrInitializationFailed)
		assert.ErrorIs(t, err, core.ErrRuntimeFault)
	})

	t.Run("init reports unavailable", func(t *testing.T) {
		t.Parallel()

		m := instance.NewManager()
		h := &counting{initErr: core.Unavailable(30)}
		reg := register(t, m, "A", func() (core.Handler, error) { return h, nil })

		_, err := m.Allocate(context.Background(), reg)
		ue, ok := core.AsUnavailable(err)
		require.True(t, ok)
		assert.Equal(t, 30, ue.Seconds)

		_, err = m.Allocate(context.Background(), reg)
		assert.ErrorIs(t, err, core.ErrUnavailable)
		assert.Equal(t, int32(1), h.inits.Load(), "no init while unavailable")
	})
}

func TestUnload_Drains(t *testing.T) {
	t.Parallel()

	m := instance.NewManager(instance.WithUnloadDelay(400 * time.Millisecond))
	h := &counting{}
	reg := register(t, m, "A", func() (core.Handler, error) { return h, nil })

	inst, err := m.Allocate(context.Background(), reg)
	require.NoError(t, err)
	require.Equal(t, int64(1), reg.Outstanding())

	go func() {
		time.Sleep(50 * time.Millisecond)
		assert.NoError(t, m.Deallocate(reg, inst))
	}()

	start := time.Now()
	require.NoError(t, m.Unload(context.Background(), reg))
	elapsed := time.Since(start)

	assert.Equal(t, int64(0), reg.Outstanding())
	assert.Equal(t, int32(1), h.destroys.Load())
	assert.Less(t, elapsed, 400*time.Millisecond, "unload returns once drained")

	_, err = m.Allocate(context.Background(), reg)
	ue, ok := core.AsUnavailable(err)
	require.True(t, ok)
	assert.True(t, ue.Permanent)
}

func TestUnload_ProceedsAfterTimeout(t *testing.T) {
	t.Parallel()

	m := instance.NewManager(
		instance.WithUnloadDelay(40*time.Millisecond),
		instance.WithUnloadRetries(21),
	)
	h := &pooled{}
	reg := register(t, m, "STM", func() (core.Handler, error) { return h, nil })

	inst, err := m.Allocate(context.Background(), reg)
	require.NoError(t, err)

	require.NoError(t, m.Unload(context.Background(), reg))
	assert.Equal(t, int64(1), reg.Outstanding())
	assert.Equal(t, int32(0), h.destroys.Load(), "outstanding instance is not destroyed")

	require.NoError(t, m.Deallocate(reg, inst))
	assert.Equal(t, int32(1), h.destroys.Load(), "late release destroys the instance")
	assert.Equal(t, 0, reg.Idle())
}

func TestUnload_InterruptedWait(t *testing.T) {
	t.Parallel()

	m := instance.NewManager(instance.WithUnloadDelay(time.Hour))
	h := &counting{}
	reg := register(t, m, "A", func() (core.Handler, error) { return h, nil })
	_, err := m.Allocate(context.Background(), reg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- m.Unload(ctx, reg) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("unload ignored cancellation")
	}
	assert.Equal(t, int32(1), h.destroys.Load())
}

func TestUnload_FinalizationFailures(t *testing.T) {
	t.Parallel()

	m := instance.NewManager(instance.WithMaxInstances(3))
	var all []*pooled
	var mu sync.Mutex
	reg := register(t, m, "STM", func() (core.Handler, error) {
		h := &pooled{}
		h.destErr = errors.New("close failed")
		mu.Lock()
		all = append(all, h)
		mu.Unlock()
		return h, nil
	})

	var insts []*instance.Instance
	for range 3 {
		inst, err := m.Allocate(context.Background(), reg)
		require.NoError(t, err)
		insts = append(insts, inst)
	}
	for _, inst := range insts {
		require.NoError(t, m.Deallocate(reg, inst))
	}

	err := m.Unload(context.Background(), reg)
	require.ErrorIs(t, err, core.ErrFinalizationFailed)
	for _, h := range all {
		assert.Equal(t, int32(1), h.destroys.Load(), "every instance is finalized")
	}
}

func TestUnload_RestoresProfilerLabels(t *testing.T) {
	t.Parallel()

	const fn = "TestUnload_RestoresProfilerLabels"
	var during string
	m := instance.NewManager()
	reg := register(t, m, "A", func() (core.Handler, error) {
		return &destroyHook{hook: func() error {
			during = goroutineLabels(t, fn)
			panic("close failed")
		}}, nil
	})
	require.NoError(t, m.Load(context.Background(), reg))

	pprof.Do(context.Background(), pprof.Labels("caller", "outer"), func(ctx context.Context) {
		err := m.Unload(ctx, reg)
		require.ErrorIs(t, err, core.ErrFinalizationFailed)
		assert.ErrorIs(t, err, core.ErrRuntimeFault)

		after := goroutineLabels(t, fn)
		assert.Contains(t, after, `"caller":"outer"`)
		assert.NotContains(t, after, "dispatch_phase")
	})

	assert.Contains(t, during, `"dispatch_phase":"unload"`)
	assert.Contains(t, during, `"dispatch_handler":"A"`)
	assert.Contains(t, during, `"caller":"outer"`)
	assert.Empty(t, goroutineLabels(t, fn))
}

func TestLoad_AfterUnload(t *testing.T) {
	t.Parallel()

	m := instance.NewManager()
	var created atomic.Int32
	reg := register(t, m, "A", func() (core.Handler, error) {
		created.Add(1)
		return &counting{}, nil
	})

	require.NoError(t, m.Load(context.Background(), reg))
	require.NoError(t, m.Unload(context.Background(), reg))
	require.NoError(t, m.Load(context.Background(), reg))

	assert.Equal(t, int32(2), created.Load())
	inst, err := m.Allocate(context.Background(), reg)
	require.NoError(t, err)
	require.NoError(t, m.Deallocate(reg, inst))
}

func TestLoadOnStartup(t *testing.T) {
	t.Parallel()

	m := instance.NewManager()
	var (
		mu    sync.Mutex
		order []string
	)
	factory := func(name string) instance.Factory {
		return func() (core.Handler, error) {
			return &counting{onInit: func(core.Config) {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
			}}, nil
		}
	}
	register(t, m, "late", factory("late"), instance.WithLoadPriority(2))
	register(t, m, "lazy", factory("lazy"))
	register(t, m, "first", factory("first"), instance.WithLoadPriority(0))
	register(t, m, "middle-a", factory("middle-a"), instance.WithLoadPriority(1))
	register(t, m, "middle-b", factory("middle-b"), instance.WithLoadPriority(1))
	register(t, m, "broken", func() (core.Handler, error) { return nil, errors.New("nope") }, instance.WithLoadPriority(1))

	err := m.LoadOnStartup(context.Background())
	require.ErrorIs(t, err, core.ErrInitializationFailed)
	assert.Equal(t, []string{"first", "middle-a", "middle-b", "late"}, order)

	require.NoError(t, m.UnloadAll(context.Background()))
	for _, reg := range m.Registrations() {
		_, permanent := reg.AvailableUntil()
		assert.True(t, permanent, reg.Name())
	}
}

func TestManager_Metrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := instance.NewManager(instance.WithMetrics(metrics.MustNew(reg, metrics.DefaultConfig("test"))))
	r := register(t, m, "A", func() (core.Handler, error) { return &counting{}, nil })

	inst, err := m.Allocate(context.Background(), r)
	require.NoError(t, err)
	require.NoError(t, m.Deallocate(r, inst))
	m.MarkUnavailable(r, 5)
	_, err = m.Allocate(context.Background(), r)
	require.Error(t, err)

	count, err := testutil.GatherAndCount(reg, "test_dispatch_allocations_total", "test_dispatch_unavailable_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
