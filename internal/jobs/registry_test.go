package jobs

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"loopsched/internal/config"
	"loopsched/internal/storage"
	logx "loopsched/pkg/logx"
	"loopsched/pkg/sched"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type harness struct {
	clk   *sched.ManualClock
	s     *sched.Scheduler
	reg   *Registry
	store storage.Store
}

func newHarness(t *testing.T, capacity int) *harness {
	t.Helper()
	clk := sched.NewManualClock(epoch)
	s := sched.New(sched.WithCapacity(capacity), sched.WithClock(clk))
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "journal")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	reg := NewRegistry(context.Background(), s, Options{Store: st, WarnEvery: time.Minute})
	return &harness{clk: clk, s: s, reg: reg, store: st}
}

func (h *harness) step(d time.Duration) {
	h.clk.Advance(d)
	h.s.ScheduleTasks()
	h.reg.Reconcile()
}

func mustCompile(t *testing.T, cfgs ...config.JobConfig) []Def {
	t.Helper()
	defs, err := Compile(cfgs)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return defs
}

func status(t *testing.T, reg *Registry, name string) JobStatus {
	t.Helper()
	for _, st := range reg.Status() {
		if st.Name == name {
			return st
		}
	}
	t.Fatalf("job %q not found", name)
	return JobStatus{}
}

func TestCompile(t *testing.T) {
	t.Parallel()
	defs, err := Compile([]config.JobConfig{
		{Name: "beat", Schedule: "5s", Action: "LOG"},
		{Name: "off", Schedule: "5s", Action: "log", Disabled: true},
		{Name: "run", Schedule: "@daily", Action: "exec", Command: []string{"true"}},
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("len = %d, want 2 (disabled skipped)", len(defs))
	}
	if defs[0].Message != "job fired" || !defs[0].Repeat() {
		t.Fatalf("log def = %+v", defs[0])
	}
	if defs[1].Timeout != DefaultExecTimeout || defs[1].Repeat() {
		t.Fatalf("exec def = %+v", defs[1])
	}

	bad := []config.JobConfig{
		{Name: "", Schedule: "5s", Action: "log"},
		{Name: "x", Schedule: "soon", Action: "log"},
		{Name: "x", Schedule: "5s"},
		{Name: "x", Schedule: "5s", Action: "mail"},
		{Name: "x", Schedule: "5s", Action: "exec"},
		{Name: "x", Schedule: "5s", Action: "exec", Command: []string{"true"}, Timeout: "later"},
	}
	for _, jc := range bad {
		if _, err := Compile([]config.JobConfig{jc}); !errors.Is(err, ErrInvalidJob) {
			t.Fatalf("Compile(%+v) error = %v, want ErrInvalidJob", jc, err)
		}
	}
	if _, err := Compile([]config.JobConfig{
		{Name: "x", Schedule: "5s", Action: "log"},
		{Name: "x", Schedule: "6s", Action: "log"},
	}); !errors.Is(err, ErrInvalidJob) {
		t.Fatalf("duplicate names: error = %v", err)
	}
}

func TestIntervalJobRepeatsAndIsJournaled(t *testing.T) {
	h := newHarness(t, 4)
	h.reg.Sync(mustCompile(t, config.JobConfig{Name: "beat", Schedule: "100ms", Action: "log", Message: "alive"}))
	if !status(t, h.reg, "beat").Pending {
		t.Fatal("job should hold a slot after Sync")
	}

	h.step(99 * time.Millisecond)
	if st := status(t, h.reg, "beat"); st.Fires != 0 {
		t.Fatalf("fired early: %+v", st)
	}
	h.step(time.Millisecond)
	h.step(100 * time.Millisecond)
	st := status(t, h.reg, "beat")
	if st.Fires != 2 || !st.Pending || st.Done {
		t.Fatalf("status = %+v", st)
	}
	if h.s.Len() != 1 {
		t.Fatalf("slots used = %d, want 1", h.s.Len())
	}

	recs, err := h.store.RecentFires(context.Background(), "beat", 10)
	if err != nil {
		t.Fatalf("RecentFires: %v", err)
	}
	if len(recs) != 2 || !recs[0].OK || recs[0].Action != ActionLog {
		t.Fatalf("journal = %+v", recs)
	}
	if !recs[0].At.Equal(epoch.Add(200 * time.Millisecond)) {
		t.Fatalf("journal time = %v", recs[0].At)
	}
}

func TestOnceJobFiresOnce(t *testing.T) {
	h := newHarness(t, 2)
	h.reg.Sync(mustCompile(t, config.JobConfig{Name: "warmup", Schedule: "1s", Once: true, Action: "log"}))

	for i := 0; i < 5; i++ {
		h.step(time.Second)
	}
	st := status(t, h.reg, "warmup")
	if st.Fires != 1 || !st.Done || st.Pending {
		t.Fatalf("status = %+v", st)
	}
	if h.s.Len() != 0 {
		t.Fatalf("slots used = %d, want 0", h.s.Len())
	}
}

func TestCronJobIsRearmedAfterFire(t *testing.T) {
	h := newHarness(t, 2)
	h.reg.Sync(mustCompile(t, config.JobConfig{Name: "minutely", Schedule: "* * * * *", Action: "log"}))

	snap := h.s.Snapshot()
	if len(snap) != 1 || snap[0].Repeat || snap[0].Delay != time.Minute {
		t.Fatalf("snapshot = %+v", snap)
	}

	h.step(time.Minute)
	st := status(t, h.reg, "minutely")
	if st.Fires != 1 || !st.Pending {
		t.Fatalf("status after first fire = %+v", st)
	}
	h.step(30 * time.Second)
	if !h.s.Snapshot()[0].Deadline.Equal(epoch.Add(2 * time.Minute)) {
		t.Fatalf("re-armed deadline = %v", h.s.Snapshot()[0].Deadline)
	}
	h.step(30 * time.Second)
	if st := status(t, h.reg, "minutely"); st.Fires != 2 {
		t.Fatalf("status after second fire = %+v", st)
	}
}

func TestFullTableRetriesAdmission(t *testing.T) {
	h := newHarness(t, 1)
	h.reg.Sync(mustCompile(t,
		config.JobConfig{Name: "a", Schedule: "1s", Action: "log"},
		config.JobConfig{Name: "b", Schedule: "1s", Action: "log"},
	))
	if got := h.reg.Blocked(); len(got) != 1 || got[0] != "b" {
		t.Fatalf("Blocked = %v, want [b]", got)
	}

	h.reg.Remove("a")
	h.reg.Reconcile()
	if got := h.reg.Blocked(); len(got) != 0 {
		t.Fatalf("Blocked = %v after a slot freed", got)
	}
	if names := h.reg.Names(); len(names) != 1 || names[0] != "b" {
		t.Fatalf("Names = %v", names)
	}
	h.step(time.Second)
	if st := status(t, h.reg, "b"); st.Fires != 1 {
		t.Fatalf("status = %+v", st)
	}
}

func TestSyncKeepsUnchangedAndReplacesChanged(t *testing.T) {
	h := newHarness(t, 4)
	keep := config.JobConfig{Name: "keep", Schedule: "10s", Action: "log"}
	h.reg.Sync(mustCompile(t, keep,
		config.JobConfig{Name: "edit", Schedule: "10s", Action: "log"},
		config.JobConfig{Name: "drop", Schedule: "10s", Action: "log"},
	))
	h.step(4 * time.Second)

	h.reg.Sync(mustCompile(t, keep,
		config.JobConfig{Name: "edit", Schedule: "20s", Action: "log"},
	))
	if h.s.Len() != 2 {
		t.Fatalf("slots used = %d, want 2", h.s.Len())
	}
	var deadlines []time.Time
	for _, si := range h.s.Snapshot() {
		deadlines = append(deadlines, si.Deadline)
	}
	// keep retains its original deadline, edit is re-armed from now
	if !deadlines[0].Equal(epoch.Add(10*time.Second)) || !deadlines[1].Equal(epoch.Add(24*time.Second)) {
		t.Fatalf("deadlines = %v", deadlines)
	}

	h.reg.Close()
	if h.s.Len() != 0 || len(h.reg.Names()) != 0 {
		t.Fatal("Close should free every slot")
	}
}

func TestExecJob(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	h := newHarness(t, 2)
	h.reg.Sync(mustCompile(t,
		config.JobConfig{Name: "ok", Schedule: "1s", Action: "exec", Command: []string{"sh", "-c", "echo hi"}},
		config.JobConfig{Name: "fail", Schedule: "1s", Once: true, Action: "exec", Command: []string{"sh", "-c", "echo broken >&2; exit 3"}},
	))
	snap := h.s.Snapshot()
	if len(snap) != 2 || snap[0].Kind != sched.KindFuncWithData {
		t.Fatalf("exec jobs should use function-with-data slots: %+v", snap)
	}

	h.step(time.Second)
	if st := status(t, h.reg, "ok"); st.Fires != 1 || st.Failures != 0 {
		t.Fatalf("ok status = %+v", st)
	}
	st := status(t, h.reg, "fail")
	if st.Failures != 1 || !strings.Contains(st.LastErr, "broken") {
		t.Fatalf("fail status = %+v", st)
	}

	recs, err := h.store.RecentFires(context.Background(), "fail", 1)
	if err != nil || len(recs) != 1 || recs[0].OK {
		t.Fatalf("journal = %+v, %v", recs, err)
	}
}

func TestExecTimeout(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	h := newHarness(t, 1)
	h.reg.Sync(mustCompile(t, config.JobConfig{
		Name: "slow", Schedule: "1s", Once: true, Action: "exec",
		Command: []string{"sleep", "5"}, Timeout: "50ms",
	}))
	h.step(time.Second)
	if st := status(t, h.reg, "slow"); !strings.Contains(st.LastErr, "timed out") {
		t.Fatalf("status = %+v", st)
	}
}

func TestCapExecTimeout(t *testing.T) {
	t.Parallel()
	defs := mustCompile(t,
		config.JobConfig{Name: "beat", Schedule: "5s", Action: "log"},
		config.JobConfig{Name: "quick", Schedule: "5s", Action: "exec", Command: []string{"true"}, Timeout: "1s"},
		config.JobConfig{Name: "slow", Schedule: "5s", Action: "exec", Command: []string{"true"}, Timeout: "30s"},
	)
	orig := mustCompile(t,
		config.JobConfig{Name: "slow", Schedule: "5s", Action: "exec", Command: []string{"true"}, Timeout: "30s"},
	)[0]

	if got := CapExecTimeout(defs, 0); got != nil {
		t.Fatalf("CapExecTimeout(0) = %v, want nil", got)
	}
	got := CapExecTimeout(defs, 5*time.Second)
	if len(got) != 1 || got[0] != "slow" {
		t.Fatalf("capped = %v, want [slow]", got)
	}
	if defs[1].Timeout != time.Second || defs[2].Timeout != 5*time.Second {
		t.Fatalf("timeouts = %v, %v", defs[1].Timeout, defs[2].Timeout)
	}
	if defs[2].Same(orig) {
		t.Fatal("a capped def must not compare equal to the uncapped one")
	}
}
