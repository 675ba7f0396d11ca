package session

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/andyk/termmux/internal/model"
)

// recordingBroadcaster captures broadcast messages.
type recordingBroadcaster struct {
	mu       sync.Mutex
	messages []string
}

func (b *recordingBroadcaster) Broadcast(message []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, string(message))
}

func (b *recordingBroadcaster) all() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.messages...)
}

func setupTestRegistry(t *testing.T) (*Registry, *recordingBroadcaster) {
	t.Helper()
	b := &recordingBroadcaster{}
	r := NewRegistry(Options{
		Mode:  model.ProcModeDirect,
		Shell: "/bin/sh",
	}, b, nil)
	t.Cleanup(r.CloseAll)
	return r, b
}

func sleepArgs() []string {
	return []string{"-c", "sleep 30"}
}

func TestRegistry_Create(t *testing.T) {
	r, _ := setupTestRegistry(t)

	t.Run("generates an id when none supplied", func(t *testing.T) {
		s, err := r.Create("", "/bin/sh", sleepArgs())
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if s.ID() == "" {
			t.Error("expected generated id")
		}
		if s.State() != model.SessionStateRunning {
			t.Errorf("expected running state, got %s", s.State())
		}
		if s.Info().PID == 0 {
			t.Error("expected a pid")
		}
	})

	t.Run("uses the supplied id", func(t *testing.T) {
		s, err := r.Create("build", "/bin/sh", sleepArgs())
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if s.ID() != "build" {
			t.Errorf("expected id 'build', got %q", s.ID())
		}
	})

	t.Run("rejects a duplicate id without spawning", func(t *testing.T) {
		before := len(r.List())
		_, err := r.Create("build", "/bin/sh", sleepArgs())
		if !errors.Is(err, model.ErrDuplicateID) {
			t.Errorf("expected ErrDuplicateID, got %v", err)
		}
		if len(r.List()) != before {
			t.Error("failed create must not register a session")
		}
	})

	t.Run("defaults the binary to the shell", func(t *testing.T) {
		s, err := r.Create("", "", sleepArgs())
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if s.Info().Command != "/bin/sh" {
			t.Errorf("expected shell default, got %q", s.Info().Command)
		}
	})
}

func TestRegistry_CreateAlwaysActivates(t *testing.T) {
	r, _ := setupTestRegistry(t)

	first, err := r.Create("", "/bin/sh", sleepArgs())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if id, _ := r.ActiveID(); id != first.ID() {
		t.Errorf("expected %s active, got %s", first.ID(), id)
	}

	second, err := r.Create("", "/bin/sh", sleepArgs())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if id, _ := r.ActiveID(); id != second.ID() {
		t.Errorf("creating a session must switch to it; active is %s", id)
	}
}

func TestRegistry_SpawnFailure(t *testing.T) {
	r, _ := setupTestRegistry(t)

	_, err := r.Create("broken", "/nonexistent/binary", nil)
	if err == nil {
		t.Fatal("expected spawn failure")
	}
	if _, ok := r.Get("broken"); ok {
		t.Error("failed spawn must not be registered")
	}
	if _, ok := r.ActiveID(); ok {
		t.Error("failed spawn must not become active")
	}
}

func TestRegistry_SwitchTo(t *testing.T) {
	r, _ := setupTestRegistry(t)

	first, _ := r.Create("", "/bin/sh", sleepArgs())
	second, _ := r.Create("", "/bin/sh", sleepArgs())

	if err := r.SwitchTo(first.ID()); err != nil {
		t.Fatalf("SwitchTo failed: %v", err)
	}
	if id, _ := r.ActiveID(); id != first.ID() {
		t.Errorf("expected %s active, got %s", first.ID(), id)
	}

	t.Run("unknown id leaves the active session unchanged", func(t *testing.T) {
		err := r.SwitchTo("no-such-session")
		if !errors.Is(err, model.ErrSessionNotFound) {
			t.Errorf("expected ErrSessionNotFound, got %v", err)
		}
		if id, _ := r.ActiveID(); id != first.ID() {
			t.Errorf("active changed to %s", id)
		}
	})

	_ = second
}

func TestRegistry_ListInsertionOrder(t *testing.T) {
	r, _ := setupTestRegistry(t)

	ids := []string{"alpha", "beta", "gamma"}
	for _, id := range ids {
		if _, err := r.Create(id, "/bin/sh", sleepArgs()); err != nil {
			t.Fatalf("Create %s failed: %v", id, err)
		}
	}

	got := r.List()
	if len(got) != len(ids) {
		t.Fatalf("expected %d ids, got %d", len(ids), len(got))
	}
	for i, id := range ids {
		if got[i] != id {
			t.Errorf("position %d: got %s, want %s", i, got[i], id)
		}
	}
}

func TestRegistry_ExitRemovesAndClearsActive(t *testing.T) {
	r, b := setupTestRegistry(t)

	s, err := r.Create("", "/bin/sh", []string{"-c", "exit 7"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := r.Get(s.ID()); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("session was not removed after exit")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, ok := r.ActiveID(); ok {
		t.Error("active pointer must be cleared when the active session exits")
	}

	// The exit observation broadcasts just after removal.
	var exits []string
	for {
		exits = nil
		for _, msg := range b.all() {
			if strings.Contains(msg, "exited") {
				exits = append(exits, msg)
			}
		}
		if len(exits) > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(exits) != 1 {
		t.Fatalf("expected exactly one exit observation, got %d", len(exits))
	}
	if !strings.Contains(exits[0], "code 7") {
		t.Errorf("exit observation missing code: %q", exits[0])
	}
}

func TestRegistry_CloseKillsSession(t *testing.T) {
	r, b := setupTestRegistry(t)

	s, err := r.Create("", "/bin/sh", sleepArgs())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := r.Close(s.ID()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := r.Get(s.ID()); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("closed session was not removed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	found := false
	for !found {
		for _, msg := range b.all() {
			if strings.Contains(msg, "exited") {
				found = true
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("expected an exit observation after close")
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Run("closing an unknown session fails", func(t *testing.T) {
		err := r.Close("no-such-session")
		if !errors.Is(err, model.ErrSessionNotFound) {
			t.Errorf("expected ErrSessionNotFound, got %v", err)
		}
	})
}

func TestRegistry_ExitFlushesBufferedOutput(t *testing.T) {
	r, b := setupTestRegistry(t)

	s, err := r.Create("short", "/bin/sh", []string{"-c", "printf 'final words'"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := r.Get(s.ID()); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("session was not removed after exit")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Output buffered between relay ticks must not die with the session:
	// the exit path broadcasts it, before the exit observation.
	outputIdx, exitIdx := -1, -1
	for {
		for i, msg := range b.all() {
			if strings.Contains(msg, "new output from session short:\nfinal words") {
				outputIdx = i
			}
			if strings.Contains(msg, "session short exited") {
				exitIdx = i
			}
		}
		if (outputIdx >= 0 && exitIdx >= 0) || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if outputIdx < 0 {
		t.Fatalf("buffered output was lost at exit; broadcasts: %v", b.all())
	}
	if exitIdx < 0 {
		t.Fatalf("no exit observation; broadcasts: %v", b.all())
	}
	if outputIdx > exitIdx {
		t.Errorf("output observation must precede the exit observation: %v", b.all())
	}

	if s.TakePending() != nil {
		t.Error("pending output must drain exactly once")
	}
}

func TestRegistry_ConcurrentCreatesGetDistinctIDs(t *testing.T) {
	r, _ := setupTestRegistry(t)

	const n = 20
	var wg sync.WaitGroup
	ids := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := r.Create("", "/bin/sh", sleepArgs())
			if err != nil {
				errs[i] = err
				return
			}
			ids[i] = s.ID()
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("create %d failed: %v", i, errs[i])
		}
		if seen[ids[i]] {
			t.Fatalf("duplicate generated id %s", ids[i])
		}
		seen[ids[i]] = true
	}
	if got := len(r.List()); got != n {
		t.Errorf("expected %d registered sessions, got %d", n, got)
	}
}

func TestRegistry_DirectOutputAccumulates(t *testing.T) {
	r, _ := setupTestRegistry(t)

	s, err := r.Create("", "/bin/sh", []string{"-c", "printf hello; sleep 30"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		view, err := s.View()
		if err != nil {
			t.Fatalf("View failed: %v", err)
		}
		if strings.Contains(view, "hello") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("subprocess output never arrived; view: %q", view)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
