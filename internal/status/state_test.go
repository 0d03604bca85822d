package status

import (
	"testing"

	"github.com/matheus3301/admiral/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Booting {
		t.Errorf("initial state = %s, want BOOTING", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Booting, Syncing},
		{Booting, Error},
		{Syncing, Ready},
		{Syncing, Degraded},
		{Ready, Degraded},
		{Ready, Paused},
		{Degraded, Ready},
		{Paused, Syncing},
		{Error, Booting},
		{Ready, Stopped},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Ready); err == nil {
		t.Error("Transition(BOOTING -> READY) should fail")
	}

	walkTo(t, m, Stopped)
	if err := m.Transition(Booting); err == nil {
		t.Error("STOPPED is terminal")
	}
}

func TestEnsureIsIdempotent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	m := NewMachine(b)
	walkTo(t, m, Ready)
	for range len(ch) {
		<-ch
	}

	if err := m.Ensure(Ready); err != nil {
		t.Fatal(err)
	}
	if len(ch) != 0 {
		t.Error("Ensure on the current state must not emit")
	}
	if err := m.Ensure(Degraded); err != nil {
		t.Fatal(err)
	}
	if m.Current() != Degraded {
		t.Errorf("state = %s, want DEGRADED", m.Current())
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Syncing); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != bus.KindStatusChanged {
		t.Errorf("event kind = %q, want %s", evt.Kind, bus.KindStatusChanged)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.From != Booting || change.To != Syncing {
		t.Errorf("change = %v -> %v, want BOOTING -> SYNCING", change.From, change.To)
	}
}

// TestOutageCycle walks a session through a gateway outage and recovery:
// SYNCING → READY → DEGRADED → READY
func TestOutageCycle(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Syncing)

	for _, s := range []State{Ready, Degraded, Ready} {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
}

// TestPauseResume covers polling being switched off and on while degraded.
func TestPauseResume(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Degraded)

	for _, s := range []State{Paused, Syncing, Ready} {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
}

// walkTo is a helper that transitions the machine to a target state.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Booting:  {},
		Syncing:  {Syncing},
		Ready:    {Syncing, Ready},
		Degraded: {Syncing, Degraded},
		Paused:   {Syncing, Paused},
		Error:    {Error},
		Stopped:  {Stopped},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
