package mainframe

import (
	"testing"
	"time"

	"github.com/dtcyber-go/cyber6000/internal/memory"
	"github.com/dtcyber-go/cyber6000/internal/model"
)

func testConfig() Config {
	return Config{
		ID:       0,
		Model:    model.ModelCyber173,
		CMWords:  4096,
		PPCount:  10,
		CPUCount: 1,
	}
}

func TestNewDerivesDefaultChannelCount(t *testing.T) {
	ecs := memory.NewExtendedMemory(0)
	m := New(testConfig(), ecs)
	if len(m.Channels) != 16 {
		t.Fatalf("len(Channels) = %d, want 16 for a 10-PP barrel with no explicit count", len(m.Channels))
	}
	if len(m.PPs) != 10 {
		t.Fatalf("len(PPs) = %d, want 10", len(m.PPs))
	}
	if len(m.CPUs) != 1 {
		t.Fatalf("len(CPUs) = %d, want 1", len(m.CPUs))
	}
}

func TestDeadstartPrimesPPsAndActivatesChannelZero(t *testing.T) {
	ecs := memory.NewExtendedMemory(0)
	m := New(testConfig(), ecs)
	m.Deadstart()

	for _, p := range m.PPs {
		if !p.Busy {
			t.Fatalf("PP %d should be busy after deadstart", p.ID)
		}
		if p.OpF != 0o71 {
			t.Fatalf("PP %d opF = %o, want 071 after deadstart", p.ID, p.OpF)
		}
		if p.A != 0o10000 {
			t.Fatalf("PP %d A = %o, want 010000 after deadstart", p.ID, p.A)
		}
	}
	if !m.Channels[0].Active {
		t.Fatal("channel 0 should be active after deadstart")
	}
	if m.CPUs[0].Stopped {
		t.Fatal("CPU 0 should be running after deadstart")
	}
}

func TestRunStopIsClean(t *testing.T) {
	ecs := memory.NewExtendedMemory(0)
	m := New(testConfig(), ecs)
	m.Deadstart()
	m.Run()
	time.Sleep(5 * time.Millisecond)
	m.Stop()
	// A second Stop should be a harmless no-op.
	m.Stop()
}

func TestSecondCPUConfigured(t *testing.T) {
	ecs := memory.NewExtendedMemory(0)
	cfg := testConfig()
	cfg.CPUCount = 2
	m := New(cfg, ecs)
	if len(m.CPUs) != 2 {
		t.Fatalf("len(CPUs) = %d, want 2", len(m.CPUs))
	}
	if m.CPUs[0].ID() == m.CPUs[1].ID() {
		t.Fatal("the two CPUs must have distinct ids")
	}
}

// TestSecondCPURunsConcurrently confirms Run starts a dedicated goroutine
// for CPU 1 instead of only stepping CPU 0 from schedulerLoop: both CPUs'
// clocks must advance even though only CPU 0 is reachable from tick().
func TestSecondCPURunsConcurrently(t *testing.T) {
	ecs := memory.NewExtendedMemory(0)
	cfg := testConfig()
	cfg.CPUCount = 2
	cfg.ClockIncrement = 1
	m := New(cfg, ecs)
	m.CPUs[0].Stopped = false
	m.CPUs[1].Stopped = false

	m.Run()
	time.Sleep(5 * time.Millisecond)
	m.Stop()

	if m.CPUs[0].Clock == 0 {
		t.Fatal("CPU 0's clock should have advanced while the mainframe was running")
	}
	if m.CPUs[1].Clock == 0 {
		t.Fatal("CPU 1's clock should have advanced on its own goroutine while the mainframe was running")
	}
}
