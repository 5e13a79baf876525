package installation

import (
	"testing"

	"github.com/dtcyber-go/cyber6000/internal/mainframe"
	"github.com/dtcyber-go/cyber6000/internal/model"
)

func testConfig() Config {
	return Config{
		ECSWords: 1024,
		Mainframes: []mainframe.Config{
			{ID: 0, Model: model.ModelCyber173, CMWords: 4096, PPCount: 10, CPUCount: 1},
		},
	}
}

func TestNewWiresSharedECS(t *testing.T) {
	inst := New(testConfig())
	if len(inst.Mainframes) != 1 {
		t.Fatalf("len(Mainframes) = %d, want 1", len(inst.Mainframes))
	}
	if inst.Mainframes[0].ECS() != inst.ECS() {
		t.Fatal("every mainframe must share the installation's single ECS store")
	}
}

func TestBootAttachesDeadstartPanelAndPrimesBarrel(t *testing.T) {
	inst := New(testConfig())
	if err := inst.Boot(0); err != nil {
		t.Fatalf("Boot(0) = %v, want nil", err)
	}
	mf := inst.Mainframes[0]
	if !mf.Channels[0].Active {
		t.Fatal("channel 0 should be active after boot")
	}
	if mf.CPUs[0].Stopped {
		t.Fatal("CPU 0 should be running after boot")
	}
}

func TestBootUnknownMainframeFails(t *testing.T) {
	inst := New(testConfig())
	if err := inst.Boot(7); err == nil {
		t.Fatal("Boot of an unconfigured mainframe id should fail")
	}
}

func TestPersistDirRoundTripsCMAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.PersistDir = dir

	inst := New(cfg)
	inst.Mainframes[0].CM.Write(10, 0o123456701234567)
	inst.Stop()

	inst2 := New(cfg)
	if got := inst2.Mainframes[0].CM.Read(10); got != 0o123456701234567 {
		t.Fatalf("CM[10] after restart = %#o, want %#o", got, 0o123456701234567)
	}
}

func TestDeadstartPanelFeedsProgramThenDisconnects(t *testing.T) {
	inst := New(testConfig())
	if err := inst.Boot(0); err != nil {
		t.Fatalf("Boot(0) = %v, want nil", err)
	}
	mf := inst.Mainframes[0]
	ch := mf.Channels[0]
	for i := 0; i < len(defaultDeadstartProgram); i++ {
		ch.Step()
		if !ch.Full {
			t.Fatalf("channel should be full after feeding program word %d", i)
		}
		ch.SetEmpty()
	}
	ch.Step()
	if ch.Active {
		t.Fatal("channel should deactivate once the deadstart program is exhausted")
	}
}
