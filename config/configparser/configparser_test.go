package configparser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dtcyber-go/cyber6000/internal/model"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cyber6000.conf")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadConfigFileSingleMainframe(t *testing.T) {
	path := writeTempConfig(t, `
# sample installation
ecswords = 2000000

mainframe = 0
model = CYBER175
cmwords = 262144
ppcount = 10
cpus = 1
`)
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.ECSWords != 2000000 {
		t.Fatalf("ECSWords = %d, want 2000000", cfg.ECSWords)
	}
	if len(cfg.Mainframes) != 1 {
		t.Fatalf("len(Mainframes) = %d, want 1", len(cfg.Mainframes))
	}
	mf := cfg.Mainframes[0]
	if mf.Model != model.ModelCyber175 {
		t.Fatalf("Model = %v, want ModelCyber175", mf.Model)
	}
	if mf.CMWords != 262144 || mf.PPCount != 10 || mf.CPUCount != 1 {
		t.Fatalf("mainframe config = %+v, unexpected", mf)
	}
	if mf.Channels != 0 {
		t.Fatalf("Channels = %d, want 0 (unset, defers to model.DefaultChannelCount)", mf.Channels)
	}
}

func TestLoadConfigFileTwoMainframes(t *testing.T) {
	path := writeTempConfig(t, `
ecswords = 1000000

mainframe = 0
model = 840A
cmwords = 131072
ppcount = 20
channels = 32
cpus = 2

mainframe = 1
model = CYBER173
cmwords = 131072
ppcount = 10
`)
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if len(cfg.Mainframes) != 2 {
		t.Fatalf("len(Mainframes) = %d, want 2", len(cfg.Mainframes))
	}
	if cfg.Mainframes[0].CPUCount != 2 {
		t.Fatalf("mainframe 0 CPUCount = %d, want 2", cfg.Mainframes[0].CPUCount)
	}
	if cfg.Mainframes[1].CPUCount != 1 {
		t.Fatalf("mainframe 1 CPUCount = %d, want 1 (default)", cfg.Mainframes[1].CPUCount)
	}
}

func TestLoadConfigFileUnknownModelFails(t *testing.T) {
	path := writeTempConfig(t, `
mainframe = 0
model = NOSUCHMODEL
cmwords = 4096
ppcount = 10
`)
	if _, err := LoadConfigFile(path); err == nil {
		t.Fatal("expected an error for an unrecognized model name")
	}
}

func TestLoadConfigFileMissingMainframeFails(t *testing.T) {
	path := writeTempConfig(t, `ecswords = 1000`)
	if _, err := LoadConfigFile(path); err == nil {
		t.Fatal("expected an error when no mainframe section is present")
	}
}

func TestLoadConfigFileMainframesCountMismatchFails(t *testing.T) {
	path := writeTempConfig(t, `
mainframes = 2

mainframe = 0
model = CYBER173
cmwords = 4096
ppcount = 10
`)
	if _, err := LoadConfigFile(path); err == nil {
		t.Fatal("expected an error when mainframes declares a count the file doesn't deliver")
	}
}

func TestLoadConfigFileNewKeys(t *testing.T) {
	path := writeTempConfig(t, `
persistdir = /var/cyber6000/state
mainframes = 1

mainframe = 0
model = CYBER173
cmwords = 4096
ppcount = 10
clockincrement = 1000
cpumhz = 25
deadstart = 7000, 0000, 0300, 0000
equipment = 1,reader,/decks/boot.deck
`)
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.PersistDir != "/var/cyber6000/state" {
		t.Fatalf("PersistDir = %q, want /var/cyber6000/state", cfg.PersistDir)
	}
	mf := cfg.Mainframes[0]
	if mf.ClockIncrement != 1000 {
		t.Fatalf("ClockIncrement = %d, want 1000", mf.ClockIncrement)
	}
	if mf.CPUMHz != 25 {
		t.Fatalf("CPUMHz = %d, want 25", mf.CPUMHz)
	}
	wantProgram := []uint16{0o7000, 0o0000, 0o0300, 0o0000}
	if len(mf.DeadstartProgram) != len(wantProgram) {
		t.Fatalf("DeadstartProgram = %v, want %v", mf.DeadstartProgram, wantProgram)
	}
	for i, w := range wantProgram {
		if mf.DeadstartProgram[i] != w {
			t.Fatalf("DeadstartProgram[%d] = %o, want %o", i, mf.DeadstartProgram[i], w)
		}
	}
	if len(mf.Equipment) != 1 {
		t.Fatalf("len(Equipment) = %d, want 1", len(mf.Equipment))
	}
	eq := mf.Equipment[0]
	if eq.Channel != 1 || eq.Kind != "reader" || eq.Path != "/decks/boot.deck" {
		t.Fatalf("Equipment[0] = %+v, unexpected", eq)
	}
}
