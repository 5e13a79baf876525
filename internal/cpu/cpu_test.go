package cpu

import (
	"testing"

	"github.com/dtcyber-go/cyber6000/internal/memory"
	"github.com/dtcyber-go/cyber6000/internal/model"
)

func newTestCPU(t *testing.T, id int) (*CPU, *memory.CentralMemory) {
	t.Helper()
	cm := memory.NewCentralMemory(4096)
	ecs := memory.NewExtendedMemory(0)
	token := NewMonitorToken()
	c := New(id, model.FeaturesFor(model.ModelCyber175), cm, ecs, token)
	c.FlCm = cm.Size()
	c.Stopped = false
	return c, cm
}

// TestBRegisterZeroAfterEveryInstruction exercises §8 invariant 1: B0 is
// forced to zero after every instruction regardless of what the opcode did
// to it.
func TestBRegisterZeroAfterEveryInstruction(t *testing.T) {
	c, cm := newTestCPU(t, 0)
	c.B[7] = 5
	// 0o63 SBi: B[0] = B[7] + 5, a 15-bit parcel (PS fills the rest of
	// the word).
	cm.Write(0, (uint64(0o63)<<54)|(uint64(0)<<51)|(uint64(7)<<48)|(uint64(5)<<45))
	c.Step()
	if c.B[0] != 0 {
		t.Fatalf("B[0] = %o, want 0 after instruction execution", c.B[0])
	}
}

// TestMonitorTokenMutualExclusion exercises §8 invariant 2: at most one
// CPU holds the monitor token at a time.
func TestMonitorTokenMutualExclusion(t *testing.T) {
	token := NewMonitorToken()
	cm := memory.NewCentralMemory(64)
	ecs := memory.NewExtendedMemory(0)
	cpu0 := New(0, model.FeaturesFor(model.ModelCyber175), cm, ecs, token)
	cpu1 := New(1, model.FeaturesFor(model.ModelCyber175), cm, ecs, token)

	if !cpu0.ExchangeJump(0, 0, 9) {
		t.Fatal("first exchange jump into monitor mode should succeed")
	}
	if token.Current() != 0 {
		t.Fatalf("token.Current() = %d, want 0", token.Current())
	}
	if cpu1.ExchangeJump(0, 1, 9) {
		t.Fatal("a second CPU must not be able to acquire the monitor token while held")
	}
	if !cpu0.ExchangeJump(0, -1, 9) {
		t.Fatal("releasing the monitor token should succeed")
	}
	if token.Current() != -1 {
		t.Fatalf("token.Current() = %d, want -1 after release", token.Current())
	}
	if !cpu1.ExchangeJump(0, 1, 9) {
		t.Fatal("monitor token should be acquirable once released")
	}
}

// TestExchangeJumpRoundTripRestoresRegisters exercises §8 invariant 3: the
// 16-word register package written back by an exchange jump reproduces the
// state captured from the CPU being replaced, and the new package's P/A/B/X
// fields are loaded faithfully.
func TestExchangeJumpRoundTripRestoresRegisters(t *testing.T) {
	c, cm := newTestCPU(t, 0)
	c.P = 0o123
	c.X[3] = 0o777
	c.A[5] = 0o42

	const newPkgAddr = 100
	// Populate the incoming exchange package with a distinct P so the
	// round trip is observable.
	cm.Write(newPkgAddr+0, 0o500) // P = 0o500, A0 = 0.
	for i := uint32(1); i < 16; i++ {
		cm.Write(newPkgAddr+i, 0)
	}

	const oldPkgAddr = 200
	for i := uint32(0); i < 16; i++ {
		cm.Write(oldPkgAddr+i, 0)
	}

	if !c.ExchangeJump(newPkgAddr, 2, 1) {
		t.Fatal("exchange jump should succeed when the CPU is between instructions")
	}
	if c.P != 0o500 {
		t.Fatalf("P = %o, want %o after loading the new package", c.P, 0o500)
	}

	// The CPU's original state (P=0o123, X3=0o777, A5=0o42) must have been
	// written back to newPkgAddr, the slot it was just loaded from.
	word0 := cm.Read(newPkgAddr)
	oldP := uint32(word0) & 0x3ffff
	if oldP != 0o123 {
		t.Fatalf("old P = %o, want %o written back into the vacated package", oldP, 0o123)
	}
	oldX3 := cm.Read(newPkgAddr + 11)
	if oldX3 != 0o777 {
		t.Fatalf("old X3 = %o, want %o written back", oldX3, 0o777)
	}
}

// TestIdleLoopDetectionSkipsPassParcelsBeforeSelfJump exercises §8 invariant
// 7: a jump-to-self preceded by pass (047) parcels is still recognized as
// an idle loop.
func TestIdleLoopDetectionSkipsPassParcelsBeforeSelfJump(t *testing.T) {
	c, _ := newTestCPU(t, 0)
	c.P = 10
	// Parcel layout: 047 (pass), 047 (pass), then a 30-bit JP to P (self).
	word := (uint64(0o47) << 54) | (uint64(0o47) << 39) | (uint64(0o02) << 24) | uint64(c.P)
	c.opWord = word
	c.detectIdleLoop()
	if !c.Stopped {
		t.Fatal("a jump-to-self behind leading pass parcels should be detected as idle")
	}
}

// TestIdleLoopDetectionDoesNotFlagRealWork ensures a word that merely looks
// similar (jump to some other address) is not mistaken for an idle loop.
func TestIdleLoopDetectionDoesNotFlagRealWork(t *testing.T) {
	c, _ := newTestCPU(t, 0)
	c.P = 10
	word := (uint64(0o02) << 24) | uint64(20) // JP to an address other than P.
	c.opWord = word
	c.detectIdleLoop()
	if c.Stopped {
		t.Fatal("a jump to a different address must not be flagged as an idle loop")
	}
}

// TestVoidIwStackInvalidatesAllEntries exercises §8 invariant 8:
// voidIwStack(^0) invalidates every i-stack entry.
func TestVoidIwStackInvalidatesAllEntries(t *testing.T) {
	c, _ := newTestCPU(t, 0)
	for i := range c.iwValid {
		c.iwValid[i] = true
	}
	c.voidIwStack(^uint32(0))
	for i, valid := range c.iwValid {
		if valid {
			t.Fatalf("iwValid[%d] still true after voidIwStack(^0)", i)
		}
	}
}

func TestUnconditionalJumpSetsP(t *testing.T) {
	c, cm := newTestCPU(t, 0)
	cm.Write(0, (uint64(0o02)<<54)|(uint64(500)<<30)) // JP 500, 30-bit op at word start.
	c.Step()
	if c.P != 500 {
		t.Fatalf("P = %o, want 500 after JP", c.P)
	}
}

func TestPopCountOpcode(t *testing.T) {
	c, cm := newTestCPU(t, 0)
	c.X[1] = 0x7 // 3 one-bits.
	// CX2 X1, then three 046 no-op parcels so no 00 parcel follows.
	cm.Write(0, (uint64(0o47)<<54)|(uint64(2)<<51)|(uint64(1)<<48)|(uint64(0o46)<<39)|(uint64(0o46)<<24)|(uint64(0o46)<<9))
	c.Step()
	if c.X[2] != 3 {
		t.Fatalf("X[2] = %d, want 3", c.X[2])
	}
}
