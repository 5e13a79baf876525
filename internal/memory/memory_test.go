package memory

import "testing"

func TestCentralMemoryWrapsOnOversizeAddress(t *testing.T) {
	cm := NewCentralMemory(8)
	cm.Write(0, 0o777)
	if got := cm.Read(8); got != 0o777 {
		t.Errorf("Read(8) after Write(0,...) on 8-word CM = %o, want wrap to 0o777", got)
	}
}

func TestCentralMemoryMasksTo60Bits(t *testing.T) {
	cm := NewCentralMemory(1)
	cm.Write(0, ^uint64(0))
	if got := cm.Read(0); got != 0x0fffffffffffffff {
		t.Errorf("stored word not masked to 60 bits: %#x", got)
	}
}

func TestExtendedMemoryZeroSizeIsSafe(t *testing.T) {
	ecs := NewExtendedMemory(0)
	if got := ecs.Read(100); got != 0 {
		t.Errorf("Read on zero-size ECS = %#o, want 0", got)
	}
	ecs.Write(100, 0o777) // must not panic
}

func TestFlagRegisterReadySelect(t *testing.T) {
	ecs := NewExtendedMemory(16)
	if !ecs.FlagRegisterOp(EcsFlagReadySelect, 0o01) {
		t.Fatal("first ready/select should succeed")
	}
	if ecs.FlagRegisterOp(EcsFlagReadySelect, 0o01) {
		t.Fatal("second ready/select on already-set bit should fail")
	}
	if ecs.FlagRegisterOp(EcsFlagStatus, 0o01) {
		t.Fatal("status on a set bit should report failure (bit already set)")
	}
	if !ecs.FlagRegisterOp(EcsFlagSelectiveClr, 0o01) {
		t.Fatal("selective clear should always succeed")
	}
	if !ecs.FlagRegisterOp(EcsFlagStatus, 0o01) {
		t.Fatal("status after clear should succeed")
	}
}

func TestFlagRegisterIllegalSubFunction(t *testing.T) {
	ecs := NewExtendedMemory(16)
	if ecs.FlagRegisterOp(3, 1) {
		t.Fatal("sub-function 3 is not defined and must fail")
	}
}
