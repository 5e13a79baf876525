package channel

import "testing"

type fakeDevice struct {
	name       string
	decline    bool
	ioCalls    int
	activated  bool
	discs      int
}

func (d *fakeDevice) Func(code uint16) FuncStatus {
	if d.decline {
		return Declined
	}
	return Accepted
}
func (d *fakeDevice) Activate()   { d.activated = true }
func (d *fakeDevice) Disconnect() { d.discs++ }
func (d *fakeDevice) IO()         { d.ioCalls++ }
func (d *fakeDevice) Name() string { return d.name }

func TestFunctionChainFirstAcceptedWins(t *testing.T) {
	c := New(1)
	decliner := &fakeDevice{name: "decliner", decline: true}
	accepter := &fakeDevice{name: "accepter"}
	c.Attach(decliner)
	c.Attach(accepter)

	if got := c.Function(0o7501); got != Accepted {
		t.Fatalf("Function() = %v, want Accepted", got)
	}
	if c.IODevice() != accepter {
		t.Fatal("ioDevice should be the first accepting device, not the decliner")
	}
}

func TestFunctionAllDeclineLeavesNoIODevice(t *testing.T) {
	c := New(1)
	c.Attach(&fakeDevice{decline: true})
	c.Attach(&fakeDevice{decline: true})
	if got := c.Function(0o7501); got != Declined {
		t.Fatalf("Function() = %v, want Declined", got)
	}
	if c.IODevice() != nil {
		t.Fatal("no device should be selected when all decline")
	}
}

func TestDelayStatusMasksFullEmptyTransitions(t *testing.T) {
	c := New(1)
	c.DelayStatus = 2
	c.SetFull(0o123)
	if c.Full {
		t.Fatal("SetFull must be masked while delayStatus > 0")
	}
	c.Step()
	c.Step()
	c.SetFull(0o123)
	if !c.Full {
		t.Fatal("SetFull should take effect once delayStatus has decayed to 0")
	}
}

func TestDelayDisconnectForcesInactive(t *testing.T) {
	c := New(1)
	c.Active = true
	c.DelayDisconnect = 1
	c.Step()
	if c.Active {
		t.Fatal("channel should go inactive once delayDisconnect reaches 0")
	}
}

func TestHardwiredChannelIgnoresDisconnect(t *testing.T) {
	c := New(15)
	c.Hardwired = true
	c.Active = true
	c.Disconnect()
	if !c.Active {
		t.Fatal("hardwired channel must ignore DCN")
	}
}

func TestStepDrivesSelectedDeviceIOOnlyWhenActive(t *testing.T) {
	c := New(1)
	d := &fakeDevice{}
	c.Attach(d)
	c.Function(0)
	c.Step()
	if d.ioCalls != 0 {
		t.Fatal("IO should not be called while channel is inactive")
	}
	c.Active = true
	c.Step()
	if d.ioCalls != 1 {
		t.Fatalf("IO calls = %d, want 1 once channel is active", d.ioCalls)
	}
}
