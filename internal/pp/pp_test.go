package pp

import (
	"testing"

	"github.com/dtcyber-go/cyber6000/internal/channel"
	"github.com/dtcyber-go/cyber6000/internal/memory"
	"github.com/dtcyber-go/cyber6000/internal/model"
)

func TestPSNNoop(t *testing.T) {
	p := New(0)
	p.Mem[0] = 0o00
	p.Step(nil, nil, nil, 0)
	if p.P != 1 {
		t.Fatalf("P = %o, want 1 after a single PSN", p.P)
	}
}

func TestLDNLoadsConstant(t *testing.T) {
	p := New(0)
	p.Mem[0] = 0o1437 // LDN with opD=037
	p.Step(nil, nil, nil, 0)
	if p.A != 0o37 {
		t.Fatalf("A = %o, want %o", p.A, 0o37)
	}
}

func TestUJNUnconditionalJump(t *testing.T) {
	p := New(0)
	p.Mem[0] = 0o0300 // UJN, opD=0
	p.Mem[1] = 10      // offset word
	p.Step(nil, nil, nil, 0)
	want := addOffset(1, 10)
	if p.P != want {
		t.Fatalf("P = %o, want %o", p.P, want)
	}
}

func TestACNActivatesChannel(t *testing.T) {
	p := New(0)
	p.Mem[0] = 0o7400 // ACN, channel 0
	ch := channel.New(0)
	p.Step(nil, []*channel.Channel{ch}, nil, 0)
	if !ch.Active {
		t.Fatal("ACN should activate the channel")
	}
}

func TestIANWaitsForFullChannel(t *testing.T) {
	p := New(0)
	p.A = 1
	p.Mem[0] = 0o7000 // IAN, channel 0
	ch := channel.New(0)
	ch.Active = true
	chans := []*channel.Channel{ch}

	p.Step(nil, chans, nil, 0)
	if !p.Busy {
		t.Fatal("IAN should mark the PP busy until the channel is full")
	}
	p.Step(nil, chans, nil, 0)
	if !p.Busy {
		t.Fatal("PP should remain busy while channel is not yet full")
	}
	ch.SetFull(0o1234)
	p.Step(nil, chans, nil, 0)
	if p.Busy {
		t.Fatal("IAN should complete once the channel delivers a full word")
	}
	if ch.Full {
		t.Fatal("channel should be drained (empty) once IAN consumes the word")
	}
}

func TestCRDReadsCMWord(t *testing.T) {
	p := New(0)
	cm := memory.NewCentralMemory(16)
	cm.Write(5, 0o12345670123456701234)
	p.A = 5
	p.Mem[0] = 0o6000 // CRD
	p.Mem[1] = 10      // target base address in PP memory
	p.Step(cm, nil, nil, model.Feature(0))
	if p.Mem[10] == 0 {
		t.Fatal("CRD should have unpacked CM word into PP memory")
	}
}

func TestCWMPacksFiveWordsPerCMWord(t *testing.T) {
	p := New(0)
	cm := memory.NewCentralMemory(16)
	p.A = 5
	p.Mem[0] = 0o6300 // CWM
	p.Mem[1] = 5       // word count: 5 PP words pack one CM word
	p.Mem[2] = 10      // buffer base address
	p.Mem[10] = 0o1111
	p.Mem[11] = 0o2222
	p.Mem[12] = 0o3333
	p.Mem[13] = 0o4444
	p.Mem[14] = 0o5555

	for i := 0; i < 7; i++ {
		p.Step(cm, nil, nil, model.Feature(0))
	}

	want := uint64(0o1111)<<48 | uint64(0o2222)<<36 | uint64(0o3333)<<24 | uint64(0o4444)<<12 | uint64(0o5555)
	if got := cm.Read(5); got != want {
		t.Fatalf("CWM packed %#o, want %#o", got, want)
	}
	if p.Busy {
		t.Fatal("CWM should have cleared Busy once its word count was exhausted")
	}
	if p.P != 2 {
		t.Fatalf("P = %o, want 2 (return address) after CWM completes", p.P)
	}
}

func TestCRMUnpacksFiveWordsPerCMWord(t *testing.T) {
	p := New(0)
	cm := memory.NewCentralMemory(16)
	cm.Write(5, uint64(0o1111)<<48|uint64(0o2222)<<36|uint64(0o3333)<<24|uint64(0o4444)<<12|uint64(0o5555))
	p.A = 5
	p.Mem[0] = 0o6100 // CRM
	p.Mem[1] = 5
	p.Mem[2] = 10

	for i := 0; i < 7; i++ {
		p.Step(cm, nil, nil, model.Feature(0))
	}

	want := [5]uint16{0o1111, 0o2222, 0o3333, 0o4444, 0o5555}
	for i, w := range want {
		if got := p.Mem[10+i]; got != w {
			t.Fatalf("Mem[%d] = %o, want %o", 10+i, got, w)
		}
	}
	if p.Busy {
		t.Fatal("CRM should have cleared Busy once its word count was exhausted")
	}
}

func TestAJMRetriesUntilChannelActive(t *testing.T) {
	p := New(0)
	p.Mem[0] = 0o6400 // AJM, channel 0, no-hang bit clear
	p.Mem[1] = 5        // jump offset
	ch := channel.New(0)
	chans := []*channel.Channel{ch}

	p.Step(nil, chans, nil, 0)
	if p.P != 0 {
		t.Fatalf("AJM should rewind P to retry while the channel is inactive, got P = %o", p.P)
	}

	ch.Active = true
	p.Step(nil, chans, nil, 0)
	if p.P != 5 {
		t.Fatalf("AJM should jump once the channel is active, got P = %o, want 5", p.P)
	}
}

func TestFJMNoHangSetsChannelFlag(t *testing.T) {
	p := New(0)
	p.Mem[0] = 0o6640 // FJM, channel 0, no-hang bit set
	p.Mem[1] = 3
	ch := channel.New(0)
	chans := []*channel.Channel{ch}

	p.Step(nil, chans, nil, 0)
	if !ch.Flag {
		t.Fatal("FJM no-hang should set the channel flag")
	}
	if p.P != 2 {
		t.Fatalf("FJM no-hang should not jump the first time, got P = %o, want 2", p.P)
	}

	p.P = 0
	p.Step(nil, chans, nil, 0)
	if p.P != 3 {
		t.Fatalf("FJM no-hang should jump once the flag was already set, got P = %o, want 3", p.P)
	}
}
