package equipment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dtcyber-go/cyber6000/internal/channel"
)

func TestParseSpecValid(t *testing.T) {
	spec, err := ParseSpec("2, READER, /decks/boot.deck")
	if err != nil {
		t.Fatalf("ParseSpec: %v", err)
	}
	if spec.Channel != 2 || spec.Kind != "reader" || spec.Path != "/decks/boot.deck" {
		t.Fatalf("ParseSpec = %+v, unexpected", spec)
	}
}

func TestParseSpecRejectsWrongFieldCount(t *testing.T) {
	if _, err := ParseSpec("2,reader"); err == nil {
		t.Fatal("expected an error for a spec missing its path field")
	}
}

func TestAttachReaderFeedsDeckThenDisconnects(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "boot.deck")
	if err := os.WriteFile(path, []byte("7000 0000\n0300 0000\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	ch := channel.New(0)
	if err := Attach(ch, Spec{Channel: 0, Kind: "reader", Path: path}); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if ch.Function(0o7000) != channel.Accepted {
		t.Fatal("reader should accept an IAN-family function code")
	}
	ch.Activate()

	want := []uint16{0o7000, 0o0000, 0o0300, 0o0000}
	for i, w := range want {
		ch.Step()
		if !ch.Full || ch.Data != w {
			t.Fatalf("word %d: Full=%v Data=%o, want %o", i, ch.Full, ch.Data, w)
		}
		ch.SetEmpty()
	}
	ch.Step()
	if ch.Active {
		t.Fatal("channel should deactivate once the deck is exhausted")
	}
}

func TestAttachPrinterAppendsWords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spool.txt")

	ch := channel.New(0)
	if err := Attach(ch, Spec{Channel: 0, Kind: "printer", Path: path}); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if ch.Function(0o7000) != channel.Accepted {
		t.Fatal("printer should accept an OAN-family function code")
	}
	ch.Activate()
	ch.SetFull(0o1234)
	ch.Step()
	if ch.Full {
		t.Fatal("printer should drain the channel's data latch")
	}

	dev, ok := ch.IODevice().(*LineWriter)
	if !ok {
		t.Fatalf("IODevice() = %T, want *LineWriter", ch.IODevice())
	}
	if err := dev.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "1234\n" {
		t.Fatalf("spool contents = %q, want %q", data, "1234\n")
	}
}

func TestAttachUnknownKindFails(t *testing.T) {
	ch := channel.New(0)
	if err := Attach(ch, Spec{Channel: 0, Kind: "teletype", Path: "/dev/null"}); err == nil {
		t.Fatal("expected an error for an unrecognized device kind")
	}
}
