//go:build linux

package i2c

import (
	"os"
	"strings"
	"testing"
)

func openDevNull(t *testing.T) *Bus {
	t.Helper()
	f, err := os.OpenFile("/dev/null", os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenFile /dev/null: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return &Bus{f: f, path: "/dev/null"}
}

func TestDevTx_InvalidAddr(t *testing.T) {
	b := openDevNull(t)
	for _, addr := range []uint16{0, 0x80} {
		err := b.Dev(addr).WriteReg(0xF4, 0x2E)
		if err == nil || !strings.Contains(err.Error(), "invalid addr") {
			t.Fatalf("addr=0x%X err=%v want invalid addr", addr, err)
		}
	}
}

func TestDevTx_EmptyIsNoop(t *testing.T) {
	d := openDevNull(t).Dev(0x77)
	n, err := d.tx(nil, nil)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if n != 0 {
		t.Fatalf("n=%d want 0", n)
	}
}

func TestDevTx_ClosedBus(t *testing.T) {
	b := openDevNull(t)
	d := b.Dev(0x77)
	b.f = nil
	if _, err := d.ReadRegU8(0xD0); err == nil {
		t.Fatalf("expected error on closed bus")
	}
	if b.Path() != "/dev/null" {
		t.Fatalf("path=%q", b.Path())
	}
	if d.Addr() != 0x77 {
		t.Fatalf("addr=0x%02X want 0x77", d.Addr())
	}
}

func TestOpen_MissingAdapter(t *testing.T) {
	_, err := Open("/dev/i2c-does-not-exist")
	if err == nil || !strings.Contains(err.Error(), "i2c: open") {
		t.Fatalf("err=%v want wrapped open error", err)
	}
}
