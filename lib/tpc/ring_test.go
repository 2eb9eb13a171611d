package tpc

import (
	"errors"
	"testing"

	"github.com/ValentinKolb/tpcKV/lib/db/util"
	"github.com/ValentinKolb/tpcKV/lib/store"
)

func TestParseSlaveInfo(t *testing.T) {
	tests := []struct {
		name    string
		info    string
		want    SlaveInfo
		wantErr bool
	}{
		{name: "valid", info: "42@localhost:8080", want: SlaveInfo{SlaveID: 42, HostName: "localhost", Port: 8080}},
		{name: "ipv6", info: "7@[::1]:9000", want: SlaveInfo{SlaveID: 7, HostName: "::1", Port: 9000}},
		{name: "large id", info: "18446744073709551615@h:1", want: SlaveInfo{SlaveID: 1<<64 - 1, HostName: "h", Port: 1}},
		{name: "missing at", info: "42localhost:8080", wantErr: true},
		{name: "non numeric id", info: "abc@localhost:8080", wantErr: true},
		{name: "negative id", info: "-1@localhost:8080", wantErr: true},
		{name: "missing port", info: "42@localhost", wantErr: true},
		{name: "non numeric port", info: "42@localhost:http", wantErr: true},
		{name: "port out of range", info: "42@localhost:70000", wantErr: true},
		{name: "empty host", info: "42@:8080", wantErr: true},
		{name: "empty", info: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSlaveInfo(tt.info)
			if tt.wantErr {
				if !errors.Is(err, store.ErrRegistration) {
					t.Errorf("Expected registration error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestSlaveInfoString(t *testing.T) {
	info := SlaveInfo{SlaveID: 3, HostName: "10.0.0.1", Port: 7000}
	parsed, err := ParseSlaveInfo(info.String())
	if err != nil || parsed != info {
		t.Errorf("Expected %+v after round trip, got %+v, %v", info, parsed, err)
	}
}

func TestRingPlacement(t *testing.T) {
	const key = "placement-key"
	h := util.RingHash(key)

	ring := NewRing()
	below := SlaveInfo{SlaveID: h - 10, HostName: "below", Port: 1}
	exact := SlaveInfo{SlaveID: h, HostName: "exact", Port: 1}
	above := SlaveInfo{SlaveID: h + 10, HostName: "above", Port: 1}

	ring.Add(below)
	ring.Add(above)

	primary, secondary, err := ring.Replicas(key)
	if err != nil {
		t.Fatalf("Replicas failed: %v", err)
	}
	if primary != above || secondary != below {
		t.Errorf("Expected primary=above secondary=below (wrap), got %+v / %+v", primary, secondary)
	}

	// an exact match is the primary
	ring.Add(exact)
	primary, secondary, _ = ring.Replicas(key)
	if primary != exact || secondary != above {
		t.Errorf("Expected primary=exact secondary=above, got %+v / %+v", primary, secondary)
	}

	// keys hashing above every id wrap to the smallest id
	ring = NewRing()
	ring.Add(SlaveInfo{SlaveID: 1, HostName: "a", Port: 1})
	ring.Add(SlaveInfo{SlaveID: 2, HostName: "b", Port: 1})
	primary, secondary, _ = ring.Replicas(key)
	if primary.SlaveID != 1 || secondary.SlaveID != 2 {
		t.Errorf("Expected 1/2, got %d/%d", primary.SlaveID, secondary.SlaveID)
	}
}

func TestRingSuccessor(t *testing.T) {
	ring := NewRing()
	for _, id := range []uint64{30, 10, 20} {
		ring.Add(SlaveInfo{SlaveID: id, HostName: "h", Port: 1})
	}

	tests := []struct {
		from, want uint64
	}{
		{10, 20},
		{20, 30},
		{30, 10},
		{15, 20}, // not on the ring
	}
	for _, tt := range tests {
		got, ok := ring.FindSuccessor(SlaveInfo{SlaveID: tt.from})
		if !ok || got.SlaveID != tt.want {
			t.Errorf("FindSuccessor(%d) = %d, want %d", tt.from, got.SlaveID, tt.want)
		}
	}
}

func TestRingSingleAndEmpty(t *testing.T) {
	ring := NewRing()
	if _, _, err := ring.Replicas("k"); err == nil {
		t.Errorf("Expected error on empty ring")
	}
	if _, ok := ring.FindPrimary("k"); ok {
		t.Errorf("Expected no primary on empty ring")
	}

	only := SlaveInfo{SlaveID: 5, HostName: "h", Port: 1}
	ring.Add(only)
	primary, secondary, err := ring.Replicas("k")
	if err != nil || primary != only || secondary != only {
		t.Errorf("Expected the single slave twice, got %+v / %+v, %v", primary, secondary, err)
	}
}

func TestRingRegister(t *testing.T) {
	ring := NewRing()

	if _, err := ring.Register("garbage"); !errors.Is(err, store.ErrRegistration) {
		t.Errorf("Expected registration error, got %v", err)
	}
	if ring.Len() != 0 {
		t.Errorf("Failed registration must not change the ring")
	}

	if _, err := ring.Register("2@b:2"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := ring.Register("1@a:1"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if replaced := ring.Add(SlaveInfo{SlaveID: 2, HostName: "b2", Port: 2}); !replaced {
		t.Errorf("Expected re-registration to replace the slave")
	}

	slaves := ring.Slaves()
	if len(slaves) != 2 || slaves[0].SlaveID != 1 || slaves[1].HostName != "b2" {
		t.Errorf("Unexpected ring content: %+v", slaves)
	}
	if s, ok := ring.Get(2); !ok || s.HostName != "b2" {
		t.Errorf("Expected updated slave 2, got %+v, %v", s, ok)
	}
}
