package random_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/radieske/elimination-zones/internal/game/random"
)

func TestInt_InvalidRange(t *testing.T) {
	if _, err := random.Int(5, 4); !errors.Is(err, random.ErrInvalidRange) {
		t.Fatalf("got %v, want ErrInvalidRange", err)
	}
}

func TestInt_SingleValue(t *testing.T) {
	v, err := random.Int(7, 7)
	if err != nil || v != 7 {
		t.Fatalf("got %d, %v", v, err)
	}
}

func TestInt_CoversZones(t *testing.T) {
	seen := make(map[int]int)
	for i := 0; i < 4000; i++ {
		v, err := random.Int(1, 8)
		if err != nil {
			t.Fatalf("draw: %v", err)
		}
		if v < 1 || v > 8 {
			t.Fatalf("value %d outside 1..8", v)
		}
		seen[v]++
	}
	for z := 1; z <= 8; z++ {
		if seen[z] == 0 {
			t.Errorf("zone %d never drawn in 4000 draws", z)
		}
	}
}

func TestInt_RejectsBiasedDraws(t *testing.T) {
	// span 3 usa 2 bits; o valor 3 fica fora do maior múltiplo (3) e deve ser descartado
	src := random.NewFromReader(bytes.NewReader([]byte{0x03, 0xFF, 0x02}))
	v, err := src.Int(10, 12)
	if err != nil {
		t.Fatalf("draw: %v", err)
	}
	if v != 12 {
		t.Fatalf("got %d, want 12 after two rejected draws", v)
	}
}

func TestInt_ShortRead(t *testing.T) {
	src := random.NewFromReader(bytes.NewReader(nil))
	if _, err := src.Int(1, 8); err == nil {
		t.Fatal("expected error on exhausted reader")
	}
}
