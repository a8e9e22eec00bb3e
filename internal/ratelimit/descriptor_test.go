package ratelimit

import (
	"errors"
	"strings"
	"testing"

	"github.com/Klingon-tech/klingnet-rlwallet/pkg/coin"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/crypto"
)

func testDescriptor() Descriptor {
	return Descriptor{
		Origin: coin.Coin{
			ParentCoinInfo: crypto.Hash([]byte("parent")),
			PuzzleHash:     crypto.Hash([]byte("puzzle")),
			Amount:         1_000_000_000,
		},
		Limit:    10,
		Interval: 5,
	}
}

func TestDescriptor_Roundtrip(t *testing.T) {
	d := testDescriptor()
	s := d.String()

	got, err := ParseDescriptor(s)
	if err != nil {
		t.Fatalf("ParseDescriptor: %v", err)
	}
	if got != d {
		t.Errorf("parsed %+v, want %+v", got, d)
	}
	if got.String() != s {
		t.Errorf("re-serialized %q, want %q", got.String(), s)
	}
}

func TestDescriptor_Format(t *testing.T) {
	d := testDescriptor()
	parts := strings.Split(d.String(), ":")
	if len(parts) != 6 {
		t.Fatalf("fields = %d, want 6", len(parts))
	}
	if parts[0] != d.Origin.ParentCoinInfo.String() ||
		parts[1] != d.Origin.PuzzleHash.String() ||
		parts[2] != "1000000000" ||
		parts[3] != d.OriginID().String() ||
		parts[4] != "10" ||
		parts[5] != "5" {
		t.Errorf("unexpected layout: %q", d.String())
	}
}

func TestParseDescriptor_Rejects(t *testing.T) {
	good := strings.Split(testDescriptor().String(), ":")
	with := func(i int, v string) string {
		p := append([]string(nil), good...)
		p[i] = v
		return strings.Join(p, ":")
	}

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"five fields", strings.Join(good[:5], ":")},
		{"seven fields", strings.Join(append(good, "1"), ":")},
		{"uppercase hex", with(0, strings.ToUpper(good[0]))},
		{"short hash", with(1, good[1][:10])},
		{"bad hex", with(1, strings.Repeat("zz", 32))},
		{"leading zero", with(2, "0"+good[2])},
		{"signed amount", with(2, "+"+good[2])},
		{"negative limit", with(4, "-10")},
		{"zero limit", with(4, "0")},
		{"zero interval", with(5, "0")},
		{"wrong origin id", with(3, strings.Repeat("ab", 32))},
		{"changed amount", with(2, "999")},
		{"overflow", with(4, "18446744073709551616")},
		{"leading space", " " + testDescriptor().String()},
		{"trailing newline", testDescriptor().String() + "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseDescriptor(tt.input); !errors.Is(err, ErrMalformedDescriptor) {
				t.Errorf("err = %v, want ErrMalformedDescriptor", err)
			}
		})
	}
}

func TestDescriptor_Params(t *testing.T) {
	d := testDescriptor()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	p := d.Params(key.PublicKey())
	if err := p.Validate(); err != nil {
		t.Fatalf("Params invalid: %v", err)
	}
	if p.OriginID != d.OriginID() || p.Limit != 10 || p.Interval != 5 {
		t.Errorf("params = %+v", p)
	}
}
