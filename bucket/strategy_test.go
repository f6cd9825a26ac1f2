package bucket

import (
	"bytes"
	"fmt"
	"slices"
	"strconv"
	"testing"
	"testing/quick"

	"github.com/google/go-cmp/cmp"
	"github.com/multiformats/go-multihash"
	"github.com/pkg/errors"

	"github.com/bobg/bucketset"
)

// The leading digest byte 0x36 is 0b00110110.
var fixtureDigest = append([]byte{0x36}, bytes.Repeat([]byte{0xa5}, 31)...)

func TestPrefixKey(t *testing.T) {
	cases := []struct {
		digest []byte
		bits   uint
		want   string
	}{
		{digest: fixtureDigest, bits: 1, want: "0"}, // 0b0
		{digest: fixtureDigest, bits: 2, want: "2"}, // 0b10
		{digest: fixtureDigest, bits: 3, want: "6"}, // 0b110
		{digest: fixtureDigest, bits: 4, want: "6"}, // 0b0110
		{digest: fixtureDigest, bits: 8, want: "54"},
		{digest: fixtureDigest, bits: 0, want: "0"},
		{digest: []byte{0x36, 0x01, 0, 0}, bits: 9, want: "310"},
		{digest: []byte{0xff, 0xff, 0xff, 0xff, 0xff}, bits: 32, want: "4294967295"},
		{digest: []byte{0xff, 0xff, 0xff, 0xff}, bits: 31, want: "2147483647"},
	}
	for i, c := range cases {
		t.Run(fmt.Sprintf("case_%02d", i+1), func(t *testing.T) {
			got, err := PrefixKey(c.digest, c.bits)
			if err != nil {
				t.Fatal(err)
			}
			if got != c.want {
				t.Errorf("got %s, want %s", got, c.want)
			}
		})
	}

	if _, err := PrefixKey([]byte{1, 2, 3}, 4); err == nil {
		t.Error("expected an error for a three-byte digest")
	}
	if _, err := PrefixKey(fixtureDigest, 33); err == nil {
		t.Error("expected an error for 33 bits")
	}
}

func TestHashPrefixStripsAlgorithm(t *testing.T) {
	for _, code := range []uint64{multihash.SHA2_256, multihash.BLAKE3} {
		mh, err := multihash.Encode(fixtureDigest, code)
		if err != nil {
			t.Fatal(err)
		}
		addr := bucketset.Address(multihash.Multihash(mh).B58String())

		for bits, want := range map[uint]string{1: "0", 2: "2", 3: "6", 4: "6"} {
			h := HashPrefix[string]{Bits: bits}
			got, err := h.DeriveKey("ignored", addr)
			if err != nil {
				t.Fatal(err)
			}
			if got != want {
				t.Errorf("code 0x%x, %d bits: got %s, want %s", code, bits, got, want)
			}
		}
	}
}

func TestHashPrefixBadAddress(t *testing.T) {
	h := HashPrefix[string]{Bits: 4}
	_, err := h.DeriveKey("x", bucketset.Address("not base58!"))
	var derr *DerivationError
	if !errors.As(err, &derr) {
		t.Errorf("got error %v, want a DerivationError", err)
	}
}

func TestNewHashPrefix(t *testing.T) {
	if _, err := NewHashPrefix[string](MaxPrefixBits); err != nil {
		t.Errorf("NewHashPrefix(%d): %s", MaxPrefixBits, err)
	}
	if _, err := NewHashPrefix[string](MaxPrefixBits + 1); err == nil {
		t.Errorf("expected NewHashPrefix(%d) to fail", MaxPrefixBits+1)
	}
}

func TestPrefixesTooWide(t *testing.T) {
	for _, bits := range []uint{MaxPrefixBits + 1, 64, 65} {
		p := Prefixes(bits)
		if p.Len() != 0 {
			t.Errorf("Prefixes(%d).Len() = %d, want 0", bits, p.Len())
		}
		for k := range p.Keys() {
			t.Errorf("Prefixes(%d) produced key %s", bits, k)
			break
		}
	}
	if got := Prefixes(MaxPrefixBits).Len(); got != 1<<32 {
		t.Errorf("Prefixes(%d).Len() = %d, want %d", MaxPrefixBits, got, uint64(1)<<32)
	}

	reg := new(Registry)
	if err := reg.Register("t", "t-bucket"); err != nil {
		t.Fatal(err)
	}
	_, err := New[string](nil, reg, "t", HashPrefix[string]{Bits: MaxPrefixBits + 1})
	if err == nil {
		t.Error("got no error creating an index with too wide a hash prefix")
	}
}

func TestPrefixesEnumerator(t *testing.T) {
	for bits := uint(0); bits <= 10; bits++ {
		t.Run(strconv.Itoa(int(bits)), func(t *testing.T) {
			var want []string
			for i := 0; i < 1<<bits; i++ {
				want = append(want, strconv.Itoa(i))
			}

			p := Prefixes(bits)
			got := slices.Collect(p.Keys())
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
			if uint64(len(got)) != p.Len() {
				t.Errorf("got %d keys, Len says %d", len(got), p.Len())
			}

			// Restartable.
			again := slices.Collect(p.Keys())
			if diff := cmp.Diff(got, again); diff != "" {
				t.Errorf("second iteration differs (-first +second):\n%s", diff)
			}
		})
	}
}

func TestHashPrefixImageWithinEnumerator(t *testing.T) {
	hash := bucketset.SHA2_256

	for _, bits := range []uint{1, 3, 5} {
		keys := make(map[string]bool)
		for k := range Prefixes(bits).Keys() {
			keys[k] = true
		}
		h := HashPrefix[[]byte]{Bits: bits}

		f := func(content []byte) bool {
			addr, err := hash.Sum(content)
			if err != nil {
				t.Fatal(err)
			}
			k1, err := h.DeriveKey(content, addr)
			if err != nil {
				t.Fatal(err)
			}
			k2, err := h.DeriveKey(content, addr)
			if err != nil {
				t.Fatal(err)
			}
			return k1 == k2 && keys[k1]
		}
		if err := quick.Check(f, nil); err != nil {
			t.Errorf("%d bits: %s", bits, err)
		}
	}
}

func TestFirstRune(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "sample content", want: "s"},
		{in: "More sample content", want: "M"},
		{in: "été", want: "é"},
		{in: "", wantErr: true},
		{in: "\xffabc", wantErr: true},
	}
	for i, c := range cases {
		t.Run(fmt.Sprintf("case_%02d", i+1), func(t *testing.T) {
			got, err := FirstRune(c.in)
			if c.wantErr {
				if err == nil {
					t.Errorf("got %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != c.want {
				t.Errorf("got %q, want %q", got, c.want)
			}
		})
	}
}

func TestFieldDerivationErrors(t *testing.T) {
	f := NewField(FirstRune, ASCIILetters)

	_, err := f.DeriveKey("", bucketset.Zero)
	var derr *DerivationError
	if !errors.As(err, &derr) {
		t.Fatalf("got error %v, want a DerivationError", err)
	}
	if !errors.Is(err, ErrEmptyKey) {
		t.Errorf("got error %v, want ErrEmptyKey", err)
	}

	empty := NewField(func(string) (string, error) { return "", nil }, Alphabet{"x"})
	_, err = empty.DeriveKey("anything", bucketset.Zero)
	if !errors.Is(err, ErrEmptyKey) {
		t.Errorf("got error %v, want ErrEmptyKey", err)
	}
}

func TestASCIILetters(t *testing.T) {
	keys := slices.Collect(ASCIILetters.Keys())
	if len(keys) != 52 {
		t.Errorf("got %d keys, want 52", len(keys))
	}
	seen := make(map[string]bool)
	for _, k := range keys {
		if seen[k] {
			t.Errorf("duplicate key %q", k)
		}
		seen[k] = true
	}
}

func TestParsePolicy(t *testing.T) {
	for _, p := range []Policy{BestEffort, FailFast} {
		got, err := ParsePolicy(p.String())
		if err != nil {
			t.Fatal(err)
		}
		if got != p {
			t.Errorf("got %s, want %s", got, p)
		}
	}
	if _, err := ParsePolicy("sometimes"); err == nil {
		t.Error("expected an error for an unknown policy")
	}
}
