package wire

import (
	"testing"
	"time"

	"github.com/newtron-network/karabo/pkg/hash"
	"github.com/newtron-network/karabo/pkg/schema"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	h := hash.New()
	h.Set("name", "dev1")
	h.Set("speed", 3.5)
	h.Set("count", int64(42))
	h.Set("enabled", true)
	h.Set("raw", []byte{1, 2, 3})
	h.Set("stamp", time.Now().UTC())
	h.Set("nested.leaf", "inner")
	_ = h.SetAttribute("speed", "unit", "m/s")

	data := Encode(h)
	back, err := Decode(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !h.DeepEqual(back) {
		t.Fatalf("round trip did not preserve hash: got %+v", back)
	}
}

func TestEncodePreservesOrder(t *testing.T) {
	h := hash.New()
	h.Set("z", 1)
	h.Set("a", 2)
	h.Set("m", 3)

	back, err := Decode(Encode(h))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	want := []string{"z", "a", "m"}
	got := back.Keys()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestFingerprintStable(t *testing.T) {
	h1 := hash.New()
	h1.Set("a", 1)
	h2 := hash.New()
	h2.Set("a", 1)

	if Fingerprint(h1) != Fingerprint(h2) {
		t.Fatalf("expected equal fingerprints for structurally equal hashes")
	}

	h2.Set("a", 2)
	if Fingerprint(h1) == Fingerprint(h2) {
		t.Fatalf("expected different fingerprints for different values")
	}
}

func TestEncodeSchemaXML(t *testing.T) {
	s := schema.New("TestDevice")
	s.Key("speed").Leaf(schema.ValueFloat).DisplayedName("Speed").Reconfigurable().Unit("m/s")

	out, err := EncodeSchemaXML(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) == 0 {
		t.Fatalf("expected non-empty xml")
	}
}
