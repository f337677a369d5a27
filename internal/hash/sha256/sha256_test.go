// Package sha256 includes tests for the key helpers.
package sha256

import "testing"

// TestSumDeterministic ensures repeated hashing yields the same digest.
func TestSumDeterministic(t *testing.T) {
	t.Parallel()

	got := Sum("hello world")
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if again := Sum("hello world"); again != got {
		t.Fatalf("expected deterministic hash, got %s vs %s", got, again)
	}
}

func TestKeyPrefixesDigest(t *testing.T) {
	t.Parallel()

	url := "https://www.wanted.co.kr/wd/1"
	got := Key("raw:", url)
	if got != "raw:"+Sum(url) {
		t.Fatalf("unexpected key %s", got)
	}
	if len(got) != len("raw:")+64 {
		t.Fatalf("expected 64 hex chars after prefix, got %d", len(got)-4)
	}
	if Key("raw:", url+"?x=1") == got {
		t.Fatal("distinct urls must not collide")
	}
}
