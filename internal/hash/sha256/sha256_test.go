package sha256

import (
	"errors"
	"strings"
	"testing"
)

const helloDigest = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("hello world"))
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if got != helloDigest {
		t.Fatalf("expected %s, got %s", helloDigest, got)
	}
	streamed, err := h.HashReader(strings.NewReader("hello world"))
	if err != nil {
		t.Fatalf("HashReader() error = %v", err)
	}
	if streamed != got {
		t.Fatalf("stream digest %s differs from %s", streamed, got)
	}
}

func TestHasherTruncates(t *testing.T) {
	t.Parallel()

	h := &Hasher{Length: 12}
	got, _ := h.Hash([]byte("hello world"))
	if got != helloDigest[:12] {
		t.Fatalf("expected truncated digest, got %s", got)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestHashReaderPropagatesErrors(t *testing.T) {
	t.Parallel()

	if _, err := New().HashReader(failingReader{}); err == nil {
		t.Fatal("expected read error")
	}
}
