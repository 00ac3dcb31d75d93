package tests

import (
	"bytes"
	"crypto/rand"
	"testing"

	cr "vaultcraft/internal/crypto"
)

func FuzzSealOpen(f *testing.F) {
	f.Add([]byte("hello"), []byte("aad"))
	f.Add([]byte{}, []byte{})
	f.Fuzz(func(t *testing.T, pt, aad []byte) {
		key := make([]byte, cr.KeySize)
		rand.Read(key)
		ct, err := cr.Seal(key, pt, aad)
		if err != nil {
			t.Skip()
		}
		got, err := cr.Open(key, ct, aad)
		if err != nil {
			t.Fatalf("open err: %v", err)
		}
		if !bytes.Equal(pt, got) {
			t.Fatalf("roundtrip mismatch")
		}
	})
}

func FuzzOpenHostileInput(f *testing.F) {
	f.Add([]byte("short"))
	f.Add(make([]byte, 64))
	f.Fuzz(func(t *testing.T, ct []byte) {
		key := make([]byte, cr.KeySize)
		rand.Read(key)
		// A random key never opens arbitrary input; the only acceptable
		// outcomes are ErrAuth or (astronomically unlikely) success.
		if _, err := cr.Open(key, ct, nil); err != nil && err != cr.ErrAuth {
			t.Fatalf("unexpected error kind: %v", err)
		}
	})
}
