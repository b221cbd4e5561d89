package crypt

import (
	"bytes"
	"crypto/aes"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mwantia/assetloader/data"
	"golang.org/x/crypto/pbkdf2"
)

type availableSource struct {
	io.Reader
	available int
}

func (s *availableSource) Close() error {
	return nil
}

func (s *availableSource) Available() int {
	return s.available
}

func wrap(b []byte) *availableSource {
	return &availableSource{Reader: bytes.NewReader(b)}
}

// Single-iteration context keeps the tests fast; the key derivation itself is
// covered by TestContext_Key.
func fastContext() *Context {
	c := DefaultContext()
	c.Iterations = 1
	return c
}

// TestCFB8_KnownVector checks the NIST SP 800-38A CFB8-AES128 example.
func TestCFB8_KnownVector(t *testing.T) {
	key, _ := hex.DecodeString("2b7e151628aed2a6abf7158809cf4f3c")
	iv, _ := hex.DecodeString("000102030405060708090a0b0c0d0e0f")
	plaintext, _ := hex.DecodeString("6bc1bee22e409f96e93d7e117393172aae2d")
	expected, _ := hex.DecodeString("3b79424c9c0dd436bace9e0ed4586a4f32b9")

	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("NewCipher failed: %v", err)
	}

	ciphertext := make([]byte, len(plaintext))
	NewCFB8Encrypter(block, iv).XORKeyStream(ciphertext, plaintext)
	if !bytes.Equal(ciphertext, expected) {
		t.Fatalf("Expected %x, got %x", expected, ciphertext)
	}

	// Decrypt in place, in uneven chunks.
	dec := NewCFB8Decrypter(block, iv)
	dec.XORKeyStream(ciphertext[:5], ciphertext[:5])
	dec.XORKeyStream(ciphertext[5:], ciphertext[5:])
	if !bytes.Equal(ciphertext, plaintext) {
		t.Errorf("Expected %x, got %x", plaintext, ciphertext)
	}
}

func TestContext_Key(t *testing.T) {
	c := DefaultContext()

	key, err := c.Key()
	if err != nil {
		t.Fatalf("Key failed: %v", err)
	}
	if len(key) != 16 {
		t.Errorf("Expected 16 byte key, got %d", len(key))
	}

	again, _ := c.Key()
	if &key[0] != &again[0] {
		t.Error("Expected the derived key to be cached")
	}

	other := NewContext(DefaultPassword, "another salt")
	otherKey, _ := other.Key()
	if bytes.Equal(key, otherKey) {
		t.Error("Expected the salt to change the key")
	}

	bad := DefaultContext()
	bad.KeyLength = 7
	if _, err := bad.Block(); !errors.Is(err, data.ErrInvalid) {
		t.Errorf("Expected ErrInvalid for a 7 byte key, got %v", err)
	}
}

func TestContext_SaltFromPassword(t *testing.T) {
	key, err := DefaultContext().Key()
	if err != nil {
		t.Fatalf("Key failed: %v", err)
	}

	expected := pbkdf2.Key([]byte(DefaultPassword), []byte(DefaultPassword), DefaultIterations, DefaultKeyLength, sha1.New)
	if !bytes.Equal(key, expected) {
		t.Errorf("Expected the password to be used as salt, got %x", key)
	}

	// An envelope sealed with an explicit salt equal to the password opens
	// with the default context.
	explicit := NewContext(DefaultPassword, DefaultPassword)
	explicit.Iterations = 1

	var sealed bytes.Buffer
	w, err := NewWriter(&sealed, explicit, 5)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	r, err := NewReader(wrap(sealed.Bytes()), fastContext())
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("Expected hello, got %q", got)
	}
}

func TestRoundTrip(t *testing.T) {
	c := fastContext()
	payload := []byte(strings.Repeat("encrypted asset payload ", 500))

	var buf bytes.Buffer
	w, err := NewWriter(&buf, c, int64(len(payload)))
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if !bytes.HasPrefix(buf.Bytes(), []byte(DefaultMagic)) {
		t.Fatal("Expected envelope to start with the magic")
	}
	if bytes.Contains(buf.Bytes(), []byte("encrypted asset payload")) {
		t.Fatal("Expected payload to be encrypted")
	}

	size, ok, err := ReadHeader(bytes.NewReader(buf.Bytes()), c)
	if err != nil || !ok || size != int64(len(payload)) {
		t.Errorf("ReadHeader returned %d %v %v", size, ok, err)
	}

	src := wrap(buf.Bytes())
	src.available = 7
	stream, err := NewReader(src, c)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}

	if data.SizeOf(stream) != int64(len(payload)) {
		t.Errorf("Expected Size %d, got %d", len(payload), data.SizeOf(stream))
	}
	if data.AvailableOf(stream) < 7 {
		t.Errorf("Expected availability of the raw stream, got %d", data.AvailableOf(stream))
	}

	got, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("Decrypted bytes differ from the original")
	}
}

func TestNewReader_Plaintext(t *testing.T) {
	c := fastContext()

	inputs := map[string][]byte{
		"regular": []byte("just a plain text asset, not encrypted at all"),
		"short":   []byte("!@EN"),
		"empty":   {},
		"near":    []byte("!@ENC/PF_1 almost the magic"),
	}

	for name, input := range inputs {
		t.Run(name, func(tst *testing.T) {
			stream, err := NewReader(wrap(input), c)
			if err != nil {
				tst.Fatalf("NewReader failed: %v", err)
			}
			got, err := io.ReadAll(stream)
			if err != nil {
				tst.Fatalf("ReadAll failed: %v", err)
			}
			if !bytes.Equal(got, input) {
				tst.Errorf("Expected passthrough %q, got %q", input, got)
			}

			if _, ok, err := ReadHeader(bytes.NewReader(input), c); ok || err != nil {
				tst.Errorf("Expected no envelope, got %v %v", ok, err)
			}
		})
	}
}

func TestNewReader_BadEnvelope(t *testing.T) {
	c := fastContext()

	envelope := func(size int64, iv []byte) []byte {
		b := []byte(DefaultMagic)
		b = binary.BigEndian.AppendUint64(b, uint64(size))
		b = append(b, byte(len(iv)))
		return append(b, iv...)
	}

	inputs := map[string][]byte{
		"truncated size": append([]byte(DefaultMagic), 0, 0, 0),
		"missing iv":     envelope(10, nil)[:len(DefaultMagic)+8],
		"short iv":       envelope(10, make([]byte, 8)),
		"truncated iv":   envelope(10, make([]byte, 16))[:len(DefaultMagic)+8+1+4],
	}

	for name, input := range inputs {
		t.Run(name, func(tst *testing.T) {
			if _, err := NewReader(wrap(input), c); !errors.Is(err, data.ErrLoadFailure) {
				tst.Errorf("Expected ErrLoadFailure, got %v", err)
			}
		})
	}
}

func TestBatch(t *testing.T) {
	ctx := t.Context()
	c := fastContext()

	source := t.TempDir()
	encrypted := t.TempDir()
	decrypted := t.TempDir()

	mtime := time.Now().Add(-time.Hour).Truncate(time.Minute)
	files := map[string]string{
		"a.txt":         "alpha",
		"nested/b.bin":  "bravo bravo",
		"nested/deep/c": strings.Repeat("charlie", 100),
	}
	for name, content := range files {
		full := filepath.Join(source, filepath.FromSlash(name))
		os.MkdirAll(filepath.Dir(full), 0755)
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
		os.Chtimes(full, mtime, mtime)
	}

	result, err := Batch(ctx, c, Encrypt, source, encrypted, nil)
	if err != nil {
		t.Fatalf("Batch encrypt failed: %v", err)
	}
	if result.Processed != 3 || result.Skipped != 0 {
		t.Errorf("Unexpected encrypt result %+v", result)
	}

	info, err := os.Stat(filepath.Join(encrypted, "a.txt"))
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if !info.ModTime().Equal(mtime) {
		t.Errorf("Expected source mtime %v, got %v", mtime, info.ModTime())
	}

	// Unchanged sources are skipped on the next run.
	result, err = Batch(ctx, c, Encrypt, source, encrypted, nil)
	if err != nil {
		t.Fatalf("Batch encrypt failed: %v", err)
	}
	if result.Processed != 0 || result.Skipped != 3 {
		t.Errorf("Expected all files skipped, got %+v", result)
	}

	// A source modified a minute later is processed again.
	later := mtime.Add(2 * time.Minute)
	os.Chtimes(filepath.Join(source, "a.txt"), later, later)
	result, _ = Batch(ctx, c, Encrypt, source, encrypted, nil)
	if result.Processed != 1 || result.Skipped != 2 {
		t.Errorf("Expected one file reprocessed, got %+v", result)
	}

	if _, err := Batch(ctx, c, Decrypt, encrypted, decrypted, nil); err != nil {
		t.Fatalf("Batch decrypt failed: %v", err)
	}
	for name, content := range files {
		got, err := os.ReadFile(filepath.Join(decrypted, filepath.FromSlash(name)))
		if err != nil {
			t.Fatalf("ReadFile failed: %v", err)
		}
		if string(got) != content {
			t.Errorf("%s: expected %q, got %q", name, content, got)
		}
	}
}
