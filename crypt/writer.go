package crypt

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
)

// NewWriter writes the envelope header for an asset of size bytes to dst and
// returns a writer that encrypts everything written to it. Closing the
// returned writer closes dst if it is an io.Closer.
func NewWriter(dst io.Writer, c *Context, size int64) (io.WriteCloser, error) {
	block, err := c.Block()
	if err != nil {
		return nil, err
	}

	iv := make([]byte, block.BlockSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	header := make([]byte, 0, len(c.Magic)+8+1+len(iv))
	header = append(header, c.Header()...)
	header = binary.BigEndian.AppendUint64(header, uint64(size))
	header = append(header, byte(len(iv)))
	header = append(header, iv...)

	if _, err := dst.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write envelope: %w", err)
	}

	return &cipher.StreamWriter{
		S: NewCFB8Encrypter(block, iv),
		W: dst,
	}, nil
}
