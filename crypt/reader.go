package crypt

import (
	"bufio"
	"bytes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"io"

	"github.com/mwantia/assetloader/data"
	errs "github.com/mwantia/assetloader/data/errors"
)

// plain is a stream without an envelope. Peeked bytes are served from the
// buffer first.
type plain struct {
	data.Filter
	buffered *bufio.Reader
}

func (p *plain) Read(b []byte) (int, error) {
	return p.buffered.Read(b)
}

func (p *plain) Available() int {
	return p.buffered.Buffered() + data.AvailableOf(p.Source)
}

// decrypting decrypts the body of an envelope as it is read.
type decrypting struct {
	data.Filter
	buffered *bufio.Reader
	stream   cipher.Stream
	size     int64
}

func (d *decrypting) Read(b []byte) (int, error) {
	n, err := d.buffered.Read(b)
	if n > 0 {
		d.stream.XORKeyStream(b[:n], b[:n])
	}
	return n, err
}

// Size is the original size recorded in the envelope.
func (d *decrypting) Size() int64 {
	return d.size
}

// Available reports what the raw stream can deliver without blocking. CFB-8
// decrypts byte for byte, so raw and plain availability are the same.
func (d *decrypting) Available() int {
	return d.buffered.Buffered() + data.AvailableOf(d.Source)
}

// NewReader returns a stream that removes the envelope from src. A stream
// that does not start with the context's magic, including one shorter than
// the magic, is returned unchanged. src is not closed on error.
func NewReader(src data.Stream, c *Context) (data.Stream, error) {
	header := c.Header()
	buffered := bufio.NewReaderSize(src, max(4096, len(header)+1+8+255))

	peek, err := buffered.Peek(len(header))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, errs.LoadFailed(err, "failed to read envelope")
	}
	if err != nil || !bytes.Equal(peek, header) {
		return &plain{
			Filter: data.Filter{
				Source: src,
			},
			buffered: buffered,
		}, nil
	}

	if _, err := buffered.Discard(len(header)); err != nil {
		return nil, errs.LoadFailed(err, "failed to read envelope")
	}

	size, iv, err := readEnvelope(buffered)
	if err != nil {
		return nil, err
	}

	block, err := c.Block()
	if err != nil {
		return nil, errs.LoadFailed(err, "failed to derive key")
	}
	if len(iv) != block.BlockSize() {
		return nil, errs.LoadFailed(nil, "IV length %d does not match block size %d", len(iv), block.BlockSize())
	}

	return &decrypting{
		Filter: data.Filter{
			Source: src,
		},
		buffered: buffered,
		stream:   NewCFB8Decrypter(block, iv),
		size:     size,
	}, nil
}

// readEnvelope reads the size and IV that follow the magic.
func readEnvelope(r io.Reader) (int64, []byte, error) {
	var size int64
	if err := binary.Read(r, binary.BigEndian, &size); err != nil {
		return 0, nil, errs.LoadFailed(err, "truncated envelope size")
	}

	var ivLength [1]byte
	if _, err := io.ReadFull(r, ivLength[:]); err != nil {
		return 0, nil, errs.LoadFailed(err, "truncated envelope IV length")
	}

	iv := make([]byte, ivLength[0])
	if _, err := io.ReadFull(r, iv); err != nil {
		return 0, nil, errs.LoadFailed(err, "truncated envelope IV")
	}

	return size, iv, nil
}

// ReadHeader reports whether r starts with an envelope and, if so, the
// original size it records.
func ReadHeader(r io.Reader, c *Context) (int64, bool, error) {
	header := c.Header()
	magic := make([]byte, len(header))

	n, err := io.ReadFull(r, magic)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return data.UnknownSize, false, nil
	}
	if err != nil {
		return data.UnknownSize, false, err
	}
	if !bytes.Equal(magic[:n], header) {
		return data.UnknownSize, false, nil
	}

	size, _, err := readEnvelope(r)
	if err != nil {
		return data.UnknownSize, false, err
	}

	return size, true, nil
}
