package crypt

import "crypto/cipher"

// cfb8 is cipher feedback mode with an 8-bit segment: every byte shifts one
// ciphertext byte into the register.
type cfb8 struct {
	block    cipher.Block
	register []byte
	out      []byte
	decrypt  bool
}

// NewCFB8Encrypter returns a CFB-8 encrypting stream. The IV must be one
// block long.
func NewCFB8Encrypter(block cipher.Block, iv []byte) cipher.Stream {
	return newCFB8(block, iv, false)
}

// NewCFB8Decrypter returns a CFB-8 decrypting stream. The IV must be one
// block long.
func NewCFB8Decrypter(block cipher.Block, iv []byte) cipher.Stream {
	return newCFB8(block, iv, true)
}

func newCFB8(block cipher.Block, iv []byte, decrypt bool) cipher.Stream {
	if len(iv) != block.BlockSize() {
		panic("crypt: IV length must equal block size")
	}

	return &cfb8{
		block:    block,
		register: append([]byte(nil), iv...),
		out:      make([]byte, block.BlockSize()),
		decrypt:  decrypt,
	}
}

func (x *cfb8) XORKeyStream(dst, src []byte) {
	if len(dst) < len(src) {
		panic("crypt: output smaller than input")
	}

	last := len(x.register) - 1
	for i := range src {
		x.block.Encrypt(x.out, x.register)

		in := src[i]
		result := in ^ x.out[0]
		dst[i] = result

		copy(x.register, x.register[1:])
		if x.decrypt {
			x.register[last] = in
		} else {
			x.register[last] = result
		}
	}
}
