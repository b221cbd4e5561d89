package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"fmt"
	"sync"

	"github.com/mwantia/assetloader/data"
	"golang.org/x/crypto/pbkdf2"
)

const (
	DefaultMagic      = "!@ENC/PF_0"
	DefaultPassword   = "password123?"
	DefaultSalt       = "12345678"
	DefaultIterations = 65536
	DefaultKeyLength  = 16
)

// Context holds the parameters of the envelope and derives the AES key from
// them. The key is derived once, on first use.
type Context struct {
	Magic      string
	Password   string
	Salt       string
	Iterations int
	KeyLength  int

	// SaltFromPassword derives the key with the password bytes as salt and
	// ignores Salt. Published asset archives are encrypted this way.
	SaltFromPassword bool

	once  sync.Once
	key   []byte
	block cipher.Block
	err   error
}

// DefaultContext returns the context that reads the published assets.
func DefaultContext() *Context {
	c := NewContext(DefaultPassword, DefaultSalt)
	c.SaltFromPassword = true
	return c
}

// NewContext returns a context with the default magic and key parameters.
func NewContext(password, salt string) *Context {
	return &Context{
		Magic:      DefaultMagic,
		Password:   password,
		Salt:       salt,
		Iterations: DefaultIterations,
		KeyLength:  DefaultKeyLength,
	}
}

// Header returns the magic bytes that mark an encrypted stream.
func (c *Context) Header() []byte {
	return []byte(c.Magic)
}

// Key returns the PBKDF2-HMAC-SHA1 key.
func (c *Context) Key() ([]byte, error) {
	c.derive()
	return c.key, c.err
}

// Block returns the AES cipher for the derived key.
func (c *Context) Block() (cipher.Block, error) {
	c.derive()
	return c.block, c.err
}

func (c *Context) derive() {
	c.once.Do(func() {
		if c.Magic == "" || len(c.Magic) > 255 {
			c.err = fmt.Errorf("%w: magic must be 1 to 255 bytes", data.ErrInvalid)
			return
		}
		if c.Iterations <= 0 {
			c.err = fmt.Errorf("%w: iterations must be positive", data.ErrInvalid)
			return
		}

		salt := []byte(c.Salt)
		if c.SaltFromPassword {
			salt = []byte(c.Password)
		}

		c.key = pbkdf2.Key([]byte(c.Password), salt, c.Iterations, c.KeyLength, sha1.New)
		c.block, c.err = aes.NewCipher(c.key)
		if c.err != nil {
			c.err = fmt.Errorf("%w: %w", data.ErrInvalid, c.err)
		}
	})
}
