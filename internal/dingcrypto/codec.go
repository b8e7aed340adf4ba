// Package dingcrypto implements the DingTalk callback crypto scheme:
// AES-256-CBC payload encryption and the SHA-1 sorted-tuple signature used to
// authenticate webhook callbacks and sign acknowledgments.
package dingcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ruicore/dingbridge/domain"
	"github.com/ruicore/dingbridge/errors"
)

const (
	blockSize  = 32
	nonceChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Codec holds the shared callback credentials: the console-configured token,
// the AES key, and the tenant key (suite key for third-party apps) that every
// payload must echo back.
type Codec struct {
	token  string
	key    string
	aesKey []byte
}

// NewCodec decodes the 43-character EncodingAESKey into the 32 raw key bytes.
// The base64 value is stored without padding; one '=' restores it.
func NewCodec(token, encodingAESKey, key string) (*Codec, error) {
	aesKey, err := base64.StdEncoding.DecodeString(encodingAESKey + "=")
	if err != nil {
		return nil, fmt.Errorf("decode encoding aes key: %w", err)
	}
	if len(aesKey) != blockSize {
		return nil, fmt.Errorf("encoding aes key decodes to %d bytes, want %d", len(aesKey), blockSize)
	}
	return &Codec{token: token, key: key, aesKey: aesKey}, nil
}

// Signature computes the callback signature: the four strings are sorted
// lexicographically, concatenated without delimiter, and SHA-1 hashed.
// Sorting makes the signature invariant to the order the inputs arrive in.
func (c *Codec) Signature(nonce, timestamp, ciphertext string) string {
	parts := []string{nonce, timestamp, c.token, ciphertext}
	sort.Strings(parts)
	sum := sha1.Sum([]byte(strings.Join(parts, "")))
	return hex.EncodeToString(sum[:])
}

// Decrypt verifies the supplied signature and recovers the plaintext message.
// The signature is checked before any decryption work; a mismatch never
// reaches the cipher.
func (c *Codec) Decrypt(signature, timestamp, nonce, ciphertextB64 string) (string, error) {
	expected := c.Signature(nonce, timestamp, ciphertextB64)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return "", errors.NewSignatureMismatch("callback signature check failed")
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", errors.NewPaddingError("ciphertext is not valid base64")
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", errors.NewPaddingError("ciphertext length is not a block multiple")
	}

	block, err := aes.NewCipher(c.aesKey)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	plain := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, c.aesKey[:aes.BlockSize]).CryptBlocks(plain, raw)

	plain, err = stripPadding(plain)
	if err != nil {
		return "", err
	}

	// Layout: rand16 | int32be length | message | tenant key.
	if len(plain) < 20 {
		return "", errors.NewPaddingError("decrypted payload too short")
	}
	msgLen := int(int32(binary.BigEndian.Uint32(plain[16:20])))
	if msgLen < 0 || 20+msgLen > len(plain) {
		return "", errors.NewPaddingError("decrypted payload length field out of range")
	}

	if string(plain[20+msgLen:]) != c.key {
		return "", errors.NewTenantMismatch("callback payload echoes a different tenant key")
	}
	return string(plain[20 : 20+msgLen]), nil
}

// Encrypt builds the padded block layout and encrypts it. The length field is
// the UTF-8 byte length of the plaintext; the Python counterpart measured
// characters, which diverges on multi-byte text and is deliberately not
// reproduced here.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	buf := make([]byte, 0, 20+len(plaintext)+len(c.key)+blockSize)
	buf = append(buf, []byte(RandomKey(16))...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(plaintext)))
	buf = append(buf, plaintext...)
	buf = append(buf, c.key...)
	buf = pad(buf)

	block, err := aes.NewCipher(c.aesKey)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	out := make([]byte, len(buf))
	cipher.NewCBCEncrypter(block, c.aesKey[:aes.BlockSize]).CryptBlocks(out, buf)

	return base64.StdEncoding.EncodeToString(out), nil
}

// SignOutbound encrypts the plaintext and wraps it in a signed acknowledgment
// envelope with a fresh nonce and the current Unix timestamp.
func (c *Codec) SignOutbound(plaintext string) (*domain.AckEnvelope, error) {
	encrypted, err := c.Encrypt(plaintext)
	if err != nil {
		return nil, err
	}
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	nonce := RandomKey(16)
	return &domain.AckEnvelope{
		MsgSignature: c.Signature(nonce, timestamp, encrypted),
		Encrypt:      encrypted,
		TimeStamp:    timestamp,
		Nonce:        nonce,
	}, nil
}

// pad applies PKCS#7 padding to a 32-byte boundary. A block-aligned input
// still receives a full block of padding, so the pad value is always in [1,32].
func pad(b []byte) []byte {
	n := blockSize - len(b)%blockSize
	for i := 0; i < n; i++ {
		b = append(b, byte(n))
	}
	return b
}

func stripPadding(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, errors.NewPaddingError("empty decrypted payload")
	}
	n := int(b[len(b)-1])
	if n < 1 || n > blockSize || n > len(b) {
		return nil, errors.NewPaddingError("input is not padded or padding is corrupt")
	}
	return b[:len(b)-n], nil
}

// RandomKey returns a random alphanumeric string of the given length. Used
// for nonces and the leading random block; collision avoidance across the
// signature window is all that is required of it.
func RandomKey(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = nonceChars[rand.IntN(len(nonceChars))]
	}
	return string(b)
}
