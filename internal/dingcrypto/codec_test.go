package dingcrypto

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerrors "github.com/ruicore/dingbridge/errors"
)

func testCodec(t *testing.T) *Codec {
	t.Helper()

	rawKey := []byte("0123456789abcdef0123456789abcdef")
	encodingKey := strings.TrimSuffix(base64.StdEncoding.EncodeToString(rawKey), "=")
	require.Len(t, encodingKey, 43)

	codec, err := NewCodec("test_callback_token_0123456789abcdef", encodingKey, "suite_key_test")
	require.NoError(t, err)
	return codec
}

func TestNewCodecRejectsBadKey(t *testing.T) {
	_, err := NewCodec("token", "not-43-chars", "key")
	require.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	codec := testCodec(t)

	plaintexts := []string{
		"",
		"success",
		strings.Repeat("a", 31),
		strings.Repeat("b", 32), // lands exactly on a block boundary
		strings.Repeat("c", 1000),
		`{"EventType":"CHECK_URL"}`,
		"你好，钉钉 — multi-byte text",
	}

	for _, want := range plaintexts {
		env, err := codec.SignOutbound(want)
		require.NoError(t, err)

		got, err := codec.Decrypt(env.MsgSignature, env.TimeStamp, env.Nonce, env.Encrypt)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestSignatureOrderInvariant(t *testing.T) {
	codec := testCodec(t)

	env, err := codec.SignOutbound("success")
	require.NoError(t, err)

	// The signature sorts its inputs, so swapping nonce and timestamp at the
	// call site must still verify.
	assert.Equal(t,
		codec.Signature(env.Nonce, env.TimeStamp, env.Encrypt),
		codec.Signature(env.TimeStamp, env.Nonce, env.Encrypt),
	)
}

func TestDecryptSignatureMismatch(t *testing.T) {
	codec := testCodec(t)

	env, err := codec.SignOutbound("success")
	require.NoError(t, err)

	_, err = codec.Decrypt("0000000000000000000000000000000000000000", env.TimeStamp, env.Nonce, env.Encrypt)
	assert.ErrorIs(t, err, gwerrors.ErrSignatureMismatch)
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	codec := testCodec(t)

	env, err := codec.SignOutbound("a payload long enough to span several aes blocks for the tamper check")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(env.Encrypt)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x01 // corrupts the final block and thus the padding or tenant key
	tampered := base64.StdEncoding.EncodeToString(raw)

	sig := codec.Signature(env.Nonce, env.TimeStamp, tampered)
	_, err = codec.Decrypt(sig, env.TimeStamp, env.Nonce, tampered)
	require.Error(t, err)
	tamperDetected := strings.Contains(err.Error(), gwerrors.KindPaddingError) ||
		strings.Contains(err.Error(), gwerrors.KindTenantMismatch)
	assert.True(t, tamperDetected, "tampering must surface as padding or tenant error, got %v", err)
}

func TestDecryptWrongTenantKey(t *testing.T) {
	codec := testCodec(t)

	rawKey := []byte("0123456789abcdef0123456789abcdef")
	encodingKey := strings.TrimSuffix(base64.StdEncoding.EncodeToString(rawKey), "=")
	other, err := NewCodec("test_callback_token_0123456789abcdef", encodingKey, "another_suite")
	require.NoError(t, err)

	env, err := other.SignOutbound("success")
	require.NoError(t, err)

	_, err = codec.Decrypt(env.MsgSignature, env.TimeStamp, env.Nonce, env.Encrypt)
	assert.ErrorIs(t, err, gwerrors.ErrTenantMismatch)
}

func TestPaddingFullBlockOnAlignedInput(t *testing.T) {
	// 16 random bytes + 4 length bytes + 3 message bytes + 9 key bytes = 32.
	in := make([]byte, 32)
	padded := pad(in)
	assert.Len(t, padded, 64)
	for _, b := range padded[32:] {
		assert.Equal(t, byte(32), b)
	}

	stripped, err := stripPadding(padded)
	require.NoError(t, err)
	assert.Len(t, stripped, 32)
}

func TestStripPaddingRejectsCorruptPad(t *testing.T) {
	in := append(make([]byte, 31), 0x40) // pad value 64 > block size
	_, err := stripPadding(in)
	assert.ErrorIs(t, err, gwerrors.ErrPaddingError)

	_, err = stripPadding(append(make([]byte, 31), 0x00))
	assert.ErrorIs(t, err, gwerrors.ErrPaddingError)
}

func TestRandomKey(t *testing.T) {
	k := RandomKey(16)
	assert.Len(t, k, 16)
	for _, c := range k {
		assert.Contains(t, nonceChars, string(c))
	}
}
