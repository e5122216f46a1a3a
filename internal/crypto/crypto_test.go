package crypto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known test key (hardhat account #0).
const (
	testKey     = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func TestRequestMessage(t *testing.T) {
	msg := RequestMessage("put", "/api/admin/enabled", 1700000000, []byte(`{"enabled":false}`))
	assert.Equal(t, "PUT /api/admin/enabled\n1700000000\n{\"enabled\":false}", string(msg))
}

func TestRequestDigest(t *testing.T) {
	a := RequestDigest("GET", "/api/admin/audit?limit=5", 1700000000, nil)
	assert.Equal(t, a, RequestDigest("get", "/api/admin/audit?limit=5", 1700000000, nil))
	assert.NotEqual(t, a, RequestDigest("GET", "/api/admin/audit?limit=500", 1700000000, nil))
	assert.NotEqual(t, a, RequestDigest("GET", "/api/admin/audit?limit=5", 1700000001, nil))
}

func TestSignAndRecover(t *testing.T) {
	s, err := NewSigner("0x" + testKey)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testAddress), s.Address())

	sig, err := s.SignMessage([]byte("hello"))
	require.NoError(t, err)
	assert.Len(t, sig, 2+65*2)

	got, err := RecoverAddress([]byte("hello"), sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), got)

	other, err := RecoverAddress([]byte("hellO"), sig)
	require.NoError(t, err)
	assert.NotEqual(t, s.Address(), other)
}

func TestRecoverAddress_Malformed(t *testing.T) {
	_, err := RecoverAddress([]byte("x"), "0x1234")
	assert.ErrorIs(t, err, ErrBadSignature)

	_, err = RecoverAddress([]byte("x"), "zz")
	assert.ErrorIs(t, err, ErrBadSignature)

	bad := "0x" + strings.Repeat("11", 64) + "05"
	_, err = RecoverAddress([]byte("x"), bad)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestSignRequestVerifies(t *testing.T) {
	s, err := NewSigner(testKey)
	require.NoError(t, err)

	at := time.Unix(1700000000, 0)
	body := []byte(`{"duration":"1m"}`)
	headers, err := s.SignRequest("PUT", "/api/admin/cache-duration", body, at)
	require.NoError(t, err)
	assert.Equal(t, s.Address().Hex(), headers[HeaderCaller])
	assert.Equal(t, "1700000000", headers[HeaderTimestamp])

	sig := headers[HeaderSignature]
	require.NoError(t, VerifyRequest(s.Address(), "PUT", "/api/admin/cache-duration", 1700000000, body, sig))

	err = VerifyRequest(s.Address(), "PUT", "/api/admin/enabled", 1700000000, body, sig)
	assert.ErrorIs(t, err, ErrBadSignature, "path is covered")

	err = VerifyRequest(s.Address(), "PUT", "/api/admin/cache-duration?force=1", 1700000000, body, sig)
	assert.ErrorIs(t, err, ErrBadSignature, "query string is covered")

	err = VerifyRequest(s.Address(), "PUT", "/api/admin/cache-duration", 1700000001, body, sig)
	assert.ErrorIs(t, err, ErrBadSignature, "timestamp is covered")

	err = VerifyRequest(common.HexToAddress("0x01"), "PUT", "/api/admin/cache-duration", 1700000000, body, sig)
	assert.ErrorIs(t, err, ErrBadSignature, "claimed address must match")
}

func TestKeyFileRoundTrip(t *testing.T) {
	data, err := EncryptKey("0x"+testKey, "correct horse")
	require.NoError(t, err)

	key, err := DecryptKey(data, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, testKey, key)

	_, err = DecryptKey(data, "wrong")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "admin.key.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	s, err := LoadSigner(KeySource{KeyFile: path, Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testAddress), s.Address())
}

func TestEncryptKey_Validation(t *testing.T) {
	_, err := EncryptKey(testKey, "")
	assert.Error(t, err)
	_, err = EncryptKey("abcd", "pw")
	assert.Error(t, err)
	_, err = EncryptKey("not-hex", "pw")
	assert.Error(t, err)
}

func TestLoadSigner(t *testing.T) {
	s, err := LoadSigner(KeySource{RawPrivateKey: testKey, KeyFile: "/does/not/exist"})
	require.NoError(t, err, "raw key wins")
	assert.Equal(t, common.HexToAddress(testAddress), s.Address())

	_, err = LoadSigner(KeySource{})
	assert.Error(t, err)

	_, err = LoadSigner(KeySource{KeyFile: filepath.Join(t.TempDir(), "missing"), Password: "pw"})
	assert.Error(t, err)
}
