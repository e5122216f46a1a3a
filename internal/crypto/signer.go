package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Header names carried by signed admin requests.
const (
	HeaderCaller    = "X-Caller-Address"
	HeaderTimestamp = "X-Timestamp"
	HeaderSignature = "X-Signature"
)

// ErrBadSignature is returned when a signature is malformed or does not
// recover to the claimed address.
var ErrBadSignature = errors.New("crypto: bad signature")

// RequestMessage builds the text an admin signs for one HTTP request:
//
//	METHOD TARGET\nTIMESTAMP\nBODY
//
// TARGET is the request URI as sent: the escaped path plus any query string.
func RequestMessage(method, target string, unixTS int64, body []byte) []byte {
	var b strings.Builder
	b.Grow(len(method) + len(target) + len(body) + 24)
	b.WriteString(strings.ToUpper(method))
	b.WriteByte(' ')
	b.WriteString(target)
	b.WriteByte('\n')
	b.WriteString(strconv.FormatInt(unixTS, 10))
	b.WriteByte('\n')
	b.Write(body)
	return []byte(b.String())
}

// RequestDigest identifies one signed request independently of the
// signature encoding.
func RequestDigest(method, target string, unixTS int64, body []byte) common.Hash {
	return ethcrypto.Keccak256Hash(RequestMessage(method, target, unixTS, body))
}

// Signer produces EIP-191 personal-sign signatures.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return &Signer{privateKey: pk, address: ethcrypto.PubkeyToAddress(pk.PublicKey)}, nil
}

// Address returns the Ethereum address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignMessage signs msg with the "\x19Ethereum Signed Message:\n" prefix and
// returns a 0x-prefixed 65-byte signature with v in {27,28}.
func (s *Signer) SignMessage(msg []byte) (string, error) {
	sig, err := ethcrypto.Sign(accounts.TextHash(msg), s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

// SignRequest returns the three admin headers for a request issued at.
// target is the request URI, including the query string if any.
func (s *Signer) SignRequest(method, target string, body []byte, at time.Time) (map[string]string, error) {
	ts := at.Unix()
	sig, err := s.SignMessage(RequestMessage(method, target, ts, body))
	if err != nil {
		return nil, err
	}
	return map[string]string{
		HeaderCaller:    s.address.Hex(),
		HeaderTimestamp: strconv.FormatInt(ts, 10),
		HeaderSignature: sig,
	}, nil
}

// RecoverAddress returns the address that personal-signed msg. Both v
// conventions ({0,1} and {27,28}) are accepted.
func RecoverAddress(msg []byte, signatureHex string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(signatureHex, "0x"))
	if err != nil || len(sig) != ethcrypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: malformed", ErrBadSignature)
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return common.Address{}, fmt.Errorf("%w: invalid recovery id", ErrBadSignature)
	}

	pub, err := ethcrypto.SigToPub(accounts.TextHash(msg), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// VerifyRequest checks that signatureHex over the request recovers to claimed.
func VerifyRequest(claimed common.Address, method, target string, unixTS int64, body []byte, signatureHex string) error {
	got, err := RecoverAddress(RequestMessage(method, target, unixTS, body), signatureHex)
	if err != nil {
		return err
	}
	if got != claimed {
		return fmt.Errorf("%w: signed by %s, claimed %s", ErrBadSignature, got.Hex(), claimed.Hex())
	}
	return nil
}
