package solana

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

const signatureLength = 64

// ErrSignerNotRequired is returned when the transaction does not expect a
// signature from the given key.
var ErrSignerNotRequired = errors.New("signer is not a required signer of the transaction")

// SignTransaction signs a base64 serialized transaction (legacy or v0) built
// by a third party. The message is left untouched; only the signer's slot in
// the signature array is filled. Returns the signed transaction and its id,
// the base58 of the first signature.
func SignTransaction(txBase64 string, signer *Keypair) (string, string, error) {
	raw, err := base64.StdEncoding.DecodeString(txBase64)
	if err != nil {
		return "", "", fmt.Errorf("decode transaction: %w", err)
	}

	numSigs, n, err := decodeCompactU16(raw)
	if err != nil {
		return "", "", fmt.Errorf("read signature count: %w", err)
	}
	sigStart := n
	msgStart := sigStart + numSigs*signatureLength
	if numSigs == 0 || len(raw) <= msgStart {
		return "", "", fmt.Errorf("malformed transaction: %d signatures, %d bytes", numSigs, len(raw))
	}
	message := raw[msgStart:]

	keys, numRequired, err := parseMessageSigners(message)
	if err != nil {
		return "", "", err
	}

	idx := -1
	pk := signer.PublicKey()
	for i := 0; i < numRequired && i < len(keys); i++ {
		if keys[i] == pk {
			idx = i
			break
		}
	}
	if idx < 0 || idx >= numSigs {
		return "", "", ErrSignerNotRequired
	}

	sig := signer.Sign(message)
	copy(raw[sigStart+idx*signatureLength:], sig)

	txID := base58.Encode(raw[sigStart : sigStart+signatureLength])
	return base64.StdEncoding.EncodeToString(raw), txID, nil
}

// parseMessageSigners returns the static account keys and the number of
// required signatures from a serialized message.
// Layout: [version prefix] header(3) | compact-u16 key count | keys(32 each) | ...
func parseMessageSigners(message []byte) ([]PublicKey, int, error) {
	off := 0
	if len(message) > 0 && message[0]&0x80 != 0 {
		off = 1 // versioned message prefix
	}
	if len(message) < off+3 {
		return nil, 0, fmt.Errorf("message header truncated")
	}
	numRequired := int(message[off])
	off += 3

	numKeys, n, err := decodeCompactU16(message[off:])
	if err != nil {
		return nil, 0, fmt.Errorf("read account key count: %w", err)
	}
	off += n
	if len(message) < off+numKeys*32 {
		return nil, 0, fmt.Errorf("account keys truncated")
	}

	keys := make([]PublicKey, numKeys)
	for i := range keys {
		copy(keys[i][:], message[off+i*32:off+(i+1)*32])
	}
	return keys, numRequired, nil
}

// decodeCompactU16 reads Solana's shortvec length encoding.
func decodeCompactU16(b []byte) (int, int, error) {
	val := 0
	for i := 0; i < 3; i++ {
		if i >= len(b) {
			return 0, 0, fmt.Errorf("compact-u16 truncated")
		}
		elem := int(b[i])
		val |= (elem & 0x7f) << (7 * i)
		if elem&0x80 == 0 {
			return val, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("compact-u16 overflow")
}
