// Package crypto provides the packet cipher for the Pax BLE protocol:
// per-device key derivation from the serial number (AES-128-ECB under a
// fixed vendor key) and AES-128-OFB encryption of wire packets, which carry
// their 16-byte IV as a trailer.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

const (
	// KeySize is the length of a device key and of the vendor key.
	KeySize = 16
	// IVSize is the length of the IV trailer on every wire packet.
	IVSize = aes.BlockSize
	// SerialLength is the required length of a device serial number.
	SerialLength = 8
)

// VendorKey is the fixed AES-128 key every Pax device uses to derive its
// session key from the serial number. It is part of the device firmware and
// never changes at runtime.
var VendorKey = [KeySize]byte{
	0xf7, 0xf4, 0x8c, 0x83, 0xc3, 0x8a, 0x0a, 0x1e,
	0x5e, 0x95, 0x29, 0xea, 0x61, 0x6a, 0x26, 0x73,
}

var (
	// ErrInvalidSerialLength is returned when a serial is not exactly 8 ASCII bytes.
	ErrInvalidSerialLength = errors.New("ble/crypto: serial must be 8 ASCII characters")
	// ErrCipher wraps block cipher construction failures and bad IV sizes.
	ErrCipher = errors.New("ble/crypto: cipher error")
	// ErrDecrypt is returned for packets that cannot be decrypted.
	ErrDecrypt = errors.New("ble/crypto: decrypt error")
)

// Key is a per-device symmetric key.
type Key [KeySize]byte

// String returns the key as lowercase hex.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// DeriveKey computes the device key for serial. The serial is repeated to
// fill one AES block, which is then encrypted with VendorKey. The result is
// deterministic for a given serial.
func DeriveKey(serial string) (Key, error) {
	var key Key
	if len(serial) != SerialLength {
		return key, fmt.Errorf("%w: got %d bytes", ErrInvalidSerialLength, len(serial))
	}
	for i := 0; i < len(serial); i++ {
		if serial[i] > 0x7f {
			return key, fmt.Errorf("%w: non-ASCII byte 0x%02x at %d", ErrInvalidSerialLength, serial[i], i)
		}
	}

	block, err := aes.NewCipher(VendorKey[:])
	if err != nil {
		return key, fmt.Errorf("%w: new cipher: %v", ErrCipher, err)
	}

	var plain [aes.BlockSize]byte
	copy(plain[:SerialLength], serial)
	copy(plain[SerialLength:], serial)

	// A single block, so ECB is just one raw block encryption.
	block.Encrypt(key[:], plain[:])
	return key, nil
}

// DecryptPacket splits raw into ciphertext and its trailing IV and decrypts
// the ciphertext with AES-128-OFB.
func DecryptPacket(raw []byte, key Key) ([]byte, error) {
	if len(raw) < IVSize {
		return nil, fmt.Errorf("%w: packet is %d bytes, need at least %d", ErrDecrypt, len(raw), IVSize)
	}
	data := raw[:len(raw)-IVSize]
	iv := raw[len(raw)-IVSize:]

	stream, err := newOFB(key, iv)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	plain := make([]byte, len(data))
	stream.XORKeyStream(plain, data)
	return plain, nil
}

// EncryptPacket encrypts plain with AES-128-OFB and appends iv, producing the
// same data||iv layout DecryptPacket consumes.
func EncryptPacket(plain []byte, key Key, iv []byte) ([]byte, error) {
	if len(iv) != IVSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes, got %d", ErrCipher, IVSize, len(iv))
	}
	stream, err := newOFB(key, iv)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCipher, err)
	}
	raw := make([]byte, len(plain)+IVSize)
	stream.XORKeyStream(raw[:len(plain)], plain)
	copy(raw[len(plain):], iv)
	return raw, nil
}

// NewIV returns a random IV for an outgoing packet.
func NewIV() ([]byte, error) {
	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("%w: random IV: %v", ErrCipher, err)
	}
	return iv, nil
}

func newOFB(key Key, iv []byte) (cipher.Stream, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	return cipher.NewOFB(block, iv), nil
}
