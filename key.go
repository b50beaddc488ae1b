package watermark

import (
	"crypto/hkdf"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
)

const keyInfo = "DCT-Watermark-Block-Order-V1"

var ErrEmptyKey = errors.New("empty watermark key")

func deriveSeed(secret, salt []byte) (int64, error) {
	if len(secret) == 0 {
		return 0, ErrEmptyKey
	}
	key, err := hkdf.Key(sha256.New, secret, salt, keyInfo, 8)
	if err != nil {
		return 0, fmt.Errorf("derive key: %w", err)
	}
	return int64(binary.BigEndian.Uint64(key)), nil
}

func randomSeed() (int64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("random key: %w", err)
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}
