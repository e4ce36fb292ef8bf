package app

import (
	"crypto/rand"
	"math/big"
)

// DefaultCodeLength is the number of characters in a room code.
const DefaultCodeLength = 6

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeGenerator produces candidate room codes. Uniqueness is enforced by the store.
type CodeGenerator interface {
	NewCode() (string, error)
}

type randomCodes struct {
	length int
}

// NewCodeGenerator returns a generator of uppercase alphanumeric codes.
func NewCodeGenerator(length int) CodeGenerator {
	if length <= 0 {
		length = DefaultCodeLength
	}
	return randomCodes{length: length}
}

func (g randomCodes) NewCode() (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	b := make([]byte, g.length)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b), nil
}
