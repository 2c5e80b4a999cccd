package internal

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strconv"
)

const (
	codeMin = 100000
	codeMax = 999999
)

// NewCode returns a 6-digit verification code drawn uniformly from
// 100000..999999 with crypto/rand.
func NewCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return "", err
	}
	code := strconv.FormatInt(n.Int64()+codeMin, 10)
	if len(code) != 6 {
		return "", errors.New("invalid code generation length")
	}
	return code, nil
}
