package orders

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const (
	numberAlphabet     = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	numberSuffixLength = 5
)

// NumberGenerator returns a fresh order number for the given prefix.
type NumberGenerator func(prefix string) (string, error)

// NewNumber builds "<prefix><base36 millis>-<random>", e.g. ORD-MGW3K2Q1-7ZK4P.
func NewNumber(prefix string) (string, error) {
	return newNumberAt(prefix, time.Now())
}

func newNumberAt(prefix string, now time.Time) (string, error) {
	stamp := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
	max := big.NewInt(int64(len(numberAlphabet)))
	suffix := make([]byte, numberSuffixLength)
	for i := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		suffix[i] = numberAlphabet[n.Int64()]
	}
	return prefix + stamp + "-" + string(suffix), nil
}
