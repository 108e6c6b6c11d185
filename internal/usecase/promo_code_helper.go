package usecase

import (
	"crypto/rand"
	"io"
)

// Codes avoid the look-alike characters 0/O and 1/I.
const promoCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const promoCodeLength = 8

func generatePromoCode() (string, error) {
	buf := make([]byte, promoCodeLength)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = promoCodeAlphabet[int(buf[i])%len(promoCodeAlphabet)]
	}
	return string(buf), nil
}
