package utils

import (
	"crypto/rand"
)

// CodeCharset is the alphabet of ticket and referral codes.
const CodeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateCode returns an n character uppercase alphanumeric code.
func GenerateCode(n int) (string, error) {
	// Largest multiple of the charset size that fits in a byte; bytes above it
	// are dropped so every character is equally likely.
	const limit = 256 - 256%len(CodeCharset)

	code := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(code) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			code = append(code, CodeCharset[int(b)%len(CodeCharset)])
			if len(code) == n {
				break
			}
		}
	}
	return string(code), nil
}
