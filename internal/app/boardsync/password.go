package boardsync

import (
	"crypto/rand"
	"strings"
)

const (
	generatedPasswordLength = 16
	passwordCharset         = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!#%+"
)

// randomPassword returns a fixed-length credential for materialized users.
// Nobody logs in with it; accounts authenticate through upstream SSO.
func randomPassword() string {
	buf := make([]byte, generatedPasswordLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(err)
	}
	var b strings.Builder
	for _, c := range buf {
		b.WriteByte(passwordCharset[int(c)%len(passwordCharset)])
	}
	return b.String()
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
