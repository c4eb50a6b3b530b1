package util

import (
	"crypto/rand"
	"encoding/hex"
)

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// TempRegister returns a unique placeholder register number. A document is
// inserted under this value first so the database can assign its id, then
// patched with the real register number derived from that id.
func TempRegister() string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	return "TEMP-" + hex.EncodeToString(bytes)
}
