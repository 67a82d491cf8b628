package domain

import (
	"crypto/rand"
	"strings"
)

const (
	RoomCodeLength   = 6
	roomCodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// NewRoomCode returns a random 6-character upper-case base-36 code. Collisions are
// not checked; each session is addressed independently.
func NewRoomCode() string {
	buf := make([]byte, RoomCodeLength)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	out := make([]byte, RoomCodeLength)
	for i := range out {
		out[i] = roomCodeAlphabet[int(buf[i])%len(roomCodeAlphabet)]
	}
	return string(out)
}

// NormalizeRoomCode trims and upper-cases a user-entered code and rejects anything
// that is not exactly 6 base-36 characters.
func NormalizeRoomCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != RoomCodeLength {
		return "", ErrInvalidRoomCode
	}
	for _, r := range code {
		if !strings.ContainsRune(roomCodeAlphabet, r) {
			return "", ErrInvalidRoomCode
		}
	}
	return code, nil
}
