package crypto

import "github.com/awnumar/memguard"

// Wipe overwrites b with random bytes and then zeroes it.
func Wipe(b []byte) {
	if len(b) == 0 {
		return
	}
	memguard.ScrambleBytes(b)
	memguard.WipeBytes(b)
}
