package common

// WipeByteArray overwrites b with zeros. Used for passphrases once the
// sealing key has been derived. Nil slices are ignored.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
