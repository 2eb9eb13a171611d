package util

// --------------------------------------------------------------------------
// Hash Functions
// --------------------------------------------------------------------------

// ringHashSeed is the start value of RingHash.
const ringHashSeed uint64 = 1125899906842597

// RingHash maps a key onto the 64-bit hash ring.
// It is a polynomial hash (h = 31*h + b) over the key bytes with wrapping
// arithmetic, so the same key always lands on the same position on every node.
func RingHash(key string) uint64 {
	h := ringHashSeed
	for i := 0; i < len(key); i++ {
		h = 31*h + uint64(key[i])
	}
	return h
}

// HashString generates a hash value for a string with a seed
// This function uses the FNV-1a hash algorithm, which is fast and has good distribution
func HashString(s string, seed uint64) uint64 {

	// FNV-1a hash with seed incorporation
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)

	// Start with the offset combined with our seed for uniqueness
	hash := uint64(offset64) ^ seed

	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= prime64
	}

	return hash
}
