package configgen

import (
	"crypto/rand"
	"fmt"
)

// aesKeySize is the persona AES key length, matching
// generate_aes_keys_from_range_config's block_size=32.
const aesKeySize = 32

// generateAESKeys derives a fresh 32-byte key for every name, per §4.9's
// "each persona gets 32 bytes of fresh randomness".
func generateAESKeys(names []string) (map[string][]byte, error) {
	keys := make(map[string][]byte, len(names))
	for _, name := range names {
		key := make([]byte, aesKeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("configgen: generate aes key for %s: %w", name, err)
		}
		keys[name] = key
	}
	return keys, nil
}
