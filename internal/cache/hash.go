package cache

import (
	"fmt"
	"os"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMemoSize = 4096

// HashProvider computes xxhash64 content hashes. Results are memoized by
// path, size and modification time so unchanged files are not read twice.
type HashProvider struct {
	memo *lru.Cache[string, uint64]
}

// NewHashProvider creates a provider remembering up to size file hashes.
func NewHashProvider(size int) *HashProvider {
	if size <= 0 {
		size = defaultMemoSize
	}
	memo, err := lru.New[string, uint64](size)
	if err != nil {
		// Only returned for a non-positive size, which is excluded above
		panic(err)
	}
	return &HashProvider{memo: memo}
}

// Hash returns the content hash of the file at path.
func (hp *HashProvider) Hash(path string) (uint64, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return 0, err
	}

	metadataKey := fmt.Sprintf("%s:%d:%d", path, stat.ModTime().UnixNano(), stat.Size())
	if hash, ok := hp.memo.Get(metadataKey); ok {
		return hash, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	hash := xxhash.Sum64(content)
	hp.memo.Add(metadataKey, hash)
	return hash, nil
}

// HashBytes hashes data with the same function used for files.
func HashBytes(data []byte) uint64 {
	return xxhash.Sum64(data)
}
