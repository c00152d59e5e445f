package store

import (
	"encoding/json"
	"path/filepath"
	"sync"

	"wellnest/internal/domain"
)

const keyringFilename = "keyring.json.enc"

// KeyringFileStore persists exported session keys, encrypted under a
// passphrase, in a single file under dir.
type KeyringFileStore struct {
	dir string
	mu  sync.Mutex

	// scrypt parameters; lowered in tests.
	n, r, p int
}

// NewKeyringFileStore returns a KeyringFileStore rooted at dir.
func NewKeyringFileStore(dir string) *KeyringFileStore {
	n, r, p := scryptParamsDefault()
	return &KeyringFileStore{dir: dir, n: n, r: r, p: p}
}

// SaveKeyring encrypts keys and atomically replaces the keyring file.
func (s *KeyringFileStore) SaveKeyring(passphrase string, keys map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if keys == nil {
		keys = map[string]string{}
	}
	raw, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	ct, err := sealEnvelope(keyringPurpose, passphrase, raw, s.n, s.r, s.p)
	if err != nil {
		return err
	}
	return writeFile(filepath.Join(s.dir, keyringFilename), ct, 0o600)
}

// LoadKeyring reads and decrypts the keyring. A missing file is an empty
// keyring.
func (s *KeyringFileStore) LoadKeyring(passphrase string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := readFile(filepath.Join(s.dir, keyringFilename))
	if err != nil {
		return nil, err
	}
	if b == nil {
		return map[string]string{}, nil
	}
	pt, err := openEnvelope(keyringPurpose, passphrase, b)
	if err != nil {
		return nil, err
	}
	keys := map[string]string{}
	if err := json.Unmarshal(pt, &keys); err != nil {
		return nil, domain.NewError(domain.KindInvalid, "open keyring", err)
	}
	return keys, nil
}

// Compile-time assertion that KeyringFileStore implements domain.KeyringStore.
var _ domain.KeyringStore = (*KeyringFileStore)(nil)
