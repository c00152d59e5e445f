package store

// WithFastScrypt lowers the keyring's scrypt cost so tests run quickly.
func (s *KeyringFileStore) WithFastScrypt() *KeyringFileStore {
	s.n, s.r, s.p = 1<<10, 8, 1
	return s
}
