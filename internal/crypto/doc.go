// Package crypto is the message codec used by wellnest.
//
// Contents
//
//   - 256-bit key generation, export and import (GenerateKey, ExportKey,
//     ImportKey)
//   - Authenticated encryption of text and files with ChaCha20-Poly1305
//     and a fresh random 96-bit nonce per call (Encrypt, Decrypt,
//     EncryptFile, DecryptFile)
//   - Cheap shape checks before a decrypt is attempted (ValidateParams)
//   - Short key fingerprints for out-of-band verification (FingerprintKey)
//
// # Errors
//
// Every decrypt failure is reported as domain.ErrDecryption. Wrong keys,
// corrupted ciphertext and tampering are deliberately indistinguishable.
package crypto
