// Package message sends, streams and annotates encrypted messages.
//
// Text messages are sealed with the session key chosen by a KeyStrategy and
// written as message documents; only ciphertext and the nonce are stored.
// The receive stream keeps a window of the newest messages, decrypts them
// as they arrive and hands viewers the whole window in chronological order
// on every change. A message that cannot be decrypted is shown as a
// placeholder and never stops the stream.
package message
