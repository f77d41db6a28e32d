// pwhash.go -- turn a plaintext password into the digest used to key the
// corpus. Grounded on app/hibp_search.cpp (SHA1 of the plaintext argument)
// and src/ntlm.cpp (UTF-16LE re-encode, then MD4).
package pwhash

import (
	"crypto/sha1"
	"unicode/utf16"

	"golang.org/x/crypto/md4"

	"github.com/opencoff/go-hibp/record"
)

// SHA1Of hashes a plaintext password the way the upstream corpus does:
// SHA-1 over the raw UTF-8 bytes.
func SHA1Of(password string) record.SHA1 {
	sum := sha1.Sum([]byte(password))
	var r record.SHA1
	copy(r.Hash[:], sum[:])
	r.Count = record.Sentinel
	return r
}

// NTLMOf hashes a plaintext password as NTLM does: re-encode to UTF-16LE,
// then MD4 over those bytes.
func NTLMOf(password string) record.NTLM {
	le := utf16LEBytes(password)
	sum := md4.New()
	sum.Write(le)
	digest := sum.Sum(nil)

	var r record.NTLM
	copy(r.Hash[:], digest)
	r.Count = record.Sentinel
	return r
}

// utf16LEBytes re-encodes a UTF-8 string as UTF-16LE bytes, matching
// utf8_to_utf16_le: each UTF-16 code unit emitted low-byte first.
func utf16LEBytes(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 0, len(units)*2)
	for _, u := range units {
		out = append(out, byte(u&0xFF), byte(u>>8))
	}
	return out
}
