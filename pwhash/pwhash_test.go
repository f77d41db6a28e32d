package pwhash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSHA1Of(t *testing.T) {
	assert := assert.New(t)
	r := SHA1Of("password")
	// echo -n password | sha1sum
	assert.Equal("5BAA61E4C9B93F3F0682250B6CF8331B7EE68FD8", r.String()[:40])
}

func TestNTLMOfKnownVector(t *testing.T) {
	assert := assert.New(t)
	r := NTLMOf("password")
	// well-known NTLM hash of "password"
	assert.Equal("8846F7EAEE8FB117AD06BDD830B7586C", r.String()[:32])
}
