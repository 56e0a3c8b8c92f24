// Package fingerprint renders argument trees as canonical JSON byte strings:
// keys sorted by code point, no insignificant whitespace, integral floats
// collapsed. Equal fingerprints identify equal task instances.
package fingerprint
