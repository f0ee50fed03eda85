// Package codec provides canonical JSON and content hashing.
//
// Canonical JSON (RFC 8785 style) is used wherever bytes must be stable:
// journal payload and state columns, event IDs, and golden traces.
//
//   - Object keys sorted by UTF-16 code units
//   - No insignificant whitespace
//   - No HTML escaping; U+2028/U+2029 are written literally
//   - Strings NFC-normalized
//   - Floats rejected; integers only
//
// Content IDs are SHA-256 over domain + 0x00 + canonical bytes.
package codec
