// Package envelope implements the fixed-layout encrypted envelope used for
// sensitive fields at rest.
//
// An envelope is the concatenation of four segments:
//
//	[0, 512)    wrapped data key (opaque, produced by the key service)
//	[512, 528)  initialization vector
//	[528, 544)  authentication tag
//	[544, end)  ciphertext
//
// Payloads are sealed with AES-256-GCM using a 16-byte IV and a 16-byte tag.
// The layout is bit-exact: any consumer must reject input shorter than
// MinSize with a FormatError.
//
// Key material passed to Seal and Open is never retained. Callers own the key
// slice and should clear it with Zero as soon as the operation completes.
package envelope
