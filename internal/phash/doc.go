// Package phash computes perceptual fingerprints of images.
//
// A fingerprint is a 64-bit value that stays nearly the same when an image
// is resized, re-encoded or slightly edited. Two images are compared by the
// Hamming distance between their fingerprints. Decoding honors the EXIF
// Orientation tag before hashing.
package phash
