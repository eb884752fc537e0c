package phash

import (
	"errors"
	"fmt"
	"image"
	"math/bits"

	"github.com/corona10/goimagehash"

	"github.com/nao1215/boxhunt/internal/model"
)

// Algorithm names a perceptual hash function.
type Algorithm string

const (
	// AlgorithmPHash is the DCT based perceptual hash. It tolerates
	// resizing and re-encoding best and is the default.
	AlgorithmPHash Algorithm = "phash"

	// AlgorithmDHash compares neighbouring pixels (gradient hash).
	AlgorithmDHash Algorithm = "dhash"

	// AlgorithmAHash compares every pixel with the mean (average hash).
	AlgorithmAHash Algorithm = "ahash"
)

var (
	// ErrUnsupportedAlgorithm is returned for an unknown algorithm name.
	ErrUnsupportedAlgorithm = errors.New("unsupported hash algorithm")

	// ErrHash is returned when an image cannot be decoded or hashed.
	// Callers classify it as a corrupt image.
	ErrHash = errors.New("cannot fingerprint image")
)

// Hasher turns images into 64-bit fingerprints.
// It is stateless and safe for concurrent use.
type Hasher struct {
	algorithm Algorithm
}

// NewHasher returns a Hasher for the named algorithm.
// An empty name selects AlgorithmPHash.
func NewHasher(algorithm string) (*Hasher, error) {
	switch a := Algorithm(algorithm); a {
	case "":
		return &Hasher{algorithm: AlgorithmPHash}, nil
	case AlgorithmPHash, AlgorithmDHash, AlgorithmAHash:
		return &Hasher{algorithm: a}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
}

// Algorithm returns the configured algorithm.
func (h *Hasher) Algorithm() Algorithm {
	return h.algorithm
}

// Hash computes the fingerprint of a decoded image.
func (h *Hasher) Hash(img image.Image) (model.Fingerprint, error) {
	if img == nil || img.Bounds().Empty() {
		return 0, fmt.Errorf("%w: empty image", ErrHash)
	}

	var (
		ih  *goimagehash.ImageHash
		err error
	)
	switch h.algorithm {
	case AlgorithmDHash:
		ih, err = goimagehash.DifferenceHash(img)
	case AlgorithmAHash:
		ih, err = goimagehash.AverageHash(img)
	default:
		ih, err = goimagehash.PerceptionHash(img)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrHash, err)
	}
	return model.Fingerprint(ih.GetHash()), nil
}

// HashBytes decodes encoded image content, applies its EXIF orientation and
// computes the fingerprint.
func (h *Hasher) HashBytes(data []byte) (model.Fingerprint, error) {
	img, _, err := Decode(data)
	if err != nil {
		return 0, err
	}
	return h.Hash(img)
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b model.Fingerprint) int {
	return bits.OnesCount64(uint64(a ^ b))
}
