// Package checksum computes the digest sidecar files Maven repositories expect
// next to every uploaded file.
package checksum

import (
	"crypto/md5"  //nolint:gosec // required by the Maven repository layout
	"crypto/sha1" //nolint:gosec // required by the Maven repository layout
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"git.home.luguber.info/inful/relpub/internal/config"
)

// Digests maps an algorithm to the lowercase hex digest.
type Digests map[config.ChecksumAlgorithm]string

// Extension returns the sidecar suffix for an algorithm, e.g. "sha1".
func Extension(algo config.ChecksumAlgorithm) string { return string(algo) }

func newHash(algo config.ChecksumAlgorithm) (hash.Hash, error) {
	switch algo {
	case config.ChecksumMD5:
		return md5.New(), nil //nolint:gosec
	case config.ChecksumSHA1:
		return sha1.New(), nil //nolint:gosec
	case config.ChecksumSHA256:
		return sha256.New(), nil
	case config.ChecksumSHA512:
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("unsupported checksum algorithm %q", algo)
	}
}

// Compute reads r once and returns a digest per algorithm.
func Compute(r io.Reader, algos ...config.ChecksumAlgorithm) (Digests, error) {
	hashes := make(map[config.ChecksumAlgorithm]hash.Hash, len(algos))
	writers := make([]io.Writer, 0, len(algos))
	for _, algo := range algos {
		if _, dup := hashes[algo]; dup {
			continue
		}
		h, err := newHash(algo)
		if err != nil {
			return nil, err
		}
		hashes[algo] = h
		writers = append(writers, h)
	}
	if _, err := io.Copy(io.MultiWriter(writers...), r); err != nil {
		return nil, fmt.Errorf("checksum: %w", err)
	}
	out := make(Digests, len(hashes))
	for algo, h := range hashes {
		out[algo] = hex.EncodeToString(h.Sum(nil))
	}
	return out, nil
}

// File computes digests of the file at path.
func File(path string, algos ...config.ChecksumAlgorithm) (Digests, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Compute(f, algos...)
}

// Bytes computes digests of data.
func Bytes(data []byte, algos ...config.ChecksumAlgorithm) Digests {
	out := make(Digests, len(algos))
	for _, algo := range algos {
		h, err := newHash(algo)
		if err != nil {
			continue
		}
		h.Write(data)
		out[algo] = hex.EncodeToString(h.Sum(nil))
	}
	return out
}

// SHA256File returns the content hash used to identify artifacts.
func SHA256File(path string) (string, error) {
	d, err := File(path, config.ChecksumSHA256)
	if err != nil {
		return "", err
	}
	return d[config.ChecksumSHA256], nil
}
