// Package signing produces ASCII-armored detached OpenPGP signatures for
// release artifacts.
package signing

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/packet"

	"git.home.luguber.info/inful/relpub/internal/credentials"
	ferrors "git.home.luguber.info/inful/relpub/internal/foundation/errors"
)

// SignatureExtension is appended to a signed file's name.
const SignatureExtension = "asc"

// Signer signs files with one private key. Signing is serialized through the
// signer's key lock, so one Signer may be shared by every destination.
type Signer struct {
	mu     sync.Mutex
	entity *openpgp.Entity
	config *packet.Config
}

// NewSigner parses armored key material from a signing credential set and
// unlocks it with the set's passphrase.
func NewSigner(set credentials.Set) (*Signer, error) {
	if len(set.KeyMaterial) == 0 {
		return nil, ferrors.SigningError("no signing key material").
			UserAction().
			WithHint("set signing.key_file or the signingKey property").
			Build()
	}
	ring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(set.KeyMaterial))
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategorySigning, "cannot parse signing key").
			UserAction().
			WithHint("the key must be an ASCII-armored OpenPGP private key").
			Build()
	}
	var entity *openpgp.Entity
	for _, e := range ring {
		if e.PrivateKey != nil {
			entity = e
			break
		}
	}
	if entity == nil {
		return nil, ferrors.SigningError("key ring contains no private key").UserAction().Build()
	}
	if err := unlock(entity, []byte(set.Passphrase)); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategorySigning, "cannot unlock signing key").
			UserAction().
			WithHint("check the signingPassword property or SIGNING_PASSWORD").
			Build()
	}
	return &Signer{entity: entity}, nil
}

func unlock(e *openpgp.Entity, passphrase []byte) error {
	if e.PrivateKey.Encrypted {
		if err := e.PrivateKey.Decrypt(passphrase); err != nil {
			return err
		}
	}
	for _, sub := range e.Subkeys {
		if sub.PrivateKey != nil && sub.PrivateKey.Encrypted {
			if err := sub.PrivateKey.Decrypt(passphrase); err != nil {
				return err
			}
		}
	}
	return nil
}

// KeyID returns the signing key's hex identifier.
func (s *Signer) KeyID() string {
	return s.entity.PrimaryKey.KeyIdString()
}

// SignFile returns the armored detached signature of the file at path. The
// underlying operation cannot be interrupted; when ctx expires first the
// caller gets a signing error and the result is discarded.
func (s *Signer) SignFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, signingTimeout(err, path)
	}
	type result struct {
		sig []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		sig, err := s.signFile(path)
		done <- result{sig, err}
	}()
	select {
	case r := <-done:
		return r.sig, r.err
	case <-ctx.Done():
		return nil, signingTimeout(ctx.Err(), path)
	}
}

func signingTimeout(err error, path string) error {
	return ferrors.WrapError(err, ferrors.CategorySigning, "signing timed out").
		Retryable().
		WithContext("path", path).
		Build()
}

func (s *Signer) signFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategorySigning, "cannot open file to sign").
			WithContext("path", path).
			Build()
	}
	defer func() { _ = f.Close() }()
	return s.Sign(f)
}

// Sign returns the armored detached signature of r.
func (s *Signer) Sign(r io.Reader) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf bytes.Buffer
	if err := openpgp.ArmoredDetachSign(&buf, s.entity, r, s.config); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategorySigning, "detached signature failed").Retryable().Build()
	}
	return buf.Bytes(), nil
}

// Verify checks an armored detached signature against the signer's key.
func (s *Signer) Verify(signed, signature io.Reader) error {
	if _, err := openpgp.CheckArmoredDetachedSignature(openpgp.EntityList{s.entity}, signed, signature, s.config); err != nil {
		return fmt.Errorf("verify signature: %w", err)
	}
	return nil
}
