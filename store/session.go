package store

import (
	"context"

	"github.com/cockroachdb/errors"
)

// DefaultKey is the session key a store is saved under when the host does
// not configure one.
const DefaultKey = "mfa-store"

// Session is the host's per-visitor session storage. Implementations are
// expected to be scoped to one visitor, so two members never share a key
// space.
type Session interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Save encodes the store and writes it to sess under key.
func (s *Store) Save(ctx context.Context, sess Session, key string) error {
	blob, err := s.MarshalBinary()
	if err != nil {
		return err
	}
	if err := sess.Set(ctx, key, string(blob)); err != nil {
		return errors.Wrap(err, "save session store")
	}
	return nil
}

// Load reads the store saved under key. It returns ErrNotFound when the
// session holds nothing under key and ErrEncoding when the saved value no
// longer decodes.
func Load(ctx context.Context, sess Session, key string) (*Store, error) {
	raw, ok, err := sess.Get(ctx, key)
	if err != nil {
		return nil, errors.Wrap(err, "load session store")
	}
	if !ok {
		return nil, ErrNotFound
	}
	return Decode([]byte(raw))
}

// Clear removes the store saved under key. Clearing an absent store is not
// an error.
func Clear(ctx context.Context, sess Session, key string) error {
	if err := sess.Delete(ctx, key); err != nil {
		return errors.Wrap(err, "clear session store")
	}
	return nil
}
