package store

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"slices"
	"strconv"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
)

const storeFormatVersion1 byte = 1

type encodedStore struct {
	Member   string         `json:"member"`
	Method   string         `json:"method,omitempty"`
	State    map[string]any `json:"state,omitempty"`
	Verified []string       `json:"verified,omitempty"`
}

// MarshalBinary encodes the store as a version byte followed by JSON.
// It fails with ErrEncoding when any string is not valid UTF-8 or the
// scratch state holds a value without a lossless JSON form.
func (s *Store) MarshalBinary() ([]byte, error) {
	if !utf8.ValidString(s.memberID) {
		return nil, errors.Wrap(ErrEncoding, "member id is not valid UTF-8")
	}
	if !utf8.ValidString(s.method) {
		return nil, errors.Wrap(ErrEncoding, "method is not valid UTF-8")
	}
	for _, segment := range s.verified {
		if !utf8.ValidString(segment) {
			return nil, errors.Wrap(ErrEncoding, "verified method is not valid UTF-8")
		}
	}
	if err := validateValue("state", s.state); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteByte(storeFormatVersion1)

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(encodedStore{
		Member:   s.memberID,
		Method:   s.method,
		State:    s.state,
		Verified: s.verified,
	}); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "encode session store"), ErrEncoding)
	}

	// Encoder terminates with a newline that carries no data.
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// UnmarshalBinary decodes data produced by MarshalBinary. Any byte
// sequence the encoder could not have produced fails with ErrEncoding.
func (s *Store) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		return errors.Wrap(ErrEncoding, "empty session store")
	}
	if data[0] != storeFormatVersion1 {
		return errors.Wrapf(ErrEncoding, "unsupported session store version %d", data[0])
	}
	body := data[1:]
	if !utf8.Valid(body) {
		return errors.Wrap(ErrEncoding, "session store is not valid UTF-8")
	}

	var decoded encodedStore
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&decoded); err != nil {
		return errors.Mark(errors.Wrap(err, "decode session store"), ErrEncoding)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.Wrap(ErrEncoding, "trailing data after session store")
	}

	verified := make([]string, 0, len(decoded.Verified))
	for _, segment := range decoded.Verified {
		if segment == "" || slices.Contains(verified, segment) {
			return errors.Wrap(ErrEncoding, "invalid verified method set")
		}
		verified = append(verified, segment)
	}
	if decoded.Method != "" && slices.Contains(verified, decoded.Method) {
		return errors.Wrap(ErrEncoding, "method in progress is already verified")
	}
	if len(verified) == 0 {
		verified = nil
	}

	s.memberID = decoded.Member
	s.method = decoded.Method
	s.state = decoded.State
	if s.state == nil {
		s.state = map[string]any{}
	}
	s.verified = verified
	return nil
}

// Decode returns the store encoded in data.
func Decode(data []byte) (*Store, error) {
	s := &Store{}
	if err := s.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return s, nil
}

func validateValue(path string, v any) error {
	switch t := v.(type) {
	case nil, bool:
		return nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return errors.Wrapf(ErrEncoding, "%s: non-finite number", path)
		}
		return nil
	case string:
		if !utf8.ValidString(t) {
			return errors.Wrapf(ErrEncoding, "%s: string is not valid UTF-8", path)
		}
		return nil
	case []byte:
		return errors.Wrapf(ErrEncoding, "%s: binary value", path)
	case []any:
		for i, item := range t {
			if err := validateValue(path+"["+strconv.Itoa(i)+"]", item); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		for k, item := range t {
			if !utf8.ValidString(k) {
				return errors.Wrapf(ErrEncoding, "%s: key is not valid UTF-8", path)
			}
			if err := validateValue(path+"."+k, item); err != nil {
				return err
			}
		}
		return nil
	default:
		return errors.Wrapf(ErrEncoding, "%s: unsupported value of type %T", path, v)
	}
}
