package records

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"

	"github.com/MrEthical07/goMFA/method"
	"github.com/cockroachdb/errors"
)

const recordFormatVersion1 = 1

// ErrCorrupt is returned when a stored record cannot be decoded.
var ErrCorrupt = errors.New("registered method record corrupt")

// encodeRecord writes: version, id, member, method (uint16 length-prefixed),
// created and updated (unix nanos), data (uint32 length-prefixed).
func encodeRecord(rm *method.RegisteredMethod) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(recordFormatVersion1)

	for _, s := range []string{rm.ID, rm.MemberID, rm.Method} {
		if len(s) > 65535 {
			return nil, errors.New("registered method field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(s))); err != nil {
			return nil, err
		}
		buf.WriteString(s)
	}
	if err := binary.Write(&buf, binary.BigEndian, rm.CreatedAt.UnixNano()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, rm.UpdatedAt.UnixNano()); err != nil {
		return nil, err
	}
	if uint64(len(rm.Data)) > 1<<32-1 {
		return nil, errors.New("registered method data too large")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(rm.Data))); err != nil {
		return nil, err
	}
	buf.Write(rm.Data)

	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (*method.RegisteredMethod, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, errors.Mark(err, ErrCorrupt)
	}
	if version != recordFormatVersion1 {
		return nil, errors.Wrapf(ErrCorrupt, "unsupported record version %d", version)
	}

	fields := make([]string, 3)
	for i := range fields {
		var n uint16
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return nil, errors.Mark(err, ErrCorrupt)
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, errors.Mark(err, ErrCorrupt)
		}
		fields[i] = string(b)
	}

	var created, updated int64
	if err := binary.Read(r, binary.BigEndian, &created); err != nil {
		return nil, errors.Mark(err, ErrCorrupt)
	}
	if err := binary.Read(r, binary.BigEndian, &updated); err != nil {
		return nil, errors.Mark(err, ErrCorrupt)
	}

	var dataLen uint32
	if err := binary.Read(r, binary.BigEndian, &dataLen); err != nil {
		return nil, errors.Mark(err, ErrCorrupt)
	}
	if int64(dataLen) != int64(r.Len()) {
		return nil, errors.Wrap(ErrCorrupt, "record data length mismatch")
	}
	var payload []byte
	if dataLen > 0 {
		payload = make([]byte, dataLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, errors.Mark(err, ErrCorrupt)
		}
	}

	return &method.RegisteredMethod{
		ID:        fields[0],
		MemberID:  fields[1],
		Method:    fields[2],
		CreatedAt: time.Unix(0, created).UTC(),
		UpdatedAt: time.Unix(0, updated).UTC(),
		Data:      payload,
	}, nil
}
