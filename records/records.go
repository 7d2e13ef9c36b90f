package records

import (
	"context"
	"slices"
	"strings"

	"github.com/MrEthical07/goMFA/method"
	"github.com/cockroachdb/errors"
)

var (
	// ErrNotFound is returned when a member has no record for a method.
	ErrNotFound = errors.New("registered method not found")
	// ErrDuplicate is returned by Create when the pair already exists.
	ErrDuplicate = errors.New("method already registered for member")
	// ErrBackend marks failures of the underlying store.
	ErrBackend = errors.New("registered method backend unavailable")
	// ErrConflict is returned by SwapData when the stored data no longer
	// matches the expected value.
	ErrConflict = errors.New("registered method data changed concurrently")
)

// Repository stores RegisteredMethod records.
type Repository interface {
	// List returns a member's records ordered by creation time.
	List(ctx context.Context, memberID string) ([]method.RegisteredMethod, error)
	Get(ctx context.Context, memberID, segment string) (*method.RegisteredMethod, error)
	// Create inserts rm atomically, failing with ErrDuplicate when the
	// member already has a record for rm.Method.
	Create(ctx context.Context, rm *method.RegisteredMethod) error
	UpdateData(ctx context.Context, memberID, segment string, data []byte) error
	// SwapData replaces the data of a record only while it still equals
	// old, failing with ErrConflict otherwise. Nil and empty data compare
	// equal.
	SwapData(ctx context.Context, memberID, segment string, old, data []byte) error
	Delete(ctx context.Context, memberID, segment string) error
	// DeleteAll removes every record and the default-method preference of
	// a member. It is used when the member itself is deleted.
	DeleteAll(ctx context.Context, memberID string) error
	DefaultMethod(ctx context.Context, memberID string) (string, error)
	SetDefaultMethod(ctx context.Context, memberID, segment string) error
}

func backendError(err error, op string) error {
	return errors.Mark(errors.Wrap(err, op), ErrBackend)
}

func validateRecord(rm *method.RegisteredMethod) error {
	if rm == nil {
		return errors.New("nil registered method")
	}
	if strings.TrimSpace(rm.MemberID) == "" {
		return errors.New("registered method has no member")
	}
	if err := method.ValidateSegment(rm.Method); err != nil {
		return err
	}
	return nil
}

func sortRecords(list []method.RegisteredMethod) {
	slices.SortStableFunc(list, func(a, b method.RegisteredMethod) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Method, b.Method)
	})
}

func cloneRecord(rm method.RegisteredMethod) method.RegisteredMethod {
	rm.Data = slices.Clone(rm.Data)
	return rm
}
