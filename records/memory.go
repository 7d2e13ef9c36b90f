package records

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/goMFA/method"
)

// Memory is an in-process Repository.
type Memory struct {
	mu       sync.RWMutex
	records  map[string]map[string]method.RegisteredMethod
	defaults map[string]string
	now      func() time.Time
}

// NewMemory returns an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{
		records:  make(map[string]map[string]method.RegisteredMethod),
		defaults: make(map[string]string),
		now:      time.Now,
	}
}

func (m *Memory) List(_ context.Context, memberID string) ([]method.RegisteredMethod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]method.RegisteredMethod, 0, len(m.records[memberID]))
	for _, rm := range m.records[memberID] {
		out = append(out, cloneRecord(rm))
	}
	sortRecords(out)
	return out, nil
}

func (m *Memory) Get(_ context.Context, memberID, segment string) (*method.RegisteredMethod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rm, ok := m.records[memberID][segment]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneRecord(rm)
	return &out, nil
}

func (m *Memory) Create(_ context.Context, rm *method.RegisteredMethod) error {
	if err := validateRecord(rm); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	byMethod := m.records[rm.MemberID]
	if byMethod == nil {
		byMethod = make(map[string]method.RegisteredMethod)
		m.records[rm.MemberID] = byMethod
	}
	if _, exists := byMethod[rm.Method]; exists {
		return ErrDuplicate
	}

	if rm.CreatedAt.IsZero() {
		rm.CreatedAt = m.now()
	}
	rm.UpdatedAt = rm.CreatedAt
	byMethod[rm.Method] = cloneRecord(*rm)
	return nil
}

func (m *Memory) UpdateData(_ context.Context, memberID, segment string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rm, ok := m.records[memberID][segment]
	if !ok {
		return ErrNotFound
	}
	rm.Data = append([]byte(nil), data...)
	rm.UpdatedAt = m.now()
	m.records[memberID][segment] = rm
	return nil
}

func (m *Memory) SwapData(_ context.Context, memberID, segment string, old, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rm, ok := m.records[memberID][segment]
	if !ok {
		return ErrNotFound
	}
	if !bytes.Equal(rm.Data, old) {
		return ErrConflict
	}
	rm.Data = append([]byte(nil), data...)
	rm.UpdatedAt = m.now()
	m.records[memberID][segment] = rm
	return nil
}

func (m *Memory) Delete(_ context.Context, memberID, segment string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[memberID][segment]; !ok {
		return ErrNotFound
	}
	delete(m.records[memberID], segment)
	if m.defaults[memberID] == segment {
		delete(m.defaults, memberID)
	}
	return nil
}

func (m *Memory) DeleteAll(_ context.Context, memberID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, memberID)
	delete(m.defaults, memberID)
	return nil
}

func (m *Memory) DefaultMethod(_ context.Context, memberID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaults[memberID], nil
}

func (m *Memory) SetDefaultMethod(_ context.Context, memberID, segment string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if segment == "" {
		delete(m.defaults, memberID)
		return nil
	}
	if _, ok := m.records[memberID][segment]; !ok {
		return ErrNotFound
	}
	m.defaults[memberID] = segment
	return nil
}
