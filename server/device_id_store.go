package server

import (
	"context"
	"sort"
	"sync"

	"github.com/Moonlight-Companies/gomodbus/common"
)

// MemoryDeviceIdStore is a thread-safe, in-memory implementation of
// common.DeviceIdStore. It backs the default server configuration and
// ships with the seven standard objects (0x00-0x06) populated so a fresh
// server answers Read Device Identification out of the box.
type MemoryDeviceIdStore struct {
	mu              sync.RWMutex
	conformityLevel byte
	objects         map[common.DeviceIDObjectCode]string
}

// DeviceIdStoreOption configures a MemoryDeviceIdStore at construction time.
type DeviceIdStoreOption func(*MemoryDeviceIdStore)

// WithConformityLevel overrides the default conformity level byte.
func WithConformityLevel(level byte) DeviceIdStoreOption {
	return func(s *MemoryDeviceIdStore) {
		s.conformityLevel = level
	}
}

// NewMemoryDeviceIdStore creates a MemoryDeviceIdStore with the standard
// basic and regular objects populated.
//
// ConformityLevel defaults to 0x83: basic+regular+extended identification,
// individual access supported.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.21, Table 74
func NewMemoryDeviceIdStore(options ...DeviceIdStoreOption) *MemoryDeviceIdStore {
	store := &MemoryDeviceIdStore{
		conformityLevel: 0x83,
		objects: map[common.DeviceIDObjectCode]string{
			common.DeviceIDVendorName:         "gomodbus",
			common.DeviceIDProductCode:        "GM-001",
			common.DeviceIDMajorMinorRevision: "1.0",
			common.DeviceIDVendorURL:          "https://github.com/Moonlight-Companies/gomodbus",
			common.DeviceIDProductName:        "gomodbus Server",
			common.DeviceIDModelName:          "Modbus TCP Server",
			common.DeviceIDUserAppName:        "gomodbus",
		},
	}

	for _, opt := range options {
		opt(store)
	}

	return store
}

// Get returns the object value for id and whether it is configured.
func (s *MemoryDeviceIdStore) Get(ctx context.Context, id common.DeviceIDObjectCode) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.objects[id]
	return value, ok
}

// Set configures the object value for id.
func (s *MemoryDeviceIdStore) Set(ctx context.Context, id common.DeviceIDObjectCode, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[id] = value
	return nil
}

// ConformityLevel returns the device's conformity level byte.
func (s *MemoryDeviceIdStore) ConformityLevel(ctx context.Context) byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conformityLevel
}

// Objects returns the configured object IDs of the given stream category,
// in ascending order: basic 0x00-0x02, regular 0x03-0x7F, extended 0x80-0xFF.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.21, Table 73
func (s *MemoryDeviceIdStore) Objects(ctx context.Context, code common.ReadDeviceIDCode) []common.DeviceIDObjectCode {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]common.DeviceIDObjectCode, 0, len(s.objects))
	for id := range s.objects {
		switch code {
		case common.ReadDeviceIDBasicStream:
			if id > common.DeviceIDMajorMinorRevision {
				continue
			}
		case common.ReadDeviceIDRegularStream:
			if id < common.DeviceIDVendorURL || id > 0x7F {
				continue
			}
		case common.ReadDeviceIDExtendedStream:
			if id < 0x80 {
				continue
			}
		default:
			continue
		}
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
