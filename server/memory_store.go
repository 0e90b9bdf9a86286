package server

import (
	"context"
	"fmt"

	"github.com/Moonlight-Companies/gomodbus/common"
)

// MemoryStore implements common.DataStore over a DataBank: a fixed-size,
// bounds-checked, per-space-locked backing store.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 4.3 (Data Model)
type MemoryStore struct {
	bank *DataBank
}

// MemoryStoreOption configures a MemoryStore at construction time.
type MemoryStoreOption func(*MemoryStore)

// WithBankSize overrides the default 65536-element-per-space data bank.
func WithBankSize(size int) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.bank = NewDataBank(WithDataBankSize(size))
	}
}

// WithVirtualStore makes the store virtual: every space has size zero, so
// every read or write is rejected as out of range. Used when a DataStore
// implementation only needs the interface shape but delegates all actual
// storage elsewhere (e.g. to an external engine).
func WithVirtualStore() MemoryStoreOption {
	return func(s *MemoryStore) {
		s.bank = NewDataBank(WithVirtualDataBank())
	}
}

// WithChangeNotify registers callbacks invoked after a coil or holding
// register write commits, outside of the data bank's lock.
func WithChangeNotify(onCoils, onHolding ChangeNotifyFunc) MemoryStoreOption {
	return func(s *MemoryStore) {
		if onCoils != nil {
			s.bank.OnCoilsChange(onCoils)
		}
		if onHolding != nil {
			s.bank.OnHoldingRegistersChange(onHolding)
		}
	}
}

// NewMemoryStore creates a new memory-based data store
func NewMemoryStore(options ...MemoryStoreOption) *MemoryStore {
	store := &MemoryStore{
		bank: NewDataBank(),
	}

	for _, option := range options {
		option(store)
	}

	return store
}

// ReadCoils reads coil values from the data store
// Implements function code 0x01 (Read Coils) data access
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.1 (Read Coils)
func (s *MemoryStore) ReadCoils(ctx context.Context, address common.Address, quantity common.Quantity) ([]common.CoilValue, error) {
	if quantity == 0 || quantity > common.MaxCoilCount {
		return nil, common.ErrInvalidQuantity
	}
	return s.bank.ReadCoils(ctx, address, quantity)
}

// ReadDiscreteInputs reads discrete input values from the data store
// Implements function code 0x02 (Read Discrete Inputs) data access
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.2 (Read Discrete Inputs)
func (s *MemoryStore) ReadDiscreteInputs(ctx context.Context, address common.Address, quantity common.Quantity) ([]common.DiscreteInputValue, error) {
	if quantity == 0 || quantity > common.MaxCoilCount {
		return nil, common.ErrInvalidQuantity
	}
	return s.bank.ReadDiscreteInputs(ctx, address, quantity)
}

// ReadHoldingRegisters reads holding register values from the data store
// Implements function code 0x03 (Read Holding Registers) data access
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.3 (Read Holding Registers)
func (s *MemoryStore) ReadHoldingRegisters(ctx context.Context, address common.Address, quantity common.Quantity) ([]common.RegisterValue, error) {
	if quantity == 0 || quantity > common.MaxRegisterCount {
		return nil, common.ErrInvalidQuantity
	}
	return s.bank.ReadHoldingRegisters(ctx, address, quantity)
}

// ReadInputRegisters reads input register values from the data store
// Implements function code 0x04 (Read Input Registers) data access
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.4 (Read Input Registers)
func (s *MemoryStore) ReadInputRegisters(ctx context.Context, address common.Address, quantity common.Quantity) ([]common.InputRegisterValue, error) {
	if quantity == 0 || quantity > common.MaxRegisterCount {
		return nil, common.ErrInvalidQuantity
	}
	return s.bank.ReadInputRegisters(ctx, address, quantity)
}

// WriteSingleCoil writes a single coil value to the data store
// Implements function code 0x05 (Write Single Coil) data access
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.5 (Write Single Coil)
func (s *MemoryStore) WriteSingleCoil(ctx context.Context, address common.Address, value common.CoilValue) error {
	return s.bank.WriteCoils(ctx, address, []common.CoilValue{value})
}

// WriteSingleRegister writes a single register value to the data store
// Implements function code 0x06 (Write Single Register) data access
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.6 (Write Single Register)
func (s *MemoryStore) WriteSingleRegister(ctx context.Context, address common.Address, value common.RegisterValue) error {
	return s.bank.WriteHoldingRegisters(ctx, address, []common.RegisterValue{value})
}

// WriteMultipleCoils writes multiple coil values to the data store
// Implements function code 0x0F (Write Multiple Coils) data access
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.11 (Write Multiple Coils)
func (s *MemoryStore) WriteMultipleCoils(ctx context.Context, address common.Address, values []common.CoilValue) error {
	if len(values) == 0 || len(values) > common.MaxWriteCoilCount {
		return common.ErrInvalidQuantity
	}
	return s.bank.WriteCoils(ctx, address, values)
}

// WriteMultipleRegisters writes multiple register values to the data store
// Implements function code 0x10 (Write Multiple Registers) data access
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.12 (Write Multiple Registers)
func (s *MemoryStore) WriteMultipleRegisters(ctx context.Context, address common.Address, values []common.RegisterValue) error {
	if len(values) == 0 || len(values) > common.MaxWriteRegisterCount {
		return common.ErrInvalidQuantity
	}
	return s.bank.WriteHoldingRegisters(ctx, address, values)
}

// GetCoil gets a single coil value. ok is false only if address is out of range.
func (s *MemoryStore) GetCoil(address common.Address) (common.CoilValue, bool) {
	values, err := s.bank.ReadCoils(context.Background(), address, 1)
	if err != nil {
		return false, false
	}
	return values[0], true
}

// SetCoil sets a single coil value, bypassing request-size limits.
func (s *MemoryStore) SetCoil(address common.Address, value common.CoilValue) {
	s.bank.WriteCoils(context.Background(), address, []common.CoilValue{value})
}

// GetDiscreteInput gets a single discrete input value. ok is false only if address is out of range.
func (s *MemoryStore) GetDiscreteInput(address common.Address) (common.DiscreteInputValue, bool) {
	values, err := s.bank.ReadDiscreteInputs(context.Background(), address, 1)
	if err != nil {
		return false, false
	}
	return values[0], true
}

// SetDiscreteInput sets a single discrete input value, simulating a field update.
func (s *MemoryStore) SetDiscreteInput(address common.Address, value common.DiscreteInputValue) {
	s.bank.SetDiscreteInputs(address, []common.DiscreteInputValue{value})
}

// GetHoldingRegister gets a single holding register value. ok is false only if address is out of range.
func (s *MemoryStore) GetHoldingRegister(address common.Address) (common.RegisterValue, bool) {
	values, err := s.bank.ReadHoldingRegisters(context.Background(), address, 1)
	if err != nil {
		return 0, false
	}
	return values[0], true
}

// SetHoldingRegister sets a single holding register value, bypassing request-size limits.
func (s *MemoryStore) SetHoldingRegister(address common.Address, value common.RegisterValue) {
	s.bank.WriteHoldingRegisters(context.Background(), address, []common.RegisterValue{value})
}

// GetInputRegister gets a single input register value. ok is false only if address is out of range.
func (s *MemoryStore) GetInputRegister(address common.Address) (common.InputRegisterValue, bool) {
	values, err := s.bank.ReadInputRegisters(context.Background(), address, 1)
	if err != nil {
		return 0, false
	}
	return values[0], true
}

// SetInputRegister sets a single input register value, simulating a field update.
func (s *MemoryStore) SetInputRegister(address common.Address, value common.InputRegisterValue) {
	s.bank.SetInputRegisters(address, []common.InputRegisterValue{value})
}

// DumpRegisters returns a string representation of every non-default value
// currently held by the store. A full dump of all four 65536-element spaces
// would be mostly noise, so only addresses holding a non-zero/non-false
// value are reported.
func (s *MemoryStore) DumpRegisters() string {
	result := "Memory Store Content:\n"

	result += dumpBoolSpace("Coils", s.bank.snapshotCoils())
	result += dumpBoolSpace("Discrete Inputs", s.bank.snapshotDiscreteInputs())
	result += dumpRegisterSpace("Holding Registers", s.bank.snapshotHoldingRegisters())
	result += dumpRegisterSpace("Input Registers", s.bank.snapshotInputRegisters())

	return result
}

func dumpBoolSpace(label string, values []bool) string {
	var lines string
	for addr, val := range values {
		if val {
			lines += fmt.Sprintf("  %d: %t\n", addr, val)
		}
	}
	if lines == "" {
		return ""
	}
	return label + ":\n" + lines
}

func dumpRegisterSpace(label string, values []uint16) string {
	var lines string
	for addr, val := range values {
		if val != 0 {
			lines += fmt.Sprintf("  %d: %d (0x%04X)\n", addr, val, val)
		}
	}
	if lines == "" {
		return ""
	}
	return label + ":\n" + lines
}
