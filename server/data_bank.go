package server

import (
	"context"
	"sync"

	"github.com/Moonlight-Companies/gomodbus/common"
)

// DefaultDataBankSize is the number of addressable elements per space,
// covering the full 16-bit Modbus address range (0-65535).
const DefaultDataBankSize = 65536

// ChangeNotifyFunc is invoked after a coil or holding-register write commits,
// outside of the DataBank's lock, with the address range that changed and
// its new values. It is not called for discrete inputs or input registers,
// which the Modbus master never writes.
type ChangeNotifyFunc func(ctx context.Context, address common.Address, values interface{})

// DataBank is the concrete, fixed-size backing store behind MemoryStore. It
// holds the four Modbus data spaces, each guarded by its own lock so a long
// read of one space never blocks a write to another.
//
// Writes are bounds-checked against the full value range before any element
// is mutated, so a request whose tail runs past the end of the array leaves
// the store untouched rather than partially written.
type DataBank struct {
	coilsMu sync.RWMutex
	coils   []bool

	discreteMu     sync.RWMutex
	discreteInputs []bool

	holdingMu        sync.RWMutex
	holdingRegisters []uint16

	inputMu        sync.RWMutex
	inputRegisters []uint16

	onCoilsChange    ChangeNotifyFunc
	onHoldingChange  ChangeNotifyFunc
}

// DataBankOption configures a DataBank at construction time.
type DataBankOption func(*dataBankConfig)

type dataBankConfig struct {
	size    int
	virtual bool
}

// WithDataBankSize overrides the default per-space element count.
func WithDataBankSize(size int) DataBankOption {
	return func(c *dataBankConfig) {
		c.size = size
	}
}

// WithVirtualDataBank shrinks every space to size zero. A virtual bank
// rejects every address as out of range; it exists so a DataStore can be
// pointed at an entirely external backing (e.g. an access-control proxy or
// an RTU gateway) without exposing any local storage of its own.
func WithVirtualDataBank() DataBankOption {
	return func(c *dataBankConfig) {
		c.virtual = true
	}
}

// NewDataBank creates a DataBank with the given options applied.
func NewDataBank(options ...DataBankOption) *DataBank {
	cfg := dataBankConfig{size: DefaultDataBankSize}
	for _, opt := range options {
		opt(&cfg)
	}

	size := cfg.size
	if cfg.virtual {
		size = 0
	}

	return &DataBank{
		coils:            make([]bool, size),
		discreteInputs:   make([]bool, size),
		holdingRegisters: make([]uint16, size),
		inputRegisters:   make([]uint16, size),
	}
}

// OnCoilsChange registers a callback invoked after a coil write commits.
func (d *DataBank) OnCoilsChange(fn ChangeNotifyFunc) {
	d.onCoilsChange = fn
}

// OnHoldingRegistersChange registers a callback invoked after a holding
// register write commits.
func (d *DataBank) OnHoldingRegistersChange(fn ChangeNotifyFunc) {
	d.onHoldingChange = fn
}

func inRange(size, address, quantity int) bool {
	if quantity <= 0 {
		return false
	}
	end := address + quantity
	return address >= 0 && end <= size
}

// ReadCoils returns a copy of quantity coil values starting at address.
func (d *DataBank) ReadCoils(ctx context.Context, address common.Address, quantity common.Quantity) ([]common.CoilValue, error) {
	d.coilsMu.RLock()
	defer d.coilsMu.RUnlock()

	if !inRange(len(d.coils), int(address), int(quantity)) {
		return nil, common.ErrInvalidAddress
	}

	values := make([]common.CoilValue, quantity)
	copy(values, d.coils[address:int(address)+int(quantity)])
	return values, nil
}

// ReadDiscreteInputs returns a copy of quantity discrete input values starting at address.
func (d *DataBank) ReadDiscreteInputs(ctx context.Context, address common.Address, quantity common.Quantity) ([]common.DiscreteInputValue, error) {
	d.discreteMu.RLock()
	defer d.discreteMu.RUnlock()

	if !inRange(len(d.discreteInputs), int(address), int(quantity)) {
		return nil, common.ErrInvalidAddress
	}

	values := make([]common.DiscreteInputValue, quantity)
	copy(values, d.discreteInputs[address:int(address)+int(quantity)])
	return values, nil
}

// ReadHoldingRegisters returns a copy of quantity holding register values starting at address.
func (d *DataBank) ReadHoldingRegisters(ctx context.Context, address common.Address, quantity common.Quantity) ([]common.RegisterValue, error) {
	d.holdingMu.RLock()
	defer d.holdingMu.RUnlock()

	if !inRange(len(d.holdingRegisters), int(address), int(quantity)) {
		return nil, common.ErrInvalidAddress
	}

	values := make([]common.RegisterValue, quantity)
	copy(values, d.holdingRegisters[address:int(address)+int(quantity)])
	return values, nil
}

// ReadInputRegisters returns a copy of quantity input register values starting at address.
func (d *DataBank) ReadInputRegisters(ctx context.Context, address common.Address, quantity common.Quantity) ([]common.InputRegisterValue, error) {
	d.inputMu.RLock()
	defer d.inputMu.RUnlock()

	if !inRange(len(d.inputRegisters), int(address), int(quantity)) {
		return nil, common.ErrInvalidAddress
	}

	values := make([]common.InputRegisterValue, quantity)
	copy(values, d.inputRegisters[address:int(address)+int(quantity)])
	return values, nil
}

// WriteCoils writes values starting at address, atomically: either every
// element is written, or (on an out-of-range address) none are.
func (d *DataBank) WriteCoils(ctx context.Context, address common.Address, values []common.CoilValue) error {
	d.coilsMu.Lock()
	if !inRange(len(d.coils), int(address), len(values)) {
		d.coilsMu.Unlock()
		return common.ErrInvalidAddress
	}
	copy(d.coils[address:int(address)+len(values)], values)
	d.coilsMu.Unlock()

	if d.onCoilsChange != nil {
		d.onCoilsChange(ctx, address, values)
	}
	return nil
}

// WriteHoldingRegisters writes values starting at address, atomically.
func (d *DataBank) WriteHoldingRegisters(ctx context.Context, address common.Address, values []common.RegisterValue) error {
	d.holdingMu.Lock()
	if !inRange(len(d.holdingRegisters), int(address), len(values)) {
		d.holdingMu.Unlock()
		return common.ErrInvalidAddress
	}
	copy(d.holdingRegisters[address:int(address)+len(values)], values)
	d.holdingMu.Unlock()

	if d.onHoldingChange != nil {
		d.onHoldingChange(ctx, address, values)
	}
	return nil
}

// SetDiscreteInputs writes discrete input values directly. Unlike coils,
// discrete inputs are never written by a Modbus master; this exists for
// simulating field input changes from the server side.
func (d *DataBank) SetDiscreteInputs(address common.Address, values []common.DiscreteInputValue) error {
	d.discreteMu.Lock()
	defer d.discreteMu.Unlock()
	if !inRange(len(d.discreteInputs), int(address), len(values)) {
		return common.ErrInvalidAddress
	}
	copy(d.discreteInputs[address:int(address)+len(values)], values)
	return nil
}

// SetInputRegisters writes input register values directly, simulating a
// field device updating its own read-only registers.
func (d *DataBank) SetInputRegisters(address common.Address, values []common.InputRegisterValue) error {
	d.inputMu.Lock()
	defer d.inputMu.Unlock()
	if !inRange(len(d.inputRegisters), int(address), len(values)) {
		return common.ErrInvalidAddress
	}
	copy(d.inputRegisters[address:int(address)+len(values)], values)
	return nil
}

// snapshotCoils returns a copy of the entire coils space. Unlike ReadCoils,
// it isn't bounded by common.Quantity (a uint16), so it stays correct even
// when the space holds the full 65536-element default size.
func (d *DataBank) snapshotCoils() []bool {
	d.coilsMu.RLock()
	defer d.coilsMu.RUnlock()
	out := make([]bool, len(d.coils))
	copy(out, d.coils)
	return out
}

// snapshotDiscreteInputs returns a copy of the entire discrete inputs space.
func (d *DataBank) snapshotDiscreteInputs() []bool {
	d.discreteMu.RLock()
	defer d.discreteMu.RUnlock()
	out := make([]bool, len(d.discreteInputs))
	copy(out, d.discreteInputs)
	return out
}

// snapshotHoldingRegisters returns a copy of the entire holding registers space.
func (d *DataBank) snapshotHoldingRegisters() []uint16 {
	d.holdingMu.RLock()
	defer d.holdingMu.RUnlock()
	out := make([]uint16, len(d.holdingRegisters))
	copy(out, d.holdingRegisters)
	return out
}

// snapshotInputRegisters returns a copy of the entire input registers space.
func (d *DataBank) snapshotInputRegisters() []uint16 {
	d.inputMu.RLock()
	defer d.inputMu.RUnlock()
	out := make([]uint16, len(d.inputRegisters))
	copy(out, d.inputRegisters)
	return out
}
