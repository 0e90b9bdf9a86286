package protocol

import (
	"context"
	"encoding/binary"

	"github.com/Moonlight-Companies/gomodbus/common"
)

// GenerateWriteSingleCoilRequest builds the request body for function code 0x05.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.5 (Write Single Coil):
// "A value of 0xFF00 requests the coil to be ON. A value of 0x0000 requests
// the coil to be OFF."
func (c *PDUCodec) GenerateWriteSingleCoilRequest(address common.Address, value common.CoilValue) ([]byte, error) {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], uint16(address))
	if value {
		binary.BigEndian.PutUint16(data[2:4], common.CoilOnU16)
	} else {
		binary.BigEndian.PutUint16(data[2:4], common.CoilOffU16)
	}
	return data, nil
}

// ParseWriteSingleCoilResponse parses the echoed response for function code 0x05.
// Per SPEC_FULL.md §9 (write-single-coil open question): only the two wire
// values defined by the spec are accepted; anything else is a malformed
// echo, not a third boolean state.
func (c *PDUCodec) ParseWriteSingleCoilResponse(data []byte) (common.Address, common.CoilValue, error) {
	ctx := context.Background()
	if !expectExactLength(data, 4) {
		c.logger.Error(ctx, "write single coil: response length mismatch: expected 4, got %d", len(data))
		return 0, false, common.ErrInvalidResponseLength
	}

	address := common.Address(binary.BigEndian.Uint16(data[0:2]))
	value := binary.BigEndian.Uint16(data[2:4])

	switch value {
	case common.CoilOnU16:
		return address, true, nil
	case common.CoilOffU16:
		return address, false, nil
	default:
		c.logger.Error(ctx, "write single coil: unexpected echoed value 0x%04X", value)
		return address, false, common.NewValueError("coil value", "echoed value is neither 0xFF00 nor 0x0000")
	}
}

// GenerateWriteSingleRegisterRequest builds the request body for function code 0x06.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.6 (Write Single Register)
func (c *PDUCodec) GenerateWriteSingleRegisterRequest(address common.Address, value common.RegisterValue) ([]byte, error) {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], uint16(address))
	binary.BigEndian.PutUint16(data[2:4], value)
	return data, nil
}

// ParseWriteSingleRegisterResponse parses the echoed response for function code 0x06.
func (c *PDUCodec) ParseWriteSingleRegisterResponse(data []byte) (common.Address, common.RegisterValue, error) {
	ctx := context.Background()
	if !expectExactLength(data, 4) {
		c.logger.Error(ctx, "write single register: response length mismatch: expected 4, got %d", len(data))
		return 0, 0, common.ErrInvalidResponseLength
	}
	address := common.Address(binary.BigEndian.Uint16(data[0:2]))
	value := common.RegisterValue(binary.BigEndian.Uint16(data[2:4]))
	return address, value, nil
}

// GenerateWriteMultipleCoilsRequest builds the request body for function code 0x0F.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.11 (Write Multiple Coils)
func (c *PDUCodec) GenerateWriteMultipleCoilsRequest(address common.Address, values []common.CoilValue) ([]byte, error) {
	ctx := context.Background()

	quantity := common.Quantity(len(values))
	if err := validateRange("values", address, quantity, common.MaxWriteCoilCount); err != nil {
		c.logger.Error(ctx, "write multiple coils: %v", err)
		return nil, err
	}

	packed := packBits(values)
	data := make([]byte, 5+len(packed))
	binary.BigEndian.PutUint16(data[0:2], uint16(address))
	binary.BigEndian.PutUint16(data[2:4], uint16(len(values)))
	data[4] = byte(len(packed))
	copy(data[5:], packed)

	return data, nil
}

// ParseWriteMultipleCoilsResponse parses the ack for function code 0x0F.
func (c *PDUCodec) ParseWriteMultipleCoilsResponse(data []byte) (common.Address, common.Quantity, error) {
	return c.parseWriteAck(data, "write multiple coils")
}

// GenerateWriteMultipleRegistersRequest builds the request body for function code 0x10.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.12 (Write Multiple Registers)
func (c *PDUCodec) GenerateWriteMultipleRegistersRequest(address common.Address, values []common.RegisterValue) ([]byte, error) {
	ctx := context.Background()

	quantity := common.Quantity(len(values))
	if err := validateRange("values", address, quantity, common.MaxWriteRegisterCount); err != nil {
		c.logger.Error(ctx, "write multiple registers: %v", err)
		return nil, err
	}

	byteCount := len(values) * 2
	data := make([]byte, 5+byteCount)
	binary.BigEndian.PutUint16(data[0:2], uint16(address))
	binary.BigEndian.PutUint16(data[2:4], uint16(len(values)))
	data[4] = byte(byteCount)
	for i, value := range values {
		binary.BigEndian.PutUint16(data[5+i*2:7+i*2], value)
	}

	return data, nil
}

// ParseWriteMultipleRegistersResponse parses the ack for function code 0x10.
func (c *PDUCodec) ParseWriteMultipleRegistersResponse(data []byte) (common.Address, common.Quantity, error) {
	return c.parseWriteAck(data, "write multiple registers")
}

// parseWriteAck parses the shared "address, quantity" acknowledgement body
// returned by both multi-coil and multi-register writes.
func (c *PDUCodec) parseWriteAck(data []byte, label string) (common.Address, common.Quantity, error) {
	ctx := context.Background()
	if !expectExactLength(data, 4) {
		c.logger.Error(ctx, "%s: response length mismatch: expected 4, got %d", label, len(data))
		return 0, 0, common.ErrInvalidResponseLength
	}
	address := common.Address(binary.BigEndian.Uint16(data[0:2]))
	quantity := common.Quantity(binary.BigEndian.Uint16(data[2:4]))
	return address, quantity, nil
}

// GenerateReadWriteMultipleRegistersRequest builds the request body for function code 0x17.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.17 (Read/Write Multiple Registers)
func (c *PDUCodec) GenerateReadWriteMultipleRegistersRequest(readAddress common.Address, readQuantity common.Quantity, writeAddress common.Address, writeValues []common.RegisterValue) ([]byte, error) {
	ctx := context.Background()

	if err := validateRange("readQuantity", readAddress, readQuantity, common.MaxReadWriteReadCount); err != nil {
		c.logger.Error(ctx, "read/write multiple registers: %v", err)
		return nil, err
	}
	writeQuantity := common.Quantity(len(writeValues))
	if err := validateRange("writeValues", writeAddress, writeQuantity, common.MaxReadWriteWriteCount); err != nil {
		c.logger.Error(ctx, "read/write multiple registers: %v", err)
		return nil, err
	}

	byteCount := len(writeValues) * 2
	data := make([]byte, 9+byteCount)
	binary.BigEndian.PutUint16(data[0:2], uint16(readAddress))
	binary.BigEndian.PutUint16(data[2:4], uint16(readQuantity))
	binary.BigEndian.PutUint16(data[4:6], uint16(writeAddress))
	binary.BigEndian.PutUint16(data[6:8], uint16(len(writeValues)))
	data[8] = byte(byteCount)
	for i, value := range writeValues {
		binary.BigEndian.PutUint16(data[9+i*2:11+i*2], value)
	}

	return data, nil
}

// ParseReadWriteMultipleRegistersResponse parses the response body for function code
// 0x17, which is wire-identical to a plain read-holding-registers response.
func (c *PDUCodec) ParseReadWriteMultipleRegistersResponse(data []byte, readQuantity common.Quantity) ([]common.RegisterValue, error) {
	return c.ParseReadHoldingRegistersResponse(data, readQuantity)
}
