package protocol

import (
	"context"

	"github.com/Moonlight-Companies/gomodbus/common"
)

// GenerateReadCoilsRequest builds the request body for function code 0x01.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.1 (Read Coils)
func (c *PDUCodec) GenerateReadCoilsRequest(address common.Address, quantity common.Quantity) ([]byte, error) {
	ctx := context.Background()
	if err := validateRange("quantity", address, quantity, common.MaxCoilCount); err != nil {
		c.logger.Error(ctx, "read coils: %v", err)
		return nil, err
	}
	return putAddressQuantity(address, quantity), nil
}

// ParseReadCoilsResponse parses the response body for function code 0x01.
func (c *PDUCodec) ParseReadCoilsResponse(data []byte, quantity common.Quantity) ([]common.CoilValue, error) {
	ctx := context.Background()
	bits, err := c.parseBitPayload(ctx, "read coils", data, quantity)
	if err != nil {
		return nil, err
	}
	values := make([]common.CoilValue, len(bits))
	copy(values, bits)
	return values, nil
}

// GenerateReadDiscreteInputsRequest builds the request body for function code 0x02.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.2 (Read Discrete Inputs)
func (c *PDUCodec) GenerateReadDiscreteInputsRequest(address common.Address, quantity common.Quantity) ([]byte, error) {
	ctx := context.Background()
	if err := validateRange("quantity", address, quantity, common.MaxCoilCount); err != nil {
		c.logger.Error(ctx, "read discrete inputs: %v", err)
		return nil, err
	}
	return putAddressQuantity(address, quantity), nil
}

// ParseReadDiscreteInputsResponse parses the response body for function code 0x02.
func (c *PDUCodec) ParseReadDiscreteInputsResponse(data []byte, quantity common.Quantity) ([]common.DiscreteInputValue, error) {
	ctx := context.Background()
	bits, err := c.parseBitPayload(ctx, "read discrete inputs", data, quantity)
	if err != nil {
		return nil, err
	}
	values := make([]common.DiscreteInputValue, len(bits))
	copy(values, bits)
	return values, nil
}

// GenerateReadHoldingRegistersRequest builds the request body for function code 0x03.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.3 (Read Holding Registers)
func (c *PDUCodec) GenerateReadHoldingRegistersRequest(address common.Address, quantity common.Quantity) ([]byte, error) {
	ctx := context.Background()
	if err := validateRange("quantity", address, quantity, common.MaxRegisterCount); err != nil {
		c.logger.Error(ctx, "read holding registers: %v", err)
		return nil, err
	}
	return putAddressQuantity(address, quantity), nil
}

// ParseReadHoldingRegistersResponse parses the response body for function code 0x03.
func (c *PDUCodec) ParseReadHoldingRegistersResponse(data []byte, quantity common.Quantity) ([]common.RegisterValue, error) {
	ctx := context.Background()
	words, err := c.parseRegisterPayload(ctx, "read holding registers", data, quantity)
	if err != nil {
		return nil, err
	}
	values := make([]common.RegisterValue, len(words))
	copy(values, words)
	return values, nil
}

// GenerateReadInputRegistersRequest builds the request body for function code 0x04.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.4 (Read Input Registers)
func (c *PDUCodec) GenerateReadInputRegistersRequest(address common.Address, quantity common.Quantity) ([]byte, error) {
	ctx := context.Background()
	if err := validateRange("quantity", address, quantity, common.MaxRegisterCount); err != nil {
		c.logger.Error(ctx, "read input registers: %v", err)
		return nil, err
	}
	return putAddressQuantity(address, quantity), nil
}

// ParseReadInputRegistersResponse parses the response body for function code 0x04.
func (c *PDUCodec) ParseReadInputRegistersResponse(data []byte, quantity common.Quantity) ([]common.InputRegisterValue, error) {
	ctx := context.Background()
	words, err := c.parseRegisterPayload(ctx, "read input registers", data, quantity)
	if err != nil {
		return nil, err
	}
	values := make([]common.InputRegisterValue, len(words))
	copy(values, words)
	return values, nil
}
