package protocol

import (
	"context"

	"github.com/Moonlight-Companies/gomodbus/common"
)

// GenerateReadExceptionStatusRequest builds the (empty) request body for
// function code 0x07.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.8 (Read Exception Status)
func (c *PDUCodec) GenerateReadExceptionStatusRequest() ([]byte, error) {
	return []byte{}, nil
}

// ParseReadExceptionStatusResponse parses the response body for function code 0x07.
func (c *PDUCodec) ParseReadExceptionStatusResponse(data []byte) (common.ExceptionStatus, error) {
	ctx := context.Background()
	if !expectExactLength(data, 1) {
		c.logger.Error(ctx, "read exception status: response length mismatch: expected 1, got %d", len(data))
		return common.ExceptionStatus(0), common.ErrInvalidResponseLength
	}
	return common.ExceptionStatus(data[0]), nil
}

// GenerateReadDeviceIdentificationRequest builds the MEI-wrapped request body
// for function code 0x2B / MEI type 0x0E.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.21 (Read Device Identification)
func (c *PDUCodec) GenerateReadDeviceIdentificationRequest(readDeviceIDCode common.ReadDeviceIDCode, objectID common.DeviceIDObjectCode) ([]byte, error) {
	ctx := context.Background()
	if readDeviceIDCode < common.ReadDeviceIDBasic || readDeviceIDCode > common.ReadDeviceIDSpecific {
		c.logger.Error(ctx, "read device identification: invalid device ID code %d", readDeviceIDCode)
		return nil, common.NewValueError("readDeviceIDCode", "must be one of the four defined access types")
	}
	return []byte{byte(common.MEIReadDeviceID), byte(readDeviceIDCode), byte(objectID)}, nil
}

// deviceIDHeaderLen is MEI type + device ID code + conformity level +
// more-follows + next object id + number of objects, before any objects.
const deviceIDHeaderLen = 6

// ParseReadDeviceIdentificationResponse parses the response body for function
// code 0x2B / MEI type 0x0E, walking the variable-length object list that
// follows the fixed 6-byte header.
func (c *PDUCodec) ParseReadDeviceIdentificationResponse(data []byte) (*common.DeviceIdentification, error) {
	ctx := context.Background()

	if len(data) < deviceIDHeaderLen {
		c.logger.Error(ctx, "read device identification: response shorter than header: %d bytes", len(data))
		return nil, common.ErrInvalidResponseLength
	}
	if common.MEIType(data[0]) != common.MEIReadDeviceID {
		c.logger.Error(ctx, "read device identification: unexpected MEI type 0x%02X", data[0])
		return nil, common.NewValueError("meiType", "response MEI type is not ReadDeviceID")
	}

	objectCount := int(data[5])
	result := &common.DeviceIdentification{
		ReadDeviceIDCode: common.ReadDeviceIDCode(data[1]),
		ConformityLevel:  data[2],
		MoreFollows:      data[3] != 0,
		NextObjectID:     common.DeviceIDObjectCode(data[4]),
		NumberOfObjects:  data[5],
		Objects:          make([]common.DeviceIDObject, 0, objectCount),
	}

	objects, err := parseDeviceIDObjects(data[deviceIDHeaderLen:], objectCount)
	if err != nil {
		c.logger.Error(ctx, "read device identification: %v", err)
		return nil, err
	}
	result.Objects = objects

	return result, nil
}

// parseDeviceIDObjects walks a sequence of (id byte, length byte, value
// bytes) triples. Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.21, Table 72
func parseDeviceIDObjects(data []byte, count int) ([]common.DeviceIDObject, error) {
	objects := make([]common.DeviceIDObject, 0, count)
	offset := 0

	for i := 0; i < count; i++ {
		if offset+2 > len(data) {
			return nil, common.ErrInvalidResponseFormat
		}
		id := common.DeviceIDObjectCode(data[offset])
		length := data[offset+1]
		offset += 2

		if offset+int(length) > len(data) {
			return nil, common.ErrInvalidResponseFormat
		}
		value := string(data[offset : offset+int(length)])
		offset += int(length)

		objects = append(objects, common.DeviceIDObject{ID: id, Length: length, Value: value})
	}

	return objects, nil
}
