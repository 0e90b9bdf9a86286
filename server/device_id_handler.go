package server

import (
	"context"

	"github.com/Moonlight-Companies/gomodbus/common"
	"github.com/Moonlight-Companies/gomodbus/transport"
)

// deviceIdResponseHeaderSize is MEI Type + ReadDeviceID code + Conformity
// level + MoreFollows + NextObjectId + NumberOfObjects.
const deviceIdResponseHeaderSize = 6

// HandleReadDeviceIdentification processes a read device identification request
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.21 (Read Device Identification)
func (h *serverProtocolHandler) HandleReadDeviceIdentification(ctx context.Context, req common.Request, store common.DeviceIdStore) (common.Response, error) {
	data := req.GetPDU().Data

	// Request format:
	// - MEI Type (1 byte): 0x0E for Read Device Identification
	// - ReadDeviceID code (1 byte): 0x01-0x04 (access level)
	// - Object ID (1 byte): ID of the first object to obtain
	if len(data) < 3 {
		return nil, common.NewModbusError(req.GetPDU().FunctionCode, common.ExceptionInvalidDataValue)
	}

	if common.MEIType(data[0]) != common.MEIReadDeviceID {
		return nil, common.NewModbusError(req.GetPDU().FunctionCode, common.ExceptionInvalidDataValue)
	}

	readDeviceIDCode := common.ReadDeviceIDCode(data[1])
	objectID := common.DeviceIDObjectCode(data[2])

	if readDeviceIDCode < common.ReadDeviceIDBasicStream || readDeviceIDCode > common.ReadDeviceIDSpecificObject {
		return nil, common.NewModbusError(req.GetPDU().FunctionCode, common.ExceptionInvalidDataValue)
	}

	var objects []deviceIdObjectValue
	moreFollows := false
	nextObjectID := common.DeviceIDObjectCode(0)

	if readDeviceIDCode == common.ReadDeviceIDSpecificObject {
		// Individual access: exactly the requested object, no continuation.
		// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.21, Table 73
		value, ok := store.Get(ctx, objectID)
		if !ok {
			return nil, common.NewModbusError(req.GetPDU().FunctionCode, common.ExceptionDataAddressNotAvailable)
		}
		objects = []deviceIdObjectValue{{id: objectID, value: value}}
	} else {
		// Stream access: pack as many objects as fit in one PDU starting at
		// objectID, and report continuation if more remain.
		// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.21 (MoreFollows/NextObjectId)
		candidates := store.Objects(ctx, readDeviceIDCode)
		startIdx := 0
		for i, id := range candidates {
			if id >= objectID {
				startIdx = i
				break
			}
			startIdx = len(candidates)
		}

		budget := common.MaxPDULength - 1 - deviceIdResponseHeaderSize // -1 for the function code byte
		for i := startIdx; i < len(candidates); i++ {
			id := candidates[i]
			value, ok := store.Get(ctx, id)
			if !ok {
				continue
			}
			cost := 2 + len(value) // object id + length byte + value
			if cost > budget {
				moreFollows = true
				nextObjectID = id
				break
			}
			budget -= cost
			objects = append(objects, deviceIdObjectValue{id: id, value: value})
		}
	}

	responseSize := deviceIdResponseHeaderSize
	for _, obj := range objects {
		responseSize += 2 + len(obj.value)
	}

	responseData := make([]byte, responseSize)
	responseData[0] = byte(common.MEIReadDeviceID)
	responseData[1] = byte(readDeviceIDCode)
	responseData[2] = store.ConformityLevel(ctx)
	// MoreFollows is encoded as the literal bytes 0xFF (more objects follow)
	// or 0x00 (this is the last response), not as a boolean 1/0.
	// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.21, Table 74
	if moreFollows {
		responseData[3] = 0xFF
	} else {
		responseData[3] = 0x00
	}
	responseData[4] = byte(nextObjectID)
	responseData[5] = byte(len(objects))

	offset := deviceIdResponseHeaderSize
	for _, obj := range objects {
		responseData[offset] = byte(obj.id)
		responseData[offset+1] = byte(len(obj.value))
		copy(responseData[offset+2:offset+2+len(obj.value)], obj.value)
		offset += 2 + len(obj.value)
	}

	response := transport.NewResponse(
		req.GetTransactionID(),
		req.GetUnitID(),
		req.GetPDU().FunctionCode,
		responseData,
	)

	return response, nil
}

type deviceIdObjectValue struct {
	id    common.DeviceIDObjectCode
	value string
}
