package common

import "context"

// DeviceIdStore holds the configurable Read Device Identification objects
// served by function code 0x2B/0x0E. It is separate from DeviceIdentification
// (the client's parsed response) because the server side needs to store,
// not parse, this information, and needs to enumerate objects by category
// (basic/regular/extended) to answer stream-access requests.
type DeviceIdStore interface {
	// Get returns the object value for id and whether it is configured.
	Get(ctx context.Context, id DeviceIDObjectCode) (value string, ok bool)

	// Set configures the object value for id.
	Set(ctx context.Context, id DeviceIDObjectCode, value string) error

	// ConformityLevel returns the device's conformity level byte, as returned
	// in every Read Device Identification response.
	ConformityLevel(ctx context.Context) byte

	// Objects returns the ordered set of configured object IDs in the given
	// stream category:
	//   ReadDeviceIDBasicStream    -> 0x00-0x02
	//   ReadDeviceIDRegularStream  -> 0x03-0x7F
	//   ReadDeviceIDExtendedStream -> 0x80-0xFF
	// Individual access (ReadDeviceIDSpecificObject) does not use this method.
	Objects(ctx context.Context, code ReadDeviceIDCode) []DeviceIDObjectCode
}

// ExternalEngine lets a Server hand off request handling entirely to an
// external dispatcher instead of the built-in function-code handler table.
// This is the seam an RTU gateway uses to bridge a TCP front end to a
// serial back end: the engine receives the decoded request, forwards it
// over the serial line, and returns the reply (or a *ModbusError) to send
// back to the TCP client.
type ExternalEngine interface {
	// HandleRequest processes request and returns the response to send back,
	// or an error. A *ModbusError is translated into a Modbus exception
	// response; any other error closes the connection.
	HandleRequest(ctx context.Context, request Request) (Response, error)
}
