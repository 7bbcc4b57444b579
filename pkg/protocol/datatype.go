package protocol

import "fmt"

// DataType identifies how a payload is represented on the wire and how it
// should be presented to the caller.
type DataType uint8

const (
	// DataTypeJSON carries the payload as a raw JSON value.
	DataTypeJSON DataType = iota

	// DataTypeText carries the payload as a JSON string.
	DataTypeText

	// DataTypeBinary carries the payload as a base64-encoded JSON string.
	DataTypeBinary
)

// Wire names of the data types.
const (
	dataTypeJSONName   = "json"
	dataTypeTextName   = "text"
	dataTypeBinaryName = "binary"
)

// Content types used at the upstream HTTP boundary.
const (
	ContentTypeJSON   = "application/json"
	ContentTypeText   = "text/plain"
	ContentTypeBinary = "application/octet-stream"
)

// String returns the wire name of the data type.
func (dt DataType) String() string {
	switch dt {
	case DataTypeJSON:
		return dataTypeJSONName
	case DataTypeText:
		return dataTypeTextName
	case DataTypeBinary:
		return dataTypeBinaryName
	default:
		return "unknown"
	}
}

// ContentType returns the HTTP content type used when the payload crosses
// the upstream HTTP boundary.
func (dt DataType) ContentType() string {
	switch dt {
	case DataTypeJSON:
		return ContentTypeJSON
	case DataTypeText:
		return ContentTypeText
	default:
		return ContentTypeBinary
	}
}

// ParseDataType parses a wire name into a DataType.
func ParseDataType(name string) (DataType, error) {
	switch name {
	case dataTypeJSONName:
		return DataTypeJSON, nil
	case dataTypeTextName:
		return DataTypeText, nil
	case dataTypeBinaryName:
		return DataTypeBinary, nil
	default:
		return 0, fmt.Errorf("protocol: unknown data type %q", name)
	}
}

// DataTypeFromContentType maps an HTTP content type to a DataType.
// Parameters such as charset are ignored. Anything that is not JSON or
// plain text is treated as binary.
func DataTypeFromContentType(contentType string) DataType {
	base := contentType
	for i := 0; i < len(base); i++ {
		if base[i] == ';' {
			base = base[:i]
			break
		}
	}
	for len(base) > 0 && (base[len(base)-1] == ' ' || base[len(base)-1] == '\t') {
		base = base[:len(base)-1]
	}
	switch base {
	case ContentTypeJSON:
		return DataTypeJSON
	case ContentTypeText:
		return DataTypeText
	default:
		return DataTypeBinary
	}
}
