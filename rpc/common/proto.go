package common

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// General fields
	Path  []string `json:"path,omitempty"`  // Used for: Create, Get, Put, Delete, Exists, List (prefix)
	Value []byte   `json:"value,omitempty"` // Encoded document. Used for: Create, Put (request), Get, Info (response)

	// Response only fields
	Names []string `json:"names,omitempty"` // Used for: List responses
	Ok    bool     `json:"ok,omitempty"`    // Used for: Get, Exists responses
	Code  uint64   `json:"code,omitempty"`  // store.RetCode of Err, 0 if no error
	Err   string   `json:"err,omitempty"`   // Empty if no error, otherwise contains the error message

	// Meta information
	Meta []byte `json:"meta,omitempty"` // Unused, can be used for additional Adapters
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewCreateRequest creates a new Create request
func NewCreateRequest(path []string, doc []byte) *Message {
	return &Message{
		MsgType: MsgTDocCreate,
		Path:    path,
		Value:   doc,
	}
}

// NewPutRequest creates a new Put request
func NewPutRequest(path []string, doc []byte) *Message {
	return &Message{
		MsgType: MsgTDocPut,
		Path:    path,
		Value:   doc,
	}
}

// NewGetRequest creates a new Get request
func NewGetRequest(path []string) *Message {
	return &Message{
		MsgType: MsgTDocGet,
		Path:    path,
	}
}

// NewGetResponse creates a new Get response
func NewGetResponse(doc []byte, ok bool) *Message {
	return &Message{
		MsgType: MsgTDocGet,
		Ok:      ok,
		Value:   doc,
	}
}

// NewDeleteRequest creates a new Delete request
func NewDeleteRequest(path []string) *Message {
	return &Message{
		MsgType: MsgTDocDelete,
		Path:    path,
	}
}

// NewExistsRequest creates a new Exists request
func NewExistsRequest(path []string) *Message {
	return &Message{
		MsgType: MsgTDocExists,
		Path:    path,
	}
}

// NewExistsResponse creates a new Exists response
func NewExistsResponse(ok bool) *Message {
	return &Message{
		MsgType: MsgTDocExists,
		Ok:      ok,
	}
}

// NewListRequest creates a new List request
func NewListRequest(prefix []string) *Message {
	return &Message{
		MsgType: MsgTDocList,
		Path:    prefix,
	}
}

// NewListResponse creates a new List response
func NewListResponse(names []string) *Message {
	return &Message{
		MsgType: MsgTDocList,
		Names:   names,
	}
}

// NewInfoRequest creates a new Info request
func NewInfoRequest() *Message {
	return &Message{
		MsgType: MsgTDocInfo,
	}
}

// NewInfoResponse creates a new Info response, info is the JSON encoded
// db.DatabaseInfo
func NewInfoResponse(info []byte) *Message {
	return &Message{
		MsgType: MsgTDocInfo,
		Value:   info,
	}
}

// NewResponse creates a response of type t without payload. A non nil err
// is stored with the given code.
func NewResponse(t MessageType, code uint64, err error) *Message {
	msg := &Message{
		MsgType: t,
	}
	if err != nil {
		msg.Code = code
		msg.Err = err.Error()
	}
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(code uint64, err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Code:    code,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

var messageTypeNames = map[MessageType]string{
	MsgTSuccess:   "success",
	MsgTError:     "error",
	MsgTDocCreate: "create",
	MsgTDocGet:    "get",
	MsgTDocPut:    "put",
	MsgTDocDelete: "delete",
	MsgTDocExists: "exists",
	MsgTDocList:   "list",
	MsgTDocInfo:   "info",
	MsgTCustom:    "custom",
}

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	for msgType, name := range messageTypeNames {
		if name == s {
			*t = msgType
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// IStore operations

	MsgTDocCreate // Create a new document
	MsgTDocGet    // Read a document
	MsgTDocPut    // Create or replace a document
	MsgTDocDelete // Delete a document
	MsgTDocExists // Check if a document exists
	MsgTDocList   // List names below a prefix
	MsgTDocInfo   // Read the database info

	// Custom operations

	MsgTCustom // Custom operation type
)
