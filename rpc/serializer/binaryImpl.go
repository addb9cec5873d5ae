package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/docdb/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format.
//
// Layout: 1 byte message type, 1 byte field flags, then the present fields in
// flag order. Byte slices and strings are prefixed with their length
// (uint32), string lists with their element count (uint32).
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasPath  byte = 1 << 0
	hasValue byte = 1 << 1
	hasNames byte = 1 << 2
	hasOk    byte = 1 << 3
	hasCode  byte = 1 << 4
	hasErr   byte = 1 << 5
	hasMeta  byte = 1 << 6
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	result := make([]byte, 2, b.sizeBytes(msg))
	result[0] = byte(msg.MsgType)

	var flags byte
	if msg.Path != nil {
		flags |= hasPath
		result = appendStrings(result, msg.Path)
	}
	if msg.Value != nil {
		flags |= hasValue
		result = appendBytes(result, msg.Value)
	}
	if msg.Names != nil {
		flags |= hasNames
		result = appendStrings(result, msg.Names)
	}
	if msg.Ok {
		// the flag is the value
		flags |= hasOk
	}
	if msg.Code != 0 {
		flags |= hasCode
		result = binary.BigEndian.AppendUint64(result, msg.Code)
	}
	if msg.Err != "" {
		flags |= hasErr
		result = appendBytes(result, []byte(msg.Err))
	}
	if msg.Meta != nil {
		flags |= hasMeta
		result = appendBytes(result, msg.Meta)
	}

	result[1] = flags
	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < 2 {
		return fmt.Errorf("data too short for message header")
	}

	r := reader{data: data, pos: 2}
	flags := data[1]

	*msg = common.Message{MsgType: common.MessageType(data[0])}

	if flags&hasPath != 0 {
		msg.Path = r.strings("path")
	}
	if flags&hasValue != 0 {
		msg.Value = r.bytes("value")
	}
	if flags&hasNames != 0 {
		msg.Names = r.strings("names")
	}
	msg.Ok = flags&hasOk != 0
	if flags&hasCode != 0 {
		msg.Code = r.uint64("code")
	}
	if flags&hasErr != 0 {
		msg.Err = string(r.bytes("error"))
	}
	if flags&hasMeta != 0 {
		msg.Meta = r.bytes("meta")
	}

	return r.err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	// 1 byte for MsgType + 1 byte for flags
	size := 2

	stringsSize := func(list []string) int {
		n := 4
		for _, s := range list {
			n += 4 + len(s)
		}
		return n
	}

	if msg.Path != nil {
		size += stringsSize(msg.Path)
	}
	if msg.Value != nil {
		size += 4 + len(msg.Value)
	}
	if msg.Names != nil {
		size += stringsSize(msg.Names)
	}
	if msg.Code != 0 {
		size += 8
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}
	if msg.Meta != nil {
		size += 4 + len(msg.Meta)
	}

	return size
}

func appendBytes(dst, b []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(b)))
	return append(dst, b...)
}

func appendStrings(dst []byte, list []string) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(list)))
	for _, s := range list {
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(s)))
		dst = append(dst, s...)
	}
	return dst
}

// reader reads the fields of a serialized message. After the first error
// all reads return zero values, the error is kept in err.
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) need(n int, field string) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.err = fmt.Errorf("data too short for %s", field)
		return false
	}
	return true
}

func (r *reader) uint32(field string) uint32 {
	if !r.need(4, field) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v
}

func (r *reader) uint64(field string) uint64 {
	if !r.need(8, field) {
		return 0
	}
	v := binary.BigEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v
}

// bytes returns a copy, the input buffer is reused by the transports
func (r *reader) bytes(field string) []byte {
	n := int(r.uint32(field + " length"))
	if !r.need(n, field) {
		return nil
	}
	b := make([]byte, n)
	copy(b, r.data[r.pos:r.pos+n])
	r.pos += n
	return b
}

func (r *reader) strings(field string) []string {
	count := int(r.uint32(field + " count"))
	// every element needs at least its length prefix
	if !r.need(count*4, field) {
		return nil
	}
	list := make([]string, count)
	for i := range list {
		n := int(r.uint32(field + " element length"))
		if !r.need(n, field) {
			return nil
		}
		list[i] = string(r.data[r.pos : r.pos+n])
		r.pos += n
	}
	return list
}
