package zerobus

import (
	"encoding/binary"
	"fmt"
)

// Wire frames exchanged on the ingest stream. Every frame is one gRPC message
// carried through the raw passthrough codec: a one-byte type tag followed by
// the frame body.
//
//	client → server
//	  'H'  header: u16 table-name length, table name, u32 max in-flight,
//	       u8 recovery flag, serialized FileDescriptorProto
//	  'R'  record: u64 offset, payload bytes
//	  'F'  flush:  u64 last assigned offset
//	server → client
//	  'S'  stream id: utf-8 identifier assigned by the server
//	  'A'  ack: u64 durability offset (all records ≤ offset are durable)
const (
	frameHeader = 'H'
	frameRecord = 'R'
	frameFlush  = 'F'
	frameStream = 'S'
	frameAck    = 'A'
)

func encodeHeaderFrame(tableName string, maxInflight int, recovery bool, descriptor []byte) []byte {
	b := make([]byte, 0, 8+len(tableName)+len(descriptor))
	b = append(b, frameHeader)
	b = binary.BigEndian.AppendUint16(b, uint16(len(tableName)))
	b = append(b, tableName...)
	b = binary.BigEndian.AppendUint32(b, uint32(maxInflight))
	if recovery {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}
	b = append(b, descriptor...)
	return b
}

func encodeRecordFrame(offset int64, payload []byte) []byte {
	b := make([]byte, 0, 9+len(payload))
	b = append(b, frameRecord)
	b = binary.BigEndian.AppendUint64(b, uint64(offset))
	b = append(b, payload...)
	return b
}

func encodeFlushFrame(offset int64) []byte {
	b := make([]byte, 0, 9)
	b = append(b, frameFlush)
	b = binary.BigEndian.AppendUint64(b, uint64(offset))
	return b
}

func encodeStreamFrame(id string) []byte {
	b := make([]byte, 0, 1+len(id))
	b = append(b, frameStream)
	b = append(b, id...)
	return b
}

func encodeAckFrame(offset int64) []byte {
	b := make([]byte, 0, 9)
	b = append(b, frameAck)
	b = binary.BigEndian.AppendUint64(b, uint64(offset))
	return b
}

func decodeStreamFrame(b []byte) (string, error) {
	if len(b) < 1 || b[0] != frameStream {
		return "", fmt.Errorf("zerobus: expected stream frame, got %q", frameType(b))
	}
	return string(b[1:]), nil
}

func decodeAckFrame(b []byte) (int64, error) {
	if len(b) != 9 || b[0] != frameAck {
		return 0, fmt.Errorf("zerobus: expected ack frame, got %q", frameType(b))
	}
	return int64(binary.BigEndian.Uint64(b[1:])), nil
}

func frameType(b []byte) byte {
	if len(b) == 0 {
		return '?'
	}
	return b[0]
}
