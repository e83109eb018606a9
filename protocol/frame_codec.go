// File: protocol/frame_codec.go
// Package protocol implements the RFC6455 frame codec with payload size
// enforcement.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Client-to-server frames carry a 4-byte mask key applied via cyclic XOR;
// server-to-client frames are never masked. The payload length field is
// three-tiered: 7-bit inline, 16-bit extended (indicator 126) or 64-bit
// extended (indicator 127), big-endian in both extended cases.

package protocol

import (
	"encoding/binary"
	"errors"
)

// MaxFramePayload caps a single frame payload to protect the server from
// memory exhaustion on hostile length fields.
const MaxFramePayload = 1 << 20 // 1 MiB

var (
	ErrFrameTooShort    = errors.New("frame too short")
	ErrPayloadTruncated = errors.New("frame payload truncated")
	ErrPayloadTooLarge  = errors.New("frame payload exceeds maximum allowed size")
)

// Frame is a decoded WebSocket data frame.
type Frame struct {
	Final   bool
	Opcode  byte
	Masked  bool
	MaskKey [4]byte
	Payload []byte
}

// DecodeFrame parses one raw WebSocket frame. The returned payload is
// unmasked and owned by the caller.
func DecodeFrame(raw []byte) (*Frame, error) {
	if len(raw) < MinFrameSize {
		return nil, ErrFrameTooShort
	}
	fin := raw[0]&FinBit != 0
	opcode := raw[0] & 0x0F
	masked := raw[1]&MaskBit != 0
	length := int64(raw[1] & 0x7F)
	offset := 2

	switch length {
	case 126:
		if len(raw) < offset+2 {
			return nil, ErrFrameTooShort
		}
		length = int64(binary.BigEndian.Uint16(raw[offset:]))
		offset += 2
	case 127:
		if len(raw) < offset+8 {
			return nil, ErrFrameTooShort
		}
		length = int64(binary.BigEndian.Uint64(raw[offset:]))
		offset += 8
	}

	if length > MaxFramePayload {
		return nil, ErrPayloadTooLarge
	}

	var maskKey [4]byte
	if masked {
		if len(raw) < offset+4 {
			return nil, ErrFrameTooShort
		}
		copy(maskKey[:], raw[offset:offset+4])
		offset += 4
	}

	if int64(len(raw)-offset) < length {
		return nil, ErrPayloadTruncated
	}
	data := raw[offset : offset+int(length)]

	payload := make([]byte, length)
	if masked {
		for i := int64(0); i < length; i++ {
			payload[i] = data[i] ^ maskKey[i%4]
		}
	} else {
		copy(payload, data)
	}

	return &Frame{
		Final:   fin,
		Opcode:  opcode,
		Masked:  masked,
		MaskKey: maskKey,
		Payload: payload,
	}, nil
}

// EncodeFrame serializes a final, unmasked server-to-client frame carrying
// payload under the given opcode.
func EncodeFrame(payload []byte, opcode byte) ([]byte, error) {
	plen := len(payload)
	if plen > MaxFramePayload {
		return nil, ErrPayloadTooLarge
	}
	b0 := byte(FinBit) | (opcode & 0x0F)

	var hdr []byte
	switch {
	case plen <= 125:
		hdr = []byte{b0, byte(plen)}
	case plen <= 0xFFFF:
		hdr = make([]byte, 4)
		hdr[0] = b0
		hdr[1] = 126
		binary.BigEndian.PutUint16(hdr[2:], uint16(plen))
	default:
		hdr = make([]byte, 10)
		hdr[0] = b0
		hdr[1] = 127
		binary.BigEndian.PutUint64(hdr[2:], uint64(plen))
	}

	buf := make([]byte, len(hdr)+plen)
	copy(buf, hdr)
	copy(buf[len(hdr):], payload)
	return buf, nil
}
