// File: protocol/constants.go
// Author: momentics <momentics@gmail.com>
//
// WebSocket wire protocol constants.

package protocol

const (
	// Data and control opcodes.
	OpcodeContinuation = 0x0
	OpcodeText         = 0x1
	OpcodeBinary       = 0x2
	OpcodeClose        = 0x8
	OpcodePing         = 0x9
	OpcodePong         = 0xA

	// Bit masks for the first two header bytes.
	FinBit  = 0x80
	MaskBit = 0x80

	// MinFrameSize is the smallest buffer that can hold a frame header.
	// Anything shorter is treated as a broken read upstream.
	MinFrameSize = 2

	// MaxFrameHeaderLen covers an 8-byte extended length plus mask key.
	MaxFrameHeaderLen = 14
)

// WebSocketGUID is the fixed RFC6455 GUID concatenated with the client key
// when computing the Sec-WebSocket-Accept token.
const WebSocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
