// Package smf reads and writes Standard MIDI Files (SMF), formats 0, 1
// and 2, as specified by the MIDI Manufacturers Association.
//
// The package is organized around three layers: byte-level codec
// primitives (big-endian integers and variable-length quantities), an
// Event model shared by the parser and the writer, and a streaming
// Parser that drives a caller-supplied Handler. A Sequence type builds
// an in-memory, time-indexed view of a file on top of the same Handler
// contract, and a Writer re-serializes an Event stream back to bytes.
package smf

// Chunk type identifiers, as they appear on the wire.
const (
	chunkTypeHeader = "MThd"
	chunkTypeTrack  = "MTrk"
)

// Format is the SMF file format found in the header chunk.
type Format uint16

const (
	// FormatSingleTrack is format 0: exactly one track.
	FormatSingleTrack Format = 0
	// FormatMultiTrack is format 1: one or more simultaneous tracks,
	// the first of which carries only tempo/meta information by
	// convention.
	FormatMultiTrack Format = 1
	// FormatMultiSequence is format 2: one or more independent,
	// sequentially-performed patterns.
	FormatMultiSequence Format = 2
)

// headerChunkLength is the fixed payload length of the MThd chunk.
const headerChunkLength = 6

// division top bit: 0 => ticks-per-quarter-note, 1 => SMPTE.
const divisionSMPTEBit = 0x8000
