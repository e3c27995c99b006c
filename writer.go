package smf

import (
	"bytes"
	"io"

	"github.com/pkg/errors"

	"github.com/midigrove/smf/internal/miditext"
)

// Writer builds an SMF byte stream from a sequence of Handler
// callbacks. It implements Handler itself, so the same Parser→Handler
// pipeline that builds a Sequence can instead be pointed at a Writer to
// re-serialize (or transform) a file, which is how Writer's round-trip
// law is exercised in tests: parsing a file that uses no running status
// and no split sysex, with WithZeroVelocityNoteOff(false), and writing
// it back reproduces the original bytes exactly. Writer never emits
// running status: every channel voice message carries an explicit
// status byte.
//
// A Writer is single-use: construct one, drive it through exactly one
// Header/.../EOF cycle, then call WriteTo.
type Writer struct {
	cfg config

	format          Format
	ticksPerQuarter uint16
	smpte           bool
	headerSet       bool

	tracks []*bytes.Buffer
}

// NewWriter constructs a Writer. Writer accepts the same Option type as
// NewParser for symmetry, but a malformed value (an out-of-range
// channel, an oversized VLQ) is always rejected with KindArgumentOutOfRange
// regardless of WithStrict — there is no lenient way to write invalid bytes.
func NewWriter(opts ...Option) *Writer {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Writer{cfg: cfg}
}

func (w *Writer) Header(format Format, numTracks uint16, ticksPerQuarter uint16, smpte bool) error {
	w.format = format
	w.ticksPerQuarter = ticksPerQuarter
	w.smpte = smpte
	w.headerSet = true
	w.tracks = make([]*bytes.Buffer, 0, numTracks)
	return nil
}

func (w *Writer) StartOfTrack(track int) error {
	for len(w.tracks) <= track {
		w.tracks = append(w.tracks, &bytes.Buffer{})
	}
	return nil
}

func (w *Writer) ResetTicks(track int) error { return nil }

func (w *Writer) UpdateTicks(track int, absoluteTicks uint32) error { return nil }

func (w *Writer) EndOfTrack(track int) error { return nil }

func (w *Writer) EOF() error { return nil }

// Event encodes e and appends it to its track's buffer. Events for a
// track must be delivered in the order they should appear on the wire;
// Writer does not sort or buffer out of order.
func (w *Writer) Event(e Event) error {
	if e.Track >= len(w.tracks) {
		if err := w.StartOfTrack(e.Track); err != nil {
			return err
		}
	}
	buf := w.tracks[e.Track]

	if err := writeVlq(buf, e.DeltaTime); err != nil {
		return newError(KindArgumentOutOfRange, -1, errors.Wrap(err, "delta time"))
	}

	switch e.Kind {
	case EventChannelVoice:
		return w.writeChannelVoice(buf, e.ChannelVoice)
	case EventMeta:
		return w.writeMeta(buf, e.Meta)
	case EventSystemExclusive:
		return w.writeSysex(buf, e.Sysex)
	case EventEscapeSequence:
		return w.writeEscape(buf, e.Escape)
	case EventInvalidSystemCommon:
		return w.writeInvalidSystemCommon(buf, e.InvalidSystemCommon)
	default:
		return newError(KindArgumentOutOfRange, -1, errors.Errorf("unknown event kind %v", e.Kind))
	}
}

func (w *Writer) writeChannelVoice(buf *bytes.Buffer, msg ChannelVoiceMessage) error {
	if msg.Channel > 0x0F {
		return newError(KindArgumentOutOfRange, -1, errors.Errorf("channel %d out of range", msg.Channel))
	}
	status := byte(msg.Type) | msg.Channel
	if err := buf.WriteByte(status); err != nil {
		return err
	}

	n := msg.Type.dataLen()
	if n >= 1 {
		if err := buf.WriteByte(msg.Data1 & 0x7F); err != nil {
			return err
		}
	}
	if n >= 2 {
		if err := buf.WriteByte(msg.Data2 & 0x7F); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeMeta(buf *bytes.Buffer, meta MetaEvent) error {
	payload := meta.Payload
	if payload == nil && meta.Type.IsText() && meta.Text != "" {
		encoded, err := miditext.Encode(meta.Text, w.cfg.text)
		if err != nil {
			return newError(KindArgumentOutOfRange, -1, errors.Wrap(err, "encoding meta text"))
		}
		payload = encoded
	}

	if err := buf.WriteByte(0xFF); err != nil {
		return err
	}
	if err := buf.WriteByte(byte(meta.Type)); err != nil {
		return err
	}
	if uint64(len(payload)) > maxVlqValue {
		return newError(KindArgumentOutOfRange, -1, errors.New("meta payload too large"))
	}
	if err := writeVlq(buf, uint32(len(payload))); err != nil {
		return err
	}
	_, err := buf.Write(payload)
	return err
}

func (w *Writer) writeInvalidSystemCommon(buf *bytes.Buffer, invalid InvalidSystemCommonEvent) error {
	if err := buf.WriteByte(invalid.Status); err != nil {
		return err
	}
	_, err := buf.Write(invalid.Payload)
	return err
}

func (w *Writer) writeSysex(buf *bytes.Buffer, sysex SysexEvent) error {
	if err := buf.WriteByte(0xF0); err != nil {
		return err
	}
	if err := writeVlq(buf, uint32(len(sysex.Payload))); err != nil {
		return newError(KindArgumentOutOfRange, -1, errors.Wrap(err, "sysex length"))
	}
	_, err := buf.Write(sysex.Payload)
	return err
}

func (w *Writer) writeEscape(buf *bytes.Buffer, esc EscapeEvent) error {
	if err := buf.WriteByte(0xF7); err != nil {
		return err
	}
	if err := writeVlq(buf, uint32(len(esc.Payload))); err != nil {
		return newError(KindArgumentOutOfRange, -1, errors.Wrap(err, "escape length"))
	}
	_, err := buf.Write(esc.Payload)
	return err
}

// WriteTo serializes the accumulated header and tracks as a complete
// SMF byte stream to dst. It does not append an end-of-track meta
// event on the caller's behalf; the caller's Event calls must have
// included one per track, per the format's requirement.
func (w *Writer) WriteTo(dst io.Writer) (int64, error) {
	if !w.headerSet {
		return 0, newError(KindArgumentOutOfRange, -1, errors.New("Header was never called"))
	}

	cw := &countingWriter{w: dst}

	if _, err := cw.Write([]byte(chunkTypeHeader)); err != nil {
		return cw.n, err
	}
	if err := writeUint(cw, headerChunkLength, 4); err != nil {
		return cw.n, err
	}
	if err := writeUint(cw, uint32(w.format), 2); err != nil {
		return cw.n, err
	}
	if err := writeUint(cw, uint32(len(w.tracks)), 2); err != nil {
		return cw.n, err
	}
	division := uint32(w.ticksPerQuarter)
	if w.smpte {
		division |= divisionSMPTEBit
	}
	if err := writeUint(cw, division, 2); err != nil {
		return cw.n, err
	}

	for _, buf := range w.tracks {
		if _, err := cw.Write([]byte(chunkTypeTrack)); err != nil {
			return cw.n, err
		}
		if err := writeUint(cw, uint32(buf.Len()), 4); err != nil {
			return cw.n, err
		}
		if _, err := cw.Write(buf.Bytes()); err != nil {
			return cw.n, err
		}
	}

	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
