package smf

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestWriterRoundTrip (S1/S5 combined): driving a Parser's callbacks
// straight into a Writer reproduces byte-identical output, since the
// writer always emits an explicit status byte and never relies on the
// input having used running status itself.
func TestWriterRoundTrip(t *testing.T) {
	body := []byte{
		0x00, 0x90, 0x3C, 0x64,
		0x60, 0x90, 0x3C, 0x00, // explicit repeated status byte, velocity-0 note-on
	}
	body = append(body, endOfTrackBytes()...)
	data := buildFile(t, FormatSingleTrack, 96, body)

	parser := NewParser(WithZeroVelocityNoteOff(false))
	writer := NewWriter()
	require.NoError(t, parser.Parse(bytes.NewReader(data), writer))

	var out bytes.Buffer
	_, err := writer.WriteTo(&out)
	require.NoError(t, err)
	require.Equal(t, data, out.Bytes())
}

// TestWriterFourBarDrumPattern (S5): a hand-built four-bar drum pattern
// (kick on the beat, closed hi-hat on the off-beat) serializes with an
// explicit status byte on every event, then re-parses intact.
func TestWriterFourBarDrumPattern(t *testing.T) {
	const ticksPerQuarter = 96
	const kick = 36
	const hihat = 42

	writer := NewWriter()
	require.NoError(t, writer.Header(FormatSingleTrack, 1, ticksPerQuarter, false))
	require.NoError(t, writer.StartOfTrack(0))

	tick := uint32(0)
	for bar := 0; bar < 4; bar++ {
		for beat := 0; beat < 4; beat++ {
			delta := uint32(0)
			if bar != 0 || beat != 0 {
				delta = ticksPerQuarter / 2
			}
			require.NoError(t, writer.Event(Event{
				Kind: EventChannelVoice, DeltaTime: delta,
				ChannelVoice: ChannelVoiceMessage{Type: NoteOn, Channel: 9, Data1: kick, Data2: 100},
			}))
			require.NoError(t, writer.Event(Event{
				Kind: EventChannelVoice, DeltaTime: ticksPerQuarter / 2,
				ChannelVoice: ChannelVoiceMessage{Type: NoteOn, Channel: 9, Data1: hihat, Data2: 80},
			}))
			tick += ticksPerQuarter
		}
	}
	require.NoError(t, writer.Event(Event{
		Kind: EventMeta, DeltaTime: 0,
		Meta: MetaEvent{Type: MetaEndOfTrack},
	}))

	var out bytes.Buffer
	n, err := writer.WriteTo(&out)
	require.NoError(t, err)
	require.Equal(t, int64(out.Len()), n)

	// Re-parse and confirm every note arrived intact.
	parser := NewParser()
	handler := NewSequenceHandler()
	require.NoError(t, parser.Parse(&out, handler))

	events := handler.Sequence().ChannelEvents(nil)
	require.Len(t, events, 32) // 4 bars * 4 beats * 2 notes
}

// TestWriterCorrectedPolyPressureStatus: poly key pressure must be
// written with status nibble 0xA0, not the mono channel-pressure
// nibble 0xD0.
func TestWriterCorrectedPolyPressureStatus(t *testing.T) {
	writer := NewWriter()
	require.NoError(t, writer.Header(FormatSingleTrack, 1, 96, false))
	require.NoError(t, writer.Event(Event{
		Kind: EventChannelVoice,
		ChannelVoice: ChannelVoiceMessage{Type: PolyPressure, Channel: 2, Data1: 60, Data2: 100},
	}))
	require.NoError(t, writer.Event(Event{Kind: EventMeta, Meta: MetaEvent{Type: MetaEndOfTrack}}))

	var out bytes.Buffer
	_, err := writer.WriteTo(&out)
	require.NoError(t, err)

	parser := NewParser()
	handler := NewSequenceHandler()
	require.NoError(t, parser.Parse(bytes.NewReader(out.Bytes()), handler))

	events := handler.Sequence().ChannelEvents(nil)
	require.Len(t, events, 1)
	require.Equal(t, PolyPressure, events[0].ChannelVoice.Type)
	require.EqualValues(t, 0xA0, byte(events[0].ChannelVoice.Type))
}

// TestWriterInvalidSystemCommonRoundTrip: an invalid system common
// event (song select) round-trips through Writer with its fixed-length
// payload and no VLQ length prefix.
func TestWriterInvalidSystemCommonRoundTrip(t *testing.T) {
	writer := NewWriter()
	require.NoError(t, writer.Header(FormatSingleTrack, 1, 96, false))
	require.NoError(t, writer.Event(Event{
		Kind:                EventInvalidSystemCommon,
		InvalidSystemCommon: InvalidSystemCommonEvent{Status: 0xF3, Payload: []byte{0x05}},
	}))
	require.NoError(t, writer.Event(Event{Kind: EventMeta, Meta: MetaEvent{Type: MetaEndOfTrack}}))

	var out bytes.Buffer
	_, err := writer.WriteTo(&out)
	require.NoError(t, err)

	parser := NewParser()
	handler := NewSequenceHandler()
	require.NoError(t, parser.Parse(bytes.NewReader(out.Bytes()), handler))

	events := handler.Sequence().EventsByTrack(0)
	require.Equal(t, EventInvalidSystemCommon, events[0].Kind)
	require.EqualValues(t, 0xF3, events[0].InvalidSystemCommon.Status)
	require.Equal(t, []byte{0x05}, events[0].InvalidSystemCommon.Payload)
}

// TestMetaTextRoundTrip: a track-name meta event written from Text
// alone (no Payload) encodes and decodes back to the same string.
func TestMetaTextRoundTrip(t *testing.T) {
	writer := NewWriter()
	require.NoError(t, writer.Header(FormatSingleTrack, 1, 96, false))
	require.NoError(t, writer.Event(Event{
		Kind: EventMeta,
		Meta: MetaEvent{Type: MetaTrackName, Text: "Bass"},
	}))
	require.NoError(t, writer.Event(Event{Kind: EventMeta, Meta: MetaEvent{Type: MetaEndOfTrack}}))

	var out bytes.Buffer
	_, err := writer.WriteTo(&out)
	require.NoError(t, err)

	parser := NewParser()
	handler := NewSequenceHandler()
	require.NoError(t, parser.Parse(bytes.NewReader(out.Bytes()), handler))

	events := handler.Sequence().MetaEvents(func(e TimedEvent) bool { return e.Meta.Type == MetaTrackName })
	require.Len(t, events, 1)
	require.Equal(t, "Bass", events[0].Meta.Text)
}

// TestWriterCorrectedMidiPortMetaType: the MIDI port meta event must be
// written with meta type 0x21, not the channel-prefix type 0x20.
func TestWriterCorrectedMidiPortMetaType(t *testing.T) {
	writer := NewWriter()
	require.NoError(t, writer.Header(FormatSingleTrack, 1, 96, false))
	require.NoError(t, writer.Event(Event{
		Kind: EventMeta,
		Meta: MetaEvent{Type: MetaPort, Payload: []byte{0x00}},
	}))
	require.NoError(t, writer.Event(Event{Kind: EventMeta, Meta: MetaEvent{Type: MetaEndOfTrack}}))

	var out bytes.Buffer
	_, err := writer.WriteTo(&out)
	require.NoError(t, err)

	parser := NewParser()
	handler := NewSequenceHandler()
	require.NoError(t, parser.Parse(bytes.NewReader(out.Bytes()), handler))

	events := handler.Sequence().MetaEvents(func(e TimedEvent) bool { return e.Meta.Type == MetaPort })
	require.Len(t, events, 1)
	require.EqualValues(t, 0x21, events[0].Meta.Type)
}
