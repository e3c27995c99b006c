package smf

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestType1ToType0Merge (S6): a two-track format-1 file (tempo track +
// note track) merges into a single format-0 track with events in
// absolute-time order and exactly one end-of-track event.
func TestType1ToType0Merge(t *testing.T) {
	tempoTrack := []byte{
		0x00, 0xFF, 0x51, 0x03, 0x07, 0xA1, 0x20, // tempo 500000
	}
	tempoTrack = append(tempoTrack, endOfTrackBytes()...)

	noteTrack := []byte{
		0x00, 0xFF, 0x03, 0x01, 0x50, // track name "P" on track 1: must not survive the merge
		0x00, 0x90, 0x3C, 0x64,
		0x60, 0x80, 0x3C, 0x40,
	}
	noteTrack = append(noteTrack, endOfTrackBytes()...)

	data := buildFile(t, FormatMultiTrack, 96, tempoTrack, noteTrack)

	parser := NewParser()
	handler := NewSequenceHandler()
	require.NoError(t, parser.Parse(bytes.NewReader(data), handler))

	merged := MergeToFormat0(handler.Sequence())
	require.Equal(t, FormatSingleTrack, merged.Format)
	require.Equal(t, 1, merged.NumTracks)

	events := merged.EventsByTrack(0)
	endOfTrackCount := 0
	for _, e := range events {
		if e.IsEndOfTrack() {
			endOfTrackCount++
		}
	}
	require.Equal(t, 1, endOfTrackCount)
	require.True(t, events[len(events)-1].IsEndOfTrack())

	// tempo meta (tick 0) then note-on (tick 0) then note-off (tick 96)
	require.Equal(t, EventMeta, events[0].Kind)
	require.Equal(t, MetaSetTempo, events[0].Meta.Type)
	require.Equal(t, EventChannelVoice, events[1].Kind)
	require.Equal(t, NoteOn, events[1].ChannelVoice.Type)
	require.Equal(t, EventChannelVoice, events[2].Kind)
	require.Equal(t, NoteOff, events[2].ChannelVoice.Type)

	for _, e := range events {
		require.False(t, e.Kind == EventMeta && e.Meta.Type == MetaTrackName,
			"track-name meta from a non-zero track must be dropped by the merge")
	}
}

// TestSequenceCapturesNameAndTempo: SequenceHandler captures the
// sequence name (track 0's track-name meta), per-track names, and the
// initial tempo as it parses.
func TestSequenceCapturesNameAndTempo(t *testing.T) {
	track0 := []byte{
		0x00, 0xFF, 0x03, 0x05, 'T', 'r', 'a', 'c', 'k',
		0x00, 0xFF, 0x51, 0x03, 0x07, 0xA1, 0x20, // tempo 500000
	}
	track0 = append(track0, endOfTrackBytes()...)

	track1 := []byte{
		0x00, 0xFF, 0x03, 0x04, 'D', 'r', 'u', 'm',
	}
	track1 = append(track1, endOfTrackBytes()...)

	data := buildFile(t, FormatMultiTrack, 96, track0, track1)

	parser := NewParser()
	handler := NewSequenceHandler()
	require.NoError(t, parser.Parse(bytes.NewReader(data), handler))

	seq := handler.Sequence()
	require.Equal(t, "Track", seq.SequenceName)
	require.EqualValues(t, 500000, seq.InitialTempo)
	require.Equal(t, []string{"Track", "Drum"}, seq.TrackNames)
}

// TestSequenceDefaultTempo: a file with no MetaSetTempo event reports
// the format's default of 120bpm.
func TestSequenceDefaultTempo(t *testing.T) {
	body := []byte{0x00, 0x90, 0x3C, 0x64}
	body = append(body, endOfTrackBytes()...)
	data := buildFile(t, FormatSingleTrack, 96, body)

	parser := NewParser()
	handler := NewSequenceHandler()
	require.NoError(t, parser.Parse(bytes.NewReader(data), handler))

	require.EqualValues(t, defaultTempo, handler.Sequence().InitialTempo)
}

func TestDumpEvents(t *testing.T) {
	body := []byte{0x00, 0x90, 0x3C, 0x64}
	body = append(body, endOfTrackBytes()...)
	data := buildFile(t, FormatSingleTrack, 96, body)

	parser := NewParser()
	handler := NewSequenceHandler()
	require.NoError(t, parser.Parse(bytes.NewReader(data), handler))

	var out bytes.Buffer
	handler.Sequence().DumpEvents(&out)
	require.Contains(t, out.String(), "note-on")
	require.Contains(t, out.String(), "end-of-track")
}

func TestSMPTEWallClock(t *testing.T) {
	// fps code -30 (0xE2 as signed byte), 80 ticks/frame
	division := uint16(0xE250)
	body := []byte{0x50, 0x90, 0x3C, 0x64} // delta 80 ticks = 1 frame at 30fps = 1/30s
	body = append(body, endOfTrackBytes()...)
	data := buildFile(t, FormatSingleTrack, division, body)

	parser := NewParser()
	handler := NewSequenceHandler()
	require.NoError(t, parser.Parse(bytes.NewReader(data), handler))

	events := handler.Sequence().EventsByTrack(0)
	require.InDelta(t, 1.0/30.0, events[0].Seconds, 1e-9)
}
