package smf

import (
	"fmt"
	"io"
	"sort"
)

// defaultTempo is 120 BPM, the tempo MIDI files are defined to start
// at before any MetaSetTempo event is seen.
const defaultTempo = 500000

// TimedEvent decorates an Event with its absolute tick position (since
// the start of its track) and, once a Sequence has been finalized, its
// wall-clock offset in seconds from the start of the file.
type TimedEvent struct {
	Event
	AbsoluteTicks uint32
	Seconds       float64
}

// Sequence is an in-memory, time-indexed view of a parsed SMF file. It
// is built by running a Parser with a SequenceHandler and is the
// library's counterpart to reading a whole file into memory rather
// than streaming it.
type Sequence struct {
	Format          Format
	TicksPerQuarter uint16
	SMPTE           bool
	NumTracks       int

	// SequenceName is the track-name meta event text captured from
	// track 0, the format's convention for naming the sequence as a
	// whole in both format-0 and format-1 files.
	SequenceName string
	// InitialTempo is the tempo (microseconds per quarter note) in
	// effect at the start of the sequence: the first MetaSetTempo
	// event seen, or defaultTempo if none appears.
	InitialTempo uint32
	// TrackNames holds the track-name meta event text captured per
	// track, indexed by track number. An empty string means that
	// track carried no track-name event.
	TrackNames []string

	events []TimedEvent // parse order: grouped by track, then by position within track
}

// Events returns every event in the sequence in parse order (grouped by
// track, then by position within the track).
func (s *Sequence) Events() []TimedEvent {
	out := make([]TimedEvent, len(s.events))
	copy(out, s.events)
	return out
}

// EventsByTime returns every event sorted by absolute wall-clock offset,
// breaking ties by track index then parse order, which is the order a
// real-time player would emit them in after merging tracks.
func (s *Sequence) EventsByTime() []TimedEvent {
	out := s.Events()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Seconds != out[j].Seconds {
			return out[i].Seconds < out[j].Seconds
		}
		return out[i].Track < out[j].Track
	})
	return out
}

// EventsByTrack returns the events belonging to a single track, in
// parse order.
func (s *Sequence) EventsByTrack(track int) []TimedEvent {
	var out []TimedEvent
	for _, e := range s.events {
		if e.Track == track {
			out = append(out, e)
		}
	}
	return out
}

// EventFilter is a predicate passed to the *Events accessors below. A
// nil filter matches every event of the relevant kind.
type EventFilter func(TimedEvent) bool

func matches(e TimedEvent, filter EventFilter) bool {
	return filter == nil || filter(e)
}

// SysexEvents returns every system-exclusive event matching filter, in
// parse order.
func (s *Sequence) SysexEvents(filter EventFilter) []TimedEvent {
	var out []TimedEvent
	for _, e := range s.events {
		if e.Kind == EventSystemExclusive && matches(e, filter) {
			out = append(out, e)
		}
	}
	return out
}

// MetaEvents returns every meta event matching filter, in parse order.
func (s *Sequence) MetaEvents(filter EventFilter) []TimedEvent {
	var out []TimedEvent
	for _, e := range s.events {
		if e.Kind == EventMeta && matches(e, filter) {
			out = append(out, e)
		}
	}
	return out
}

// ChannelEvents returns every channel voice event matching filter, in
// parse order.
func (s *Sequence) ChannelEvents(filter EventFilter) []TimedEvent {
	var out []TimedEvent
	for _, e := range s.events {
		if e.Kind == EventChannelVoice && matches(e, filter) {
			out = append(out, e)
		}
	}
	return out
}

// DumpEvents writes a one-line-per-event summary of the sequence to w,
// ordered by wall-clock time. It is a read-only diagnostic dump, not a
// parser Handler, and has no bearing on parsing or writing semantics.
func (s *Sequence) DumpEvents(w io.Writer) {
	events := s.EventsByTime()
	fmt.Fprintf(w, "=== sequence: format %d, %d tracks, %d events ===\n", s.Format, s.NumTracks, len(events))
	for _, e := range events {
		switch e.Kind {
		case EventChannelVoice:
			fmt.Fprintf(w, "%8.3fs track=%d %-14s ch=%-2d d1=%-3d d2=%-3d\n",
				e.Seconds, e.Track, e.ChannelVoice.Type, e.ChannelVoice.Channel, e.ChannelVoice.Data1, e.ChannelVoice.Data2)
		case EventMeta:
			fmt.Fprintf(w, "%8.3fs track=%d meta:%-16s len=%d\n",
				e.Seconds, e.Track, e.Meta.Type, len(e.Meta.Payload))
		case EventSystemExclusive:
			fmt.Fprintf(w, "%8.3fs track=%d sysex len=%d\n", e.Seconds, e.Track, len(e.Sysex.Payload))
		case EventEscapeSequence:
			fmt.Fprintf(w, "%8.3fs track=%d escape len=%d\n", e.Seconds, e.Track, len(e.Escape.Payload))
		case EventInvalidSystemCommon:
			fmt.Fprintf(w, "%8.3fs track=%d invalid status=%#x len=%d\n",
				e.Seconds, e.Track, e.InvalidSystemCommon.Status, len(e.InvalidSystemCommon.Payload))
		}
	}
}

// SequenceHandler implements Handler by accumulating events into a
// Sequence. Construct one, drive it with a Parser, then call Sequence
// once parsing completes (after EOF).
type SequenceHandler struct {
	NullHandler

	seq             *Sequence
	currentAbsTicks []uint32
	gotTempo        bool
}

// NewSequenceHandler constructs a SequenceHandler ready to be driven by
// a Parser.
func NewSequenceHandler() *SequenceHandler {
	return &SequenceHandler{seq: &Sequence{}}
}

func (h *SequenceHandler) Header(format Format, numTracks uint16, ticksPerQuarter uint16, smpte bool) error {
	h.seq.Format = format
	h.seq.TicksPerQuarter = ticksPerQuarter
	h.seq.SMPTE = smpte
	h.seq.NumTracks = int(numTracks)
	h.seq.InitialTempo = defaultTempo
	h.seq.TrackNames = make([]string, numTracks)
	h.currentAbsTicks = make([]uint32, numTracks)
	return nil
}

func (h *SequenceHandler) UpdateTicks(track int, absoluteTicks uint32) error {
	for len(h.currentAbsTicks) <= track {
		h.currentAbsTicks = append(h.currentAbsTicks, 0)
	}
	h.currentAbsTicks[track] = absoluteTicks
	return nil
}

func (h *SequenceHandler) Event(e Event) error {
	var abs uint32
	if e.Track < len(h.currentAbsTicks) {
		abs = h.currentAbsTicks[e.Track]
	}
	h.seq.events = append(h.seq.events, TimedEvent{Event: e, AbsoluteTicks: abs})

	if e.Kind == EventMeta && e.Meta.Type == MetaTrackName {
		for len(h.seq.TrackNames) <= e.Track {
			h.seq.TrackNames = append(h.seq.TrackNames, "")
		}
		h.seq.TrackNames[e.Track] = e.Meta.Text
		if e.Track == 0 {
			h.seq.SequenceName = e.Meta.Text
		}
	}
	if !h.gotTempo {
		if us, ok := e.Tempo(); ok {
			h.seq.InitialTempo = us
			h.gotTempo = true
		}
	}
	return nil
}

func (h *SequenceHandler) EOF() error {
	h.seq.computeWallTime()
	return nil
}

// Sequence returns the built Sequence. Valid after the driving Parser's
// Parse call has returned without error.
func (h *SequenceHandler) Sequence() *Sequence { return h.seq }

// computeWallTime fills in Seconds for every event by integrating the
// tempo map (for metrical files) or a flat SMPTE rate (for SMPTE
// files) against each event's per-track absolute tick count. Tempo
// changes are global regardless of which track they appear on, per the
// format's convention of carrying the tempo map on track 0 of a
// format-1 file.
func (s *Sequence) computeWallTime() {
	if s.SMPTE {
		framesPerSecond, ticksPerFrame := s.smpteRate()
		ticksPerSecond := float64(framesPerSecond) * float64(ticksPerFrame)
		for i := range s.events {
			if ticksPerSecond > 0 {
				s.events[i].Seconds = float64(s.events[i].AbsoluteTicks) / ticksPerSecond
			}
		}
		return
	}

	type tempoChange struct {
		ticks uint32
		usPerQuarter uint32
	}
	var changes []tempoChange
	for _, e := range s.events {
		if us, ok := e.Tempo(); ok {
			changes = append(changes, tempoChange{ticks: e.AbsoluteTicks, usPerQuarter: us})
		}
	}
	sort.SliceStable(changes, func(i, j int) bool { return changes[i].ticks < changes[j].ticks })

	tpq := float64(s.TicksPerQuarter)
	if tpq == 0 {
		tpq = 1
	}

	secondsAt := func(targetTicks uint32) float64 {
		seconds := 0.0
		tempo := uint32(defaultTempo)
		var lastTicks uint32
		for _, c := range changes {
			if c.ticks >= targetTicks {
				break
			}
			seconds += float64(c.ticks-lastTicks) / tpq * float64(tempo) / 1e6
			tempo = c.usPerQuarter
			lastTicks = c.ticks
		}
		seconds += float64(targetTicks-lastTicks) / tpq * float64(tempo) / 1e6
		return seconds
	}

	for i := range s.events {
		s.events[i].Seconds = secondsAt(s.events[i].AbsoluteTicks)
	}
}

// smpteRate decodes the division word's SMPTE encoding: the high byte
// (as a signed frames/second code: -24, -25, -29, -30) and the low byte
// (ticks per frame).
func (s *Sequence) smpteRate() (framesPerSecond int, ticksPerFrame int) {
	division := s.TicksPerQuarter // raw division word: high byte fps code, low byte ticks/frame
	fpsCode := int8(byte(division >> 8))
	ticksPerFrame = int(byte(division))
	switch fpsCode {
	case -24:
		framesPerSecond = 24
	case -25:
		framesPerSecond = 25
	case -29:
		framesPerSecond = 29 // 29.97 drop-frame, approximated
	case -30:
		framesPerSecond = 30
	default:
		framesPerSecond = 30
	}
	return framesPerSecond, ticksPerFrame
}
