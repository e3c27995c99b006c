package smf

import "sort"

// trackLocalMetaTypes lists the meta event types §4.6 of the format
// treats as meaningful only on their originating track: a copy riding
// on any track but 0 is a leftover of the source sequencer's internal
// bookkeeping and is dropped when every track collapses onto track 0.
var trackLocalMetaTypes = map[MetaType]bool{
	MetaSequenceNumber: true,
	MetaTrackName:      true,
	MetaInstrumentName: true,
	MetaMarker:         true,
	MetaCuePoint:       true,
	MetaPort:           true,
	MetaSetTempo:       true,
	MetaSMPTEOffset:    true,
	MetaTimeSignature:  true,
	MetaKeySignature:   true,
}

// mergeSortKey orders events within the same absolute tick by status
// byte descending: meta (0xFF) first, then escape (0xF7) and invalid
// system common (0xF1-0xFE) by their status byte, then sysex (0xF0),
// then channel voice messages (where, since higher message types sort
// before lower ones, control changes land ahead of note data).
func mergeSortKey(e Event) byte {
	switch e.Kind {
	case EventMeta:
		return 0xFF
	case EventEscapeSequence:
		return 0xF7
	case EventSystemExclusive:
		return 0xF0
	case EventInvalidSystemCommon:
		return e.InvalidSystemCommon.Status
	case EventChannelVoice:
		return byte(e.ChannelVoice.Type) | e.ChannelVoice.Channel
	default:
		return 0
	}
}

// MergeToFormat0 flattens a multi-track (format 1 or 2) Sequence into a
// single-track format 0 Sequence. Events from every track are
// interleaved in absolute-tick order, ties broken by status byte
// descending (meta first, then sysex, then control changes, then note
// data) and finally by original track index and parse order; delta
// times are recomputed against the merged timeline. Meta events in
// trackLocalMetaTypes originating from any track but 0 are dropped,
// and every end-of-track meta event except the final, synthesized one
// is dropped so the result carries exactly one, as format 0 requires.
func MergeToFormat0(src *Sequence) *Sequence {
	events := make([]TimedEvent, 0, len(src.events))
	for _, e := range src.events {
		if e.IsEndOfTrack() {
			continue
		}
		if e.Track != 0 && e.Kind == EventMeta && trackLocalMetaTypes[e.Meta.Type] {
			continue
		}
		events = append(events, e)
	}

	sort.SliceStable(events, func(i, j int) bool {
		if events[i].AbsoluteTicks != events[j].AbsoluteTicks {
			return events[i].AbsoluteTicks < events[j].AbsoluteTicks
		}
		ki, kj := mergeSortKey(events[i].Event), mergeSortKey(events[j].Event)
		if ki != kj {
			return ki > kj
		}
		return events[i].Track < events[j].Track
	})

	merged := make([]TimedEvent, 0, len(events)+1)
	var lastTicks uint32
	for _, e := range events {
		e.Track = 0
		e.DeltaTime = e.AbsoluteTicks - lastTicks
		lastTicks = e.AbsoluteTicks
		merged = append(merged, e)
	}

	endOfTrack := Event{
		Kind:      EventMeta,
		DeltaTime: 0,
		Track:     0,
		Meta:      MetaEvent{Type: MetaEndOfTrack},
	}
	merged = append(merged, TimedEvent{Event: endOfTrack, AbsoluteTicks: lastTicks})

	var trackName string
	if len(src.TrackNames) > 0 {
		trackName = src.TrackNames[0]
	}

	out := &Sequence{
		Format:          FormatSingleTrack,
		TicksPerQuarter: src.TicksPerQuarter,
		SMPTE:           src.SMPTE,
		NumTracks:       1,
		SequenceName:    src.SequenceName,
		InitialTempo:    src.InitialTempo,
		TrackNames:      []string{trackName},
		events:          merged,
	}
	out.computeWallTime()
	return out
}
