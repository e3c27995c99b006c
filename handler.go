package smf

// Handler receives callbacks as the Parser walks an SMF byte stream. A
// Handler is free to return an error from any callback to abort parsing
// early; the Parser wraps it as a KindHandlerError and stops.
//
// Callback order for a well-formed file: Header once, then for each
// track StartOfTrack, zero or more Event calls (each preceded by
// ResetTicks at the start of the track and UpdateTicks before every
// event), EndOfTrack, and finally EOF once after the last track.
type Handler interface {
	// Header is called once, after the MThd chunk has been fully
	// parsed.
	Header(format Format, numTracks uint16, ticksPerQuarter uint16, smpte bool) error

	// StartOfTrack is called when an MTrk chunk begins, before any of
	// its events are delivered.
	StartOfTrack(track int) error

	// ResetTicks is called at the start of each track, before
	// UpdateTicks/Event are called for that track's first event.
	// Running tick position is per-track.
	ResetTicks(track int) error

	// UpdateTicks is called before each Event, with the absolute tick
	// position (since ResetTicks) the event occurs at.
	UpdateTicks(track int, absoluteTicks uint32) error

	// Event delivers one decoded event.
	Event(e Event) error

	// EndOfTrack is called when an MTrk chunk's end-of-track meta
	// event has been consumed.
	EndOfTrack(track int) error

	// EOF is called once, after the last track has been parsed.
	EOF() error
}

// NullHandler implements Handler with every method a no-op returning
// nil. Embed it to implement only the callbacks you care about.
type NullHandler struct{}

func (NullHandler) Header(Format, uint16, uint16, bool) error { return nil }
func (NullHandler) StartOfTrack(int) error                    { return nil }
func (NullHandler) ResetTicks(int) error                      { return nil }
func (NullHandler) UpdateTicks(int, uint32) error             { return nil }
func (NullHandler) Event(Event) error                         { return nil }
func (NullHandler) EndOfTrack(int) error                      { return nil }
func (NullHandler) EOF() error                                { return nil }

// DispatchHandler decomposes the single Event callback into one
// callback per event subtype, for callers that would otherwise start
// every Event implementation with the same type switch. Any field left
// nil is simply not called for that subtype.
type DispatchHandler struct {
	NullHandler

	OnHeader       func(format Format, numTracks uint16, ticksPerQuarter uint16, smpte bool) error
	OnStartOfTrack func(track int) error
	OnResetTicks   func(track int) error
	OnUpdateTicks  func(track int, absoluteTicks uint32) error
	OnEndOfTrack   func(track int) error
	OnEOF          func() error

	OnChannelVoice func(track int, deltaTime uint32, msg ChannelVoiceMessage) error
	OnMeta         func(track int, deltaTime uint32, meta MetaEvent) error
	OnSysex        func(track int, deltaTime uint32, sysex SysexEvent) error
	OnEscape       func(track int, deltaTime uint32, esc EscapeEvent) error
	OnInvalidEvent func(track int, deltaTime uint32, invalid InvalidSystemCommonEvent) error
}

func (h *DispatchHandler) Header(format Format, numTracks uint16, ticksPerQuarter uint16, smpte bool) error {
	if h.OnHeader != nil {
		return h.OnHeader(format, numTracks, ticksPerQuarter, smpte)
	}
	return nil
}

func (h *DispatchHandler) StartOfTrack(track int) error {
	if h.OnStartOfTrack != nil {
		return h.OnStartOfTrack(track)
	}
	return nil
}

func (h *DispatchHandler) ResetTicks(track int) error {
	if h.OnResetTicks != nil {
		return h.OnResetTicks(track)
	}
	return nil
}

func (h *DispatchHandler) UpdateTicks(track int, absoluteTicks uint32) error {
	if h.OnUpdateTicks != nil {
		return h.OnUpdateTicks(track, absoluteTicks)
	}
	return nil
}

func (h *DispatchHandler) EndOfTrack(track int) error {
	if h.OnEndOfTrack != nil {
		return h.OnEndOfTrack(track)
	}
	return nil
}

func (h *DispatchHandler) EOF() error {
	if h.OnEOF != nil {
		return h.OnEOF()
	}
	return nil
}

func (h *DispatchHandler) Event(e Event) error {
	switch e.Kind {
	case EventChannelVoice:
		if h.OnChannelVoice != nil {
			return h.OnChannelVoice(e.Track, e.DeltaTime, e.ChannelVoice)
		}
	case EventMeta:
		if h.OnMeta != nil {
			return h.OnMeta(e.Track, e.DeltaTime, e.Meta)
		}
	case EventSystemExclusive:
		if h.OnSysex != nil {
			return h.OnSysex(e.Track, e.DeltaTime, e.Sysex)
		}
	case EventEscapeSequence:
		if h.OnEscape != nil {
			return h.OnEscape(e.Track, e.DeltaTime, e.Escape)
		}
	case EventInvalidSystemCommon:
		if h.OnInvalidEvent != nil {
			return h.OnInvalidEvent(e.Track, e.DeltaTime, e.InvalidSystemCommon)
		}
	}
	return nil
}
