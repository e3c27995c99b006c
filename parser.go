package smf

import (
	"bufio"
	"io"

	"github.com/pkg/errors"

	"github.com/midigrove/smf/internal/miditext"
)

// Parser drives a Handler by reading a Standard MIDI File byte stream.
// A Parser is stateless between calls to Parse and may be reused and
// even shared across goroutines calling Parse on independent readers.
type Parser struct {
	cfg config
}

// NewParser constructs a Parser. By default it runs in strict mode: any
// malformed input aborts with an *Error. Pass WithStrict(false) for
// lenient mode.
func NewParser(opts ...Option) *Parser {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Parser{cfg: cfg}
}

// chunkHeader is the 8-byte id+length prefix shared by MThd and MTrk.
type chunkHeader struct {
	id     string
	length uint32
}

func readChunkHeader(r io.Reader) (chunkHeader, error) {
	var idBuf [4]byte
	if _, err := io.ReadFull(r, idBuf[:]); err != nil {
		return chunkHeader{}, err
	}
	length, err := readUint(r, 4)
	if err != nil {
		return chunkHeader{}, errors.Wrap(err, "reading chunk length")
	}
	return chunkHeader{id: string(idBuf[:]), length: length}, nil
}

// ParseHeader reads the leading MThd chunk from r and returns its
// three fields. ticksPerQuarter is meaningful only when smpte is false;
// when smpte is true the returned value instead carries the division
// word's raw SMPTE encoding (frames/second code in the high byte,
// ticks/frame in the low byte), as consumed by Sequence's SMPTE wall-
// clock computation.
func (p *Parser) ParseHeader(r io.Reader) (format Format, numTracks uint16, ticksPerQuarter uint16, smpte bool, err error) {
	ch, err := readChunkHeader(r)
	if err != nil {
		return 0, 0, 0, false, newError(KindTruncatedHeader, -1, err)
	}
	if ch.id != chunkTypeHeader {
		return 0, 0, 0, false, newError(KindInvalidChunkID, -1,
			errors.Errorf("expected MThd, found %q", ch.id))
	}
	if ch.length < headerChunkLength {
		return 0, 0, 0, false, newError(KindTruncatedHeader, -1,
			errors.Errorf("MThd length %d is shorter than the required 6 bytes", ch.length))
	}

	lr := &io.LimitedReader{R: r, N: int64(ch.length)}

	fmtWord, err := readUint(lr, 2)
	if err != nil {
		return 0, 0, 0, false, newError(KindTruncatedHeader, 0, err)
	}
	ntrks, err := readUint(lr, 2)
	if err != nil {
		return 0, 0, 0, false, newError(KindTruncatedHeader, 2, err)
	}
	division, err := readUint(lr, 2)
	if err != nil {
		return 0, 0, 0, false, newError(KindTruncatedHeader, 4, err)
	}

	format = Format(fmtWord)
	if format > FormatMultiSequence {
		if p.cfg.strict {
			return 0, 0, 0, false, newError(KindFormatViolation, 0,
				errors.Errorf("unknown format %d", fmtWord))
		}
		p.cfg.logger.Warn().Uint32("format", fmtWord).Msg("unrecognized SMF format, continuing leniently")
	}
	if format == FormatSingleTrack && ntrks != 1 {
		if p.cfg.strict {
			return 0, 0, 0, false, newError(KindFormatViolation, 2,
				errors.Errorf("format 0 requires exactly 1 track, header declares %d", ntrks))
		}
		p.cfg.logger.Warn().Uint32("ntrks", ntrks).Msg("format 0 with ntrks != 1, continuing leniently")
	}

	smpte = division&divisionSMPTEBit != 0
	ticksPerQuarter = uint16(division)

	// Any header bytes beyond the 6 required (some writers pad MThd)
	// are simply skipped.
	if lr.N > 0 {
		if _, err := io.CopyN(io.Discard, lr, lr.N); err != nil {
			return 0, 0, 0, false, newError(KindTruncatedHeader, int64(ch.length)-lr.N, err)
		}
	}

	return format, uint16(ntrks), ticksPerQuarter, smpte, nil
}

// Parse reads a complete SMF stream from r, invoking h's callbacks in
// the order described on the Handler type. It returns the first error
// encountered, wrapped as an *Error where the failure originates in
// this package, or the Handler's own error (wrapped as KindHandlerError)
// if a callback returned one.
func (p *Parser) Parse(r io.Reader, h Handler) error {
	format, numTracks, ticksPerQuarter, smpte, err := p.ParseHeader(r)
	if err != nil {
		return err
	}
	if err := h.Header(format, numTracks, ticksPerQuarter, smpte); err != nil {
		return newError(KindHandlerError, -1, err)
	}

	track := 0
	for {
		ch, err := readChunkHeader(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return newError(KindIoError, -1, err)
		}

		if ch.id != chunkTypeTrack {
			if p.cfg.strict {
				return newError(KindInvalidChunkID, -1,
					errors.Errorf("expected MTrk, found %q", ch.id))
			}
			p.cfg.logger.Warn().Str("chunk", ch.id).Msg("skipping unrecognized chunk")
			if _, err := io.CopyN(io.Discard, r, int64(ch.length)); err != nil {
				return newError(KindIoError, -1, err)
			}
			continue
		}

		lr := &io.LimitedReader{R: r, N: int64(ch.length)}
		if err := p.parseTrack(track, lr, h); err != nil {
			return err
		}
		track++
	}

	if err := h.EOF(); err != nil {
		return newError(KindHandlerError, -1, err)
	}
	return nil
}

func (p *Parser) parseTrack(track int, lr *io.LimitedReader, h Handler) error {
	if err := h.StartOfTrack(track); err != nil {
		return newError(KindHandlerError, -1, err)
	}
	if err := h.ResetTicks(track); err != nil {
		return newError(KindHandlerError, -1, err)
	}

	br := bufio.NewReader(lr)
	var runningStatus byte
	var absoluteTicks uint32
	endOfTrackSeen := false

	// sysexContinuation tracks a sysex message split across one or more
	// 0xF7 continuation packets: sysexBuf accumulates payload bytes and
	// sysexDelta holds the delta time of the packet that opened it, so
	// the coalesced event is timestamped at the first packet's tick per
	// the format's continuation convention, not the packet that closes it.
	var sysexContinuation bool
	var sysexBuf []byte
	var sysexDelta uint32
	var sysexAbsTicks uint32
	// pendingDelta accumulates delta times swallowed by buffered (not
	// yet dispatched) continuation packets, so the next Event dispatched
	// after the coalesced sysex still reports however many ticks actually
	// elapsed on the wire before it.
	var pendingDelta uint32

	// Loop termination relies on readVlq/readEventBody hitting io.EOF
	// or the end-of-track meta event, not on lr.N: bufio prefetches
	// from the underlying io.LimitedReader in one shot for any track
	// smaller than its buffer, which drains lr.N to 0 immediately while
	// still holding unread buffered bytes.
	for {
		deltaTime, _, err := readVlq(br)
		if err != nil {
			if err := p.handleTrackErr(KindTruncatedVarlen, err); err != nil {
				return err
			}
			break
		}
		absoluteTicks += deltaTime
		pendingDelta += deltaTime

		status, isNewStatus, err := p.readStatusByte(br, runningStatus)
		if err != nil {
			if err := p.handleTrackErr(KindUnexpectedDataByte, err); err != nil {
				return err
			}
			break
		}
		if isNewStatus && status < 0xF0 {
			runningStatus = status
		} else if status == 0xFF || (status >= 0xF0 && status <= 0xFE) {
			runningStatus = 0
		}

		if status == 0xF7 && sysexContinuation {
			payload, err := readLengthPrefixed(br)
			if err != nil {
				if err := p.handleTrackErr(KindTruncatedTrack, err); err != nil {
					return err
				}
				break
			}
			sysexBuf = append(sysexBuf, payload...)
			if len(sysexBuf) == 0 || sysexBuf[len(sysexBuf)-1] != 0xF7 {
				continue // still buffering; no event to dispatch yet
			}
			sysexContinuation = false
			if err := h.UpdateTicks(track, sysexAbsTicks); err != nil {
				return newError(KindHandlerError, -1, err)
			}
			event := Event{Kind: EventSystemExclusive, DeltaTime: sysexDelta, Track: track, Sysex: SysexEvent{Payload: sysexBuf}}
			sysexBuf = nil
			if err := h.Event(event); err != nil {
				return newError(KindHandlerError, -1, err)
			}
			continue
		}

		if status == 0xF0 {
			payload, err := readLengthPrefixed(br)
			if err != nil {
				if err := p.handleTrackErr(KindTruncatedTrack, err); err != nil {
					return err
				}
				break
			}
			if len(payload) > 0 && payload[len(payload)-1] == 0xF7 {
				if err := h.UpdateTicks(track, absoluteTicks); err != nil {
					return newError(KindHandlerError, -1, err)
				}
				event := Event{Kind: EventSystemExclusive, DeltaTime: pendingDelta, Track: track, Sysex: SysexEvent{Payload: payload}}
				pendingDelta = 0
				if err := h.Event(event); err != nil {
					return newError(KindHandlerError, -1, err)
				}
				continue
			}
			sysexContinuation = true
			sysexBuf = append([]byte(nil), payload...)
			sysexDelta = pendingDelta
			pendingDelta = 0
			sysexAbsTicks = absoluteTicks
			continue // incomplete; await a continuation packet
		}

		if err := h.UpdateTicks(track, absoluteTicks); err != nil {
			return newError(KindHandlerError, -1, err)
		}

		event, err := p.readEventBody(br, status, track, pendingDelta)
		if err != nil {
			if err := p.handleTrackErr(KindTruncatedTrack, err); err != nil {
				return err
			}
			break
		}
		pendingDelta = 0

		if event.IsEndOfTrack() {
			endOfTrackSeen = true
		}
		if err := h.Event(event); err != nil {
			return newError(KindHandlerError, -1, err)
		}
		if endOfTrackSeen {
			break
		}
	}

	if sysexContinuation {
		if p.cfg.strict {
			return newError(KindTruncatedTrack, -1, errors.New("track ended mid sysex continuation"))
		}
		p.cfg.logger.Warn().Int("track", track).Msg("track ended mid sysex continuation, discarding partial message")
	}

	if !endOfTrackSeen && p.cfg.strict {
		return newError(KindTruncatedTrack, -1, errors.New("track ended without an end-of-track meta event"))
	}
	if !endOfTrackSeen {
		p.cfg.logger.Warn().Int("track", track).Msg("track ended without an end-of-track meta event")
	}

	// Drain any trailing bytes after end-of-track (some writers pad);
	// lr.N may already read 0 here even with buffered bytes remaining
	// in br, so drain through br itself rather than by lr.N's count.
	io.Copy(io.Discard, br) //nolint:errcheck

	if err := h.EndOfTrack(track); err != nil {
		return newError(KindHandlerError, -1, err)
	}
	return nil
}

// readStatusByte returns the effective status byte for the next event:
// either a freshly read status byte (isNewStatus true, and the byte has
// already been consumed), or the running status carried over from a
// previous event (isNewStatus false, and the just-read data byte is
// pushed back for readEventBody to consume as the first data byte).
func (p *Parser) readStatusByte(br *bufio.Reader, runningStatus byte) (status byte, isNewStatus bool, err error) {
	b, err := br.ReadByte()
	if err != nil {
		return 0, false, err
	}
	if b&0x80 != 0 {
		return b, true, nil
	}
	if runningStatus == 0 {
		return 0, false, errors.Errorf("data byte %#x with no running status in effect", b)
	}
	if err := br.UnreadByte(); err != nil {
		return 0, false, err
	}
	return runningStatus, false, nil
}

func (p *Parser) readEventBody(br *bufio.Reader, status byte, track int, deltaTime uint32) (Event, error) {
	switch {
	case status >= 0x80 && status < 0xF0:
		return p.readChannelVoice(br, status, track, deltaTime)
	case status == 0xF7:
		return p.readEscape(br, track, deltaTime)
	case status == 0xFF:
		return p.readMeta(br, track, deltaTime)
	case status >= 0xF1 && status <= 0xFE:
		return p.readInvalidSystemCommon(br, status, track, deltaTime)
	default:
		return Event{}, errors.Errorf("unsupported status byte %#x", status)
	}
}

// systemDataSizes is the static fixed-length table for system common and
// real-time status bytes (0xF1-0xFE): MIDI time code quarter frame,
// song position pointer, and song select carry a fixed payload; every
// other byte in the range carries none.
var systemDataSizes = map[byte]int{
	0xF1: 1, // MIDI time code quarter frame
	0xF2: 2, // song position pointer
	0xF3: 1, // song select
}

func (p *Parser) readInvalidSystemCommon(br *bufio.Reader, status byte, track int, deltaTime uint32) (Event, error) {
	size := systemDataSizes[status]
	var payload []byte
	if size > 0 {
		payload = make([]byte, size)
		if _, err := io.ReadFull(br, payload); err != nil {
			return Event{}, err
		}
	}
	return Event{
		Kind:                EventInvalidSystemCommon,
		DeltaTime:           deltaTime,
		Track:               track,
		InvalidSystemCommon: InvalidSystemCommonEvent{Status: status, Payload: payload},
	}, nil
}

// readLengthPrefixed reads a VLQ length followed by that many payload
// bytes, the shape shared by sysex, escape/continuation, and meta
// event bodies.
func readLengthPrefixed(br *bufio.Reader) ([]byte, error) {
	length, _, err := readVlq(br)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(br, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (p *Parser) readChannelVoice(br *bufio.Reader, status byte, track int, deltaTime uint32) (Event, error) {
	cvType := ChannelVoiceType(status & 0xF0)
	channel := status & 0x0F

	msg := ChannelVoiceMessage{Type: cvType, Channel: channel}
	n := cvType.dataLen()
	if n >= 1 {
		b, err := br.ReadByte()
		if err != nil {
			return Event{}, err
		}
		msg.Data1 = b & 0x7F
	}
	if n >= 2 {
		b, err := br.ReadByte()
		if err != nil {
			return Event{}, err
		}
		msg.Data2 = b & 0x7F
	}

	if p.cfg.zeroVelocityIsNoteOff && cvType == NoteOn && msg.Data2 == 0 {
		msg.Type = NoteOff
	}

	return Event{Kind: EventChannelVoice, DeltaTime: deltaTime, Track: track, ChannelVoice: msg}, nil
}

func (p *Parser) readEscape(br *bufio.Reader, track int, deltaTime uint32) (Event, error) {
	payload, err := readLengthPrefixed(br)
	if err != nil {
		return Event{}, err
	}
	return Event{Kind: EventEscapeSequence, DeltaTime: deltaTime, Track: track, Escape: EscapeEvent{Payload: payload}}, nil
}

func (p *Parser) readMeta(br *bufio.Reader, track int, deltaTime uint32) (Event, error) {
	typeByte, err := br.ReadByte()
	if err != nil {
		return Event{}, err
	}
	payload, err := readLengthPrefixed(br)
	if err != nil {
		return Event{}, err
	}
	meta := MetaEvent{Type: MetaType(typeByte), Payload: payload}
	if meta.Type.IsText() {
		text, err := miditext.Decode(payload, p.cfg.text)
		if err != nil {
			return Event{}, errors.Wrap(err, "decoding meta text")
		}
		meta.Text = text
	}
	return Event{
		Kind:      EventMeta,
		DeltaTime: deltaTime,
		Track:     track,
		Meta:      meta,
	}, nil
}

// handleTrackErr applies strict/lenient policy to a recoverable
// mid-track parsing failure: in strict mode it returns an *Error; in
// lenient mode it logs and returns nil so the caller breaks out of the
// track loop without failing the whole parse.
func (p *Parser) handleTrackErr(kind Kind, cause error) error {
	if p.cfg.strict {
		return newError(kind, -1, cause)
	}
	p.cfg.logger.Warn().Str("kind", kind.String()).Err(cause).Msg("recovering from track error in lenient mode")
	return nil
}
