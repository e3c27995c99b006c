package smf

import (
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/rs/zerolog"
)

// config holds the shared functional-options state for the Parser and
// the Writer. Neither type exposes it directly; Option values mutate it
// through apply.
type config struct {
	strict bool
	logger zerolog.Logger
	text   encoding.Encoding

	// zeroVelocityIsNoteOff controls whether a note-on event with
	// velocity 0 is reported to the Handler as EventChannelVoice with
	// Type NoteOn (false, the literal wire encoding) or rewritten to
	// NoteOff (true), matching how most sequencers treat it.
	zeroVelocityIsNoteOff bool
}

func defaultConfig() config {
	return config{
		strict:                true,
		logger:                zerolog.Nop(),
		text:                  nil, // nil: decode as UTF-8 without transcoding
		zeroVelocityIsNoteOff: true,
	}
}

// Option configures a Parser or Writer constructor.
type Option func(*config)

// WithStrict sets strict (true, the default) or lenient (false) error
// propagation. In strict mode any malformed input aborts parsing with
// an *Error. In lenient mode recoverable conditions (a bad running
// status byte, an oversized meta length that still fits the track, an
// unrecognized chunk type at top level) are logged and skipped instead.
func WithStrict(strict bool) Option {
	return func(c *config) { c.strict = strict }
}

// WithLogger installs a zerolog.Logger used to report lenient-mode
// warnings. The default is a no-op logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithTextEncoding sets the character encoding used to decode meta
// event text payloads (track name, lyric, marker, ...). The default
// decodes payloads as UTF-8 without transcoding, matching modern SMF
// files. Pass charmap.ISO8859_1 for files produced by legacy Latin-1
// sequencers.
func WithTextEncoding(enc encoding.Encoding) Option {
	return func(c *config) { c.text = enc }
}

// WithZeroVelocityNoteOff controls whether a note-on event with
// velocity 0 is normalized to a note-off event before being delivered
// to a Handler. Enabled by default, matching common sequencer
// convention; disable it to see the event exactly as it appears on the
// wire.
func WithZeroVelocityNoteOff(enabled bool) Option {
	return func(c *config) { c.zeroVelocityIsNoteOff = enabled }
}

// Latin1 is a convenience alias for the common legacy encoding, so
// callers can write smf.WithTextEncoding(smf.Latin1) instead of
// reaching into golang.org/x/text themselves.
var Latin1 = charmap.ISO8859_1
