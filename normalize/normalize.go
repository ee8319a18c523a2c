// Package normalize turns catalog responses of unknown shape into well-typed car records.
//
// A response may be a bare array, an object wrapping the array under a known field,
// a deeper nesting, a single record, or an object whose values are records. Extraction
// runs an ordered chain of strategies; the first one that yields records wins.
package normalize

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/karthikraju391/rentchat/models"
	"go.uber.org/zap"
)

// ErrExhausted is reported when no extraction strategy recognised the response.
var ErrExhausted = errors.New("normalize: no extraction strategy matched")

// Kind classifies a normalization outcome.
type Kind int

const (
	// Ok means at least one record was extracted.
	Ok Kind = iota
	// Empty means the response was recognised as a list, but the list was empty.
	Empty
	// Unrecognized means no strategy found anything that looks like records.
	Unrecognized
)

func (k Kind) String() string {
	switch k {
	case Ok:
		return "ok"
	case Empty:
		return "empty"
	case Unrecognized:
		return "unrecognized"
	}
	return "unknown"
}

// Result is the outcome of a normalization.
type Result struct {
	Kind     Kind
	Records  []models.Car
	Strategy string // name of the matching strategy, empty unless Kind is Ok
	Raw      any    // the input, kept for Unrecognized results
}

// Err returns ErrExhausted for unrecognised input and nil otherwise.
func (r Result) Err() error {
	if r.Kind == Unrecognized {
		return ErrExhausted
	}
	return nil
}

// Rows returns the records to render. A result without records yields the single
// placeholder row, so a listing always has something to show.
func (r Result) Rows() []models.Car {
	if r.Kind == Ok && len(r.Records) > 0 {
		return r.Records
	}
	return []models.Car{Placeholder()}
}

// Normalizer runs a strategy chain and logs which branch matched.
type Normalizer struct {
	chain []Strategy
	log   *zap.Logger
}

// New returns a Normalizer using DefaultChain. A nil logger disables logging.
func New(log *zap.Logger) *Normalizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Normalizer{chain: DefaultChain, log: log}
}

// WithChain returns a copy of n that runs chain instead of DefaultChain.
func (n *Normalizer) WithChain(chain []Strategy) *Normalizer {
	return &Normalizer{chain: chain, log: n.log}
}

var std = New(nil)

// Normalize runs the default normalizer on a decoded JSON value.
func Normalize(raw any) Result { return std.Normalize(raw) }

// NormalizeJSON decodes data and normalizes it. Undecodable input is Unrecognized.
func NormalizeJSON(data []byte) Result { return std.NormalizeJSON(data) }

// Normalize extracts and sanitizes the records held by raw. It never fails.
func (n *Normalizer) Normalize(raw any) Result {
	sawEmpty := false
	for _, s := range n.chain {
		items, ok := s.Extract(raw)
		if !ok {
			continue
		}
		if len(items) == 0 {
			sawEmpty = true
			continue
		}
		n.log.Debug("catalog response normalized",
			zap.String("strategy", s.Name), zap.Int("records", len(items)))
		return Result{Kind: Ok, Records: SanitizeAll(items), Strategy: s.Name}
	}

	if sawEmpty {
		n.log.Debug("catalog response holds no records")
		return Result{Kind: Empty, Raw: raw}
	}
	n.log.Warn("catalog response not recognised", zap.Error(ErrExhausted))
	return Result{Kind: Unrecognized, Raw: raw}
}

// NormalizeJSON decodes data and normalizes it.
func (n *Normalizer) NormalizeJSON(data []byte) Result {
	dec := json.NewDecoder(bytes.NewReader(data))
	var raw any
	if err := dec.Decode(&raw); err != nil {
		n.log.Warn("catalog response is not JSON", zap.Error(err))
		return Result{Kind: Unrecognized, Raw: string(data)}
	}
	return n.Normalize(raw)
}
