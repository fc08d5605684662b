// Package stream turns native backend streams into canonical chunks and
// assembles those chunks into a complete result.
package stream

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tjfontaine/polyglot-chat/internal/backend"
	"github.com/tjfontaine/polyglot-chat/internal/domain"
)

// Result is one canonical chunk or a stream failure.
type Result struct {
	Chunk domain.Chunk
	Err   error
}

// Translator converts exactly one native stream element into zero or more
// canonical chunks.
type Translator func(native any) ([]domain.Chunk, error)

var (
	translatorMu sync.RWMutex
	translators  = make(map[string]Translator)
)

// RegisterTranslator registers fn for a stream format. Panics if the format
// is empty or already registered.
func RegisterTranslator(format string, fn Translator) {
	translatorMu.Lock()
	defer translatorMu.Unlock()

	if format == "" {
		panic("stream format cannot be empty")
	}
	if fn == nil {
		panic(fmt.Sprintf("translator for %q cannot be nil", format))
	}
	if _, exists := translators[format]; exists {
		panic(fmt.Sprintf("translator for %q already registered", format))
	}
	translators[format] = fn
}

// HasTranslator reports whether a dedicated translator is registered.
func HasTranslator(format string) bool {
	translatorMu.RLock()
	defer translatorMu.RUnlock()
	_, ok := translators[format]
	return ok
}

// LookupTranslator returns the translator for format, falling back to
// Identity for unknown formats.
func LookupTranslator(format string) Translator {
	translatorMu.RLock()
	defer translatorMu.RUnlock()
	if fn, ok := translators[format]; ok {
		return fn
	}
	return Identity
}

// Formats returns the formats with a dedicated translator.
func Formats() []string {
	translatorMu.RLock()
	defer translatorMu.RUnlock()
	out := make([]string, 0, len(translators))
	for f := range translators {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// ClearTranslators removes all registered translators (for testing only).
func ClearTranslators() {
	translatorMu.Lock()
	defer translatorMu.Unlock()
	translators = make(map[string]Translator)
}

// Identity passes through elements that already have the canonical shape:
// domain.Chunk, *domain.Chunk, or a domain.ChunkSource. Anything else is
// reported as ErrIncompatibleChunk.
func Identity(native any) ([]domain.Chunk, error) {
	switch v := native.(type) {
	case domain.Chunk:
		return []domain.Chunk{v}, nil
	case *domain.Chunk:
		if v != nil {
			return []domain.Chunk{*v}, nil
		}
	case domain.ChunkSource:
		return []domain.Chunk{v.CanonicalChunk()}, nil
	}
	return nil, fmt.Errorf("%w: %T", domain.ErrIncompatibleChunk, native)
}

// Normalize translates raw with the translator registered for format. It
// reads one native element at a time and only after the previous chunks were
// consumed. The first error, from the source or from translation, is
// forwarded and ends the output.
//
// When the consumer stops early it must cancel ctx so the source is
// released.
func Normalize(ctx context.Context, format string, raw <-chan backend.Event) <-chan Result {
	translate := LookupTranslator(format)
	out := make(chan Result)

	go func() {
		defer close(out)

		send := func(r Result) bool {
			select {
			case out <- r:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			var ev backend.Event
			var ok bool
			select {
			case ev, ok = <-raw:
				if !ok {
					return
				}
			case <-ctx.Done():
				return
			}

			if ev.Err != nil {
				send(Result{Err: ev.Err})
				return
			}

			chunks, err := translate(ev.Data)
			if err != nil {
				send(Result{Err: err})
				return
			}
			for _, c := range chunks {
				if !send(Result{Chunk: c}) {
					return
				}
			}
		}
	}()

	return out
}
