package emit

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/metalagman/evalrunner/internal/result"
)

// Emitter serialises an outcome and hands it to its sink.
type Emitter struct {
	sink Sink
}

// NewEmitter returns an emitter writing to sink.
func NewEmitter(sink Sink) *Emitter {
	return &Emitter{sink: sink}
}

// Emit writes outcome as one JSON document. Any failure is fatal for the run
// and wraps ErrChannelWrite.
func (e *Emitter) Emit(outcome result.Outcome) error {
	doc, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("%w: encode outcome: %v", ErrChannelWrite, err)
	}
	if err := e.sink.WriteOnce(doc); err != nil {
		if errors.Is(err, ErrAlreadyWritten) {
			return fmt.Errorf("%w: %w", ErrChannelWrite, err)
		}
		return err
	}

	log.Info().Bool("success", outcome.IsSuccess()).Int("bytes", len(doc)).Msg("Result emitted")
	return nil
}
