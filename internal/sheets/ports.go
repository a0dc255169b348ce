package sheets

import (
	"context"

	"cadenza/internal/services"
)

// Ports for outbound adapters.
type (
	// OccurrenceWriter appends projected occurrences to an external ledger.
	OccurrenceWriter interface {
		AppendOccurrences(ctx context.Context, occurrences []services.Occurrence) (written int, err error)
	}
)
