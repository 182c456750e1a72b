package marketdata

import (
	"context"
	"time"

	"github.com/trading-grow/internal/logging"
	"github.com/trading-grow/internal/models"
)

// PriceRecorder persists observed prices. *storage.PriceHistoryRepository implements it.
type PriceRecorder interface {
	Record(ctx context.Context, points ...models.PricePoint) error
}

// RecordingProvider appends every snapshot it resolves to the price history.
// Recording is best effort and never fails a lookup.
type RecordingProvider struct {
	next     Provider
	recorder PriceRecorder
}

// NewRecordingProvider wraps next so that resolved snapshots are recorded
func NewRecordingProvider(next Provider, recorder PriceRecorder) *RecordingProvider {
	return &RecordingProvider{next: next, recorder: recorder}
}

// Lookup implements Provider
func (p *RecordingProvider) Lookup(ctx context.Context, symbol string) (*Snapshot, error) {
	snapshot, err := p.next.Lookup(ctx, symbol)
	if err != nil {
		return nil, err
	}

	point := models.PricePoint{
		Symbol:        snapshot.Symbol,
		Price:         snapshot.Price,
		ChangePercent: snapshot.ChangePercent,
		Source:        snapshot.Source,
		RecordedAt:    time.Now().UTC(),
	}
	if err := p.recorder.Record(ctx, point); err != nil {
		logging.FromContext(ctx).WithField("symbol", snapshot.Symbol).WithError(err).Warn("failed to record price")
	}
	return snapshot, nil
}
