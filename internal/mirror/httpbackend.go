package mirror

import (
	"context"

	"github.com/SakuraUO/thcrap/internal/download"
)

// HTTPBackend implements Backend over a plain HTTP(S) mirror using
// the shared download primitive (component G).
type HTTPBackend struct{}

// Fetch implements Backend.
func (HTTPBackend) Fetch(ctx context.Context, url string, progress func(done, total int64) bool) ([]byte, int64, error) {
	dctx, status, err := download.Get(ctx, url, func(_ string, _ download.Status, done, total int64) bool {
		if progress == nil {
			return true
		}
		return progress(done, total)
	})
	if err != nil {
		return nil, 0, err
	}
	if status != download.Ok {
		return nil, 0, err
	}
	pingMs := dctx.TimePing.Sub(dctx.TimeStart).Milliseconds()
	return dctx.Buffer, pingMs, nil
}
