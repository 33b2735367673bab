package market

import (
	"context"

	"github.com/neroshop/neroshop-server/internal/codec"
)

// SweepReport counts the outcome of a sweep.
type SweepReport struct {
	Checked   int `json:"checked"`
	Present   int `json:"present"`
	Absent    int `json:"absent"`
	Malformed int `json:"malformed"`
}

// Sweep resolves every indexed key of content so that keys the DHT lost are
// evicted. It stops at the first transport or index failure.
func (r *Resolver) Sweep(ctx context.Context, content codec.ContentType) (SweepReport, error) {
	var report SweepReport
	keys, err := r.index.KeysByContent(ctx, string(content))
	if err != nil {
		return report, err
	}
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++
		value, err := r.Resolve(ctx, key, content)
		switch {
		case IsParseError(err):
			report.Malformed++
		case err != nil:
			return report, err
		case value == nil:
			report.Absent++
		default:
			report.Present++
		}
	}
	log.Infof("Swept %d %s keys: %d present, %d absent, %d malformed",
		report.Checked, content, report.Present, report.Absent, report.Malformed)
	return report, nil
}
