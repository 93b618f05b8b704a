// Package resolve decides final metadata values from competing sources
// under a strict priority order.
package resolve

import (
	"time"

	"github.com/your-org/photocat/internal/sidecar"
)

// Source labels recorded alongside resolved fields.
const (
	SourceConfig    = "config"
	SourceExif      = "exif"
	SourceFileMtime = "file_mtime"
	SourceGPS       = "gps"
	SourceNone      = "none"
)

// DateResult is a closed interval bounding the capture instant. Both bounds
// are always set and ordered.
type DateResult struct {
	NotEarlierThan time.Time
	NotLaterThan   time.Time
	Source         string
}

// ResolveDate picks the date interval by priority: sidecar hint, then the
// EXIF capture time, then the file's modification instant. A hint with one
// bound becomes a zero-width interval on that bound.
func ResolveDate(hint *sidecar.Hint, takenAt *time.Time, modTime time.Time) DateResult {
	if hint != nil && hint.HasDate() {
		earlier, later := hint.NotEarlierThan, hint.NotLaterThan
		if earlier == nil {
			earlier = later
		}
		if later == nil {
			later = earlier
		}
		res := DateResult{NotEarlierThan: *earlier, NotLaterThan: *later, Source: SourceConfig}
		if res.NotLaterThan.Before(res.NotEarlierThan) {
			res.NotEarlierThan, res.NotLaterThan = res.NotLaterThan, res.NotEarlierThan
		}
		return res
	}

	if takenAt != nil {
		t := takenAt.UTC()
		return DateResult{NotEarlierThan: t, NotLaterThan: t, Source: SourceExif}
	}

	t := modTime.UTC()
	return DateResult{NotEarlierThan: t, NotLaterThan: t, Source: SourceFileMtime}
}
