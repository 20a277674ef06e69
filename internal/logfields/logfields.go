package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID       = "run_id"
	KeyDestination = "destination"
	KeyCoordinate  = "coordinate"
	KeyClassifier  = "classifier"
	KeyClass       = "classification"
	KeyAttempt     = "attempt"
	KeyStep        = "step"
	KeyStatus      = "status"
	KeyDurationMS  = "duration_ms"
	KeyURL         = "url"
	KeyPath        = "path"
	KeySize        = "size"
	KeySource      = "source"
	KeyKey         = "key"
	KeyCategory    = "category"
	KeyError       = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr          { return slog.String(KeyRunID, id) }
func Destination(name string) slog.Attr  { return slog.String(KeyDestination, name) }
func Coordinate(c string) slog.Attr      { return slog.String(KeyCoordinate, c) }
func Classifier(c string) slog.Attr      { return slog.String(KeyClassifier, c) }
func Classification(c string) slog.Attr  { return slog.String(KeyClass, c) }
func Attempt(n int) slog.Attr            { return slog.Int(KeyAttempt, n) }
func Step(name string) slog.Attr         { return slog.String(KeyStep, name) }
func Status(s string) slog.Attr          { return slog.String(KeyStatus, s) }
func URL(u string) slog.Attr             { return slog.String(KeyURL, u) }
func Path(p string) slog.Attr            { return slog.String(KeyPath, p) }
func Size(n int64) slog.Attr             { return slog.Int64(KeySize, n) }
func Source(name string) slog.Attr       { return slog.String(KeySource, name) }
func Key(k string) slog.Attr             { return slog.String(KeyKey, k) }
func Category(c string) slog.Attr        { return slog.String(KeyCategory, c) }
func Duration(d time.Duration) slog.Attr { return slog.Int64(KeyDurationMS, d.Milliseconds()) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
