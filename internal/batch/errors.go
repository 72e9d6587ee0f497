package batch

import (
	"errors"
	"fmt"
)

// ErrDestroyed is reported for files offered to a destroyed queue.
var ErrDestroyed = errors.New("batch queue destroyed")

// SizeLimitError rejects a file at admission.
type SizeLimitError struct {
	Name  string
	Size  int64
	Limit int64
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("%s is %s, larger than the %s limit", e.Name, humanSize(e.Size), humanSize(e.Limit))
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
