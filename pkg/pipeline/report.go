package pipeline

import (
	"fmt"
	"time"

	"github.com/edgeflare/retailpipe/pkg/entity"
)

// Report summarizes a run. Counts holds the confirmed records per kind,
// including the confirmed prefix of a failed kind.
type Report struct {
	RunID    string
	Counts   map[entity.Kind]int
	Order    []entity.Kind
	Duration time.Duration
}

// Total is the number of confirmed records over all kinds.
func (r Report) Total() int {
	var n int
	for _, c := range r.Counts {
		n += c
	}
	return n
}

// KindError reports the kind a run stopped at. Sent is the number of its
// records confirmed in order before the failure.
type KindError struct {
	Kind entity.Kind
	Sent int
	Err  error
}

func (e *KindError) Error() string {
	return fmt.Sprintf("%s: stopped after %d confirmed records: %v", e.Kind, e.Sent, e.Err)
}

func (e *KindError) Unwrap() error { return e.Err }
