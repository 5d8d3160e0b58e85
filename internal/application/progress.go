package application

import "fmt"

// Progress accumulates per-item counters for a running sync. It is passed
// through the processing loop explicitly and flushed to storage at a
// defined cadence instead of mutating shared state from closures.
type Progress struct {
	Processed  int
	Successful int
	Failed     int
}

func (p *Progress) Success() {
	p.Processed++
	p.Successful++
}

func (p *Progress) Failure() {
	p.Processed++
	p.Failed++
}

// FailureN accounts a whole page whose fetch failed: the expected item
// count is charged as failed so the run outcome reflects the gap.
func (p *Progress) FailureN(n int) {
	p.Processed += n
	p.Failed += n
}

// Skipped counts an item that was consumed but mutated nothing, e.g. an
// order line for a product we do not carry locally.
func (p *Progress) Skipped() {
	p.Processed++
}

func (p Progress) String() string {
	return fmt.Sprintf("processed=%d successful=%d failed=%d", p.Processed, p.Successful, p.Failed)
}
