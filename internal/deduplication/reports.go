package deduplication

import (
	"fmt"
	"time"
)

// SweepReport summarizes one full sweep
type SweepReport struct {
	// Listed is the number of issues returned by the tracker
	Listed int `json:"listed"`

	// Ignored issues were not filed by the reporter account
	Ignored int `json:"ignored"`

	// Untraceable issues were filed by the reporter but had no extractable trace
	Untraceable int `json:"untraceable"`

	// Tracked issues were upserted with their fingerprint
	Tracked int `json:"tracked"`

	// TitlesUpdated is the number of derived titles pushed to the tracker
	TitlesUpdated int `json:"titles_updated"`

	// ScanErrors counts issues whose comments could not be scanned
	ScanErrors int `json:"scan_errors"`

	// DuplicatesMarked is the number of duplicate links written
	DuplicatesMarked int `json:"duplicates_marked"`

	// TargetsApplied is the number of target assignments written
	TargetsApplied int `json:"targets_applied"`

	Duration time.Duration `json:"duration"`
}

// Validate checks that the counts are consistent
func (r *SweepReport) Validate() error {
	if r.Ignored+r.Untraceable+r.Tracked > r.Listed {
		return fmt.Errorf("ignored (%d) + untraceable (%d) + tracked (%d) exceeds listed (%d)",
			r.Ignored, r.Untraceable, r.Tracked, r.Listed)
	}
	if r.ScanErrors > r.Tracked {
		return fmt.Errorf("scan_errors (%d) exceeds tracked (%d)", r.ScanErrors, r.Tracked)
	}
	if r.DuplicatesMarked > r.Tracked {
		return fmt.Errorf("duplicates_marked (%d) exceeds tracked (%d)", r.DuplicatesMarked, r.Tracked)
	}
	return nil
}

func (r *SweepReport) String() string {
	return fmt.Sprintf("listed=%d tracked=%d ignored=%d untraceable=%d duplicates=%d targets=%d scan_errors=%d in %v",
		r.Listed, r.Tracked, r.Ignored, r.Untraceable, r.DuplicatesMarked, r.TargetsApplied, r.ScanErrors,
		r.Duration.Round(time.Millisecond))
}

// CloseReport summarizes one close pass
type CloseReport struct {
	// Candidates is the number of open issues whose fingerprint targets another issue
	Candidates int `json:"candidates"`

	// Closed issues were commented on and closed by this pass
	Closed int `json:"closed"`

	// AlreadyClosed issues were found closed on the tracker
	AlreadyClosed int `json:"already_closed"`

	// Skipped issues were no longer duplicates when re-checked
	Skipped int `json:"skipped"`

	// Failed issues hit a tracker error and were left for the next pass
	Failed int `json:"failed"`

	Duration time.Duration `json:"duration"`
}

// Validate checks that every candidate is accounted for
func (r *CloseReport) Validate() error {
	total := r.Closed + r.AlreadyClosed + r.Skipped + r.Failed
	if total != r.Candidates {
		return fmt.Errorf("closed + already_closed + skipped + failed (%d) does not match candidates (%d)",
			total, r.Candidates)
	}
	return nil
}

func (r *CloseReport) String() string {
	return fmt.Sprintf("candidates=%d closed=%d already_closed=%d skipped=%d failed=%d in %v",
		r.Candidates, r.Closed, r.AlreadyClosed, r.Skipped, r.Failed, r.Duration.Round(time.Millisecond))
}
