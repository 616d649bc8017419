package report

import (
	"fmt"
	"io"

	"github.com/eunmann/snapcost/pkg/evaluate"
	"github.com/eunmann/snapcost/pkg/humanfmt"
	"github.com/eunmann/snapcost/pkg/pricing"
)

// WriteSummary prints the human-readable report for one ad-hoc snapshot
// evaluation.
func WriteSummary(w io.Writer, r evaluate.Result) {
	fmt.Fprintln(w, "===== Snapshot Evaluation Report =====")
	fmt.Fprintf(w, "Target snapshot:        %s\n", r.TargetSnapshot)
	fmt.Fprintf(w, "Source volume:          %s (%d GiB)\n", r.VolumeID, r.VolumeSizeGiB)
	fmt.Fprintf(w, "Chain scenario:         %s\n", r.Scenario)
	if r.Before != "" {
		fmt.Fprintf(w, "Snapshot before:        %s\n", r.Before)
	} else {
		fmt.Fprintf(w, "Snapshot before:        none\n")
	}
	if r.After != "" {
		fmt.Fprintf(w, "Snapshot after:         %s\n", r.After)
	} else {
		fmt.Fprintf(w, "Snapshot after:         none\n")
	}
	fmt.Fprintf(w, "Unique data in target:  %s\n", humanfmt.Bytes(r.UniqueSizeBytes))
	fmt.Fprintf(w, "Full snapshot size:     %s (if archived)\n", humanfmt.Bytes(r.FullSizeBytes))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Estimated 90-day cost in standard tier: %s\n", pricing.FormatCost(r.StandardCost90Days))
	fmt.Fprintf(w, "Estimated 90-day cost in archive tier:  %s\n", pricing.FormatCost(r.ArchiveCost90Days))
	fmt.Fprintln(w, "===== End Evaluation Report =====")
}
