package memory

import (
	"encoding/json"
	"fmt"

	"ephyscore/pkg/ephys"
)

// Buckets names the snapshot tables in the order SQL stores persist them.
var Buckets = []string{
	"insertions",
	"units",
	"period_selectivity",
	"unit_selectivity",
	"unit_psth",
	"trial_conditions",
	"periods",
	"photostim_events",
	"projections",
}

func bucketTarget(s *ephys.Snapshot, bucket string) (any, bool) {
	switch bucket {
	case "insertions":
		return &s.Insertions, true
	case "units":
		return &s.Units, true
	case "period_selectivity":
		return &s.PeriodSelectivity, true
	case "unit_selectivity":
		return &s.UnitSelectivity, true
	case "unit_psth":
		return &s.PSTH, true
	case "trial_conditions":
		return &s.TrialConditions, true
	case "periods":
		return &s.Periods, true
	case "photostim_events":
		return &s.PhotostimEvents, true
	case "projections":
		return &s.Projections, true
	}
	return nil, false
}

// EncodeBucket marshals one snapshot table as JSON.
func EncodeBucket(s ephys.Snapshot, bucket string) ([]byte, error) {
	target, ok := bucketTarget(&s, bucket)
	if !ok {
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}
	data, err := json.Marshal(target)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", bucket, err)
	}
	return data, nil
}

// DecodeBucket unmarshals a persisted table into s. Unknown buckets are ignored
// so older databases keep loading.
func DecodeBucket(s *ephys.Snapshot, bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	target, ok := bucketTarget(s, bucket)
	if !ok {
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}
