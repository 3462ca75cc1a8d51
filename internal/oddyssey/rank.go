package oddyssey

import "sort"

// rank orders eligible slips by (score DESC, correct_count DESC, slip_id
// ASC) and assigns 1-based ranks. Ineligible and disqualified slips keep
// rank zero. The slip id tiebreak keeps the ordering identical across
// replicas.
func rank(slips []scoredSlip) {
	eligible := make([]*scoredSlip, 0, len(slips))
	for i := range slips {
		if slips[i].eligible {
			eligible = append(eligible, &slips[i])
		}
	}

	sort.Slice(eligible, func(i, j int) bool {
		if c := eligible[i].score.Cmp(eligible[j].score); c != 0 {
			return c > 0
		}
		if eligible[i].eval.CorrectCount != eligible[j].eval.CorrectCount {
			return eligible[i].eval.CorrectCount > eligible[j].eval.CorrectCount
		}
		return eligible[i].eval.SlipID < eligible[j].eval.SlipID
	})

	for i, s := range eligible {
		s.eval.Rank = i + 1
	}
}

// topN returns the first n ranked slip ids, fewer when the cycle has fewer
// eligible slips.
func topN(slips []scoredSlip, n int) []uint64 {
	ranked := make([]*scoredSlip, 0, len(slips))
	for i := range slips {
		if slips[i].eval.Rank > 0 {
			ranked = append(ranked, &slips[i])
		}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].eval.Rank < ranked[j].eval.Rank })
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	out := make([]uint64, len(ranked))
	for i, s := range ranked {
		out[i] = s.eval.SlipID
	}
	return out
}
