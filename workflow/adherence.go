package workflow

// AdherenceRate returns the percentage of resolved medication intakes that
// were taken as prescribed: taken / (taken + missed) * 100. Intakes still
// SCHEDULED or DELAYED are excluded by the caller's counts. A patient with no
// resolved intakes reports 0, not an error.
func AdherenceRate(taken, missed int64) float64 {
	total := taken + missed
	if total == 0 {
		return 0.0
	}
	return float64(taken) / float64(total) * 100
}
