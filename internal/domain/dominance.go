package domain

// Dominates reports whether a Pareto-dominates b under minimization: a is no worse in
// every objective and strictly better in at least one.
func Dominates(a, b []float64) bool {
	strictly := false
	for i := range a {
		if a[i] > b[i] {
			return false
		}
		if a[i] < b[i] {
			strictly = true
		}
	}
	return strictly
}
