package structure

import "sort"

// FindPeaks returns indices of local maxima that are at least distance bars apart.
// Flat tops report their middle sample; the first and last samples are never peaks.
// Within distance of a higher peak, lower peaks are suppressed.
func FindPeaks(xs []float64, distance int) []int {
	peaks := localMaxima(xs)
	if distance <= 1 || len(peaks) < 2 {
		return peaks
	}

	order := make([]int, len(peaks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return xs[peaks[order[a]]] < xs[peaks[order[b]]]
	})

	keep := make([]bool, len(peaks))
	for i := range keep {
		keep[i] = true
	}
	for i := len(order) - 1; i >= 0; i-- {
		j := order[i]
		if !keep[j] {
			continue
		}
		for k := j - 1; k >= 0 && peaks[j]-peaks[k] < distance; k-- {
			keep[k] = false
		}
		for k := j + 1; k < len(peaks) && peaks[k]-peaks[j] < distance; k++ {
			keep[k] = false
		}
	}

	out := peaks[:0]
	for i, p := range peaks {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}

// FindValleys runs FindPeaks on the negated series.
func FindValleys(xs []float64, distance int) []int {
	neg := make([]float64, len(xs))
	for i, x := range xs {
		neg[i] = -x
	}
	return FindPeaks(neg, distance)
}

func localMaxima(xs []float64) []int {
	var out []int
	n := len(xs)
	i := 1
	for i < n-1 {
		if xs[i-1] < xs[i] {
			ahead := i + 1
			for ahead < n-1 && xs[ahead] == xs[i] {
				ahead++
			}
			if xs[ahead] < xs[i] {
				out = append(out, (i+ahead-1)/2)
				i = ahead
			}
		}
		i++
	}
	return out
}
