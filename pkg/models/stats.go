package models

// ComputeStatistics derives aggregate statistics as a pure reduction over a
// result collection. Callers must re-run it after any merge rather than
// carrying running counters that can drift from the underlying set.
func ComputeStatistics(results []ValidationResult) AggregateStatistics {
	stats := AggregateStatistics{
		MethodBreakdown:    make(map[Method]int),
		ErrorKindBreakdown: make(map[ErrorKind]int),
		StatusCodeCounts:   make(map[int]int),
	}

	var totalResponseMs int64
	for _, r := range results {
		stats.TotalLinks++
		if r.IsWorking {
			stats.WorkingLinks++
		} else {
			stats.BrokenLinks++
		}
		if r.IsInternal {
			stats.InternalLinks++
		} else {
			stats.ExternalLinks++
		}
		if len(r.RedirectChain) > 0 {
			stats.RedirectCount++
		}
		if r.ErrorKind == KindTimeout {
			stats.TimeoutCount++
		}
		if r.CORSHandled {
			stats.CORSHandledCount++
		}
		stats.MethodBreakdown[r.Method]++
		if !r.IsWorking && r.ErrorKind != "" && r.ErrorKind != KindNone {
			stats.ErrorKindBreakdown[r.ErrorKind]++
		}
		if r.StatusCode != 0 {
			stats.StatusCodeCounts[r.StatusCode]++
		}
		totalResponseMs += r.ResponseTimeMs
	}

	if stats.TotalLinks > 0 {
		stats.AvgResponseTimeMs = totalResponseMs / int64(stats.TotalLinks)
	}
	return stats
}
