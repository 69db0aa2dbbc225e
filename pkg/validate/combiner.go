package validate

import (
	"context"

	"github.com/rgolusuTR/linkaudit/pkg/models"
	"github.com/rgolusuTR/linkaudit/pkg/probe"
	"github.com/rgolusuTR/linkaudit/pkg/resolve"
	"github.com/rgolusuTR/linkaudit/pkg/utils"
)

// FrameWaveCandidates selects the second-wave subset: external candidates the
// first wave left broken. Working results and internal links are never
// re-probed.
func FrameWaveCandidates(first []*models.ValidationResult) []models.LinkCandidate {
	var cands []models.LinkCandidate
	seen := make(map[string]bool)
	for _, r := range first {
		if r.IsWorking || r.IsInternal {
			continue
		}
		key := mergeKey(r.URL)
		if seen[key] {
			continue
		}
		seen[key] = true
		cands = append(cands, models.LinkCandidate{
			URL:        r.URL,
			AnchorText: r.AnchorText,
			IsInternal: false,
			Role:       r.Role,
		})
	}
	return cands
}

// FrameValidator wraps a frame probe as a single-rung ValidateFunc for the
// second wave. The frame probe counts as one more escalation on top of the
// candidate's first-wave attempts, inside the same budget: the reported
// retry count never exceeds maxRetries.
func FrameValidator(frame probe.Prober, baseRetries map[string]int, maxRetries int) ValidateFunc {
	return func(ctx context.Context, cand models.LinkCandidate) *models.ValidationResult {
		retries := baseRetries[mergeKey(cand.URL)] + 1
		if maxRetries > 0 && retries > maxRetries {
			retries = maxRetries
		}
		result := &models.ValidationResult{
			URL:          cand.URL,
			AnchorText:   cand.AnchorText,
			IsInternal:   cand.IsInternal,
			Role:         cand.Role,
			StrategyUsed: frame.Strategy(),
			Method:       models.MethodDirect,
			RetryCount:   retries,
		}

		attempt, err := frame.Probe(ctx, cand.URL)
		if attempt != nil {
			result.StatusCode = attempt.StatusCode
			result.FinalURL = attempt.FinalURL
			result.ResponseTimeMs = attempt.Elapsed.Milliseconds()
		}
		if err == nil {
			result.IsWorking = true
			result.CORSHandled = true
			return result
		}

		result.ErrorKind = models.ErrorKind(utils.CategorizeError(err))
		result.ErrorMessage = err.Error()
		if attempt != nil && attempt.CORSBlocked {
			result.ErrorKind = models.KindCORS
		}
		return result
	}
}

// Merge reconciles the two waves. Later success wins: a second-wave working
// result replaces a first-wave broken one and is marked hybrid; a first-wave
// success is never downgraded by anything the second wave reports. First-wave
// ordering is preserved.
func Merge(first, second []*models.ValidationResult) []*models.ValidationResult {
	recovered := make(map[string]*models.ValidationResult, len(second))
	for _, r := range second {
		if r.IsWorking {
			recovered[mergeKey(r.URL)] = r
		}
	}

	merged := make([]*models.ValidationResult, 0, len(first))
	for _, r := range first {
		if r.IsWorking {
			merged = append(merged, r)
			continue
		}
		if win, ok := recovered[mergeKey(r.URL)]; ok {
			out := *win
			out.AnchorText = r.AnchorText
			out.Role = r.Role
			out.Method = models.MethodHybrid
			out.CORSHandled = true
			out.ErrorKind = ""
			out.ErrorMessage = ""
			merged = append(merged, &out)
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

func mergeKey(rawURL string) string {
	if key := resolve.Normalize(rawURL); key != "" {
		return key
	}
	return rawURL
}
