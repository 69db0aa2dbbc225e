package validate

import (
	"context"
	"testing"

	"github.com/rgolusuTR/linkaudit/pkg/models"
	"github.com/rgolusuTR/linkaudit/pkg/utils"
)

func broken(url string, internal bool) *models.ValidationResult {
	return &models.ValidationResult{
		URL:          url,
		AnchorText:   "link",
		IsInternal:   internal,
		Role:         models.RoleContent,
		ErrorKind:    models.KindExhausted,
		ErrorMessage: "all validation strategies exhausted",
		RetryCount:   3,
	}
}

func working(url string, internal bool) *models.ValidationResult {
	return &models.ValidationResult{
		URL:        url,
		AnchorText: "link",
		IsInternal: internal,
		Role:       models.RoleContent,
		IsWorking:  true,
		StatusCode: 200,
		RetryCount: 1,
		Method:     models.MethodDirect,
	}
}

func TestFrameWaveCandidates_ExternalBrokenOnly(t *testing.T) {
	first := []*models.ValidationResult{
		working("https://a.example/", false),
		broken("https://b.example/", false),
		broken("https://site.example/internal", true),
		broken("https://c.example/", false),
	}

	cands := FrameWaveCandidates(first)

	if len(cands) != 2 {
		t.Fatalf("got %d candidates, want 2", len(cands))
	}
	if cands[0].URL != "https://b.example/" || cands[1].URL != "https://c.example/" {
		t.Errorf("wrong subset: %+v", cands)
	}
}

func TestFrameWaveCandidates_Dedupes(t *testing.T) {
	first := []*models.ValidationResult{
		broken("https://b.example/page", false),
		broken("https://B.example/page/", false),
	}
	if got := len(FrameWaveCandidates(first)); got != 1 {
		t.Errorf("got %d candidates, want 1", got)
	}
}

func TestMerge_LaterSuccessWins(t *testing.T) {
	first := []*models.ValidationResult{
		working("https://a.example/", false),
		broken("https://b.example/", false),
		broken("https://c.example/", false),
	}
	second := []*models.ValidationResult{
		{URL: "https://b.example/", IsWorking: true, StatusCode: 200, StrategyUsed: models.StrategyFrame, RetryCount: 3},
		broken("https://c.example/", false),
	}

	merged := Merge(first, second)

	if len(merged) != 3 {
		t.Fatalf("got %d results, want 3", len(merged))
	}
	if merged[0] != first[0] {
		t.Error("first-wave success must pass through untouched")
	}

	rescued := merged[1]
	if !rescued.IsWorking {
		t.Fatal("second-wave success must replace the first-wave broken result")
	}
	if rescued.Method != models.MethodHybrid {
		t.Errorf("method = %s, want hybrid", rescued.Method)
	}
	if !rescued.CORSHandled {
		t.Error("hybrid result should set CORSHandled")
	}
	if rescued.ErrorKind != "" || rescued.ErrorMessage != "" {
		t.Error("rescued result must not keep stale error fields")
	}
	if rescued.RetryCount != 3 {
		t.Errorf("retryCount = %d, want 3", rescued.RetryCount)
	}

	if merged[2].IsWorking {
		t.Error("still-broken candidate must stay broken")
	}
}

func TestMerge_FirstSuccessNeverDowngraded(t *testing.T) {
	first := []*models.ValidationResult{working("https://a.example/", false)}
	second := []*models.ValidationResult{broken("https://a.example/", false)}

	merged := Merge(first, second)

	if !merged[0].IsWorking {
		t.Fatal("a first-wave success was downgraded by a second-wave failure")
	}
	if merged[0].Method != models.MethodDirect {
		t.Errorf("method = %s, want direct", merged[0].Method)
	}
}

func TestMerge_EmptySecondWaveIsIdentity(t *testing.T) {
	first := []*models.ValidationResult{
		working("https://a.example/", false),
		broken("https://b.example/", false),
	}
	merged := Merge(first, nil)

	if len(merged) != 2 {
		t.Fatalf("got %d results, want 2", len(merged))
	}
	for i := range merged {
		if merged[i] != first[i] {
			t.Errorf("result %d changed identity", i)
		}
	}
}

func TestFrameValidator_SuccessAndRetryAccounting(t *testing.T) {
	frame := okProbe(models.StrategyFrame, 200)
	base := map[string]int{mergeKey("https://b.example/"): 2}

	validate := FrameValidator(frame, base, 3)
	result := validate(context.Background(), external("https://b.example/"))

	if !result.IsWorking {
		t.Fatalf("expected working, got %+v", result)
	}
	if result.RetryCount != 3 {
		t.Errorf("retryCount = %d, want 3", result.RetryCount)
	}
	if !result.CORSHandled {
		t.Error("frame success should set CORSHandled")
	}
	if result.StrategyUsed != models.StrategyFrame {
		t.Errorf("strategy = %s", result.StrategyUsed)
	}
}

func TestFrameValidator_RetryCountStaysWithinCap(t *testing.T) {
	const maxRetries = 3
	frame := okProbe(models.StrategyFrame, 200)

	// First wave exhausted the full ladder before the frame wave runs
	base := map[string]int{mergeKey("https://b.example/"): maxRetries}
	first := []*models.ValidationResult{broken("https://b.example/", false)}

	second := []*models.ValidationResult{
		FrameValidator(frame, base, maxRetries)(context.Background(), external("https://b.example/")),
	}
	merged := Merge(first, second)

	rescued := merged[0]
	if !rescued.IsWorking || rescued.Method != models.MethodHybrid {
		t.Fatalf("expected a hybrid rescue, got %+v", rescued)
	}
	if rescued.RetryCount > maxRetries {
		t.Errorf("retryCount = %d exceeds the configured maximum %d", rescued.RetryCount, maxRetries)
	}
	if rescued.RetryCount != maxRetries {
		t.Errorf("retryCount = %d, want %d", rescued.RetryCount, maxRetries)
	}
}

func TestFrameValidator_BlockedIsCORSKind(t *testing.T) {
	frame := &stubProbe{strategy: models.StrategyFrame, probe: func(string) (*models.ValidationAttempt, error) {
		return &models.ValidationAttempt{CORSBlocked: true}, utils.ErrCORSBlocked
	}}

	result := FrameValidator(frame, nil, 3)(context.Background(), external("https://b.example/"))

	if result.IsWorking {
		t.Fatal("blocked load must stay broken")
	}
	if result.ErrorKind != models.KindCORS {
		t.Errorf("errorKind = %s, want %s", result.ErrorKind, models.KindCORS)
	}
}
