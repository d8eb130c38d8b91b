package verify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/grantcheck/internal/model"
)

func TestCombineConfidence_AllSignals(t *testing.T) {
	url := URLResult{State: URLStateOK}
	quality := QualityResult{Score: 80}
	xref := &CrossRefResult{Signal: true, Confidence: 90}

	// 0.25*100 + 0.35*80 + 0.40*90 = 89
	assert.Equal(t, 89, CombineConfidence(url, quality, xref))
}

func TestCombineConfidence_NoCrossRefSignal(t *testing.T) {
	url := URLResult{State: URLStateOK}
	quality := QualityResult{Score: 60}

	// Renormalized over url+quality: (0.25*100 + 0.35*60) / 0.60 = 76.67
	got := CombineConfidence(url, quality, &CrossRefResult{Signal: false})
	assert.Equal(t, 77, got)

	// A nil result (failed call) behaves the same as no signal.
	assert.Equal(t, got, CombineConfidence(url, quality, nil))
}

func TestCombineConfidence_NoURLNoCrossRef(t *testing.T) {
	url := URLResult{State: URLStateNoURL}
	quality := QualityResult{Score: 55}

	// Only the quality phase contributes.
	assert.Equal(t, 55, CombineConfidence(url, quality, nil))
}

func TestCombineConfidence_BadStatusScenario(t *testing.T) {
	// HTTP 404, quality 60/100, cross-reference with no contradictions but
	// weak corroboration: lands in the middle band.
	url := URLResult{State: URLStateBadStatus, StatusCode: 404}
	quality := QualityResult{Score: 60}
	xref := &CrossRefResult{Signal: true, Confidence: 30, Corroborated: false}

	got := CombineConfidence(url, quality, xref)
	assert.GreaterOrEqual(t, got, partialThreshold)
	assert.Less(t, got, verifiedThreshold)
}

func TestCombineConfidence_Clamped(t *testing.T) {
	assert.Equal(t, 100, CombineConfidence(URLResult{State: URLStateOK}, QualityResult{Score: 100}, &CrossRefResult{Signal: true, Confidence: 100}))
	assert.Equal(t, 0, CombineConfidence(URLResult{State: URLStateUnreachable}, QualityResult{Score: 0}, &CrossRefResult{Signal: true, Confidence: 0}))
}

func TestDeriveStatus_OutdatedBeatsEverything(t *testing.T) {
	now := time.Now()
	past := now.Add(-48 * time.Hour)
	g := &model.Grant{ClosesAt: &past}

	// Even a perfect score on an unreachable-and-disputed grant: the past
	// close date wins.
	status := DeriveStatus(g, now, URLResult{State: URLStateUnreachable},
		&CrossRefResult{Signal: true, Confidence: 95, Discrepancies: []string{"deadline passed"}}, 95)
	assert.Equal(t, model.StatusOutdated, status)
}

func TestDeriveStatus_Unreachable(t *testing.T) {
	g := &model.Grant{OfficialURL: "https://example.gov/x"}

	t.Run("no corroboration", func(t *testing.T) {
		status := DeriveStatus(g, time.Now(), URLResult{State: URLStateUnreachable},
			&CrossRefResult{Signal: true, Confidence: 20, Corroborated: false}, 20)
		assert.Equal(t, model.StatusUnreachable, status)
	})

	t.Run("cross-reference failed too", func(t *testing.T) {
		status := DeriveStatus(g, time.Now(), URLResult{State: URLStateUnreachable}, nil, 10)
		assert.Equal(t, model.StatusUnreachable, status)
	})

	t.Run("corroborated elsewhere is not unreachable", func(t *testing.T) {
		status := DeriveStatus(g, time.Now(), URLResult{State: URLStateUnreachable},
			&CrossRefResult{Signal: true, Confidence: 70, Corroborated: true}, 55)
		assert.Equal(t, model.StatusPartiallyVerified, status)
	})
}

func TestDeriveStatus_Disputed(t *testing.T) {
	g := &model.Grant{OfficialURL: "https://example.gov/x"}

	status := DeriveStatus(g, time.Now(), URLResult{State: URLStateOK},
		&CrossRefResult{Signal: true, Confidence: 60, Corroborated: true, Discrepancies: []string{"amount changed to 1M"}}, 70)
	assert.Equal(t, model.StatusDisputed, status)
}

func TestDeriveStatus_Verified(t *testing.T) {
	g := &model.Grant{OfficialURL: "https://example.gov/x"}

	status := DeriveStatus(g, time.Now(), URLResult{State: URLStateOK},
		&CrossRefResult{Signal: true, Confidence: 90, Corroborated: true}, 88)
	assert.Equal(t, model.StatusVerified, status)
}

func TestDeriveStatus_HighScoreWithoutCrossRefIsNotVerified(t *testing.T) {
	g := &model.Grant{OfficialURL: "https://example.gov/x"}

	// 80+ combined but the cross-reference produced no signal: all three
	// phases did not pass, so this stays partially verified.
	status := DeriveStatus(g, time.Now(), URLResult{State: URLStateOK}, nil, 85)
	assert.Equal(t, model.StatusPartiallyVerified, status)
}

func TestDeriveStatus_PartialBand(t *testing.T) {
	g := &model.Grant{OfficialURL: "https://example.gov/x"}

	status := DeriveStatus(g, time.Now(), URLResult{State: URLStateBadStatus, StatusCode: 404},
		&CrossRefResult{Signal: true, Confidence: 30}, 43)
	assert.Equal(t, model.StatusPartiallyVerified, status)
}

func TestDeriveStatus_DefectBranch(t *testing.T) {
	g := &model.Grant{OfficialURL: "https://example.gov/x"}

	status := DeriveStatus(g, time.Now(), URLResult{State: URLStateBadStatus}, nil, 20)
	assert.Equal(t, model.StatusUnverified, status)
}
