package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jmylchreest/gleaner/internal/models"
	"github.com/jmylchreest/gleaner/internal/pagequery"
)

const recoveryHTML = `<html><body>
<div class="listing"><span class="cost">$5</span></div>
<div class="listing"><span class="cost">$7</span></div>
</body></html>`

func recoveryPage(t *testing.T) *pagequery.StaticPage {
	t.Helper()
	page, err := pagequery.NewStaticPage(recoveryHTML, "")
	if err != nil {
		t.Fatal(err)
	}
	return page
}

func TestAttemptRecoveryModelAlternatives(t *testing.T) {
	gw := &fakeGateway{responses: []string{`[".price", ".cost", "span.amount"]`}}
	r := NewRecoverer(gw, nil)

	field := models.FieldDefinition{Name: "price", Type: models.FieldTypeNumber}
	result := r.AttemptRecovery(context.Background(), field, ".price", "no element matches", recoveryHTML, recoveryPage(t), CallConfig{})

	if !result.RecoverySuccessful {
		t.Fatalf("recovery failed: %s", result.Error)
	}
	if result.StrategyUsed != "model-alternatives" {
		t.Errorf("strategy = %q", result.StrategyUsed)
	}
	// ".price" matches nothing and equals the failed selector; ".cost" is
	// the first candidate that matches the page.
	if len(result.AlternativeSelectors) == 0 || result.AlternativeSelectors[0] != ".cost" {
		t.Errorf("alternatives = %v", result.AlternativeSelectors)
	}
}

func TestAttemptRecoveryRelaxationFallback(t *testing.T) {
	// Model proposes nothing useful; relaxation of the compound selector
	// should find the bare class.
	gw := &fakeGateway{responses: []string{`[".still-wrong"]`}}
	r := NewRecoverer(gw, nil)

	field := models.FieldDefinition{Name: "price", Type: models.FieldTypeNumber}
	result := r.AttemptRecovery(context.Background(), field, "div.sidebar > span.cost", "no element matches", recoveryHTML, recoveryPage(t), CallConfig{})

	if !result.RecoverySuccessful {
		t.Fatalf("recovery failed: %s", result.Error)
	}
	if result.StrategyUsed != "selector-relaxation" {
		t.Errorf("strategy = %q", result.StrategyUsed)
	}
	if result.AlternativeSelectors[0] != "span.cost" {
		t.Errorf("alternatives = %v", result.AlternativeSelectors)
	}
}

func TestAttemptRecoveryNothingMatches(t *testing.T) {
	gw := &fakeGateway{responses: []string{`[".nope", ".also-nope"]`}}
	r := NewRecoverer(gw, nil)

	field := models.FieldDefinition{Name: "price"}
	result := r.AttemptRecovery(context.Background(), field, ".gone", "no element matches", recoveryHTML, recoveryPage(t), CallConfig{})

	if result.RecoverySuccessful {
		t.Fatal("nothing matched, recovery should fail")
	}
	if result.Error == "" {
		t.Error("failed recovery should carry an error")
	}
}

func TestAttemptRecoveryModelError(t *testing.T) {
	// Gateway failure skips the model strategy; relaxation still runs.
	gw := &fakeGateway{err: errors.New("provider down")}
	r := NewRecoverer(gw, nil)

	field := models.FieldDefinition{Name: "price"}
	result := r.AttemptRecovery(context.Background(), field, "div.wrap .cost:nth-child(2)", "", recoveryHTML, recoveryPage(t), CallConfig{})

	if !result.RecoverySuccessful {
		t.Fatalf("relaxation should still recover: %s", result.Error)
	}
	if result.StrategyUsed != "selector-relaxation" {
		t.Errorf("strategy = %q", result.StrategyUsed)
	}
}

func TestProposeRelaxedSelectors(t *testing.T) {
	got := proposeRelaxedSelectors(context.Background(), nil, models.FieldDefinition{}, "div.card > span.price:nth-child(2)", "", "", CallConfig{})

	joined := strings.Join(got, "|")
	for _, want := range []string{"span.price", ".price"} {
		if !strings.Contains(joined, want) {
			t.Errorf("candidates %v missing %q", got, want)
		}
	}

	if got := proposeRelaxedSelectors(context.Background(), nil, models.FieldDefinition{}, "//div[@id='x']", "", "", CallConfig{}); got != nil {
		t.Errorf("xpath selectors are not relaxed, got %v", got)
	}
}
