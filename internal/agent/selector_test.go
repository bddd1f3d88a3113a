package agent

import (
	"context"
	"errors"
	"testing"
)

const selectorResponse = "css: .product-card h2\nxpath: //div[@class='product']/h2\nexplanation: titles are h2 elements\n"

func TestGenerateSelectors(t *testing.T) {
	gw := &fakeGateway{responses: []string{selectorResponse}}
	a := NewSelectorAgent(gw, 0, nil)

	result := a.GenerateSelectors(context.Background(), "product title", "<html></html>", CallConfig{})
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if result.Best() != ".product-card h2" {
		t.Errorf("best = %q", result.Best())
	}
	if len(result.XPathSelectors) != 1 {
		t.Errorf("xpath = %v", result.XPathSelectors)
	}
	if result.Metadata.TargetDescription != "product title" {
		t.Errorf("metadata = %+v", result.Metadata)
	}
}

func TestGenerateSelectorsGatewayError(t *testing.T) {
	gw := &fakeGateway{err: errors.New("provider down")}
	a := NewSelectorAgent(gw, 0, nil)

	result := a.GenerateSelectors(context.Background(), "anything", "<html></html>", CallConfig{})
	if result.Success {
		t.Fatal("gateway failure should yield an unsuccessful result")
	}
	if result.Error == "" {
		t.Error("failure should carry an error")
	}
}

func TestGenerateSelectorsNoSelectorsInResponse(t *testing.T) {
	gw := &fakeGateway{responses: []string{"I see no matching elements."}}
	a := NewSelectorAgent(gw, 0, nil)

	result := a.GenerateSelectors(context.Background(), "anything", "<html></html>", CallConfig{})
	if result.Success {
		t.Fatal("prose-only response should fail")
	}
}

func TestGenerateRobustSelectors(t *testing.T) {
	gw := &fakeGateway{responses: []string{selectorResponse}}
	a := NewSelectorAgent(gw, 0, nil)

	result := a.GenerateRobustSelectors(context.Background(), "product title", "<html></html>", CallConfig{})
	if !result.IsRobust {
		t.Error("robust flag not set")
	}
}

func TestConvertSelectorShortCircuit(t *testing.T) {
	gw := &fakeGateway{}
	a := NewSelectorAgent(gw, 0, nil)

	got, err := a.ConvertSelector(context.Background(), "//div[@id='x']", "xpath", CallConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if got != "//div[@id='x']" {
		t.Errorf("got %q", got)
	}
	if gw.callCount() != 0 {
		t.Error("matching kind should not call the model")
	}
}

func TestConvertSelector(t *testing.T) {
	gw := &fakeGateway{responses: []string{"//div[contains(@class,'price')]\n"}}
	a := NewSelectorAgent(gw, 0, nil)

	got, err := a.ConvertSelector(context.Background(), ".price", "xpath", CallConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if got != "//div[contains(@class,'price')]" {
		t.Errorf("got %q", got)
	}
}

func TestGenerateMultiSelectors(t *testing.T) {
	gw := &fakeGateway{responses: []string{
		selectorResponse,
		selectorResponse,
		selectorResponse,
	}}
	a := NewSelectorAgent(gw, 2, nil)

	targets := []MultiTarget{
		{Field: "name", Description: "product name"},
		{Field: "price", Description: "product price"},
		{Field: "link", Description: "detail link"},
	}
	results := a.GenerateMultiSelectors(context.Background(), targets, "<html></html>", CallConfig{})

	if len(results) != len(targets) {
		t.Fatalf("results = %d, want %d", len(results), len(targets))
	}
	for i, r := range results {
		if r == nil || !r.Success {
			t.Errorf("slot %d = %+v", i, r)
		}
	}
	if gw.callCount() != 3 {
		t.Errorf("calls = %d, want 3", gw.callCount())
	}
}
