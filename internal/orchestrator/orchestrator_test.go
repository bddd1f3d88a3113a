package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jmylchreest/gleaner/internal/agent"
	"github.com/jmylchreest/gleaner/internal/fetch"
	"github.com/jmylchreest/gleaner/internal/llm"
	"github.com/jmylchreest/gleaner/internal/models"
	"github.com/jmylchreest/gleaner/internal/pagequery"
)

const shopHTML = `<html><body>
<div class="card"><h2>Widget</h2><span class="price">$10.50</span></div>
<div class="card"><h2>Gadget</h2><span class="price">$20</span></div>
</body></html>`

// scriptedGateway replays canned responses in call order.
type scriptedGateway struct {
	mu        sync.Mutex
	responses []string
	calls     int
}

func (g *scriptedGateway) Query(_ context.Context, _ string, _ llm.Options) (*llm.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls++
	if len(g.responses) == 0 {
		return nil, errors.New("no scripted response left")
	}
	text := g.responses[0]
	g.responses = g.responses[1:]
	return &llm.Response{Text: text, Model: "fake-model", Provider: "fake"}, nil
}

type fakeFetcher struct {
	html string
	err  error
}

func (f *fakeFetcher) Fetch(_ context.Context, targetURL string) (*fetch.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &fetch.Result{URL: targetURL, HTML: f.html, StatusCode: 200}, nil
}

func newOrchestrator(gw agent.Gateway, fetcher fetch.Fetcher) *Orchestrator {
	return New(
		fetcher,
		agent.NewPlanner(gw, nil),
		agent.NewSelectorAgent(gw, 2, nil),
		agent.NewExtractor(gw, nil),
		agent.NewValidator(nil),
		agent.NewRecoverer(gw, nil),
		nil,
	)
}

const planWithSchema = "EXTRACTION GOAL: Extract all products\n" +
	"DATA STRUCTURE: list\n" +
	"KEY FIELDS:\n" +
	"- name [string]: product name\n" +
	"- price [number]: product price\n" +
	"TARGET ELEMENTS:\n" +
	"- .card\n" +
	"EXTRACTION STRATEGY: read each card\n" +
	"SCHEMA:\n" +
	"```json\n" +
	"{\"name\": {\"type\": \"string\", \"selector\": \"h2\"}, \"price\": {\"type\": \"number\", \"selector\": \".price\", \"transform\": \"number\"}}\n" +
	"```\n"

func TestProcessRequestHappyPath(t *testing.T) {
	gw := &scriptedGateway{responses: []string{planWithSchema}}
	o := newOrchestrator(gw, &fakeFetcher{html: shopHTML})

	result := o.ProcessRequest(context.Background(), Request{
		Instruction: "get all products with prices",
		TargetURL:   "https://shop.example.com",
	})

	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if result.RequestID == "" {
		t.Error("request id missing")
	}
	if result.Plan == nil || !result.Plan.Success {
		t.Fatal("plan missing from result")
	}
	if len(result.Data) != 2 {
		t.Fatalf("data = %+v", result.Data)
	}
	if result.Data[0]["name"] != "Widget" || result.Data[0]["price"] != 10.50 {
		t.Errorf("first item = %+v", result.Data[0])
	}
	if result.Selectors["name"] != "h2" || result.Selectors["price"] != ".price" {
		t.Errorf("selectors = %+v", result.Selectors)
	}
	// One model call: the plan. Schema selectors matched, so no selector
	// generation, extraction and recovery calls were needed.
	if gw.calls != 1 {
		t.Errorf("model calls = %d, want 1", gw.calls)
	}
}

const planWithBadPriceSelector = "EXTRACTION GOAL: Extract all products\n" +
	"DATA STRUCTURE: list\n" +
	"KEY FIELDS:\n" +
	"- name [string]: product name\n" +
	"- price [number]: product price\n" +
	"TARGET ELEMENTS:\n" +
	"- .card\n" +
	"EXTRACTION STRATEGY: read each card\n" +
	"SCHEMA:\n" +
	"```json\n" +
	"{\"name\": {\"type\": \"string\", \"selector\": \"h2\"}, \"price\": {\"type\": \"number\", \"selector\": \".cost\", \"transform\": \"number\"}}\n" +
	"```\n"

func TestProcessRequestRecoversFailedSelector(t *testing.T) {
	gw := &scriptedGateway{responses: []string{
		planWithBadPriceSelector,
		// Selector generation for price proposes nothing that matches.
		"css: .also-wrong\n",
		// Recovery proposes a working alternative.
		`[".price"]`,
	}}
	o := newOrchestrator(gw, &fakeFetcher{html: shopHTML})

	result := o.ProcessRequest(context.Background(), Request{
		Instruction: "get products",
		TargetURL:   "https://shop.example.com",
	})

	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if result.Selectors["price"] != ".price" {
		t.Errorf("recovered selector = %q", result.Selectors["price"])
	}
	if len(result.Data) != 2 || result.Data[0]["price"] != 10.50 {
		t.Errorf("data after recovery = %+v", result.Data)
	}
	// The failed selection attempt is still on the record.
	foundSelection := false
	for _, issue := range result.Issues {
		if issue.Source == models.IssueSourceSelection && issue.Field == "price" {
			foundSelection = true
		}
	}
	if !foundSelection {
		t.Errorf("issues = %+v", result.Issues)
	}
}

const twoFieldShopHTML = `<html><body>
<div class="card"><h2>SKU-1</h2><span class="title">Widget</span><span class="price">$10.50</span></div>
<div class="card"><h2>SKU-2</h2><span class="title">Gadget</span><span class="price">$20</span></div>
</body></html>`

const planWithTwoBadSelectors = "EXTRACTION GOAL: Extract all products\n" +
	"DATA STRUCTURE: list\n" +
	"KEY FIELDS:\n" +
	"- sku [string]: product code\n" +
	"- name [string]: product name\n" +
	"- price [number]: product price\n" +
	"TARGET ELEMENTS:\n" +
	"- .card\n" +
	"EXTRACTION STRATEGY: read each card\n" +
	"SCHEMA:\n" +
	"```json\n" +
	"{\"sku\": {\"type\": \"string\", \"selector\": \"h2\"}, " +
	"\"name\": {\"type\": \"string\", \"selector\": \"div.missing > span.title\"}, " +
	"\"price\": {\"type\": \"number\", \"selector\": \"div.missing > span.price\", \"transform\": \"number\"}}\n" +
	"```\n"

// Two fields fail at once, so their recovery goroutines run concurrently
// and both write recovered selectors back into the shared plan.
func TestProcessRequestRecoversTwoFieldsConcurrently(t *testing.T) {
	gw := &scriptedGateway{responses: []string{
		planWithTwoBadSelectors,
		// Selector generation for both unverified fields proposes nothing
		// that matches; recovery's model strategy gets no responses at all
		// and each field falls through to selector relaxation.
		"css: .nope\n",
		"css: .nope\n",
	}}
	o := newOrchestrator(gw, &fakeFetcher{html: twoFieldShopHTML})

	result := o.ProcessRequest(context.Background(), Request{
		Instruction: "get products",
		TargetURL:   "https://shop.example.com",
	})

	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if result.Selectors["name"] == "" || result.Selectors["price"] == "" {
		t.Errorf("recovered selectors = %+v", result.Selectors)
	}
	if len(result.Data) != 2 {
		t.Fatalf("data = %+v", result.Data)
	}
	if result.Data[0]["name"] != "Widget" || result.Data[0]["price"] != 10.50 {
		t.Errorf("first item = %+v", result.Data[0])
	}
	if result.Data[1]["name"] != "Gadget" || result.Data[1]["sku"] != "SKU-2" {
		t.Errorf("second item = %+v", result.Data[1])
	}
}

func TestProcessRequestFetchFailure(t *testing.T) {
	gw := &scriptedGateway{}
	o := newOrchestrator(gw, &fakeFetcher{err: errors.New("connection refused")})

	result := o.ProcessRequest(context.Background(), Request{
		Instruction: "get products",
		TargetURL:   "https://down.example.com",
	})

	if result.Success {
		t.Fatal("fetch failure should fail the request")
	}
	if result.RequestID == "" {
		t.Error("request id should survive failure")
	}
	if len(result.Issues) == 0 || result.Issues[0].Source != models.IssueSourceOrchestration {
		t.Errorf("issues = %+v", result.Issues)
	}
	if result.Data == nil {
		t.Error("data should be an empty slice, not nil")
	}
}

func TestProcessRequestPlanningFailure(t *testing.T) {
	gw := &scriptedGateway{responses: []string{"I have no idea what this page is."}}
	o := newOrchestrator(gw, &fakeFetcher{html: shopHTML})

	result := o.ProcessRequest(context.Background(), Request{
		Instruction: "get products",
		TargetURL:   "https://shop.example.com",
	})

	if result.Success {
		t.Fatal("unusable plan should fail the request")
	}
	if result.Plan == nil {
		t.Error("the failed plan should still be in the envelope")
	}
	found := false
	for _, issue := range result.Issues {
		if issue.Source == models.IssueSourcePlanning {
			found = true
		}
	}
	if !found {
		t.Errorf("issues = %+v", result.Issues)
	}
}

// panickyPage panics on highlight, exercising the pipeline-level recover.
type panickyPage struct {
	*pagequery.StaticPage
}

func (p *panickyPage) Highlight(string, string) (int, error) {
	panic("browser connection lost")
}

func TestProcessRequestPanicPreservesPartialState(t *testing.T) {
	static, err := pagequery.NewStaticPage(shopHTML, "https://shop.example.com")
	if err != nil {
		t.Fatal(err)
	}

	gw := &scriptedGateway{responses: []string{planWithSchema}}
	o := newOrchestrator(gw, &fakeFetcher{html: shopHTML})

	result := o.ProcessRequest(context.Background(), Request{
		Instruction: "get products",
		TargetURL:   "https://shop.example.com",
		Page:        &panickyPage{StaticPage: static},
	})

	if result.Success {
		t.Fatal("panic should fail the request")
	}
	if result.Plan == nil {
		t.Error("plan produced before the panic should be preserved")
	}
	if len(result.Selectors) == 0 {
		t.Error("selectors chosen before the panic should be preserved")
	}
	found := false
	for _, issue := range result.Issues {
		if issue.Source == models.IssueSourceOrchestration {
			found = true
		}
	}
	if !found {
		t.Errorf("issues = %+v", result.Issues)
	}
}
