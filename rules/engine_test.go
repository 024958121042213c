package rules

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"sync"
	"testing"
)

func loadTestStore(t *testing.T) *InMemoryDocumentStore {
	t.Helper()
	store := NewInMemoryDocumentStore()
	for _, name := range []string{"company_quality.json", "lead_scoring.json"} {
		doc, err := LoadDocument(readTestdata(t, name))
		if err != nil {
			t.Fatalf("LoadDocument(%s) failed: %v", name, err)
		}
		if err := store.Put(doc); err != nil {
			t.Fatalf("Put(%s) failed: %v", name, err)
		}
	}
	return store
}

func TestExecuteFormulaWithClamping(t *testing.T) {
	engine := NewEngine(loadTestStore(t))

	decision, err := engine.Execute("evaluate_company_quality", "2.1.0", map[string]any{
		"uae_employees": 150.0,
		"industry":      "Technology",
	})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	// 95 * 1.15 exceeds the [0, 100] output range.
	if decision.Result != 100.0 {
		t.Errorf("Result = %v, want 100", decision.Result)
	}
	if decision.RuleVersion != "2.1.0" {
		t.Errorf("RuleVersion = %q, want %q", decision.RuleVersion, "2.1.0")
	}

	if len(decision.Breakdown) != 3 {
		t.Fatalf("len(Breakdown) = %d, want 3:\n%+v", len(decision.Breakdown), decision.Breakdown)
	}

	base := decision.Breakdown[0]
	if base.Factor != "base_quality" || base.Contribution != 95.0 {
		t.Errorf("Breakdown[0] = %+v, want base_quality contributing 95", base)
	}
	multiplier := decision.Breakdown[1]
	if multiplier.Factor != "industry_multiplier" || multiplier.Contribution != 1.15 {
		t.Errorf("Breakdown[1] = %+v, want industry_multiplier contributing 1.15", multiplier)
	}
	clamped := decision.Breakdown[2]
	if clamped.Factor != "clamped" || clamped.Contribution != true {
		t.Errorf("Breakdown[2] = %+v, want clamped=true", clamped)
	}

	want := "Computed from Base company quality and Industry multiplier; result clamped to the configured output range."
	if decision.Summary != want {
		t.Errorf("Summary = %q, want %q", decision.Summary, want)
	}
}

func TestExecuteFormulaWithoutClamping(t *testing.T) {
	engine := NewEngine(loadTestStore(t))

	decision, err := engine.Execute("evaluate_company_quality", "2.1.0", map[string]any{
		"uae_employees": 30.0,
		"industry":      "Retail",
	})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	got, ok := decision.Result.(float64)
	if !ok {
		t.Fatalf("Result type = %T, want float64", decision.Result)
	}
	if math.Abs(got-63.0) > 1e-9 {
		t.Errorf("Result = %v, want 63 (70 * 0.9)", got)
	}
	for _, entry := range decision.Breakdown {
		if entry.Factor == "clamped" {
			t.Error("in-range result should not carry a clamped entry")
		}
	}
}

func TestExecuteLookupRule(t *testing.T) {
	engine := NewEngine(loadTestStore(t))

	decision, err := engine.Execute("seniority_score", "2.1.0", map[string]any{
		"seniority_rank": 4.0,
	})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if decision.Result != 60.0 {
		t.Errorf("Result = %v, want 60", decision.Result)
	}
	if len(decision.Breakdown) != 1 || decision.Breakdown[0].Factor != "seniority" {
		t.Errorf("Breakdown = %+v, want single seniority entry", decision.Breakdown)
	}
}

func TestExecuteDecisionTree(t *testing.T) {
	engine := NewEngine(loadTestStore(t))

	decision, err := engine.Execute("classify_lead", "1.0.0", map[string]any{
		"engagement_score":        92.0,
		"days_since_last_contact": 3.0,
	})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	if decision.Result != "hot" {
		t.Errorf("Result = %v, want hot", decision.Result)
	}
	if decision.Confidence == nil || *decision.Confidence != 0.9 {
		t.Errorf("Confidence = %v, want 0.9", decision.Confidence)
	}
	if decision.Summary != "high engagement with recent contact" {
		t.Errorf("Summary = %q", decision.Summary)
	}
}

func TestExecuteRuleList(t *testing.T) {
	engine := NewEngine(loadTestStore(t))

	decision, err := engine.Execute("engagement_adjustments", "1.0.0", map[string]any{
		"company_age_years": 0.5,
		"sector":            "government",
	})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	got, ok := decision.Result.(float64)
	if !ok {
		t.Fatalf("Result type = %T, want float64", decision.Result)
	}
	if math.Abs(got-0.12) > 1e-12 {
		t.Errorf("Result = %v, want 0.12 (0.1 * 1.2)", got)
	}

	factors := make([]string, 0, len(decision.Breakdown))
	for _, entry := range decision.Breakdown {
		factors = append(factors, entry.Factor)
	}
	want := []string{"very_new_company", "government_entity", "final_adjustment"}
	if !reflect.DeepEqual(factors, want) {
		t.Errorf("Breakdown factors = %v, want %v", factors, want)
	}
	if decision.Breakdown[0].Severity != SeverityHigh {
		t.Errorf("Breakdown[0].Severity = %q, want HIGH", decision.Breakdown[0].Severity)
	}

	want2 := "Adjusted down by Very New Company; boosted by Government Entity."
	if decision.Summary != want2 {
		t.Errorf("Summary = %q, want %q", decision.Summary, want2)
	}
}

func TestExecuteDeterministic(t *testing.T) {
	engine := NewEngine(loadTestStore(t))
	input := map[string]any{"uae_employees": 150.0, "industry": "Technology"}

	first, err := engine.Execute("evaluate_company_quality", "2.1.0", input)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	firstJSON, _ := json.Marshal(first)
	for i := 0; i < 10; i++ {
		again, err := engine.Execute("evaluate_company_quality", "2.1.0", input)
		if err != nil {
			t.Fatalf("Execute() failed on repeat %d: %v", i, err)
		}
		againJSON, _ := json.Marshal(again)
		if string(firstJSON) != string(againJSON) {
			t.Fatalf("repeat %d differs:\n%s\n%s", i, firstJSON, againJSON)
		}
	}
}

func TestExecuteVersionSelection(t *testing.T) {
	store := loadTestStore(t)

	// A newer document version changes the mapping; the old version
	// must keep producing its original decision.
	raw := readTestdata(t, "company_quality.json")
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal testdata: %v", err)
	}
	doc["version"] = "3.0.0"
	ruleSet := doc["rules"].(map[string]any)
	quality := ruleSet["evaluate_company_quality"].(map[string]any)
	variables := quality["variables"].(map[string]any)
	multiplier := variables["industry_multiplier"].(map[string]any)
	multiplier["mapping"].(map[string]any)["Technology"] = 0.5
	newRaw, _ := json.Marshal(doc)

	newDoc, err := LoadDocument(newRaw)
	if err != nil {
		t.Fatalf("LoadDocument() failed: %v", err)
	}
	if err := store.Put(newDoc); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	engine := NewEngine(store)
	input := map[string]any{"uae_employees": 150.0, "industry": "Technology"}

	old, err := engine.Execute("evaluate_company_quality", "2.1.0", input)
	if err != nil {
		t.Fatalf("Execute(2.1.0) failed: %v", err)
	}
	if old.Result != 100.0 || old.RuleVersion != "2.1.0" {
		t.Errorf("old version: Result = %v, RuleVersion = %q", old.Result, old.RuleVersion)
	}

	updated, err := engine.Execute("evaluate_company_quality", "3.0.0", input)
	if err != nil {
		t.Fatalf("Execute(3.0.0) failed: %v", err)
	}
	if updated.Result != 47.5 || updated.RuleVersion != "3.0.0" {
		t.Errorf("new version: Result = %v, RuleVersion = %q", updated.Result, updated.RuleVersion)
	}
}

func TestExecuteErrors(t *testing.T) {
	engine := NewEngine(loadTestStore(t))

	testCases := []struct {
		name    string
		rule    string
		version string
		input   map[string]any
		wantErr error
	}{
		{
			name:    "unknown rule",
			rule:    "no_such_rule",
			version: "2.1.0",
			input:   map[string]any{},
			wantErr: ErrRuleNotFound,
		},
		{
			name:    "unknown version",
			rule:    "evaluate_company_quality",
			version: "9.9.9",
			input:   map[string]any{},
			wantErr: ErrRuleNotFound,
		},
		{
			name:    "missing required input",
			rule:    "seniority_score",
			version: "2.1.0",
			input:   map[string]any{},
			wantErr: ErrMissingField,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.Execute(tc.rule, tc.version, tc.input)
			if err == nil {
				t.Fatal("Execute() should fail")
			}
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Execute() error = %v, want %v", err, tc.wantErr)
			}
			var xerr *ExecutionError
			if !errors.As(err, &xerr) {
				t.Fatalf("Execute() error = %T, want *ExecutionError", err)
			}
			if xerr.Rule != tc.rule || xerr.Version != tc.version {
				t.Errorf("ExecutionError context = (%q, %q), want (%q, %q)",
					xerr.Rule, xerr.Version, tc.rule, tc.version)
			}
		})
	}
}

// countingStore wraps a store to count FindByRule calls.
type countingStore struct {
	DocumentStore
	mu    sync.Mutex
	finds int
}

func (s *countingStore) FindByRule(ruleName, version string) (*RuleDocument, error) {
	s.mu.Lock()
	s.finds++
	s.mu.Unlock()
	return s.DocumentStore.FindByRule(ruleName, version)
}

func TestExecuteCachesDocuments(t *testing.T) {
	counting := &countingStore{DocumentStore: loadTestStore(t)}
	engine := NewEngine(counting)
	input := map[string]any{"uae_employees": 150.0, "industry": "Technology"}

	for i := 0; i < 5; i++ {
		if _, err := engine.Execute("evaluate_company_quality", "2.1.0", input); err != nil {
			t.Fatalf("Execute() failed: %v", err)
		}
	}

	counting.mu.Lock()
	finds := counting.finds
	counting.mu.Unlock()
	if finds != 1 {
		t.Errorf("store hit %d times, want 1 (subsequent executions served from cache)", finds)
	}
}

func TestExecuteConcurrent(t *testing.T) {
	engine := NewEngine(loadTestStore(t))
	input := map[string]any{"uae_employees": 150.0, "industry": "Technology"}

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := engine.Execute("evaluate_company_quality", "2.1.0", input)
			if err != nil {
				errs <- err
				return
			}
			if decision.Result != 100.0 {
				errs <- errors.New("unexpected result under concurrency")
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestEngineListVersions(t *testing.T) {
	engine := NewEngine(loadTestStore(t))

	versions, err := engine.ListVersions("evaluate_company_quality")
	if err != nil {
		t.Fatalf("ListVersions() failed: %v", err)
	}
	if !reflect.DeepEqual(versions, []string{"2.1.0"}) {
		t.Errorf("ListVersions() = %v, want [2.1.0]", versions)
	}
}
