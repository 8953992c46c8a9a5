package parse

import (
	"testing"

	"aether/internal/core"
)

func TestRustParser_SymbolsAndQualifiedMethods(t *testing.T) {
	source := `
struct Widget;

type WidgetId = u64;

impl Widget {
    fn run(&self) -> bool {
        true
    }
}

fn helper() -> i32 {
    1
}
`
	extracted, err := NewRustParser().Extract("src/lib.rs", []byte(source))
	if err != nil {
		t.Fatalf("rust extraction failed: %v", err)
	}

	names := qualifiedNames(extracted)
	for _, want := range []string{"Widget", "WidgetId", "Widget::run", "helper"} {
		if !names[want] {
			t.Errorf("missing qualified name %s (have %v)", want, names)
		}
	}

	for _, symbol := range extracted.Symbols {
		if symbol.Name == "run" && symbol.Kind != core.KindMethod {
			t.Errorf("run should be a method, got %s", symbol.Kind)
		}
		if symbol.Name == "helper" && symbol.Kind != core.KindFunction {
			t.Errorf("helper should be a function, got %s", symbol.Kind)
		}
	}
}

func TestRustParser_CallAndUseEdges(t *testing.T) {
	source := `
use std::collections::HashMap;

fn beta() {}

fn alpha() {
    beta();
}
`
	extracted, err := NewRustParser().Extract("src/lib.rs", []byte(source))
	if err != nil {
		t.Fatalf("rust extraction failed: %v", err)
	}

	var alphaID string
	for _, symbol := range extracted.Symbols {
		if symbol.Name == "alpha" {
			alphaID = symbol.ID
		}
	}
	if alphaID == "" {
		t.Fatal("alpha symbol not found")
	}

	var foundCall, foundUse bool
	for _, edge := range extracted.Edges {
		if edge.EdgeKind == core.EdgeCalls && edge.TargetQualifiedName == "beta" {
			foundCall = true
			if edge.SourceID != alphaID {
				t.Errorf("beta call should attribute to alpha, got %s", edge.SourceID)
			}
		}
		if edge.EdgeKind == core.EdgeDependsOn && edge.TargetQualifiedName == "std::collections::HashMap" {
			foundUse = true
		}
	}
	if !foundCall {
		t.Error("missing calls edge to beta")
	}
	if !foundUse {
		t.Error("missing depends_on edge for use declaration")
	}
}

func TestRustParser_TestIntentsFromNamesAndDocComments(t *testing.T) {
	source := `
#[test]
fn test_handles_negative_balance() {}

/// returns none for missing symbol
#[test]
fn lookup_missing_symbol_returns_none() {}

fn helper() {}
`
	extracted, err := NewRustParser().Extract("src/lib.rs", []byte(source))
	if err != nil {
		t.Fatalf("rust extraction failed: %v", err)
	}

	intents := make(map[string]bool)
	for _, intent := range extracted.TestIntents {
		intents[intent.IntentText] = true
		if intent.SymbolID == "" {
			t.Errorf("intent %q has no symbol ID", intent.TestName)
		}
	}
	if !intents["handles negative balance"] {
		t.Errorf("missing humanized intent (have %v)", intents)
	}
	if !intents["returns none for missing symbol"] {
		t.Errorf("missing doc comment intent (have %v)", intents)
	}
	if len(extracted.TestIntents) != 2 {
		t.Errorf("expected 2 intents, got %d", len(extracted.TestIntents))
	}
}

func TestTypeScriptParser_SymbolsAndMethods(t *testing.T) {
	source := `
function topLevel(value: number): number {
  return value + 1;
}

class Greeter {
  greet(name: string): string {
    return ` + "`hello ${name}`" + `;
  }
}

interface User {
  id: string;
}

type UserId = string;
`
	extracted, err := NewTypeScriptParser().Extract("src/index.ts", []byte(source))
	if err != nil {
		t.Fatalf("typescript extraction failed: %v", err)
	}

	names := qualifiedNames(extracted)
	for _, want := range []string{"topLevel", "Greeter", "Greeter::greet", "User", "UserId"} {
		if !names[want] {
			t.Errorf("missing qualified name %s (have %v)", want, names)
		}
	}

	kinds := make(map[string]core.SymbolKind)
	for _, symbol := range extracted.Symbols {
		kinds[symbol.Name] = symbol.Kind
		if symbol.Language != core.LanguageTypeScript {
			t.Errorf("symbol %s: expected typescript language, got %s", symbol.Name, symbol.Language)
		}
	}
	if kinds["greet"] != core.KindMethod {
		t.Errorf("greet should be a method, got %s", kinds["greet"])
	}
	if kinds["User"] != core.KindInterface {
		t.Errorf("User should be an interface, got %s", kinds["User"])
	}
	if kinds["UserId"] != core.KindTypeAlias {
		t.Errorf("UserId should be a type alias, got %s", kinds["UserId"])
	}
}

func TestTypeScriptParser_ImportAndCallEdges(t *testing.T) {
	source := `
import { helper } from "./helper";

function caller(): void {
  helper();
}
`
	extracted, err := NewTypeScriptParser().Extract("src/app.ts", []byte(source))
	if err != nil {
		t.Fatalf("typescript extraction failed: %v", err)
	}

	var foundImport, foundCall bool
	for _, edge := range extracted.Edges {
		if edge.EdgeKind == core.EdgeDependsOn && edge.TargetQualifiedName == "./helper" {
			foundImport = true
			if edge.SourceID != core.FileSourceID("src/app.ts") {
				t.Errorf("import edge should attribute to the file, got %s", edge.SourceID)
			}
		}
		if edge.EdgeKind == core.EdgeCalls && edge.TargetQualifiedName == "helper" {
			foundCall = true
		}
	}
	if !foundImport {
		t.Error("missing depends_on edge for import")
	}
	if !foundCall {
		t.Error("missing calls edge to helper")
	}
}

func TestTypeScriptParser_TestIntentsFromItTestAndDescribe(t *testing.T) {
	source := `
describe("PaymentService", () => {
  it("handles negative balance", () => {});
  test("returns none for missing symbol", () => {});
});
`
	extracted, err := NewTypeScriptParser().Extract("src/payment.test.ts", []byte(source))
	if err != nil {
		t.Fatalf("typescript extraction failed: %v", err)
	}

	intents := make(map[string]bool)
	var grouped bool
	for _, intent := range extracted.TestIntents {
		intents[intent.IntentText] = true
		if intent.GroupLabel == "PaymentService" {
			grouped = true
		}
	}
	for _, want := range []string{"PaymentService", "handles negative balance", "returns none for missing symbol"} {
		if !intents[want] {
			t.Errorf("missing intent %q (have %v)", want, intents)
		}
	}
	if !grouped {
		t.Error("nested intents should carry the describe label")
	}
}

func TestTypeScriptParser_TsxUsesDialectLanguage(t *testing.T) {
	source := `
function App(): JSX.Element {
  return <div>ok</div>;
}
`
	extracted, err := NewTypeScriptParser().Extract("src/App.tsx", []byte(source))
	if err != nil {
		t.Fatalf("tsx extraction failed: %v", err)
	}
	if len(extracted.Symbols) == 0 {
		t.Fatal("expected at least one symbol from tsx source")
	}
	for _, symbol := range extracted.Symbols {
		if symbol.Language != core.LanguageTsx {
			t.Errorf("expected tsx language, got %s", symbol.Language)
		}
	}
}

func TestGoParser_SymbolsEdgesAndIntents(t *testing.T) {
	source := `package sample

import "fmt"

type User struct {
	ID int
}

type Reader interface {
	Read() error
}

const limit = 10

func NewUser(id int) *User {
	return &User{ID: id}
}

func (u *User) Describe() string {
	return fmt.Sprintf("user %d", u.ID)
}
`
	extracted, err := NewGoParser().Extract("internal/sample/user.go", []byte(source))
	if err != nil {
		t.Fatalf("go extraction failed: %v", err)
	}

	names := qualifiedNames(extracted)
	for _, want := range []string{
		"sample::User",
		"sample::Reader",
		"sample::limit",
		"sample::NewUser",
		"sample::User::Describe",
	} {
		if !names[want] {
			t.Errorf("missing qualified name %s (have %v)", want, names)
		}
	}

	kinds := make(map[string]core.SymbolKind)
	for _, symbol := range extracted.Symbols {
		kinds[symbol.Name] = symbol.Kind
	}
	if kinds["User"] != core.KindStruct {
		t.Errorf("User should be a struct, got %s", kinds["User"])
	}
	if kinds["Reader"] != core.KindInterface {
		t.Errorf("Reader should be an interface, got %s", kinds["Reader"])
	}
	if kinds["Describe"] != core.KindMethod {
		t.Errorf("Describe should be a method, got %s", kinds["Describe"])
	}

	var foundImport, foundCall bool
	for _, edge := range extracted.Edges {
		if edge.EdgeKind == core.EdgeDependsOn && edge.TargetQualifiedName == "fmt" {
			foundImport = true
		}
		if edge.EdgeKind == core.EdgeCalls && edge.TargetQualifiedName == "fmt.Sprintf" {
			foundCall = true
		}
	}
	if !foundImport {
		t.Error("missing depends_on edge for fmt import")
	}
	if !foundCall {
		t.Error("missing calls edge to fmt.Sprintf")
	}
}

func TestGoParser_TestIntentsFromTestFiles(t *testing.T) {
	source := `package sample

import "testing"

// verifies rollover at year end
func TestRolloverAtYearEnd(t *testing.T) {}

func TestHandlesNegativeBalance(t *testing.T) {}
`
	extracted, err := NewGoParser().Extract("internal/sample/clock_test.go", []byte(source))
	if err != nil {
		t.Fatalf("go extraction failed: %v", err)
	}

	intents := make(map[string]bool)
	for _, intent := range extracted.TestIntents {
		intents[intent.IntentText] = true
		if intent.SymbolID == "" {
			t.Errorf("intent %q has no symbol ID", intent.TestName)
		}
	}
	if !intents["verifies rollover at year end"] {
		t.Errorf("missing doc comment intent (have %v)", intents)
	}
	if !intents["handles negative balance"] {
		t.Errorf("missing humanized intent (have %v)", intents)
	}
}

func TestRegistry_RoutesByExtension(t *testing.T) {
	registry := DefaultRegistry()

	cases := map[string]core.Language{
		"src/lib.rs":    core.LanguageRust,
		"src/app.ts":    core.LanguageTypeScript,
		"pkg/module.py": core.LanguagePython,
		"main.go":       core.LanguageGo,
	}
	for path, language := range cases {
		parser := registry.ParserFor(path)
		if parser == nil {
			t.Errorf("no parser registered for %s", path)
			continue
		}
		if fallbackLanguage(language) != parser.Language() {
			t.Errorf("%s routed to %s parser", path, parser.Language())
		}
	}

	if registry.Supports("README.md") {
		t.Error("markdown should not be supported")
	}
	if _, err := registry.ExtractFile("README.md", nil); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestRegistry_ExtractSourceFallsBackToLanguage(t *testing.T) {
	registry := DefaultRegistry()

	// A path without a known extension still parses via the language hint.
	extracted, err := registry.ExtractSource(core.LanguagePython, "snippet", []byte("def solo():\n    return 1\n"))
	if err != nil {
		t.Fatalf("extract source failed: %v", err)
	}
	if len(extracted.Symbols) != 1 || extracted.Symbols[0].Name != "solo" {
		t.Fatalf("unexpected symbols: %+v", extracted.Symbols)
	}
}

func TestEdgesAndIntentsAreSortedAndDeduped(t *testing.T) {
	source := `def caller():
    helper()
    helper()
`
	extracted := extractPython(t, "app.py", source)

	seen := make(map[string]int)
	for _, edge := range extracted.Edges {
		if edge.EdgeKind == core.EdgeCalls && edge.TargetQualifiedName == "helper" {
			seen[edge.SourceID]++
		}
	}
	for sourceID, count := range seen {
		if count != 1 {
			t.Errorf("duplicate helper edge for source %s (count %d)", sourceID, count)
		}
	}
}
