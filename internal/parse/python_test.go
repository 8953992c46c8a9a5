package parse

import (
	"testing"

	"aether/internal/core"
)

const pythonBasicSource = `from typing import Iterable

MODULE_FLAG: bool = True
type UserId = int


def top_level(values: Iterable[int]) -> int:
    def nested(inner: int) -> int:
        return inner + 1

    return nested(sum(values))


@decorator
def decorated_function(name: str) -> str:
    return name.upper()


@decorator
class Worker:
    def __init__(self, name: str) -> None:
        self.name = name

    @staticmethod
    def factory(value: str) -> "Worker":
        return Worker(value)

    def run(self) -> str:
        return decorated_function(self.name)
`

func extractPython(t *testing.T, path, source string) *ExtractedFile {
	t.Helper()
	extracted, err := NewPythonParser().Extract(path, []byte(source))
	if err != nil {
		t.Fatalf("python extraction failed: %v", err)
	}
	return extracted
}

func qualifiedNames(extracted *ExtractedFile) map[string]bool {
	names := make(map[string]bool)
	for _, symbol := range extracted.Symbols {
		names[symbol.QualifiedName] = true
	}
	return names
}

func TestPythonParser_SymbolKindsAndQualifiedNames(t *testing.T) {
	extracted := extractPython(t, "tests/fixtures/python_basic.py", pythonBasicSource)

	names := qualifiedNames(extracted)
	for _, want := range []string{
		"tests.fixtures.python_basic::MODULE_FLAG",
		"tests.fixtures.python_basic::UserId",
		"tests.fixtures.python_basic::top_level",
		"tests.fixtures.python_basic::top_level::nested",
		"tests.fixtures.python_basic::decorated_function",
		"tests.fixtures.python_basic::Worker",
		"tests.fixtures.python_basic::Worker::__init__",
		"tests.fixtures.python_basic::Worker::factory",
		"tests.fixtures.python_basic::Worker::run",
	} {
		if !names[want] {
			t.Errorf("missing qualified name %s (have %v)", want, names)
		}
	}

	kinds := make(map[string]core.SymbolKind)
	for _, symbol := range extracted.Symbols {
		kinds[symbol.Name] = symbol.Kind
	}
	expected := map[string]core.SymbolKind{
		"MODULE_FLAG": core.KindVariable,
		"UserId":      core.KindTypeAlias,
		"top_level":   core.KindFunction,
		"nested":      core.KindFunction,
		"Worker":      core.KindClass,
		"__init__":    core.KindMethod,
		"factory":     core.KindMethod,
		"run":         core.KindMethod,
	}
	for name, kind := range expected {
		if kinds[name] != kind {
			t.Errorf("symbol %s: expected kind %s, got %s", name, kind, kinds[name])
		}
	}
}

// Shifting a file down by blank lines must not change any symbol ID.
func TestPythonParser_SymbolIDsStableAcrossLineShifts(t *testing.T) {
	original := extractPython(t, "tests/fixtures/python_basic.py", pythonBasicSource)
	shifted := extractPython(t, "tests/fixtures/python_basic.py", "\n\n"+pythonBasicSource)

	originalIDs := make(map[string]string)
	for _, symbol := range original.Symbols {
		originalIDs[symbol.QualifiedName] = symbol.ID
	}
	shiftedIDs := make(map[string]string)
	for _, symbol := range shifted.Symbols {
		shiftedIDs[symbol.QualifiedName] = symbol.ID
	}

	if len(originalIDs) != len(shiftedIDs) {
		t.Fatalf("symbol counts differ: %d vs %d", len(originalIDs), len(shiftedIDs))
	}
	for qualified, id := range originalIDs {
		if shiftedIDs[qualified] != id {
			t.Errorf("ID for %s changed after line shift", qualified)
		}
	}
}

func TestPythonParser_CallAndImportEdges(t *testing.T) {
	source := `import os
from pkg import alpha, beta as b
from core.util import helper
from .local import thing
from ..shared import model
from pkg.star import *


def use_things(value):
    helper()
    thing.format(value)
    return str(value)
`
	extracted := extractPython(t, "tests/fixtures/python_imports.py", source)

	callTargets := make(map[string]bool)
	dependsTargets := make(map[string]bool)
	for _, edge := range extracted.Edges {
		switch edge.EdgeKind {
		case core.EdgeCalls:
			callTargets[edge.TargetQualifiedName] = true
		case core.EdgeDependsOn:
			dependsTargets[edge.TargetQualifiedName] = true
		}
	}

	for _, want := range []string{"helper", "thing.format", "str"} {
		if !callTargets[want] {
			t.Errorf("missing call edge target %s (have %v)", want, callTargets)
		}
	}
	for _, want := range []string{
		"os",
		"pkg.alpha",
		"pkg.beta",
		"core.util.helper",
		"tests.fixtures.local.thing",
		"tests.shared.model",
		"pkg.star",
	} {
		if !dependsTargets[want] {
			t.Errorf("missing depends_on edge target %s (have %v)", want, dependsTargets)
		}
	}
}

func TestPythonParser_CallEdgesAttributeToEnclosingFunction(t *testing.T) {
	source := `def caller():
    helper()

module_call()
`
	extracted := extractPython(t, "app.py", source)

	var callerID string
	for _, symbol := range extracted.Symbols {
		if symbol.Name == "caller" {
			callerID = symbol.ID
		}
	}
	if callerID == "" {
		t.Fatal("caller symbol not found")
	}

	for _, edge := range extracted.Edges {
		if edge.EdgeKind != core.EdgeCalls {
			continue
		}
		switch edge.TargetQualifiedName {
		case "helper":
			if edge.SourceID != callerID {
				t.Errorf("helper call should attribute to caller, got %s", edge.SourceID)
			}
		case "module_call":
			if edge.SourceID != core.FileSourceID("app.py") {
				t.Errorf("module-level call should attribute to the file, got %s", edge.SourceID)
			}
		}
	}
}

func TestPythonParser_InitModuleUsesPackageName(t *testing.T) {
	source := `PACKAGE_VALUE: int = 3


def bootstrap():
    return PACKAGE_VALUE
`
	extracted := extractPython(t, "tests/fixtures/python_package/__init__.py", source)

	names := qualifiedNames(extracted)
	for _, want := range []string{
		"tests.fixtures.python_package::PACKAGE_VALUE",
		"tests.fixtures.python_package::bootstrap",
	} {
		if !names[want] {
			t.Errorf("missing qualified name %s (have %v)", want, names)
		}
	}
}

func TestPythonParser_TestIntentsFromNamesAndDocstrings(t *testing.T) {
	source := `def test_handles_negative_balance():
    """handles negative balance"""
    assert True

def test_returns_none_for_missing_symbol():
    assert True

def helper():
    return 1
`
	extracted := extractPython(t, "tests/test_payments.py", source)

	intents := make(map[string]bool)
	for _, intent := range extracted.TestIntents {
		intents[intent.IntentText] = true
		if intent.SymbolID == "" {
			t.Errorf("intent %q has no symbol ID", intent.TestName)
		}
	}
	if !intents["handles negative balance"] {
		t.Errorf("missing docstring intent (have %v)", intents)
	}
	if !intents["returns none for missing symbol"] {
		t.Errorf("missing humanized intent (have %v)", intents)
	}
	if len(extracted.TestIntents) != 2 {
		t.Errorf("expected 2 intents, got %d", len(extracted.TestIntents))
	}
}

// Renaming a symbol must give it a new identity.
func TestPythonParser_RenameChangesSymbolID(t *testing.T) {
	before := extractPython(t, "app.py", "def original(a, b):\n    return a + b\n")
	after := extractPython(t, "app.py", "def renamed(a, b):\n    return a + b\n")

	if len(before.Symbols) != 1 || len(after.Symbols) != 1 {
		t.Fatalf("expected one symbol per extraction, got %d and %d", len(before.Symbols), len(after.Symbols))
	}
	if before.Symbols[0].ID == after.Symbols[0].ID {
		t.Error("renamed function kept its old symbol ID")
	}
}
