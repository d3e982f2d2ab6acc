package analyzer

import (
	"reflect"
	"testing"
)

func TestAnalyzeNormalizes(t *testing.T) {
	an := New(nil)

	tests := []struct {
		name  string
		input string
		terms []string
	}{
		{"lowercases", "Printer OFFLINE", []string{"printer", "offlin"}},
		{"strips punctuation", "printer, jam!", []string{"printer", "jam"}},
		{"drops stop words", "the printer and the queue", []string{"printer", "queue"}},
		{"drops short tokens", "a b cd", []string{"cd"}},
		{"stems plurals", "printers", []string{"printer"}},
		{"stems gerunds", "running", []string{"run"}},
		{"keeps digits", "error 404 page", []string{"error", "404", "page"}},
		{"empty input", "", nil},
		{"only punctuation", "!!! --- ...", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := an.Terms(tt.input)
			if len(got) == 0 {
				got = nil
			}
			if !reflect.DeepEqual(got, tt.terms) {
				t.Errorf("Terms(%q) = %v, want %v", tt.input, got, tt.terms)
			}
		})
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	an := New(nil)
	input := "Resetting the printer queue fixes most offline printers."
	first := an.Analyze(input)
	for i := 0; i < 10; i++ {
		if got := an.Analyze(input); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differed: %v vs %v", i, got, first)
		}
	}
}

func TestAnalyzePositionsContiguous(t *testing.T) {
	an := New(nil)
	tokens := an.Analyze("the printer is offline and the queue is stuck")
	for i, tok := range tokens {
		if tok.Position != i {
			t.Errorf("token %d (%q) has position %d", i, tok.Term, tok.Position)
		}
	}
}

func TestAnalyzeByteOffsets(t *testing.T) {
	an := New(nil)
	input := "Reset the Printer."
	tokens := an.Analyze(input)
	if len(tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %v", tokens)
	}
	if got := input[tokens[0].Start:tokens[0].End]; got != "Reset" {
		t.Errorf("first token offsets cover %q, want %q", got, "Reset")
	}
	if got := input[tokens[1].Start:tokens[1].End]; got != "Printer" {
		t.Errorf("second token offsets cover %q, want %q", got, "Printer")
	}
}

func TestAnalyzeQuerySymmetry(t *testing.T) {
	an := New(nil)
	// Any term produced at index time must be reproduced by analyzing
	// the same literal text at query time.
	inputs := []string{
		"Printer troubleshooting guide",
		"Connecting monitors to docking stations",
		"VPN access for remote employees",
	}
	for _, input := range inputs {
		indexed := an.Terms(input)
		queried := an.Terms(input)
		if !reflect.DeepEqual(indexed, queried) {
			t.Errorf("asymmetric analysis for %q: %v vs %v", input, indexed, queried)
		}
	}
}

func TestCustomStopWords(t *testing.T) {
	an := New([]string{"printer"})
	got := an.Terms("printer offline")
	if len(got) != 1 || got[0] != "offlin" {
		t.Errorf("expected custom stop word removal, got %v", got)
	}

	noStops := New([]string{})
	got = noStops.Terms("the printer")
	if len(got) != 2 {
		t.Errorf("expected stop word removal disabled, got %v", got)
	}
}
