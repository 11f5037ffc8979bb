package tokenizer

import (
	"reflect"
	"testing"
)

func TestTerms(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"simple", "big lebowski", []string{"big", "lebowski"}},
		{"punctuation", "Big Lebowski (USA)", []string{"big", "lebowski", "usa"}},
		{"mixed separators", "sumo-mack,the\tbig\nshow", []string{"sumo", "mack", "the", "big", "show"}},
		{"digits dropped", "big 3", []string{"big"}},
		{"alphanumeric kept", "R2D2 and C3PO", []string{"r2d2", "and", "c3po"}},
		{"unicode letters", "Crème Brûlée", []string{"crème", "brûlée"}},
		{"no alphabetic content", "123 !!! 4.5", nil},
		{"empty", "", nil},
		{"duplicates kept", "big big", []string{"big", "big"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Terms(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Terms(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestTokenizePositions(t *testing.T) {
	tokens := Tokenize("the 42 big show")
	if len(tokens) != 3 {
		t.Fatalf("expected 3 tokens, got %d", len(tokens))
	}
	for i, tok := range tokens {
		if tok.Position != i {
			t.Errorf("token %q has position %d, want %d", tok.Term, tok.Position, i)
		}
	}
}

func TestDeterministic(t *testing.T) {
	in := "Bigger Than Big (Sumo Mack)"
	first := Terms(in)
	for i := 0; i < 10; i++ {
		if got := Terms(in); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d: %v != %v", i, got, first)
		}
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize([]string{"Big,", "LEBOWSKI", "42", "sumo-mack"})
	want := []string{"big", "lebowski", "sumo", "mack"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Normalize = %v, want %v", got, want)
	}
	if got := Normalize(nil); len(got) != 0 {
		t.Errorf("Normalize(nil) = %v", got)
	}
}

func TestUnique(t *testing.T) {
	got := Unique([]string{"big", "than", "big", "mack", "than"})
	want := []string{"big", "than", "mack"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Unique = %v, want %v", got, want)
	}
}
