package token

import "testing"

func TestKindStringKnownAndUnknown(t *testing.T) {
	if got := KwWhile.String(); got != "while" {
		t.Errorf("got %q, want %q", got, "while")
	}
	if got := Kind(9999).String(); got != "Kind(9999)" {
		t.Errorf("got %q, want %q", got, "Kind(9999)")
	}
}

func TestPositionString(t *testing.T) {
	p := Position{Line: 3, Column: 7}
	if got := p.String(); got != "3:7" {
		t.Errorf("got %q, want %q", got, "3:7")
	}
}

func TestTokenStringRendersEOFPlainly(t *testing.T) {
	tok := Token{Kind: EOF, Pos: Position{Line: 1, Column: 1}}
	if got := tok.String(); got != "EOF" {
		t.Errorf("got %q, want %q", got, "EOF")
	}
}

func TestTokenStringRendersLexemeAndPosition(t *testing.T) {
	tok := Token{Kind: Identifier, Lexeme: "x", Pos: Position{Line: 2, Column: 5}}
	want := `IDENTIFIER("x")@2:5`
	if got := tok.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestKeywordsMapCoversAllReservedWords(t *testing.T) {
	want := []string{"int", "double", "bool", "true", "false", "if", "else", "for", "while", "break", "continue"}
	if len(Keywords) != len(want) {
		t.Fatalf("got %d keywords, want %d", len(Keywords), len(want))
	}
	for _, w := range want {
		if _, ok := Keywords[w]; !ok {
			t.Errorf("missing keyword %q", w)
		}
	}
}
