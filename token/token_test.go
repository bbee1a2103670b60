package token

import "testing"

func TestLookupIdentifierReservedWords(t *testing.T) {
	for word, want := range reservedWords {
		got, ok := LookupIdentifier(word)
		if !ok || got != want {
			t.Errorf("LookupIdentifier(%q) = (%v, %v), want (%v, true)", word, got, ok, want)
		}
	}
}

func TestLookupIdentifierPrimitiveTypes(t *testing.T) {
	for _, name := range []string{"int", "char"} {
		got, ok := LookupIdentifier(name)
		if !ok || got != PRIM_TYPE {
			t.Errorf("LookupIdentifier(%q) = (%v, %v), want (PRIM_TYPE, true)", name, got, ok)
		}
	}
}

func TestLookupIdentifierVoid(t *testing.T) {
	got, ok := LookupIdentifier("void")
	if !ok || got != VOID {
		t.Errorf("LookupIdentifier(void) = (%v, %v), want (VOID, true)", got, ok)
	}
}

func TestLookupIdentifierPlainIdent(t *testing.T) {
	got, ok := LookupIdentifier("counter")
	if ok || got != IDENT {
		t.Errorf("LookupIdentifier(counter) = (%v, %v), want (IDENT, false)", got, ok)
	}
}

func TestPunctuation(t *testing.T) {
	cases := map[rune]Kind{
		'(': LPAREN,
		')': RPAREN,
		'{': LBRACE,
		'}': RBRACE,
		';': SEMI,
		'~': TILDE,
	}
	for ch, want := range cases {
		got, ok := Punctuation(ch)
		if !ok || got != want {
			t.Errorf("Punctuation(%q) = (%v, %v), want (%v, true)", ch, got, ok, want)
		}
	}
	if _, ok := Punctuation('$'); ok {
		t.Errorf("Punctuation($) should not resolve")
	}
}

func TestIsUnsignedRelOp(t *testing.T) {
	unsigned := []string{"<|", ">|", "<|=", ">|="}
	signed := []string{"<", ">", "<=", ">=", "==", "!="}
	for _, lit := range unsigned {
		if !IsUnsignedRelOp(lit) {
			t.Errorf("IsUnsignedRelOp(%q) = false, want true", lit)
		}
	}
	for _, lit := range signed {
		if IsUnsignedRelOp(lit) {
			t.Errorf("IsUnsignedRelOp(%q) = true, want false", lit)
		}
	}
}
