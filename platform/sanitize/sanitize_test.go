package sanitize

import "testing"

func TestPlainTextStripsAndTruncates(t *testing.T) {
	got := PlainText("<p>New   lead</p>\n<b>Berlin</b>", 0)
	if got != "New lead Berlin" {
		t.Fatalf("unexpected plain text %q", got)
	}

	if got := PlainText("äöüäöü", 3); got != "äöü" {
		t.Fatalf("expected rune-safe truncation, got %q", got)
	}
}

func TestTextOrFallsBack(t *testing.T) {
	if got := TextOr("<br/>", "Not specified"); got != "Not specified" {
		t.Fatalf("expected fallback, got %q", got)
	}
	if got := TextOr(" Tech ", "Not specified"); got != "Tech" {
		t.Fatalf("expected trimmed text, got %q", got)
	}
}

func TestTextRemovesEncodedTags(t *testing.T) {
	if got := Text("Acme &lt;script&gt;alert(1)&lt;/script&gt; &amp; Co"); got != "Acme alert(1) & Co" {
		t.Fatalf("unexpected text %q", got)
	}
}
