package codec

import "testing"

func TestUTF8SplitAcrossReads(t *testing.T) {
	// Cyrillic "П" = D0 9F in UTF-8.
	d := New(UTF8)

	out1 := d.Decode([]byte{0xD0})
	if out1 != "" {
		t.Fatalf("expected no output yet, got %q", out1)
	}

	out2 := d.Decode([]byte{0x9F, '\n'})
	if out2 != "П\n" {
		t.Fatalf("got %q, want %q", out2, "П\n")
	}
}

func TestUTF8SingleCall(t *testing.T) {
	d := New(UTF8)
	in := "héllo wörld"
	out := d.Decode([]byte(in))
	if out != in {
		t.Fatalf("got %q, want %q", out, in)
	}
}

func TestArbitraryChunking(t *testing.T) {
	s := "The quick bröwn fox jümps over the lazy dög. Привет, мир!"
	for chunk := 1; chunk <= 5; chunk++ {
		d := New(UTF8)
		var got string
		b := []byte(s)
		for i := 0; i < len(b); i += chunk {
			end := i + chunk
			if end > len(b) {
				end = len(b)
			}
			got += d.Decode(b[i:end])
		}
		if got != s {
			t.Errorf("chunk size %d: got %q, want %q", chunk, got, s)
		}
	}
}

func TestCP437Decoding(t *testing.T) {
	d := New(CP437)
	// 0x81 in CP437 maps to 'ü'.
	out := d.Decode([]byte{0x81})
	if out != "ü" {
		t.Fatalf("got %q, want %q", out, "ü")
	}
}

func TestSetCharsetResetsCarry(t *testing.T) {
	d := New(UTF8)
	_ = d.Decode([]byte{0xD0}) // buffer an incomplete sequence

	if err := d.SetCharset(CP437); err != nil {
		t.Fatalf("SetCharset: %v", err)
	}
	if len(d.carry) != 0 {
		t.Fatalf("expected carry to be cleared on charset switch")
	}
	// 0xD0 alone is a complete CP437 codepoint (╨), not a dangling byte.
	out := d.Decode([]byte{0xD0})
	if out == "" {
		t.Fatalf("expected decoded output after charset switch")
	}
}

func TestUnsupportedCharsetFallsBackToUTF8(t *testing.T) {
	d := New("bogus-charset")
	if d.Charset() != Name("bogus-charset") {
		t.Fatalf("Charset() should still report the requested label")
	}
	out := d.Decode([]byte("abc"))
	if out != "abc" {
		t.Fatalf("expected UTF-8 fallback decoding, got %q", out)
	}
}

func TestMalformedBytesReplaced(t *testing.T) {
	d := New(UTF8)
	// 0xFF is never valid in UTF-8.
	out := d.Decode([]byte{'a', 0xFF, 'b'})
	if len(out) == 0 {
		t.Fatalf("expected non-empty replacement output")
	}
}
