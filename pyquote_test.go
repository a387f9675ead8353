package codec

import (
	"testing"
)

// codecTestCase represents 1 test case of a coder or decoder.
//
// Under the given transformation function in must be transformed to out.
type codecTestCase struct {
	in, out string
}

// testCodec tests transform func applied to all test cases from testv.
func testCodec(t *testing.T, transform func(in string) (string, error), testv []codecTestCase) {
	for _, tt := range testv {
		s, err := transform(tt.in)
		if err != nil {
			t.Errorf("%q -> error: %s", tt.in, err)
			continue
		}

		if s != tt.out {
			t.Errorf("%q -> unexpected:\nhave: %q\nwant: %q", tt.in, s, tt.out)
		}
	}
}

var backslashUEscape = "\\u1234\\U00001234\\c"

func TestPyDecodeStringEscape(t *testing.T) {
	testCodec(t, pydecodeStringEscape, []codecTestCase{
		{`hello`, "hello"},
		{"hello\\\nworld", "helloworld"},
		{`\\`, `\`},
		{`\'\"`, `'"`},
		{`\b\f\t\n\r\v\a`, "\b\f\t\n\r\v\a"},
		{`\000\001\376\377`, "\000\001\376\377"},
		{`\x00\x01\x7f\x80\xfe\xff`, "\x00\x01\x7f\x80\xfe\xff"},
		// \u / \U are not string-escape sequences this codec handles, so
		// they pass through unchanged.
		{backslashUEscape, backslashUEscape},
	})
}

func TestPyquote(t *testing.T) {
	testv := []struct {
		in  string
		out string
	}{
		{"hello", `"hello"`},
		{"a\"b", `"a\"b"`},
		{"a\\b", `"a\\b"`},
		{"\x00\x01", `"\x00\x01"`},
		{"\n", `"\n"`}, // output is the 4 literal chars: " \ n "
	}
	for _, tt := range testv {
		got := pyquote(tt.in)
		if got != tt.out {
			t.Errorf("pyquote(%q) = %q; want %q", tt.in, got, tt.out)
		}
	}
}
