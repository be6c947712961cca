// Package document turns uploaded requirement documents into plain text.
package document

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Encoding names one decoder in the fallback chain.
type Encoding struct {
	Name    string
	Decoder *encoding.Decoder
}

// DefaultEncodings is the order Decode tries. A nil decoder means strict UTF-8.
var DefaultEncodings = []Encoding{
	{Name: "utf-8"},
	{Name: "latin-1", Decoder: charmap.ISO8859_1.NewDecoder()},
	{Name: "cp1252", Decoder: charmap.Windows1252.NewDecoder()},
}

// Decode converts raw bytes to text. It never fails: if no encoding in
// DefaultEncodings decodes data cleanly, invalid bytes become U+FFFD.
func Decode(data []byte) string {
	text, _ := DecodeWith(data, DefaultEncodings)
	return text
}

// DecodeWith tries encodings in order and reports which one was used.
func DecodeWith(data []byte, encodings []Encoding) (string, string) {
	for _, enc := range encodings {
		if text, ok := decodeStrict(data, enc); ok {
			return text, enc.Name
		}
	}
	return strings.ToValidUTF8(string(data), string(utf8.RuneError)), "utf-8-replace"
}

func decodeStrict(data []byte, enc Encoding) (string, bool) {
	if enc.Decoder == nil {
		if !utf8.Valid(data) {
			return "", false
		}
		return string(data), true
	}
	out, err := enc.Decoder.Bytes(data)
	if err != nil {
		return "", false
	}
	// charmap decoders substitute U+FFFD for undefined bytes instead of failing.
	if strings.ContainsRune(string(out), utf8.RuneError) {
		return "", false
	}
	return string(out), true
}

var (
	carriageReturns = regexp.MustCompile(`\r\n?`)
	blankRuns       = regexp.MustCompile(`\n{2,}`)
)

// Clean normalizes line endings, collapses runs of blank lines, and trims.
func Clean(raw string) string {
	text := carriageReturns.ReplaceAllString(raw, "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
