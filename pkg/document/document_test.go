package document

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDecodeWith(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		want     string
		wantName string
	}{
		{name: "utf-8", data: []byte("caf\xc3\xa9"), want: "café", wantName: "utf-8"},
		{name: "latin-1 fallback", data: []byte("caf\xe9"), want: "café", wantName: "latin-1"},
		{name: "empty", data: nil, want: "", wantName: "utf-8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, name := DecodeWith(tt.data, DefaultEncodings)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantName, name)
		})
	}
}

func TestDecodeWithReplacement(t *testing.T) {
	got, name := DecodeWith([]byte("ok\xff"), []Encoding{{Name: "utf-8"}})
	assert.Equal(t, "utf-8-replace", name)
	assert.Equal(t, "ok�", got)
}

func TestClean(t *testing.T) {
	raw := "  line one\r\nline two\r\rline three\n\n\n\nline four  \n"
	assert.Equal(t, "line one\nline two\n\nline three\n\nline four", Clean(raw))
}

func TestRegistryParseText(t *testing.T) {
	r := NewRegistry()
	res, err := r.Parse(context.Background(), "reqs.txt", []byte("REQ-1: hello"))
	require.NoError(t, err)
	assert.Equal(t, "REQ-1: hello", res.Text)
	assert.Equal(t, "text", res.ParserUsed)
	assert.Equal(t, ".txt", res.FileType)
	assert.Empty(t, res.ParseError)
}

func TestRegistryParseMarkdown(t *testing.T) {
	src := "# Login\n\nREQ-1: The system **shall** allow login.\n\n- REQ-2: Sessions expire\n"
	res, err := NewRegistry().Parse(context.Background(), "notes.MD", []byte(src))
	require.NoError(t, err)
	assert.Equal(t, "markdown", res.ParserUsed)
	assert.Contains(t, res.Text, "Login\n")
	assert.Contains(t, res.Text, "REQ-1: The system shall allow login.")
	assert.Contains(t, res.Text, "REQ-2: Sessions expire")
	assert.NotContains(t, res.Text, "**")
}

func TestRegistryParseDocx(t *testing.T) {
	data := buildDocx(t, `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p><w:r><w:t>REQ-1: Users shall</w:t></w:r><w:r><w:t xml:space="preserve"> reset passwords.</w:t></w:r></w:p>
<w:p><w:r><w:t>REQ-2: Admins must approve.</w:t></w:r></w:p>
</w:body></w:document>`)

	res, err := NewRegistry().Parse(context.Background(), "reqs.docx", data)
	require.NoError(t, err)
	assert.Equal(t, "docx", res.ParserUsed)
	assert.Equal(t, "REQ-1: Users shall reset passwords.\nREQ-2: Admins must approve.", strings.TrimSpace(res.Text))
}

func TestRegistryFallsBackOnParserFailure(t *testing.T) {
	r := NewRegistry(WithLogger(zaptest.NewLogger(t)))
	res, err := r.Parse(context.Background(), "broken.pdf", []byte("REQ-1: not really a pdf"))
	require.NoError(t, err)
	assert.Equal(t, "text", res.ParserUsed)
	assert.Equal(t, "REQ-1: not really a pdf", res.Text)
	assert.Contains(t, res.ParseError, "pdf parser")

	res, err = r.Parse(context.Background(), "broken.docx", []byte("plain"))
	require.NoError(t, err)
	assert.Equal(t, "plain", res.Text)
	assert.NotEmpty(t, res.ParseError)
}

func TestRegistryUnknownExtensionUsesText(t *testing.T) {
	res, err := NewRegistry().Parse(context.Background(), "notes.rst", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "text", res.ParserUsed)
}

func TestRegistryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRegistry().Parse(ctx, "a.txt", []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}
