package extract

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeDocx は指定したdocument.xmlを持つ最小の.docxバイト列を生成します
func makeDocx(t *testing.T, documentXML string) []byte {
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

// TestExtractPlainText はtxtファイルの抽出を確認します
func TestExtractPlainText(t *testing.T) {
	e := NewExtractor()

	text, err := e.Extract([]byte("hello world\n"), "essay.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", text)
}

// TestExtractPlainTextLatin1Fallback はUTF-8不正バイト列のLatin-1フォールバックを確認します
func TestExtractPlainTextLatin1Fallback(t *testing.T) {
	e := NewExtractor()

	// 0xE9 は単体ではUTF-8として不正（Latin-1では é）
	text, err := e.Extract([]byte{'c', 'a', 'f', 0xE9}, "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "café", text)
}

// TestExtractDOCX はdocxファイルからのテキスト抽出を確認します
func TestExtractDOCX(t *testing.T) {
	e := NewExtractor()

	docXML := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t xml:space="preserve">Second paragraph.</w:t></w:r></w:p>
  </w:body>
</w:document>`

	text, err := e.Extract(makeDocx(t, docXML), "report.docx")
	require.NoError(t, err)
	assert.Equal(t, "First paragraph. Second paragraph.", text)
}

// TestExtractDOCXNotZip はzipでないdocxがエラーになることを確認します
func TestExtractDOCXNotZip(t *testing.T) {
	e := NewExtractor()

	_, err := e.Extract([]byte("this is not a zip archive"), "broken.docx")
	assert.Error(t, err)
}

// TestExtractDOCXMissingDocument はdocument.xmlを欠くzipがエラーになることを確認します
func TestExtractDOCXMissingDocument(t *testing.T) {
	e := NewExtractor()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/styles.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte("<w:styles/>"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = e.Extract(buf.Bytes(), "empty.docx")
	assert.ErrorContains(t, err, "word/document.xml")
}

// TestExtractUnsupportedType は未対応の拡張子がErrUnsupportedTypeになることを確認します
func TestExtractUnsupportedType(t *testing.T) {
	e := NewExtractor()

	tests := []string{"image.png", "archive.zip", "noextension", "script.sh"}
	for _, filename := range tests {
		_, err := e.Extract([]byte("data"), filename)
		assert.ErrorIs(t, err, ErrUnsupportedType, filename)
	}
}

// TestExtractCaseInsensitiveExtension は拡張子の大文字小文字を区別しないことを確認します
func TestExtractCaseInsensitiveExtension(t *testing.T) {
	e := NewExtractor()

	text, err := e.Extract([]byte("upper case extension"), "ESSAY.TXT")
	require.NoError(t, err)
	assert.Equal(t, "upper case extension", text)
}
