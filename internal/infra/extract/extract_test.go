package extract

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForPath(t *testing.T) {
	tests := []struct {
		path   string
		format Format
		ok     bool
	}{
		{"docs/manual.pdf", FormatPDF, true},
		{"README.md", FormatText, true},
		{"notes.txt", FormatText, true},
		{"data.csv", FormatText, true},
		{"page.html", FormatHTML, true},
		{"REPORT.PDF", FormatPDF, true},
		{"image.png", "", false},
		{"archive.zip", "", false},
		{"noextension", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			format, ok := FormatForPath(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.format, format)
		})
	}
}

func TestExtractor_ExtractRejectsUnsupportedFormat(t *testing.T) {
	e := NewExtractor()

	_, err := e.Extract("image.png")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExtractor_ExtractTextFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("これはテストです。\n2行目。"), 0o644))

	e := NewExtractor()
	sections, err := e.Extract(path)
	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Equal(t, 1, sections[0].Page)
	assert.Equal(t, "これはテストです。\n2行目。", sections[0].Text)
}

func TestExtractor_ExtractHTMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.html")
	content := `<html><head><title>社内規程</title><style>body { color: red; }</style></head>
<body>
<script>console.log("ignored");</script>
<h1>経費精算</h1>
<p>申請は&amp;システムから行うこと。</p>
<!-- 下書きメモ -->
<ul><li>領収書を添付</li><li>上長の承認</li></ul>
</body></html>`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	e := NewExtractor()
	sections, err := e.Extract(path)
	require.NoError(t, err)
	require.Len(t, sections, 1)

	text := sections[0].Text
	assert.Contains(t, text, "経費精算")
	assert.Contains(t, text, "申請は&システムから行うこと。")
	assert.Contains(t, text, "領収書を添付")
	assert.NotContains(t, text, "console.log")
	assert.NotContains(t, text, "color: red")
	assert.NotContains(t, text, "下書きメモ")
	assert.NotContains(t, text, "<")
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"ブロック要素は改行になる",
			"<p>一行目</p><p>二行目</p>",
			"一行目\n二行目",
		},
		{
			"brタグは改行になる",
			"前半<br>後半",
			"前半\n後半",
		},
		{
			"エンティティを復元する",
			"<p>A &lt; B &amp; C</p>",
			"A < B & C",
		},
		{
			"連続する空白を圧縮する",
			"<p>空白   が\t多い</p>",
			"空白 が 多い",
		},
		{
			"タグのみの入力は空になる",
			"<div><span></span></div>",
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripHTML(tt.in))
		})
	}
}

func TestApplyPDFLicenseWithEmptyKey(t *testing.T) {
	assert.NoError(t, ApplyPDFLicense(""))
}
