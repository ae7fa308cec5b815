package parser

import (
	"archive/zip"
	"bytes"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"handbook-rag/internal/models"
)

func TestDocumentName(t *testing.T) {
	assert.Equal(t, "LincolnHandbook2025HighSchoolEnglish1755706408612_8FBfTt",
		DocumentName("/data/pdf/LincolnHandbook2025HighSchoolEnglish1755706408612_8FBfTt.pdf"))
	assert.Equal(t, "notes", DocumentName("notes.txt"))
}

func TestIsSupported(t *testing.T) {
	assert.True(t, IsSupported("a.PDF"))
	assert.True(t, IsSupported("a.docx"))
	assert.False(t, IsSupported("a.png"))
}

func TestSplitTextPages(t *testing.T) {
	pages := SplitTextPages("page one\fpage two\f  \fpage four\n\n\n\n\npage five")
	assert.Equal(t, []models.PageText{
		{PageNumber: 1, Text: "page one"},
		{PageNumber: 2, Text: "page two"},
		{PageNumber: 4, Text: "page four"},
		{PageNumber: 5, Text: "page five"},
	}, pages)
	assert.Empty(t, SplitTextPages("   "))
}

func TestExtractPages(t *testing.T) {
	dir := t.TempDir()

	t.Run("ShouldReadPlainText", func(t *testing.T) {
		path := filepath.Join(dir, "policy.txt")
		require.NoError(t, os.WriteFile(path, []byte("Dress code.\fAttendance."), 0o644))
		pages, err := ExtractPages(path)
		require.NoError(t, err)
		require.Len(t, pages, 2)
		assert.Equal(t, "Attendance.", pages[1].Text)
	})

	t.Run("ShouldNumberSlidesFromFileNames", func(t *testing.T) {
		path := filepath.Join(dir, "deck.pptx")
		f, err := os.Create(path)
		require.NoError(t, err)
		zw := zip.NewWriter(f)
		for name, body := range map[string]string{
			"ppt/slides/slide2.xml":  "<p:sld><a:t>Second</a:t><a:t>slide</a:t></p:sld>",
			"ppt/slides/slide1.xml":  "<p:sld><a:t>First</a:t></p:sld>",
			"ppt/slides/_rels/x.xml": "<a:t>ignored</a:t>",
		} {
			w, err := zw.Create(name)
			require.NoError(t, err)
			_, err = w.Write([]byte(body))
			require.NoError(t, err)
		}
		require.NoError(t, zw.Close())
		require.NoError(t, f.Close())

		pages, err := ExtractPages(path)
		require.NoError(t, err)
		assert.Equal(t, []models.PageText{
			{PageNumber: 1, Text: "First"},
			{PageNumber: 2, Text: "Second slide"},
		}, pages)
	})

	t.Run("ShouldWarnAndSkipUnreadableSlide", func(t *testing.T) {
		var buf bytes.Buffer
		prev := log.Logger
		log.Logger = zerolog.New(&buf)
		t.Cleanup(func() { log.Logger = prev })

		path := filepath.Join(dir, "broken.pptx")
		f, err := os.Create(path)
		require.NoError(t, err)
		zw := zip.NewWriter(f)
		w, err := zw.Create("ppt/slides/slide1.xml")
		require.NoError(t, err)
		_, err = w.Write([]byte("<a:t>Readable</a:t>"))
		require.NoError(t, err)
		body := []byte("<a:t>Lost</a:t>")
		// method 99 has no registered decompressor, so Open fails
		raw, err := zw.CreateRaw(&zip.FileHeader{
			Name:               "ppt/slides/slide2.xml",
			Method:             99,
			CRC32:              crc32.ChecksumIEEE(body),
			CompressedSize64:   uint64(len(body)),
			UncompressedSize64: uint64(len(body)),
		})
		require.NoError(t, err)
		_, err = raw.Write(body)
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		require.NoError(t, f.Close())

		pages, err := ExtractPages(path)
		require.NoError(t, err)
		assert.Equal(t, []models.PageText{{PageNumber: 1, Text: "Readable"}}, pages)
		assert.Contains(t, buf.String(), `"level":"warn"`)
		assert.Contains(t, buf.String(), `"slide":"ppt/slides/slide2.xml"`)
		assert.Contains(t, buf.String(), "Skipping unreadable slide")
	})

	t.Run("ShouldRejectUnknownFormat", func(t *testing.T) {
		_, err := ExtractPages(filepath.Join(dir, "image.png"))
		assert.ErrorContains(t, err, "unsupported file format")
	})
}
