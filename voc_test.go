package pascalgt

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const image1VOC = `<annotation>
	<folder>images</folder>
	<filename>image1.jpg</filename>
	<size>
		<width>1108</width>
		<height>1477</height>
		<depth>3</depth>
	</size>
	<object>
		<name>dog</name>
		<pose>Unspecified</pose>
		<bndbox>
			<xmin>10</xmin>
			<ymin>640</ymin>
			<xmax>498</xmax>
			<ymax>1103</ymax>
		</bndbox>
	</object>
	<object>
		<name>cat</name>
		<bndbox>
			<xmin>589</xmin>
			<ymin>777</ymin>
			<xmax>1100</xmax>
			<ymax>1136</ymax>
		</bndbox>
	</object>
</annotation>
`

func image1Set() ImageAnnotationSet {
	return ImageAnnotationSet{
		Filename: "image1.jpg",
		Size:     ImageSize{Width: 1108, Height: 1477, Depth: 3},
		Boxes: []BoundingBox{
			{ClassName: "dog", Left: 10, Top: 640, Width: 488, Height: 463},
			{ClassName: "cat", Left: 589, Top: 777, Width: 511, Height: 359},
		},
	}
}

// vocText renders a minimal annotation with the given size and single box texts.
func vocText(filename, width, height, depth, name, xmin, ymin, xmax, ymax string) string {
	return `<annotation><filename>` + filename + `</filename>` +
		`<size><width>` + width + `</width><height>` + height + `</height><depth>` + depth +
		`</depth></size><object><name>` + name + `</name><bndbox><xmin>` + xmin + `</xmin><ymin>` +
		ymin + `</ymin><xmax>` + xmax + `</xmax><ymax>` + ymax + `</ymax></bndbox></object>` +
		`</annotation>`
}

func parseVOCSet(t *testing.T, text string) (ImageAnnotationSet, error) {
	t.Helper()
	f, err := ParseVOC(strings.NewReader(text))
	require.NoError(t, err)
	data, err := FromVOCFiles([]VOCAnnotatedFile{f})
	if err != nil {
		return ImageAnnotationSet{}, err
	}
	return data[0], nil
}

func TestParseVOC(t *testing.T) {
	t.Parallel()

	got, err := parseVOCSet(t, image1VOC)
	require.NoError(t, err)
	if diff := cmp.Diff(image1Set(), got); diff != "" {
		t.Errorf("annotation mismatch (-want +got):\n%s", diff)
	}
}

func TestParseVOC_DecimalTolerance(t *testing.T) {
	t.Parallel()

	plain, err := parseVOCSet(t, vocText("a.jpg", "640", "480", "3", "dog", "100", "20", "300", "40"))
	require.NoError(t, err)
	decimal, err := parseVOCSet(t, vocText("a.jpg", "640.0", "480.0", "3", "dog", "100.0", "20.7", "300.0", "40.2"))
	require.NoError(t, err)

	if diff := cmp.Diff(plain, decimal); diff != "" {
		t.Errorf("decimal values changed the result (-plain +decimal):\n%s", diff)
	}
	assert.Equal(t, 100, decimal.Boxes[0].Left)
	assert.Equal(t, 20, decimal.Boxes[0].Top)
}

func TestParseVOC_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want error
	}{
		{"decimal depth", vocText("a.jpg", "640", "480", "3.0", "dog", "1", "2", "3", "4"), ErrInvalidNumber},
		{"non-numeric coordinate", vocText("a.jpg", "640", "480", "3", "dog", "one", "2", "3", "4"), ErrInvalidNumber},
		{"non-numeric width", vocText("a.jpg", "wide", "480", "3", "dog", "1", "2", "3", "4"), ErrInvalidNumber},
		{"empty coordinate", vocText("a.jpg", "640", "480", "3", "dog", "", "2", "3", "4"), ErrMissingElement},
		{"missing filename", vocText("", "640", "480", "3", "dog", "1", "2", "3", "4"), ErrMissingElement},
		{"missing name", vocText("a.jpg", "640", "480", "3", "", "1", "2", "3", "4"), ErrMissingElement},
		{"negative width", vocText("a.jpg", "640", "480", "3", "dog", "10", "2", "3", "4"), ErrInvalidBox},
		{"missing size", `<annotation><filename>a.jpg</filename></annotation>`, ErrMissingElement},
		{"width out of range", vocText("a.jpg", "99999999999999999999.0", "480", "3", "dog", "1", "2", "3", "4"), ErrInvalidNumber},
		{"coordinate out of range", vocText("a.jpg", "640", "480", "3", "dog", "-1000000000000000000000.5", "2", "3", "4"), ErrInvalidNumber},
		{"integer out of range", vocText("a.jpg", "640", "99999999999999999999", "3", "dog", "1", "2", "3", "4"), ErrInvalidNumber},
		{"zero width", vocText("a.jpg", "0", "480", "3", "dog", "1", "2", "3", "4"), ErrInvalidNumber},
		{"negative height", vocText("a.jpg", "640", "-480.0", "3", "dog", "1", "2", "3", "4"), ErrInvalidNumber},
		{"zero depth", vocText("a.jpg", "640", "480", "0", "dog", "1", "2", "3", "4"), ErrInvalidNumber},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := parseVOCSet(t, tt.text)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestParseVOC_DeclaredCharset(t *testing.T) {
	t.Parallel()

	// "caf\xe9" is "café" in ISO-8859-1 and invalid as UTF-8.
	text := `<?xml version="1.0" encoding="ISO-8859-1"?>` + "\n" +
		vocText("caf\xe9.jpg", "640", "480", "3", "caf\xe9", "1", "2", "3", "4")
	got, err := parseVOCSet(t, text)
	require.NoError(t, err)
	assert.Equal(t, "café.jpg", got.Filename)
	require.Len(t, got.Boxes, 1)
	assert.Equal(t, "café", got.Boxes[0].ClassName)

	_, err = ParseVOC(strings.NewReader(`<?xml version="1.0" encoding="no-such-charset"?><annotation/>`))
	assert.Error(t, err)
}

func TestParseVOC_NoObjects(t *testing.T) {
	t.Parallel()

	got, err := parseVOCSet(t, `<annotation><filename>empty.png</filename>`+
		`<size><width>1</width><height>2</height><depth>1</depth></size></annotation>`)
	require.NoError(t, err)
	assert.Equal(t, "empty.png", got.Filename)
	assert.Empty(t, got.Boxes)
}

func TestReadVOCDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	names := []string{"c", "a", "e", "b", "d", "g", "f"}
	for _, n := range names {
		text := vocText(n+".jpg", "10", "10", "3", "class_"+n, "1", "1", "2", "2")
		require.NoError(t, os.WriteFile(filepath.Join(dir, n+".xml"), []byte(text), 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.xml"), 0755))

	for _, workers := range []int{0, 1, 3, 100} {
		files, err := ReadVOCDir(dir, workers)
		require.NoError(t, err)
		require.Len(t, files, len(names))

		got := make([]string, len(files))
		for i, f := range files {
			got[i] = f.Filename
			assert.Equal(t, filepath.Join(dir, strings.TrimSuffix(f.Filename, ".jpg")+".xml"), f.Path)
		}
		assert.Equal(t, []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg", "f.jpg", "g.jpg"}, got)
	}
}

func TestFromVOC_ReportsFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := vocText("a.jpg", "10", "10", "3", "dog", "1", "1", "2", "2")
	bad := vocText("b.jpg", "10", "10", "3", "dog", "x", "1", "2", "2")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.xml"), []byte(good), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.xml"), []byte(bad), 0644))

	_, err := FromVOC(dir, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidNumber))
	assert.Contains(t, err.Error(), "b.xml")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.xml"), []byte("<annotation>"), 0644))
	_, err = FromVOC(dir, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b.xml")

	_, err = FromVOC(filepath.Join(dir, "missing"), 2)
	assert.Error(t, err)
}

func TestEncodeVOC(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, EncodeVOC(&buf, ToVOC([]ImageAnnotationSet{image1Set()})[0]))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`+"\n<annotation>\n"))
	assert.Contains(t, out, "\n  <filename>image1.jpg</filename>\n")
	assert.Contains(t, out, "<width>1108</width>")
	assert.Contains(t, out, "\n    <bndbox>\n      <xmin>589</xmin>\n      <ymin>777</ymin>\n"+
		"      <xmax>1100</xmax>\n      <ymax>1136</ymax>\n    </bndbox>\n")
	assert.NotContains(t, out, "Path")

	// The written file parses back to the same annotations.
	got, err := parseVOCSet(t, out)
	require.NoError(t, err)
	if diff := cmp.Diff(image1Set(), got); diff != "" {
		t.Errorf("re-parsed annotation mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteVOC(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	second := image1Set()
	second.Filename = "photo.v2.png"
	require.NoError(t, WriteVOC(dir, ToVOC([]ImageAnnotationSet{image1Set(), second})))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"image1.xml", "photo.v2.xml"}, names)

	assert.Error(t, WriteVOC(filepath.Join(dir, "missing"), ToVOC([]ImageAnnotationSet{image1Set()})))
}

func TestWriteVOC_DuplicateNames(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	other := image1Set()
	other.Filename = "image1.png"
	err := WriteVOC(dir, ToVOC([]ImageAnnotationSet{image1Set(), other}))
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no file may be written when the batch is rejected")
}

func TestVOCFileName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "image1.xml", vocFileName("image1.jpg"))
	assert.Equal(t, "a.b.xml", vocFileName("a.b.jpeg"))
	assert.Equal(t, "noext.xml", vocFileName("noext"))
}
