package pascalgt

// PASCAL-VOC specific functionality.

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/net/html/charset"
)

// VOCBndBox is the corner pair of an object. Values are kept as the element text.
type VOCBndBox struct {
	XMin string `xml:"xmin"`
	YMin string `xml:"ymin"`
	XMax string `xml:"xmax"`
	YMax string `xml:"ymax"`
}

// VOCObject is a single object annotation within a PASCAL-VOC file.
type VOCObject struct {
	Name   string    `xml:"name"`
	BndBox VOCBndBox `xml:"bndbox"`
}

// VOCSize is the image size element.
type VOCSize struct {
	Width  string `xml:"width"`
	Height string `xml:"height"`
	Depth  string `xml:"depth"`
}

// VOCAnnotatedFile defines the PASCAL-VOC annotation structure for a single image.
type VOCAnnotatedFile struct {
	XMLName  xml.Name    `xml:"annotation"`
	Filename string      `xml:"filename"`
	Size     VOCSize     `xml:"size"`
	Objects  []VOCObject `xml:"object"`

	Path string `xml:"-"` // The file the annotation was read from, if any.
}

// ParseVOC decodes one PASCAL-VOC annotation from r. Files that declare an encoding other than
// UTF-8, such as ISO-8859-1 or windows-1252, are transcoded while decoding.
func ParseVOC(r io.Reader) (VOCAnnotatedFile, error) {
	var f VOCAnnotatedFile
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel
	if err := dec.Decode(&f); err != nil {
		return VOCAnnotatedFile{}, err
	}
	return f, nil
}

// readVOCFile reads and decodes the PASCAL-VOC file at path.
func readVOCFile(path string) (f VOCAnnotatedFile, err error) {
	file, err := os.Open(path)
	if err != nil {
		return VOCAnnotatedFile{}, err
	}
	defer closeWithErrCheck(file, &err)

	f, err = ParseVOC(file)
	if err != nil {
		return VOCAnnotatedFile{}, fmt.Errorf("failed to parse %q: %v", path, err)
	}
	f.Path = path
	return f, nil
}

// ReadVOCDir reads all ".xml" files found directly in dirPath, in file name order. Files are
// decoded by up to workers goroutines (runtime.NumCPU() if workers <= 0).
//
// The returned slice is in file name order regardless of the order in which decoding finishes.
// If any file fails, the error of the first failing file in name order is returned.
func ReadVOCDir(dirPath string, workers int) ([]VOCAnnotatedFile, error) {
	paths, err := filesByExtInDir(dirPath, ".xml")
	if err != nil {
		return nil, err
	}
	log.Printf("Parsing VOC labels for %d files", len(paths))

	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if len(paths) < workers {
		workers = len(paths)
	}

	files := make([]VOCAnnotatedFile, len(paths))
	errs := make([]error, len(paths))
	workQueue := make(chan int, 2*workers)
	var wg sync.WaitGroup

	// Each worker writes only to its own indices.
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for idx := range workQueue {
				files[idx], errs[idx] = readVOCFile(paths[idx])
			}
		}()
	}

	for i := range paths {
		workQueue <- i
	}
	close(workQueue)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

// FromVOCFiles converts decoded PASCAL-VOC annotations to the intermediate representation.
func FromVOCFiles(files []VOCAnnotatedFile) (AnnotationSets, error) {
	data := make(AnnotationSets, 0, len(files))
	for i, f := range files {
		d, err := f.toIR()
		if err != nil {
			where := f.Path
			if where == "" {
				where = fmt.Sprintf("annotation %d", i)
			}
			return nil, fmt.Errorf("%s: %w", where, err)
		}
		data = append(data, d)
	}
	return data, nil
}

// FromVOC reads and parses the PASCAL-VOC annotations in dirPath. See ReadVOCDir.
func FromVOC(dirPath string, workers int) (AnnotationSets, error) {
	files, err := ReadVOCDir(dirPath, workers)
	if err != nil {
		return nil, err
	}
	return FromVOCFiles(files)
}

// toIR extracts the image size and boxes.
func (f VOCAnnotatedFile) toIR() (ImageAnnotationSet, error) {
	var d ImageAnnotationSet

	d.Filename = strings.TrimSpace(f.Filename)
	if d.Filename == "" {
		return d, fmt.Errorf("%w: filename", ErrMissingElement)
	}

	var err error
	if d.Size.Width, err = parseVOCDimension("size/width", f.Size.Width); err != nil {
		return d, err
	}
	if d.Size.Height, err = parseVOCDimension("size/height", f.Size.Height); err != nil {
		return d, err
	}
	if d.Size.Depth, err = parseVOCInteger("size/depth", f.Size.Depth); err != nil {
		return d, err
	}
	if d.Size.Width <= 0 || d.Size.Height <= 0 || d.Size.Depth <= 0 {
		return d, fmt.Errorf("%w: size %dx%dx%d is not positive", ErrInvalidNumber,
			d.Size.Width, d.Size.Height, d.Size.Depth)
	}

	d.Boxes = make([]BoundingBox, 0, len(f.Objects))
	for i, o := range f.Objects {
		b, err := o.toBox()
		if err != nil {
			return d, fmt.Errorf("object %d: %w", i, err)
		}
		d.Boxes = append(d.Boxes, b)
	}

	return d, nil
}

func (o VOCObject) toBox() (BoundingBox, error) {
	name := strings.TrimSpace(o.Name)
	if name == "" {
		return BoundingBox{}, fmt.Errorf("%w: name", ErrMissingElement)
	}

	var coords [4]int
	texts := [4]string{o.BndBox.XMin, o.BndBox.YMin, o.BndBox.XMax, o.BndBox.YMax}
	fields := [4]string{"bndbox/xmin", "bndbox/ymin", "bndbox/xmax", "bndbox/ymax"}
	for i := range coords {
		v, err := parseVOCDimension(fields[i], texts[i])
		if err != nil {
			return BoundingBox{}, err
		}
		coords[i] = v
	}

	return BoxFromCorners(name, coords[0], coords[1], coords[2], coords[3])
}

// parseVOCDimension parses a pixel value that may be written as a decimal numeral ("123.0"). The
// fractional part is truncated. Values outside the int range are rejected.
func parseVOCDimension(field, text string) (int, error) {
	text = strings.TrimSpace(text)
	if !strings.Contains(text, ".") {
		return parseVOCInteger(field, text)
	}

	v, err := strconv.ParseFloat(text, 64)
	// -float64(math.MinInt) is exactly 2^63 (2^31 for 32 bit ints), the first value past MaxInt.
	if err != nil || math.IsNaN(v) || v < float64(math.MinInt) || v >= -float64(math.MinInt) {
		return 0, fmt.Errorf("%w: %s = %q", ErrInvalidNumber, field, text)
	}
	return int(v), nil
}

// parseVOCInteger parses a plain integer value.
func parseVOCInteger(field, text string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, fmt.Errorf("%w: %s", ErrMissingElement, field)
	}
	v, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("%w: %s = %q", ErrInvalidNumber, field, text)
	}
	return v, nil
}

// ToVOC converts the intermediate representation to PASCAL-VOC format.
func ToVOC(data []ImageAnnotationSet) []VOCAnnotatedFile {
	vocData := make([]VOCAnnotatedFile, 0, len(data))
	for _, d := range data {
		f := VOCAnnotatedFile{
			Filename: d.Filename,
			Size: VOCSize{
				Width:  strconv.Itoa(d.Size.Width),
				Height: strconv.Itoa(d.Size.Height),
				Depth:  strconv.Itoa(d.Size.Depth),
			},
			Objects: make([]VOCObject, len(d.Boxes)),
		}
		for i, b := range d.Boxes {
			xmin, ymin, xmax, ymax := b.Corners()
			f.Objects[i] = VOCObject{
				Name: b.ClassName,
				BndBox: VOCBndBox{
					XMin: strconv.Itoa(xmin),
					YMin: strconv.Itoa(ymin),
					XMax: strconv.Itoa(xmax),
					YMax: strconv.Itoa(ymax),
				},
			}
		}
		vocData = append(vocData, f)
	}

	return vocData
}

// EncodeVOC writes f as indented UTF-8 XML with an XML declaration.
func EncodeVOC(w io.Writer, f VOCAnnotatedFile) error {
	enc, err := xml.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	if _, err := w.Write(enc); err != nil {
		return err
	}
	_, err = io.WriteString(w, "\n")
	return err
}

// vocFileName returns the annotation file name for the image file name, i.e. the base name with
// its extension replaced by ".xml".
func vocFileName(imageName string) string {
	base := filepath.Base(imageName)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".xml"
}

// WriteVOC writes data to dirPath, one file per element, named after the image file.
//
// All annotations are encoded before the first file is written. Two elements that map to the
// same file name are an error.
func WriteVOC(dirPath string, data []VOCAnnotatedFile) error {
	dirInfo, err := os.Stat(dirPath)
	if err != nil {
		return fmt.Errorf("cannot access directory %q: %v", dirPath, err)
	}
	if !dirInfo.IsDir() {
		return fmt.Errorf("cannot access directory %q: not a directory", dirPath)
	}

	encoded := make([][]byte, len(data))
	names := make([]string, len(data))
	seen := make(map[string]int, len(data))
	for i, f := range data {
		names[i] = vocFileName(f.Filename)
		if j, dup := seen[names[i]]; dup {
			return fmt.Errorf("annotations %d and %d both map to %q", j, i, names[i])
		}
		seen[names[i]] = i

		var buf bytes.Buffer
		if err := EncodeVOC(&buf, f); err != nil {
			return fmt.Errorf("failed to encode %q: %v", names[i], err)
		}
		encoded[i] = buf.Bytes()
	}

	for i, enc := range encoded {
		err := writeFileAtomic(filepath.Join(dirPath, names[i]), func(w io.Writer) error {
			_, err := w.Write(enc)
			return err
		})
		if err != nil {
			return err
		}
	}

	return nil
}
