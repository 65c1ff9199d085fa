package pascalgt

// Ground Truth object detection manifest specific functionality.

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"strings"
	"time"
)

const (
	// GTObjectDetectionType is the only supported value of the metadata "type" field.
	GTObjectDetectionType = "groundtruth/object-detection"

	sourceRefKey       = "source-ref"
	metadataKeySuffix  = "-metadata"
	creationDateLayout = "2006-01-02T15:04:05.000000"
	maxManifestLineLen = 64 * 1024 * 1024
)

// GTImageSize is the image size entry of a manifest record.
type GTImageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	Depth  int `json:"depth"`
}

// GTAnnotation is a single box within a manifest record.
type GTAnnotation struct {
	ClassID int `json:"class_id"`
	Top     int `json:"top"`
	Left    int `json:"left"`
	Height  int `json:"height"`
	Width   int `json:"width"`
}

// GTLabel is the project data of a manifest record.
type GTLabel struct {
	ImageSize   []GTImageSize  `json:"image_size"` // A single element.
	Annotations []GTAnnotation `json:"annotations"`
}

// GTObject is the per box metadata. Only a placeholder confidence is written.
type GTObject struct {
	Confidence float64 `json:"confidence"`
}

// GTMetadata is the project metadata of a manifest record.
type GTMetadata struct {
	Objects        []GTObject `json:"objects"`
	ClassMap       *ClassMap  `json:"class-map"`
	Type           string     `json:"type"`
	HumanAnnotated string     `json:"human-annotated"`
	CreationDate   string     `json:"creation-date"`
	JobName        string     `json:"job-name"`
}

// ManifestRecord is the annotation of one image in a Ground Truth manifest.
//
// In JSON the label and metadata are stored under the keys "<ProjectName>" and
// "<ProjectName>-metadata".
type ManifestRecord struct {
	SourceRef   string
	ProjectName string
	Label       GTLabel
	Metadata    GTMetadata
}

// MarshalJSON encodes the record with the keys in the order source-ref, project, metadata.
func (r ManifestRecord) MarshalJSON() ([]byte, error) {
	if r.ProjectName == "" || r.ProjectName == sourceRefKey {
		return nil, fmt.Errorf("invalid project name %q", r.ProjectName)
	}

	members := []struct {
		key   string
		value interface{}
	}{
		{sourceRefKey, r.SourceRef},
		{r.ProjectName, r.Label},
		{r.ProjectName + metadataKeySuffix, r.Metadata},
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range members {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(m.key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(m.value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// ImageName returns the base name of the source-ref path.
func (r ManifestRecord) ImageName() string {
	return path.Base(r.SourceRef)
}

// validate checks the decoded record for consistency.
func (r ManifestRecord) validate() error {
	if r.SourceRef == "" {
		return fmt.Errorf("%w: %s", ErrMissingElement, sourceRefKey)
	}
	if r.Metadata.Type != GTObjectDetectionType {
		return fmt.Errorf("%w: %q", ErrUnsupportedType, r.Metadata.Type)
	}
	if len(r.Label.ImageSize) == 0 {
		return fmt.Errorf("%w: %s/image_size", ErrMissingElement, r.ProjectName)
	}
	if sz := r.Label.ImageSize[0]; sz.Width <= 0 || sz.Height <= 0 || sz.Depth <= 0 {
		return fmt.Errorf("%w: image size %dx%dx%d is not positive", ErrInvalidNumber,
			sz.Width, sz.Height, sz.Depth)
	}
	if r.Metadata.ClassMap == nil {
		return fmt.Errorf("%w: %s%s/class-map", ErrMissingElement, r.ProjectName, metadataKeySuffix)
	}
	for i, a := range r.Label.Annotations {
		if _, ok := r.Metadata.ClassMap.Name(a.ClassID); !ok {
			return fmt.Errorf("%w: annotation %d refers to class %d", ErrUnknownClassID, i, a.ClassID)
		}
		if a.Width < 0 || a.Height < 0 {
			return fmt.Errorf("%w: annotation %d has width %d and height %d",
				ErrInvalidBox, i, a.Width, a.Height)
		}
	}
	return nil
}

// DecodeManifestRecord decodes one manifest line for projectName.
//
// If the line has no label or metadata for projectName, the error wraps ErrNoValidAnnotations. A
// metadata type other than GTObjectDetectionType is reported with ErrUnsupportedType before the
// label data is looked at.
func DecodeManifestRecord(line []byte, projectName string) (ManifestRecord, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return ManifestRecord{}, err
	}

	labelEnc, haveLabel := fields[projectName]
	metaEnc, haveMeta := fields[projectName+metadataKeySuffix]
	if projectName == "" || !haveLabel || !haveMeta {
		return ManifestRecord{}, fmt.Errorf("%w for project %q", ErrNoValidAnnotations, projectName)
	}

	r := ManifestRecord{ProjectName: projectName}
	if enc, ok := fields[sourceRefKey]; ok {
		if err := json.Unmarshal(enc, &r.SourceRef); err != nil {
			return ManifestRecord{}, fmt.Errorf("invalid %s: %v", sourceRefKey, err)
		}
	}

	if err := json.Unmarshal(metaEnc, &r.Metadata); err != nil {
		return ManifestRecord{}, fmt.Errorf("invalid %s%s: %v", projectName, metadataKeySuffix, err)
	}
	if r.Metadata.Type != GTObjectDetectionType {
		return ManifestRecord{}, fmt.Errorf("%w: %q", ErrUnsupportedType, r.Metadata.Type)
	}
	if err := json.Unmarshal(labelEnc, &r.Label); err != nil {
		return ManifestRecord{}, fmt.Errorf("invalid %s: %v", projectName, err)
	}

	if err := r.validate(); err != nil {
		return ManifestRecord{}, err
	}
	return r, nil
}

// toIR converts the record to the intermediate representation.
func (r ManifestRecord) toIR() ImageAnnotationSet {
	size := r.Label.ImageSize[0]
	d := ImageAnnotationSet{
		Boxes:    make([]BoundingBox, len(r.Label.Annotations)),
		Filename: r.ImageName(),
		Size:     ImageSize{Width: size.Width, Height: size.Height, Depth: size.Depth},
	}
	for i, a := range r.Label.Annotations {
		name, _ := r.Metadata.ClassMap.Name(a.ClassID)
		d.Boxes[i] = BoundingBox{
			ClassName: name,
			Left:      a.Left,
			Top:       a.Top,
			Width:     a.Width,
			Height:    a.Height,
		}
	}
	return d
}

// ManifestLine is a non-empty line of a manifest file.
type ManifestLine struct {
	Number int      // 1-based line number in the manifest.
	Data   []byte   // The JSON object.
	Keys   []string // The top-level keys in declaration order.
}

// ParseManifest splits the manifest read from r into its non-empty lines and records the
// top-level key order of each line.
func ParseManifest(r io.Reader) ([]ManifestLine, error) {
	var lines []ManifestLine

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxManifestLineLen)
	for n := 1; scanner.Scan(); n++ {
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}

		data := make([]byte, len(text))
		copy(data, text)
		keys, err := topLevelKeys(data)
		if err != nil {
			return nil, fmt.Errorf("line %d: %v", n, err)
		}
		lines = append(lines, ManifestLine{Number: n, Data: data, Keys: keys})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return lines, nil
}

// ReadManifest reads the manifest file at path. See ParseManifest.
func ReadManifest(path string) (lines []ManifestLine, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read file %q: %v", path, err)
	}
	defer closeWithErrCheck(file, &err)

	lines, err = ParseManifest(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %v", path, err)
	}
	return lines, nil
}

// topLevelKeys returns the keys of the JSON object in data in declaration order.
func topLevelKeys(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if t, err := dec.Token(); err != nil {
		return nil, err
	} else if d, ok := t.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected a JSON object")
	}

	var keys []string
	for dec.More() {
		t, err := dec.Token()
		if err != nil {
			return nil, err
		}
		keys = append(keys, t.(string))

		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return keys, nil
}

// InferProjectName returns the project name from the declared key order of a manifest record.
//
// Ground Truth writes "source-ref" first and the project label second, so the key at index 1 is
// used. Records written in a different key order yield a wrong name, which then fails decoding
// with ErrNoValidAnnotations.
func InferProjectName(keys []string) (string, error) {
	if len(keys) < 2 {
		return "", fmt.Errorf("cannot infer the project name from keys %q", keys)
	}
	return keys[1], nil
}

// FromGroundTruth reads and parses the manifest at path. If projectName is empty it is inferred
// from the first record. Returns the annotations and the project name used.
func FromGroundTruth(path, projectName string) (AnnotationSets, string, error) {
	lines, err := ReadManifest(path)
	if err != nil {
		return nil, "", err
	}
	log.Printf("Parsing Ground Truth labels for %d records", len(lines))

	if projectName == "" && len(lines) > 0 {
		if projectName, err = InferProjectName(lines[0].Keys); err != nil {
			return nil, "", fmt.Errorf("%s:%d: %w", path, lines[0].Number, err)
		}
		log.Printf("Using inferred project name %q", projectName)
	}

	data := make(AnnotationSets, 0, len(lines))
	for _, l := range lines {
		r, err := DecodeManifestRecord(l.Data, projectName)
		if err != nil {
			return nil, "", fmt.Errorf("%s:%d: %w", path, l.Number, err)
		}
		data = append(data, r.toIR())
	}

	return data, projectName, nil
}

// ToGroundTruth converts the intermediate representation to manifest records. Every record
// embeds the complete classes map. The creation date of each record is taken from clock, or
// time.Now if clock is nil.
func ToGroundTruth(data []ImageAnnotationSet, classes *ClassMap, cfg GroundTruthConfig,
	clock func() time.Time) ([]ManifestRecord, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = time.Now
	}

	prefix := strings.TrimSuffix(cfg.ExternalLocation, "/")
	records := make([]ManifestRecord, 0, len(data))
	for _, d := range data {
		r := ManifestRecord{
			SourceRef:   prefix + "/" + d.Filename,
			ProjectName: cfg.ProjectName,
			Label: GTLabel{
				ImageSize: []GTImageSize{
					{Width: d.Size.Width, Height: d.Size.Height, Depth: d.Size.Depth},
				},
				Annotations: make([]GTAnnotation, len(d.Boxes)),
			},
			Metadata: GTMetadata{
				Objects:        make([]GTObject, len(d.Boxes)),
				ClassMap:       classes,
				Type:           GTObjectDetectionType,
				HumanAnnotated: "yes",
				CreationDate:   clock().Format(creationDateLayout),
				JobName:        cfg.jobName(),
			},
		}
		for i, b := range d.Boxes {
			id, ok := classes.ID(b.ClassName)
			if !ok {
				return nil, fmt.Errorf("%s: class %q is not in the class map", d.Filename, b.ClassName)
			}
			r.Label.Annotations[i] = GTAnnotation{
				ClassID: id,
				Top:     b.Top,
				Left:    b.Left,
				Height:  b.Height,
				Width:   b.Width,
			}
		}
		records = append(records, r)
	}

	return records, nil
}

// EncodeManifest writes records as compact JSON, one newline-terminated line per record.
func EncodeManifest(w io.Writer, records []ManifestRecord) error {
	for _, r := range records {
		enc, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to encode the record for %q: %v", r.SourceRef, err)
		}
		enc = append(enc, '\n')
		if _, err := w.Write(enc); err != nil {
			return err
		}
	}
	return nil
}

// WriteGroundTruth writes the manifest records to outFile.
func WriteGroundTruth(outFile string, records []ManifestRecord) error {
	var buf bytes.Buffer
	if err := EncodeManifest(&buf, records); err != nil {
		return err
	}
	return writeFileAtomic(outFile, func(w io.Writer) error {
		_, err := w.Write(buf.Bytes())
		return err
	})
}
