package pascalgt

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"time"
)

// AggregateVOC converts a batch of PASCAL-VOC annotations to manifest text, one line per file in
// input order. Class ids are assigned over the whole batch before any record is built.
func AggregateVOC(files []VOCAnnotatedFile, cfg GroundTruthConfig,
	clock func() time.Time) (string, error) {

	data, err := FromVOCFiles(files)
	if err != nil {
		return "", err
	}

	records, err := ToGroundTruth(data, BuildClassMap(data), cfg, clock)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := EncodeManifest(&buf, records); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// TransformRecord converts one manifest line of projectName to a PASCAL-VOC annotation.
func TransformRecord(line []byte, projectName string) (VOCAnnotatedFile, error) {
	r, err := DecodeManifestRecord(line, projectName)
	if err != nil {
		return VOCAnnotatedFile{}, err
	}
	return ToVOC([]ImageAnnotationSet{r.toIR()})[0], nil
}

// ConvertVOCToGroundTruth converts all ".xml" files in xmlDir to a manifest at manifestPath.
func ConvertVOCToGroundTruth(xmlDir, manifestPath string, cfg GroundTruthConfig,
	workers int) error {

	if err := cfg.Validate(); err != nil {
		return err
	}

	files, err := ReadVOCDir(xmlDir, workers)
	if err != nil {
		return err
	}
	manifest, err := AggregateVOC(files, cfg, nil)
	if err != nil {
		return err
	}

	err = writeFileAtomic(manifestPath, func(w io.Writer) error {
		_, err := io.WriteString(w, manifest)
		return err
	})
	if err != nil {
		return err
	}

	log.Printf("Successfully wrote labels for %d files to %s", len(files), manifestPath)
	return nil
}

// ConvertGroundTruthToVOC converts every record of the manifest at manifestPath to a PASCAL-VOC
// file in the existing directory xmlDir. An empty projectName is inferred from the first record.
//
// No file is written unless all records convert.
func ConvertGroundTruthToVOC(manifestPath, xmlDir, projectName string) error {
	lines, err := ReadManifest(manifestPath)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		log.Printf("No records in %s", manifestPath)
		return nil
	}

	if projectName == "" {
		if projectName, err = InferProjectName(lines[0].Keys); err != nil {
			return fmt.Errorf("%s:%d: %w", manifestPath, lines[0].Number, err)
		}
		log.Printf("Using inferred project name %q", projectName)
	}

	vocData := make([]VOCAnnotatedFile, 0, len(lines))
	for _, l := range lines {
		f, err := TransformRecord(l.Data, projectName)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", manifestPath, l.Number, err)
		}
		vocData = append(vocData, f)
	}

	if err := WriteVOC(xmlDir, vocData); err != nil {
		return err
	}

	log.Printf("Successfully wrote labels for %d files to %s", len(vocData), xmlDir)
	return nil
}
