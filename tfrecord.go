package pascalgt

// TFRecord object detection specific functionality.

import (
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/protobuf/proto"
	"github.com/ryszard/tfutils/go/example"
	"github.com/ryszard/tfutils/go/tfrecord"
	"github.com/ryszard/tfutils/proto/tensorflow/core/example" // package tensorflow
)

// TFFeatureMap maps feature names to their values. Values must be convertible to
// tensorflow.Feature.
type TFFeatureMap map[string]interface{}

// imageFormat returns the TF object detection image/format value for the image file name.
func imageFormat(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "jpg" {
		return "jpeg"
	}
	return ext
}

// toTFRecord converts the annotations of one image to a feature map. The encoded image is read
// from imageDir. Boxes are normalised by the annotated image size.
func toTFRecord(d ImageAnnotationSet, classes *ClassMap, imageDir string) (TFFeatureMap, error) {
	if d.Size.Width <= 0 || d.Size.Height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", d.Size.Width, d.Size.Height)
	}

	imagePath := filepath.Join(imageDir, d.Filename)
	imgData, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read the image: %v", err)
	}

	// Prepare the feature map for the per file data.
	f := make(TFFeatureMap, 16)
	f["image/height"] = d.Size.Height
	f["image/width"] = d.Size.Width
	f["image/filename"] = d.Filename
	f["image/source_id"] = d.Filename
	f["image/encoded"] = imgData
	f["image/format"] = imageFormat(d.Filename)

	// Prepare the per box data.
	numBoxes := len(d.Boxes)
	xmins := make([]float32, numBoxes)
	ymins := make([]float32, numBoxes)
	xmaxs := make([]float32, numBoxes)
	ymaxs := make([]float32, numBoxes)
	names := make([]string, numBoxes)
	labels := make([]int64, numBoxes)
	width, height := float32(d.Size.Width), float32(d.Size.Height)
	for i, b := range d.Boxes {
		xmin, ymin, xmax, ymax := b.Corners()
		xmins[i] = float32(xmin) / width
		ymins[i] = float32(ymin) / height
		xmaxs[i] = float32(xmax) / width
		ymaxs[i] = float32(ymax) / height
		names[i] = b.ClassName

		id, ok := classes.ID(b.ClassName)
		if !ok {
			return nil, fmt.Errorf("class %q is not in the class map", b.ClassName)
		}
		labels[i] = int64(tfLabelID(id))
	}
	f["image/object/bbox/xmin"] = xmins
	f["image/object/bbox/ymin"] = ymins
	f["image/object/bbox/xmax"] = xmaxs
	f["image/object/bbox/ymax"] = ymaxs
	f["image/object/class/text"] = names
	f["image/object/class/label"] = labels

	return f, nil
}

// WriteTFRecord does a streaming conversion, serialisation and file write for the annotation data
// to one or more TFRecord files stored under recordFilePath (with suffixes added when numShards>1).
// Images are read from imageDir.
//
// Class labels are label map ids, which are class ids plus one. An existing label map at
// labelMapPath is reused and extended with the classes it lacks, so labels stay stable across
// runs. See LoadTFRecordClasses. The updated label map is written back to labelMapPath.
func WriteTFRecord(recordFilePath, labelMapPath, imageDir string, data []ImageAnnotationSet,
	classes *ClassMap, numShards int) (err error) {

	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("conversion to TensorFlow Example failed: %v", e)
		}
	}()

	if numShards <= 0 {
		numShards = 1
	}

	classes, err = LoadTFRecordClasses(labelMapPath, classes)
	if err != nil {
		return err
	}

	fmtShardSuffix := func(idx int) string {
		return fmt.Sprintf("-%05d-of-%05d", idx, numShards)
	}

	var shardFile *os.File
	defer func() {
		if shardFile != nil {
			closeWithErrCheck(shardFile, &err)
		}
	}()

	shardSize := int(math.Ceil(float64(len(data)) / float64(numShards)))
	if shardSize == 0 {
		shardSize = 1
	}
	shardIdx := -1

	// Convert and serialise one data element at a time.
	for i, d := range data {
		// Check if a new shard file needs to be opened for writing.
		if i%shardSize == 0 {
			shardIdx++

			if shardFile != nil {
				if err := shardFile.Close(); err != nil {
					return err
				}
				shardFile = nil
			}

			shardPath := recordFilePath
			if numShards > 1 {
				shardPath += fmtShardSuffix(shardIdx)
			}
			f, err := os.Create(shardPath)
			if err != nil {
				return fmt.Errorf("failed to create shard at %q: %v", shardPath, err)
			}
			shardFile = f
		}

		features, err := toTFRecord(d, classes, imageDir)
		if err != nil {
			return fmt.Errorf("failed to convert %q: %v", d.Filename, err)
		}
		tfExample := example.New(features)

		if err := writeTFRecordExample(shardFile, tfExample); err != nil {
			return fmt.Errorf("failed to write example for %q: %v", d.Filename, err)
		}
	}
	log.Printf("Wrote %d examples to %d shard(s)", len(data), shardIdx+1)

	return WriteLabelMap(labelMapPath, classes)
}

// writeTFRecordExample serialises the example and writes it as a TFRecord to w.
func writeTFRecordExample(w io.Writer, e *tensorflow.Example) error {
	enc, err := proto.Marshal(e)
	if err != nil {
		return err
	}

	return tfrecord.Write(w, enc)
}
