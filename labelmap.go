package pascalgt

// TensorFlow object detection label map functionality.

import (
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"math"
	"os"

	"github.com/golang/protobuf/proto"
	protos "github.com/sensorable/pascalgt/protos"
)

// tfLabelID returns the label map id for a class id. Label map ids start at 1, because 0 is
// reserved for the background class.
func tfLabelID(classID int) int32 {
	return int32(classID + 1)
}

// ToLabelMap converts classes to a label map, in id order.
func ToLabelMap(classes *ClassMap) *protos.StringIntLabelMap {
	labelMap := &protos.StringIntLabelMap{}
	labelMap.Item = make([]*protos.StringIntLabelMapItem, 0, classes.Len())
	for _, name := range classes.Names() {
		id, _ := classes.ID(name)
		labelMap.Item = append(labelMap.Item, &protos.StringIntLabelMapItem{
			Name:        proto.String(name),
			Id:          proto.Int32(tfLabelID(id)),
			DisplayName: proto.String(name),
		})
	}
	return labelMap
}

// WriteLabelMap writes classes in prototxt format to path.
func WriteLabelMap(path string, classes *ClassMap) error {
	labelMap := ToLabelMap(classes)
	err := writeFileAtomic(path, func(w io.Writer) error {
		return proto.MarshalText(w, labelMap)
	})
	if err != nil {
		return fmt.Errorf("failed to write the label map %q: %v", path, err)
	}
	return nil
}

// ReadLabelMap loads a prototxt label map from path and converts it back to a ClassMap.
//
// If an error occurs because the file does not exist, then os.IsNotExist will return true for the
// error.
func ReadLabelMap(path string) (*ClassMap, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	text, err := ioutil.ReadAll(file)
	if err != nil {
		return nil, err
	}

	var labelMap protos.StringIntLabelMap
	if err := proto.UnmarshalText(string(text), &labelMap); err != nil {
		return nil, err
	}

	idToName := make(map[int]string, len(labelMap.Item))
	for _, item := range labelMap.Item {
		k, v := item.GetName(), item.GetId()
		if k == "" || v <= 0 {
			return nil, fmt.Errorf("invalid entry: %s: %d", k, v)
		}
		if _, dup := idToName[int(v)-1]; dup {
			return nil, fmt.Errorf("duplicate id %d", v)
		}
		idToName[int(v)-1] = k
	}

	return NewClassMap(idToName)
}

// LoadTFRecordClasses returns the class map that TFRecord labels are written with. If a label map
// exists at path, its ids are kept and the classes it lacks are appended after its largest id, in
// the id order of classes. Otherwise the ids of classes are used as they are.
func LoadTFRecordClasses(path string, classes *ClassMap) (*ClassMap, error) {
	existing, err := ReadLabelMap(path)
	if os.IsNotExist(err) {
		log.Print("Creating a new label map")
		existing = BuildClassMap(nil)
	} else if err != nil {
		return nil, fmt.Errorf("failed to read the label map from %q: %v", path, err)
	} else {
		log.Print("Label map loaded successfully")
	}

	merged, err := existing.Extend(classes.Names())
	if err != nil {
		return nil, err
	}
	for _, name := range merged.Names() {
		if id, _ := merged.ID(name); id >= math.MaxInt32 {
			return nil, fmt.Errorf("class %q: id %d does not fit a label map", name, id)
		}
	}
	return merged, nil
}
