package pascalgt

// The intermediate annotation representation shared by all formats.

import (
	"fmt"
	"log"
	"math/rand"
	"strings"
)

// ImageSize is the pixel size of an annotated image.
type ImageSize struct {
	Width  int
	Height int
	Depth  int
}

// BoundingBox is an axis-aligned object box in absolute pixel coordinates.
//
// The canonical form is the top-left corner plus size. The PASCAL-VOC corner pair is derived
// from it with Corners.
type BoundingBox struct {
	ClassName string
	Left      int
	Top       int
	Width     int
	Height    int
}

// BoxFromCorners returns the box spanning (xmin,ymin)-(xmax,ymax).
//
// Zero area boxes are allowed. A corner pair with xmax < xmin or ymax < ymin is rejected with
// ErrInvalidBox.
func BoxFromCorners(className string, xmin, ymin, xmax, ymax int) (BoundingBox, error) {
	b := BoundingBox{
		ClassName: className,
		Left:      xmin,
		Top:       ymin,
		Width:     xmax - xmin,
		Height:    ymax - ymin,
	}
	if err := b.validate(); err != nil {
		return BoundingBox{}, err
	}
	return b, nil
}

// Corners returns xmin, ymin, xmax, ymax.
func (b BoundingBox) Corners() (xmin, ymin, xmax, ymax int) {
	return b.Left, b.Top, b.Left + b.Width, b.Top + b.Height
}

func (b BoundingBox) validate() error {
	if b.Width < 0 || b.Height < 0 {
		return fmt.Errorf("%w: %q has width %d and height %d",
			ErrInvalidBox, b.ClassName, b.Width, b.Height)
	}
	return nil
}

// ImageAnnotationSet holds all boxes annotated on one image.
type ImageAnnotationSet struct {
	Boxes    []BoundingBox // In annotation order.
	Filename string        // Base name of the image.
	Size     ImageSize
}

// AnnotationSets is the annotation data for a batch of images.
type AnnotationSets []ImageAnnotationSet

// MapLabels replaces class name (sub-)strings with substitution values, as specified in mappings.
//
// The format of mappings is old=new.
func (data AnnotationSets) MapLabels(mappings []string) error {
	if len(mappings) == 0 {
		return nil
	}

	replacements := make([]struct{ old, new string }, len(mappings))
	for i, v := range mappings {
		a := strings.Split(v, "=")
		if len(a) != 2 || a[0] == "" {
			return fmt.Errorf("invalid mapping: %v", v)
		}
		replacements[i].old = a[0]
		replacements[i].new = a[1]
	}

	count := 0
	for i := range data {
		boxes := data[i].Boxes
		for j := range boxes {
			oldName := boxes[j].ClassName
			for _, r := range replacements {
				boxes[j].ClassName = strings.ReplaceAll(boxes[j].ClassName, r.old, r.new)
			}
			if boxes[j].ClassName != oldName {
				count++
			}
		}
	}

	log.Printf("The label mappings changed %d labels", count)
	return nil
}

// Filter removes boxes whose class name is not in classNames (an empty list keeps all) or that
// are narrower than minWidth or lower than minHeight. Box order is preserved.
//
// If requireLabel is true, images left without boxes are removed as well. The filtered data is
// returned; the receiver's backing arrays are reused.
func (data AnnotationSets) Filter(classNames []string, requireLabel bool,
	minWidth, minHeight int) AnnotationSets {

	keepName := make(map[string]bool, len(classNames))
	for _, n := range classNames {
		keepName[n] = true
	}

	numBefore, numAfter := 0, 0
	out := data[:0]
	for _, d := range data {
		numBefore += len(d.Boxes)

		kept := d.Boxes[:0]
		for _, b := range d.Boxes {
			if len(keepName) > 0 && !keepName[b.ClassName] {
				continue
			}
			if b.Width < minWidth || b.Height < minHeight {
				continue
			}
			kept = append(kept, b)
		}
		d.Boxes = kept
		numAfter += len(kept)

		if requireLabel && len(kept) == 0 {
			continue
		}
		out = append(out, d)
	}

	log.Printf("Filtered out %d labels and %d files", numBefore-numAfter, len(data)-len(out))
	return out
}

// Split randomly splits the data into multiple datasets using rng.
//
// The cumulativeSplits specify the cumulative distribution according to which the data is split
// into the returned datasets. Its last value must be 100. Input order is preserved within each
// dataset.
func (data AnnotationSets) Split(cumulativeSplits []int, rng *rand.Rand) ([]AnnotationSets, error) {
	datasets := make([]AnnotationSets, len(cumulativeSplits))

	prev := 0
	for i, s := range cumulativeSplits {
		if s < prev {
			return nil, fmt.Errorf("the split percentages must be cumulative")
		}
		datasets[i] = make(AnnotationSets, 0, int(1.05*float64(s-prev)/100*float64(len(data))))
		prev = s
	}
	if prev != 100 {
		return nil, fmt.Errorf("the split percentages do not add up to 100")
	}

outer:
	for _, d := range data {
		r := rng.Intn(100)
		for i, s := range cumulativeSplits {
			if r < s {
				datasets[i] = append(datasets[i], d)
				continue outer
			}
		}
	}

	return datasets, nil
}
