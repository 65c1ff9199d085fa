package pascalgt

import "errors"

var (
	// ErrNoValidAnnotations is returned when a manifest record has no data for the project.
	ErrNoValidAnnotations = errors.New("no valid annotations")

	// ErrUnsupportedType is returned for manifest records of a labeling task other than object
	// detection.
	ErrUnsupportedType = errors.New("unsupported annotation type")

	// ErrUnknownClassID is returned when a box refers to an id missing from the class-map.
	ErrUnknownClassID = errors.New("unknown class id")

	// ErrMissingElement is returned when a PASCAL-VOC file lacks a required element.
	ErrMissingElement = errors.New("missing element")

	// ErrInvalidNumber is returned for non-numeric size or coordinate values.
	ErrInvalidNumber = errors.New("invalid number")

	// ErrInvalidBox is returned for boxes with negative width or height.
	ErrInvalidBox = errors.New("invalid bounding box")
)
