// Converts between PASCAL-VOC XML annotations and Ground Truth object detection manifests, and
// exports either to TFRecord.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sensorable/pascalgt"
)

var (
	convertFrom format // The source format.
	convertTo   format // The target format.

	imageDirPath             string   // The input directory with the labeled images (tfrecord).
	labelFileOrDirPath       string   // The input label directory or file, depending on the format.
	labelOutFileOrDirPaths   []string // The output label dir or file path(s), depending on the format.
	labelOutSplits           []int    // The cumulative split percentages for the output datasets.
	tfRecordLabelMapFilePath string   // The TFRecord label map file.
	numShardFiles            int      // The number of shard files to create.
	numWorkers               int      // The number of goroutines parsing VOC files.

	gtConfig pascalgt.GroundTruthConfig // Project settings for manifest input and output.

	labelMappings       string // A comma-separated string of label mappings.
	filterLabels        string // A comma-separated string of labels to keep (empty keeps all).
	filterRequireLabel  bool   // Filter out files with no labels (after other filters).
	filterMinBboxWidth  int    // The minimum bounding box width.
	filterMinBboxHeight int    // The minimum bounding box height.
)

type format int

// The known label formats.
const (
	Unknown format = iota // If an unknown format is specified.
	GroundTruth
	TFRecord
	VOC
)

func formatFrom(s string) format {
	switch s {
	case "gt":
		return GroundTruth
	case "tfrecord":
		return TFRecord
	case "voc":
		return VOC
	}
	return Unknown
}

func init() {
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n", filepath.Base(os.Args[0]))
		_, _ = fmt.Fprintln(os.Stderr, "  gt input options:\t\t-labels <file> [-project]")
		_, _ = fmt.Fprintln(os.Stderr, "  gt output options:\t\t-labels-out <file> -project -source-prefix"+
			" [-job-name] (or -config)")
		_, _ = fmt.Fprintln(os.Stderr, "  voc input options:\t\t-labels <dir> [-workers]")
		_, _ = fmt.Fprintln(os.Stderr, "  voc output options:\t\t-labels-out <dir>")
		_, _ = fmt.Fprintln(os.Stderr, "  tfrecord output options:\t-labels-out <file> -images <dir>"+
			" -tfrecord-label-map-file [-num-shards]")
		_, _ = fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}

	printUsageAndExit := func(msg ...interface{}) {
		log.Print(msg...)
		flag.Usage()
		os.Exit(1)
	}

	// Format arguments.
	from := flag.String("from", "", "The source `format` {voc, gt}")
	to := flag.String("to", "", "The target `format` {gt, voc, tfrecord}")

	// Path arguments.
	flag.StringVar(&imageDirPath, "images", imageDirPath,
		"The `path` to the image input directory (tfrecord output only)")
	flag.StringVar(&labelFileOrDirPath, "labels", labelFileOrDirPath,
		"The `path` to the label input file (gt) or directory (voc)")
	outPaths := flag.String("labels-out", "",
		"The comma-separated paths (`path[,...]`) to the label output files (gt, tfrecord)"+
			" or directory (voc); must be one path per value in flag -split")
	outSplits := flag.String("split", "100",
		"The comma-separated output split percentages (`percent[,...]`) to divide labels into"+
			" (only gt and tfrecord output formats); must add up to 100%")
	flag.StringVar(&tfRecordLabelMapFilePath, "tfrecord-label-map-file", tfRecordLabelMapFilePath,
		"The TFRecord label map file `path`")
	flag.IntVar(&numShardFiles, "num-shards", 1,
		"The number of shard files to create (tfrecord only)")
	flag.IntVar(&numWorkers, "workers", 0,
		"The number of goroutines parsing VOC files (zero uses one per CPU)")

	// Project arguments.
	configPath := flag.String("config", "",
		"The `path` to a JSON file with project_name, external_location and job_name;"+
			" flags override its values")
	project := flag.String("project", "",
		"The Ground Truth project `name`; inferred from the first record for gt input if empty")
	sourcePrefix := flag.String("source-prefix", "",
		"The external `location` of the images, prepended to file names in source-ref"+
			" (e.g. s3://bucket/images)")
	jobName := flag.String("job-name", "",
		"The labeling job `name` (default labeling-job/<project>)")

	// Conversion and filter arguments.
	flag.StringVar(&labelMappings, "map-labels", labelMappings,
		"Comma-separated list of old=new label (sub-)string replacements")
	flag.StringVar(&filterLabels, "filter-labels", filterLabels,
		"Comma-separated list of labels to keep (after map-labels; empty string keeps all)")
	flag.BoolVar(&filterRequireLabel, "require-label", filterRequireLabel,
		"Require at least one label (after filters) to keep the file")
	flag.IntVar(&filterMinBboxWidth, "min-bbox-width", filterMinBboxWidth,
		"The min. required width in `pixels` for object bounding boxes")
	flag.IntVar(&filterMinBboxHeight, "min-bbox-height", filterMinBboxHeight,
		"The min. required height in `pixels` for object bounding boxes")

	// Parse and validate flags.
	flag.Parse()

	convertFrom = formatFrom(*from)
	convertTo = formatFrom(*to)

	if convertFrom != VOC && convertFrom != GroundTruth {
		printUsageAndExit("Unsupported input format")
	} else if convertTo == Unknown || convertTo == convertFrom {
		printUsageAndExit("Unsupported output format")
	}

	if labelFileOrDirPath == "" {
		printUsageAndExit("Missing label input path argument")
	}

	// Project settings: the config file first, then flags.
	if *configPath != "" {
		cfg, err := pascalgt.LoadGroundTruthConfig(*configPath)
		if err != nil {
			printUsageAndExit("Invalid -config: ", err)
		}
		gtConfig = cfg
	}
	if *project != "" {
		gtConfig.ProjectName = *project
	}
	if *sourcePrefix != "" {
		gtConfig.ExternalLocation = *sourcePrefix
	}
	if *jobName != "" {
		gtConfig.JobName = *jobName
	}
	if convertTo == GroundTruth {
		if err := gtConfig.Validate(); err != nil {
			printUsageAndExit("Invalid project settings: ", err)
		}
	}

	// Validate output split arguments.
	labelOutFileOrDirPaths = strings.Split(*outPaths, ",")
	splits := strings.Split(*outSplits, ",")
	if len(splits) != len(labelOutFileOrDirPaths) {
		printUsageAndExit("The number of output datasets defined by -split and the number of" +
			" paths in -labels-out must match")
	}
	if convertTo == VOC && len(splits) > 1 {
		printUsageAndExit("Argument -split is not supported with output format \"voc\"")
	}

	// Parse splits as cumulative int percentages.
	var splitSum int
	for _, v := range splits {
		if i, err := strconv.Atoi(v); err != nil || i < 0 || i > 100 {
			printUsageAndExit("Invalid value in -split: ", v)
		} else {
			splitSum += i
			labelOutSplits = append(labelOutSplits, splitSum)
		}
	}
	if splitSum != 100 {
		printUsageAndExit("The values in -split must add up to 100%")
	}

	// Validate other output arguments.
	if convertTo == TFRecord && (tfRecordLabelMapFilePath == "" || imageDirPath == "") {
		printUsageAndExit("Missing label map or image input path argument")
	}
	if filterMinBboxWidth < 0 || filterMinBboxHeight < 0 {
		printUsageAndExit("Invalid minimum bounding box size")
	}

	// Clean path arguments.
	labelFileOrDirPath = filepath.Clean(labelFileOrDirPath)
	for i, v := range labelOutFileOrDirPaths {
		if v == "" {
			printUsageAndExit("Missing label output path argument")
		}
		labelOutFileOrDirPaths[i] = filepath.Clean(v)
		if labelFileOrDirPath == labelOutFileOrDirPaths[i] {
			printUsageAndExit("The label input and output paths cannot be identical")
		}
	}
	if imageDirPath != "" {
		imageDirPath = filepath.Clean(imageDirPath)
	}
	if tfRecordLabelMapFilePath != "" {
		tfRecordLabelMapFilePath = filepath.Clean(tfRecordLabelMapFilePath)
	}
}

// isBatchConversion reports whether the run converts between VOC and Ground Truth into a single
// output with all labels passed through unchanged.
func isBatchConversion() bool {
	if len(labelOutFileOrDirPaths) != 1 || labelMappings != "" || filterLabels != "" ||
		filterRequireLabel || filterMinBboxWidth != 0 || filterMinBboxHeight != 0 {
		return false
	}
	return (convertFrom == VOC && convertTo == GroundTruth) ||
		(convertFrom == GroundTruth && convertTo == VOC)
}

func main() {
	if isBatchConversion() {
		var err error
		if convertFrom == VOC {
			err = pascalgt.ConvertVOCToGroundTruth(labelFileOrDirPath, labelOutFileOrDirPaths[0],
				gtConfig, numWorkers)
		} else {
			err = pascalgt.ConvertGroundTruthToVOC(labelFileOrDirPath, labelOutFileOrDirPaths[0],
				gtConfig.ProjectName)
		}
		if err != nil {
			log.Fatal("Conversion failed: ", err)
		}
		return
	}

	// Parse input.
	var af pascalgt.AnnotationSets
	var err error
	switch convertFrom {
	case VOC:
		af, err = pascalgt.FromVOC(labelFileOrDirPath, numWorkers)
	case GroundTruth:
		var projectName string
		af, projectName, err = pascalgt.FromGroundTruth(labelFileOrDirPath, gtConfig.ProjectName)
		if gtConfig.ProjectName == "" {
			gtConfig.ProjectName = projectName
		}
	default:
		err = fmt.Errorf("unsupported input format")
	}
	if err != nil {
		log.Fatal("Failed to parse the input: ", err)
	}

	// Map labels.
	if len(labelMappings) > 0 {
		if err := af.MapLabels(strings.Split(labelMappings, ",")); err != nil {
			log.Fatal("Failed to map labels: ", err)
		}
	}

	// Apply filters.
	var labelNames []string
	if filterLabels != "" {
		labelNames = strings.Split(filterLabels, ",")
	}
	af = af.Filter(labelNames, filterRequireLabel, filterMinBboxWidth, filterMinBboxHeight)

	// The class ids are shared by all output datasets.
	classes := pascalgt.BuildClassMap(af)
	log.Printf("Found %d classes", classes.Len())

	// Split data into output datasets.
	var datasets []pascalgt.AnnotationSets
	if len(labelOutSplits) == 1 {
		datasets = []pascalgt.AnnotationSets{af}
	} else {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		if datasets, err = af.Split(labelOutSplits, rng); err != nil {
			log.Fatal("Failed to split the dataset: ", err)
		}
	}

	// Write output datasets.
	for i, data := range datasets {
		outPath := labelOutFileOrDirPaths[i]
		switch convertTo {
		case GroundTruth:
			var records []pascalgt.ManifestRecord
			records, err = pascalgt.ToGroundTruth(data, classes, gtConfig, nil)
			if err == nil {
				err = pascalgt.WriteGroundTruth(outPath, records)
			}
		case TFRecord:
			err = pascalgt.WriteTFRecord(outPath, tfRecordLabelMapFilePath, imageDirPath, data,
				classes, numShardFiles)
		case VOC:
			err = pascalgt.WriteVOC(outPath, pascalgt.ToVOC(data))
		default:
			err = fmt.Errorf("unsupported output format")
		}
		if err != nil {
			log.Fatal("Conversion failed: ", err)
		}

		log.Printf("Successfully wrote labels for %d files to %s", len(data), outPath)
	}

	log.Print("Total number of labelled files: ", len(af))
}
