// mirnaprep turns per-sample miRNA quantification files into an annotated
// counts matrix, sample metadata derived from the sample names, and
// TMM-normalized, expression-filtered counts. Settings come from flags, from
// a JSON file passed with -config, or both; flags that are set explicitly
// override the file.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"

	"cloud.google.com/go/storage"
	"github.com/carbocation/mirnaprep"
	_ "github.com/carbocation/mirnaprep/compileinfoprint"
	"github.com/carbocation/mirnaprep/pipeline"
	"github.com/carbocation/pfx"
)

func main() {
	var configPath string
	flags := pipeline.DefaultConfig()

	flag.StringVar(&configPath, "config", "", "(Optional) Path to a JSON config file whose keys match these flag names.")
	flag.StringVar(&flags.InputDir, "input_dir", flags.InputDir, "Local or gs:// folder containing one quantification file per sample.")
	flag.StringVar(&flags.Annotation, "annotation", flags.Annotation, "Local or gs:// path to the tab-delimited miRNA annotation table.")
	flag.StringVar(&flags.OutputDir, "output_dir", flags.OutputDir, "Folder for the CSV checkpoint tables.")
	flag.StringVar(&flags.ImageDir, "image_dir", flags.ImageDir, "Folder for the density plot.")
	flag.StringVar(&flags.FilePrefix, "file_prefix", flags.FilePrefix, "Quantification file names start with this, and it is stripped to form the sample ID.")
	flag.StringVar(&flags.FileSuffix, "file_suffix", flags.FileSuffix, "Quantification file names end with this, and it is stripped to form the sample ID.")
	flag.StringVar(&flags.IDPrefix, "id_prefix", flags.IDPrefix, "Prepended to sample IDs that start with a digit.")
	flag.StringVar(&flags.Label, "label", flags.Label, "Prefix for every output file name.")
	flag.StringVar(&flags.FeatureColumn, "feature_column", flags.FeatureColumn, "Name of the mature miRNA column in the quantification files.")
	flag.StringVar(&flags.PrecursorColumn, "precursor_column", flags.PrecursorColumn, "Name of the precursor column in the quantification files.")
	flag.StringVar(&flags.CountColumn, "count_column", flags.CountColumn, "Name of the raw read count column in the quantification files.")
	flag.StringVar(&flags.AnnotationGeneColumn, "annotation_gene_column", flags.AnnotationGeneColumn, "Name of the mature miRNA column in the annotation table.")
	flag.StringVar(&flags.AnnotationPrecursorColumn, "annotation_precursor_column", flags.AnnotationPrecursorColumn, "Name of the precursor column in the annotation table.")
	flag.StringVar(&flags.AnnotationSequenceColumn, "annotation_sequence_column", flags.AnnotationSequenceColumn, "Name of the sequence column in the annotation table.")
	flag.Float64Var(&flags.CPMThreshold, "cpm_threshold", flags.CPMThreshold, "Features must exceed this many counts per million...")
	flag.IntVar(&flags.MinLibraries, "min_libraries", flags.MinLibraries, "...in at least this many libraries to be kept.")
	flag.Float64Var(&flags.LogRatioTrim, "logratio_trim", flags.LogRatioTrim, "TMM: fraction of log-ratios trimmed from each end.")
	flag.Float64Var(&flags.SumTrim, "sum_trim", flags.SumTrim, "TMM: fraction of absolute intensities trimmed from each end.")
	flag.StringVar(&flags.Reference, "reference", flags.Reference, "TMM reference library: 'upperquartile', 'geomean', or a sample ID.")
	flag.BoolVar(&flags.FillMissing, "fill_missing", flags.FillMissing, "Treat a feature missing from a sample's file as a zero count instead of failing.")
	flag.IntVar(&flags.Workers, "workers", flags.Workers, "Number of quantification files to read concurrently.")
	flag.StringVar(&flags.PlotFormat, "plot_format", flags.PlotFormat, "Density plot format: 'png' or 'svg'.")
	flag.StringVar(&flags.Timezone, "timezone", flags.Timezone, "(Optional) IANA time zone for the run timestamp, e.g., America/New_York.")
	flag.StringVar(&flags.Timestamp, "timestamp", flags.Timestamp, "(Optional) Run timestamp applied to every output file, in nearly any common date format. Defaults to now.")
	flag.StringVar(&flags.Snapshot, "snapshot", flags.Snapshot, "(Optional) Path of a sqlite file that will hold every intermediate matrix.")
	flag.BoolVar(&flags.Histogram, "histogram", flags.Histogram, "Print a histogram of log10(count+1) to stderr.")
	flag.Parse()

	cfg, err := buildConfig(configPath, flags)
	if err != nil {
		log.Fatalln(err)
	}

	if cfg.InputDir == "" || cfg.Annotation == "" {
		flag.PrintDefaults()
		os.Exit(1)
	}

	// Initialize the Google Storage client, but only if an input indicates
	// that we are pointing to a Google Storage path.
	var client *storage.Client
	if mirnaprep.NeedsGoogleStorage(cfg.InputDir, cfg.Annotation) {
		client, err = storage.NewClient(context.Background())
		if err != nil {
			log.Fatalln(err)
		}
		defer client.Close()
	}

	if _, err := pipeline.Run(context.Background(), cfg, client); err != nil {
		log.Fatalln(err)
	}

	log.Println("Quitting")
}

// buildConfig starts from the JSON file, if any, and applies every flag that
// was explicitly set on the command line.
func buildConfig(configPath string, flags pipeline.Config) (pipeline.Config, error) {
	if configPath == "" {
		flags.ExpandPaths()
		return flags, nil
	}

	cfg, err := pipeline.ParseJSONConfigFromPath(configPath)
	if err != nil {
		return cfg, err
	}

	// Flag names match the JSON keys, so the explicitly set flags can be
	// overlaid by round-tripping them through JSON
	encoded, err := json.Marshal(flags)
	if err != nil {
		return cfg, pfx.Err(err)
	}
	all := make(map[string]json.RawMessage)
	if err := json.Unmarshal(encoded, &all); err != nil {
		return cfg, pfx.Err(err)
	}

	set := make(map[string]json.RawMessage)
	flag.Visit(func(f *flag.Flag) {
		if v, exists := all[f.Name]; exists {
			set[f.Name] = v
		}
	})

	encoded, err = json.Marshal(set)
	if err != nil {
		return cfg, pfx.Err(err)
	}
	if err := json.Unmarshal(encoded, &cfg); err != nil {
		return cfg, pfx.Err(err)
	}

	cfg.ExpandPaths()

	return cfg, nil
}
