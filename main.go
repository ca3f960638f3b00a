package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hsie-lab/hsie-pipeline/analysis"
	"github.com/hsie-lab/hsie-pipeline/clients"
	"github.com/hsie-lab/hsie-pipeline/config"
	"github.com/hsie-lab/hsie-pipeline/evidence"
	"github.com/hsie-lab/hsie-pipeline/pipeline"
	"github.com/hsie-lab/hsie-pipeline/store"
)

var (
	cfgPath string
	dbPath  string
)

func main() {
	root := &cobra.Command{
		Use:           "hsie",
		Short:         "Audit-grade evidence pipeline for workplace interaction audio",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (default: ./hsie.yaml)")
	root.PersistentFlags().StringVar(&dbPath, "db", "", "evidence database path (overrides config)")

	root.AddCommand(captureCmd())
	root.AddCommand(preprocessCmd())
	root.AddCommand(analyzeCmd())
	root.AddCommand(scoreCmd())
	root.AddCommand(lineageCmd())
	root.AddCommand(exportCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", evidence.Kind(err), err)
		os.Exit(1)
	}
}

// buildPipeline wires config, store, clients and analyzers. analyzerNames
// overrides the configured analyzer set when non-nil; needAnalyzers is false
// for commands that never score, so capture works without scorer URLs
// configured.
func buildPipeline(analyzerNames []string, needAnalyzers bool) (*pipeline.Pipeline, func(), error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}

	log := logrus.New()
	if lvl, err := logrus.ParseLevel(cfg.Pipeline.LogLevel); err == nil {
		log.SetLevel(lvl)
	}
	log.SetOutput(os.Stderr)

	path := cfg.Store.Path
	if dbPath != "" {
		path = dbPath
	}
	st, err := store.OpenBolt(path)
	if err != nil {
		return nil, nil, err
	}

	h := clients.NewHTTP(config.DurSeconds(cfg.Services.TimeoutSec))
	asr := clients.NewASRService(h, cfg.Services.ASR.URL)
	di := clients.NewDiarizationService(h, cfg.Services.Diarization.URL)

	var analyzers []analysis.Analyzer
	if needAnalyzers {
		names := cfg.Analysis.Analyzers
		if analyzerNames != nil {
			names = analyzerNames
		}
		kinds, err := analysis.ParseKinds(names)
		if err != nil {
			_ = st.Close()
			return nil, nil, err
		}
		analyzers = make([]analysis.Analyzer, 0, len(kinds))
		for _, k := range kinds {
			a, err := analysis.NewHTTPAnalyzer(h, k, cfg.Analysis.Versions[string(k)], serviceURL(cfg, k))
			if err != nil {
				_ = st.Close()
				return nil, nil, err
			}
			analyzers = append(analyzers, a)
		}
	}

	p := pipeline.NewPipeline(cfg, st, asr, di, analyzers, log)
	return p, func() { _ = st.Close() }, nil
}

func serviceURL(cfg *config.Root, k evidence.AnalyzerKind) string {
	switch k {
	case evidence.AnalyzerAcoustic:
		return cfg.Services.Acoustic.URL
	case evidence.AnalyzerSemantic:
		return cfg.Services.Semantic.URL
	case evidence.AnalyzerLinguistic:
		return cfg.Services.Linguistic.URL
	}
	return ""
}

func captureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "capture <audio-file>",
		Short: "Transcribe an audio file and commit raw evidence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, done, err := buildPipeline(nil, false)
			if err != nil {
				return err
			}
			defer done()

			ev, err := p.Capture(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(ev.ID)
			return nil
		},
	}
}

func preprocessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preprocess <evidence-id>",
		Short: "Diarize and segment raw evidence, committing the preprocessed version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, done, err := buildPipeline(nil, false)
			if err != nil {
				return err
			}
			defer done()

			ev, err := p.Preprocess(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(ev.ID)
			return nil
		},
	}
}

func analyzeCmd() *cobra.Command {
	var analyzers []string

	cmd := &cobra.Command{
		Use:   "analyze <evidence-id>",
		Short: "Score preprocessed evidence per segment, committing the analyzed version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var override []string
			if len(analyzers) > 0 {
				override = analyzers
			}
			p, done, err := buildPipeline(override, true)
			if err != nil {
				return err
			}
			defer done()

			ev, err := p.Analyze(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(ev.ID)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&analyzers, "analyzers", nil, "analyzer subset to run (acoustic,semantic,linguistic)")
	return cmd
}

func scoreCmd() *cobra.Command {
	var weightsPath string

	cmd := &cobra.Command{
		Use:   "score <evidence-id>",
		Short: "Aggregate analyzed evidence into HSI/HSIE and commit the scored version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, done, err := buildPipeline(nil, false)
			if err != nil {
				return err
			}
			defer done()

			var weights map[string]float64
			if weightsPath != "" {
				if weights, err = config.LoadWeights(weightsPath); err != nil {
					return err
				}
			}

			score, ev, err := p.Aggregate(cmd.Context(), args[0], weights)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(score); err != nil {
				return err
			}
			fmt.Println(ev.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&weightsPath, "weights", "", "YAML file mapping dimension to weight")
	return cmd
}

func exportCmd() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "export <evidence-id>",
		Short: "Write the lineage chain of an evidence to JSON audit files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, done, err := buildPipeline(nil, false)
			if err != nil {
				return err
			}
			defer done()

			manifest, err := p.ExportLineage(args[0], outDir)
			if err != nil {
				return err
			}
			fmt.Println(manifest)
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "evidence-export", "output directory for the exported chain")
	return cmd
}

func lineageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lineage <evidence-id>",
		Short: "Print the evidence chain from raw to the given id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, done, err := buildPipeline(nil, false)
			if err != nil {
				return err
			}
			defer done()

			chain, err := p.Store().Lineage(args[0])
			if err != nil {
				return err
			}
			for _, ev := range chain {
				fmt.Printf("%s\t%s\t%s\t%s\n", ev.ID, ev.VersionKind, ev.Producer, ev.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
			}
			return nil
		},
	}
}
