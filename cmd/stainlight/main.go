// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/klauspost/cpuid"
	"github.com/pbnjay/memory"

	nl "github.com/mlnoga/stainlight/internal"
	"github.com/mlnoga/stainlight/internal/config"
	"github.com/mlnoga/stainlight/internal/ops"
	"github.com/mlnoga/stainlight/internal/ops/augment"
	"github.com/mlnoga/stainlight/internal/ops/norm"
	"github.com/mlnoga/stainlight/internal/ops/pre"
	"github.com/mlnoga/stainlight/internal/rest"
	"github.com/mlnoga/stainlight/internal/stain"
)

const version = "0.1.0"

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var configFile = flag.String("config", config.DefaultFileName, "read settings from YAML `file`. Explicitly set flags take precedence")
var out = flag.String("out", "out_%04d.png", "save results with given filename pattern. Suffix .png, .jpg or .tif selects the format")
var log = flag.String("log", "", "save log output to `file`")
var target = flag.String("target", "", "normalize towards the stains or colors of the target image `file`")
var mask = flag.String("mask", "", "save tissue masks with given filename pattern, e.g. `mask%04d.png`")
var swatch = flag.String("swatch", "", "save stain swatches with given filename pattern, e.g. `stains%04d.png`")

var method = flag.String("method", "", "stain extraction method, one of fixed (rj), eigen (macenko) or dictionary (vahadane). Default eigen for normalizing, fixed for augmenting")
var lumThresh = flag.Float64("lumThresh", 0.8, "luminosity threshold in [0,1] below which pixels count as tissue")
var angPerc = flag.Float64("angPerc", stain.DefaultAngularPercentile, "eigen method: percentile of stain angles")
var dictReg = flag.Float64("dictReg", stain.DefaultDictionaryRegularizer, "dictionary method: sparsity regularizer")
var dictIter = flag.Int("dictIter", 100, "dictionary method: maximum number of iterations")
var dictTol = flag.Float64("dictTol", 1e-6, "dictionary method: relative convergence tolerance")
var dictSamples = flag.Int("dictSamples", stain.DefaultDictionaryMaxSamples, "dictionary method: maximum number of tissue pixels to learn from")
var lassoReg = flag.Float64("lassoReg", stain.DefaultLassoRegularizer, "sparsity regularizer for concentrations of other than three stains")

var standardize = flag.Bool("standardize", false, "standardize brightness before processing")
var brightPerc = flag.Float64("brightPerc", 95, "brightness percentile stretched to full white when standardizing")

var sigma1 = flag.Float64("sigma1", 0.2, "augment: bound of multiplicative concentration noise")
var sigma2 = flag.Float64("sigma2", 0.2, "augment: bound of additive concentration noise")
var augBack = flag.Bool("augBack", false, "augment: also perturb background pixels")
var count = flag.Int("count", config.DefaultAugmentCount, "augment: number of variants per input image")
var seed = flag.Uint("seed", 0, "augment: random seed, 0 for unseeded")

var skipEmpty = flag.Bool("skipEmpty", false, "drop input images without tissue instead of failing")
var threads = flag.Int("threads", runtime.NumCPU(), "maximum number of images to process in parallel")
var patchMem = flag.Int("patchMem", config.DefaultPatchMemory, "working set estimate per image in MiB, bounding parallelism by memory")

var port = flag.Int("port", config.DefaultPort, "serve: port to listen on")
var chroot = flag.String("chroot", "", "serve: chroot to the given `directory` before serving (requires root)")
var setuid = flag.Int("setuid", -1, "serve: change to the given user id before serving, -1 to keep")

func main() {
	start := time.Now()
	flag.Usage = func() {
		fmt.Fprintf(nl.LogWriter(), `Stainlight Copyright (c) 2021 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (normalize|reinhard|augment|hematoxylin|stains|standardize|serve|config|legal|version) (img0.png ... imgn.png)

Commands:
  normalize   Normalize stains of input images towards the -target image
  reinhard    Match Lab color statistics of input images to the -target image
  augment     Write -count randomly stain-perturbed variants of each input image
  hematoxylin Extract the Hematoxylin channel of each input image as gray image
  stains      Show the stain matrix of each input image
  standardize Standardize brightness of input images
  serve       Serve the REST API
  config      Write the effective settings to the -config file
  legal       Show license and attribution information
  version     Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// Initialize logging to file in addition to stdout, if selected
	if *log != "" {
		if err := nl.LogAlsoToFile(*log); err != nil {
			nl.LogFatalf("Unable to open logfile '%s'\n", *log)
		}
	}

	// Enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			nl.LogFatal("Could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			nl.LogFatal("Could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		nl.LogFatalf("Error loading settings: %s\n", err.Error())
	}
	if err := applyFlags(flag.CommandLine, cfg); err != nil {
		nl.LogFatalf("Error in flags: %s\n", err.Error())
	}

	// run actions
	switch args[0] {
	case "normalize", "reinhard", "augment", "hematoxylin", "stains", "standardize":
		var op ops.Operator
		if op, err = newOperator(args[0], cfg); err == nil {
			err = runBatch(nl.LogWriter(), cfg, args[1:], op)
		}

	case "serve":
		if err = rest.MakeSandbox(nl.LogWriter(), cfg.Serve.Chroot, cfg.Serve.Setuid); err == nil {
			s := &rest.Server{MaxThreads: cfg.Batch.MaxThreads, PatchMemoryMB: cfg.Batch.PatchMemoryMB}
			nl.LogPrintf("Serving on port %d\n", cfg.Serve.Port)
			err = s.Serve(cfg.Serve.Port)
		}

	case "config":
		if err = config.SaveConfig(cfg, *configFile); err == nil {
			nl.LogPrintf("Wrote settings to %s\n", *configFile)
		}

	case "legal":
		nl.LogPrint(legal)

	case "version":
		cmdVersion(nl.LogWriter())

	case "help", "?":
		flag.Usage()

	default:
		nl.LogPrintf("Unknown command '%s'\n\n", args[0])
		flag.Usage()
		return
	}

	elapsed := time.Since(start)
	nl.LogPrintf("\nDone after %v\n", elapsed)

	// Store memory profile if flagged
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			nl.LogFatal("Could not create memory profile: ", err)
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err := pprof.Lookup("allocs").WriteTo(f, 0); err != nil {
			nl.LogFatal("Could not write allocation profile: ", err)
		}
	}

	if err != nil {
		nl.LogPrintf("Error: %s\n", err.Error())
		nl.LogSync()
		os.Exit(-1)
	}
	nl.LogSync()
}

// Overrides settings with the flags explicitly set on the command line
func applyFlags(fs *flag.FlagSet, cfg *config.Config) (err error) {
	options := []*stain.Options{&cfg.Normalize.Options, &cfg.Augment.Options}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "method":
			m, e := stain.ParseMethod(*method)
			if e != nil {
				err = e
				return
			}
			cfg.Normalize.Method, cfg.Augment.Method = m, m
		case "lumThresh":
			for _, o := range options {
				o.LuminosityThreshold = *lumThresh
			}
		case "angPerc":
			for _, o := range options {
				o.AngularPercentile = *angPerc
			}
		case "dictReg":
			for _, o := range options {
				o.DictionaryRegularizer = *dictReg
			}
		case "dictIter":
			for _, o := range options {
				o.DictionaryIterations = *dictIter
			}
		case "dictTol":
			for _, o := range options {
				o.DictionaryTolerance = *dictTol
			}
		case "dictSamples":
			for _, o := range options {
				o.DictionaryMaxSamples = *dictSamples
			}
		case "lassoReg":
			cfg.Normalize.LassoRegularizer, cfg.Augment.LassoRegularizer = *lassoReg, *lassoReg
		case "standardize":
			cfg.Normalize.StandardizeBrightness = *standardize
			cfg.Augment.StandardizeBrightness = *standardize
			cfg.Reinhard.StandardizeBrightness = *standardize
		case "brightPerc":
			cfg.Normalize.BrightnessPercentile = *brightPerc
			cfg.Augment.BrightnessPercentile = *brightPerc
			cfg.Reinhard.BrightnessPercentile = *brightPerc
		case "sigma1":
			cfg.Augment.Sigma1 = *sigma1
		case "sigma2":
			cfg.Augment.Sigma2 = *sigma2
		case "augBack":
			cfg.Augment.AugmentBackground = *augBack
		case "count":
			cfg.Augment.Count = *count
		case "seed":
			cfg.Augment.Seed = uint32(*seed)
		case "skipEmpty":
			cfg.Batch.SkipEmpty = *skipEmpty
		case "threads":
			cfg.Batch.MaxThreads = *threads
		case "patchMem":
			cfg.Batch.PatchMemoryMB = *patchMem
		case "port":
			cfg.Serve.Port = *port
		case "chroot":
			cfg.Serve.Chroot = *chroot
		case "setuid":
			cfg.Serve.Setuid = *setuid
		}
	})
	if err != nil {
		return err
	}
	return cfg.Validate()
}

// Creates the operator for a batch command from the settings
func newOperator(cmd string, cfg *config.Config) (ops.Operator, error) {
	switch cmd {
	case "normalize":
		if *target == "" {
			return nil, errors.New("normalize needs a -target image")
		}
		return norm.NewOpStainNormalize(cfg.Normalize, *target), nil

	case "reinhard":
		if *target == "" {
			return nil, errors.New("reinhard needs a -target image")
		}
		op := norm.NewOpReinhard(cfg.Reinhard.StandardizeBrightness, *target)
		op.BrightnessPercentile = cfg.Reinhard.BrightnessPercentile
		return op, nil

	case "augment":
		return augment.NewOpAugment(cfg.Augment.Config, cfg.Augment.Count, cfg.Augment.Seed), nil

	case "hematoxylin":
		return norm.NewOpHematoxylin(cfg.Normalize), nil

	case "stains":
		return norm.NewOpStainMatrix(cfg.Normalize.Method, cfg.Normalize.Options, *swatch), nil

	case "standardize":
		return pre.NewOpStandardize(true, cfg.Normalize.BrightnessPercentile), nil
	}
	return nil, errors.New(fmt.Sprintf("Unknown command '%s'", cmd))
}

// Loads the files matching the patterns, detects tissue, applies the operator
// and saves the results. The stains command only reports, and saves nothing
func runBatch(logWriter io.Writer, cfg *config.Config, filePatterns []string, op ops.Operator) error {
	if len(filePatterns) == 0 {
		return errors.New("no input files given")
	}
	c := ops.NewContext(logWriter)
	if cfg.Batch.MaxThreads > 0 {
		c.MaxThreads = cfg.Batch.MaxThreads
	}
	if cfg.Batch.PatchMemoryMB > 0 {
		c.PatchMemoryMB = cfg.Batch.PatchMemoryMB
	}

	seq := ops.NewOpSequence(ops.NewOpLoadMany(filePatterns))
	if *mask != "" || cfg.Batch.SkipEmpty {
		seq.Append(pre.NewOpTissueMask(cfg.Normalize.LuminosityThreshold, cfg.Batch.SkipEmpty, *mask))
	}
	seq.Append(op)
	if _, isReport := op.(*norm.OpStainMatrix); !isReport {
		seq.Append(ops.NewOpSave(*out))
	}

	m, err := json.MarshalIndent(seq, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "Processing with these settings:\n%s\n", string(m))
	fmt.Fprintf(logWriter, "Using %d threads, %d of %d MiB memory\n", c.Parallelism(), c.BatchMemoryMB, c.MemoryMB)

	promises, err := seq.MakePromises(nil, c)
	if err != nil {
		return err
	}
	_, err = ops.MaterializeAll(promises, c.Parallelism(), true)
	return err
}

func cmdVersion(logWriter io.Writer) {
	fmt.Fprintf(logWriter, "Version %s\n", version)
	fmt.Fprintf(logWriter, "Running on %s with %d physical cores, %d threads, AVX2 %v\n",
		cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores, cpuid.CPU.AVX2())
	fmt.Fprintf(logWriter, "Physical memory is %d MiB, Go %s on %s/%s\n",
		memory.TotalMemory()/1024/1024, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
