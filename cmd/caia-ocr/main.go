package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Caia-Tech/caia-ocr/internal/backends"
	"github.com/Caia-Tech/caia-ocr/internal/temporal/workflows"
	"github.com/Caia-Tech/caia-ocr/pkg/hocr"
	"github.com/Caia-Tech/caia-ocr/pkg/logging"
	"github.com/Caia-Tech/caia-ocr/pkg/ocr"
	"github.com/Caia-Tech/caia-ocr/pkg/pipeline"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.temporal.io/sdk/client"
)

func main() {
	if len(os.Args) < 2 {
		showHelp()
		os.Exit(1)
	}

	config, err := pipeline.Loader{}.Load()
	if err != nil {
		fmt.Printf("❌ Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	// Engine logs stay quiet unless a level below info is asked for.
	if config.Logging.Level == "info" {
		config.Logging.Level = "warn"
	}
	config.Logging.Format = "pretty"
	if err := logging.SetupLogger(config.Logging); err != nil {
		fmt.Printf("❌ Failed to setup logging: %v\n", err)
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "version":
		showVersion(config)

	case "langs":
		listLanguages(config)

	case "ocr":
		if len(os.Args) < 3 {
			fmt.Println("❌ Usage: caia-ocr ocr <file> [hocr]")
			os.Exit(1)
		}
		format := ""
		if len(os.Args) > 3 {
			format = os.Args[3]
		}
		recognizeFile(config, os.Args[2], format)

	case "validate":
		if len(os.Args) < 3 {
			fmt.Println("❌ Usage: caia-ocr validate name=value [name=value...]")
			os.Exit(1)
		}
		validateOptions(config, os.Args[2:])

	case "dump":
		if len(os.Args) < 3 {
			fmt.Println("❌ Usage: caia-ocr dump <path>")
			os.Exit(1)
		}
		dumpVariables(config, os.Args[2])

	case "batch":
		if len(os.Args) < 3 {
			fmt.Println("❌ Usage: caia-ocr batch <file1,file2,file3>")
			os.Exit(1)
		}
		batchRecognize(config, strings.Split(os.Args[2], ","))

	default:
		showHelp()
	}
}

func openBackend(config *pipeline.ServiceConfig) ocr.Backend {
	backend, err := backends.New(config.Engine, log.Logger)
	if err != nil {
		fmt.Printf("❌ No engine backend available: %v\n", err)
		os.Exit(1)
	}
	return backend
}

func openEngine(config *pipeline.ServiceConfig) *ocr.Handle {
	h, err := ocr.New(openBackend(config), config.Engine.OCRConfig())
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	return h
}

func showVersion(config *pipeline.ServiceConfig) {
	backend := openBackend(config)
	fmt.Printf("🔧 %s (backend: %s)\n", ocr.EngineVersion(backend), backend.Name())
}

func listLanguages(config *pipeline.ServiceConfig) {
	h := openEngine(config)
	defer h.Close()

	info, err := h.Info()
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("📂 Data path: %s\n", info.DataPath)
	fmt.Printf("✅ Loaded: %s\n", strings.Join(info.Loaded, ", "))
	fmt.Printf("📋 Available (%d):\n", len(info.Available))
	for _, lang := range info.Available {
		fmt.Printf("   %s\n", lang)
	}
}

func recognizeFile(config *pipeline.ServiceConfig, path, formatName string) {
	format, err := ocr.ParseFormat(formatName)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	h := openEngine(config)
	defer h.Close()

	ctx := context.Background()
	if config.Engine.RecognizeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Engine.RecognizeTimeout)
		defer cancel()
	}

	res, err := h.Recognize(ctx, ocr.FromFile(path), format)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	fmt.Print(res.Text)

	if format == ocr.FormatMarkup {
		if doc, err := hocr.ParseString(res.Text); err == nil {
			fmt.Fprintf(os.Stderr, "📊 %d words, mean confidence %.1f\n", len(doc.Words()), doc.MeanConfidence())
		}
	}
}

func validateOptions(config *pipeline.ServiceConfig, pairs []string) {
	names := make([]string, 0, len(pairs))
	values := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			fmt.Printf("❌ Expected name=value, got %q\n", pair)
			os.Exit(1)
		}
		names = append(names, strings.TrimSpace(name))
		values = append(values, value)
	}

	accepted, err := ocr.ValidateOptions(openBackend(config), names, values)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	failed := false
	for i, ok := range accepted {
		if ok {
			fmt.Printf("✅ %s=%s\n", names[i], values[i])
		} else {
			fmt.Printf("❌ %s=%s rejected\n", names[i], values[i])
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func dumpVariables(config *pipeline.ServiceConfig, path string) {
	h := openEngine(config)
	defer h.Close()

	out, err := h.DumpVariables(path)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("💾 Variables written to %s\n", out)
}

func batchRecognize(config *pipeline.ServiceConfig, files []string) {
	images := make([]workflows.BatchImage, 0, len(files))
	for _, file := range files {
		file = strings.TrimSpace(file)
		if file == "" {
			continue
		}
		data, err := os.ReadFile(file)
		if err != nil {
			fmt.Printf("❌ %v\n", err)
			os.Exit(1)
		}
		images = append(images, workflows.BatchImage{Name: filepath.Base(file), Data: data})
	}
	fmt.Printf("🔄 Submitting batch of %d images\n", len(images))

	temporalClient, err := client.Dial(client.Options{
		HostPort: config.Worker.TemporalHost,
	})
	if err != nil {
		fmt.Printf("❌ Failed to connect to Temporal: %v\n", err)
		os.Exit(1)
	}
	defer temporalClient.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	run, err := temporalClient.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        fmt.Sprintf("cli-batch-%s", uuid.New().String()),
		TaskQueue: config.Worker.TaskQueue,
	}, workflows.BatchRecognitionWorkflow, workflows.BatchInput{
		Language: config.Engine.Language,
		Options:  config.Engine.Options,
		Images:   images,
	})
	if err != nil {
		fmt.Printf("❌ Failed to start batch workflow: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("   Workflow ID: %s\n", run.GetID())

	var out workflows.BatchOutput
	if err := run.Get(ctx, &out); err != nil {
		fmt.Printf("❌ Batch workflow failed: %v\n", err)
		os.Exit(1)
	}
	for _, r := range out.Results {
		if r.Error != "" {
			fmt.Printf("❌ %s: %s\n", r.Name, r.Error)
			continue
		}
		fmt.Printf("✅ %s\n%s\n", r.Name, r.Text)
	}
	fmt.Printf("🎉 Batch completed: %d succeeded, %d failed\n", out.Succeeded, out.Failed)
}

func showHelp() {
	fmt.Println("🔧 CAIA OCR CLI")
	fmt.Println("===============")
	fmt.Println("")
	fmt.Println("Usage: caia-ocr [command] [options]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  version                    - Show the engine version")
	fmt.Println("  langs                      - List loaded and installed languages")
	fmt.Println("  ocr <file> [hocr]          - Recognize an image as text or hOCR")
	fmt.Println("  validate name=value...     - Check engine variables without an engine")
	fmt.Println("  dump <path>                - Write the engine variables to a file")
	fmt.Println("  batch <file1,file2,file3>  - Recognize images through the Temporal worker")
	fmt.Println("")
	fmt.Println("Examples:")
	fmt.Println("  caia-ocr ocr scan.png")
	fmt.Println("  CAIA_OCR_LANGUAGE=eng+deu caia-ocr ocr scan.tiff hocr")
	fmt.Println("  caia-ocr validate tessedit_pageseg_mode=6 load_system_dawg=0")
	fmt.Println("")
	fmt.Println("Environment:")
	fmt.Println("  CAIA_OCR_CONFIG, CAIA_OCR_BACKEND, CAIA_OCR_LANGUAGE, CAIA_OCR_TESSDATA")
}
