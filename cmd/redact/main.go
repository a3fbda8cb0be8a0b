package main

import (
	"os"

	"github.com/adverant/nexus/redaction-worker/internal/cli"
	"github.com/adverant/nexus/redaction-worker/internal/ocr"
	"github.com/adverant/nexus/redaction-worker/internal/ocr/tesseract"
)

func main() {
	rootCmd := cli.NewRootCmd(cli.Deps{
		Recognizer: func(languages []string) ocr.TextRecognizer {
			return tesseract.NewRecognizer(&tesseract.Config{Languages: languages})
		},
	})
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
