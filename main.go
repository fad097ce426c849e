package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ntdkhiem/fycat/compression"
	"github.com/ntdkhiem/fycat/internal/common"
)

func main() {
	decompFlagPtr := flag.Bool("decode", false, "flag to decode")
	outputFlagPtr := flag.String("output", "output", "flag for naming output file")

	flag.Parse()

	common.SetupLogger()

	restArgs := flag.Args()

	if len(restArgs) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: fycat [-decode] [-output name] <file>")
		os.Exit(2)
	}

	if *decompFlagPtr {
		outPath, err := compression.DecompressFile(restArgs[0], *outputFlagPtr)
		if err != nil {
			fail(err)
		}
		fmt.Println("File written successfully to", outPath)
	} else {
		outPath := *outputFlagPtr + compression.Extension
		if err := compression.CompressFile(restArgs[0], outPath); err != nil {
			fail(err)
		}
		fmt.Println("File written successfully to", outPath)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error (%s): %v\n", compression.Kind(err), err)
	os.Exit(1)
}
