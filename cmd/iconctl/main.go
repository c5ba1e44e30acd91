// Command iconctl inspects icon studio artifacts offline: Layer IR
// documents, segmentation renders and canvas geometry.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
