// --- START OF FINAL REVISED FILE cmd/corpus-converter/main.go ---
package main

import "os"

// Build-time variables 'version', 'commit', and 'date' are declared in root.go
// and populated via -ldflags.

// main is the entry point for the corpus-converter application.
func main() {
	os.Exit(Execute())
}

// --- END OF FINAL REVISED FILE cmd/corpus-converter/main.go ---
