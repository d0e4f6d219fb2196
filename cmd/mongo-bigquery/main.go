// Command mongo-bigquery runs one ingestion pass from a document store into
// a warehouse: infer a relational schema from a collection's documents,
// shred them into fragment rows and materialize/load the destination
// tables.
package main

import (
	"fmt"
	"os"
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "mongo-bigquery: %v\n", err)
		os.Exit(1)
	}
}
