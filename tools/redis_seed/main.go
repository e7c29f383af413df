// scry/tools/redis_seed/main.go

// redis_seed loads a feature-index document from disk and stores it in
// Redis under per-function keys, the layout scryd reads from.
package main

import (
	"flag"
	"fmt"
	"os"

	"rgehrsitz/scry/pkg/features"
	"rgehrsitz/scry/pkg/store"
)

func seed(addr, password string, db int, name, file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("reading %s: %w", file, err)
	}

	doc, err := features.ParseDocument(data)
	if err != nil {
		return fmt.Errorf("parsing document: %w", err)
	}

	st, err := store.NewRedisStore(addr, password, db)
	if err != nil {
		return fmt.Errorf("connecting to Redis: %w", err)
	}

	if err := st.SaveIndexDocument(name, doc); err != nil {
		return fmt.Errorf("storing index: %w", err)
	}

	fmt.Printf("Stored index %q (%d functions)\n", name, len(doc.Functions))
	return nil
}

func main() {
	addr := flag.String("redis", "localhost:6379", "Redis address")
	password := flag.String("password", "", "Redis password")
	db := flag.Int("db", 0, "Redis database")
	name := flag.String("name", "", "Index name to store under")
	file := flag.String("file", "", "Feature-index JSON document")
	flag.Parse()

	if *name == "" || *file == "" {
		fmt.Println("Both -name and -file are required")
		os.Exit(1)
	}

	if err := seed(*addr, *password, *db, *name, *file); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}
