// scry/tools/rulegen/main.go

// rulegen emits a random-but-valid rule corpus for stress testing the
// compiler and matching pipeline.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"gopkg.in/yaml.v3"
)

type Rule struct {
	Name  string                 `yaml:"name"`
	Scope string                 `yaml:"scope"`
	Meta  map[string]interface{} `yaml:"meta,omitempty"`
	Logic map[string]interface{} `yaml:"logic"`
}

type Ruleset struct {
	Rules []Rule `yaml:"rules"`
}

var apiNames = []string{
	"VirtualAlloc", "VirtualProtect", "CreateRemoteThread", "WriteProcessMemory",
	"LoadLibraryA", "GetProcAddress", "CreateFileA", "RegOpenKeyExA",
	"InternetOpenA", "WSAStartup", "CryptAcquireContextA", "OpenProcess",
}

var mnemonics = []string{
	"xor", "mov", "call", "push", "pop", "lea", "jmp", "cmp", "add", "sub",
}

var characteristics = []string{
	"loop", "recursive call", "indirect call", "tight loop", "nzxor", "stack string",
}

var scopes = []string{"file", "function", "basic block", "instruction"}

func randomLeaf(scope string) map[string]interface{} {
	choices := []func() map[string]interface{}{
		func() map[string]interface{} {
			return map[string]interface{}{"api": apiNames[rand.Intn(len(apiNames))]}
		},
		func() map[string]interface{} {
			return map[string]interface{}{"string": gofakeit.Word()}
		},
		func() map[string]interface{} {
			return map[string]interface{}{"number": rand.Intn(0x1000)}
		},
		func() map[string]interface{} {
			return map[string]interface{}{"mnemonic": mnemonics[rand.Intn(len(mnemonics))]}
		},
		func() map[string]interface{} {
			return map[string]interface{}{"characteristic": characteristics[rand.Intn(len(characteristics))]}
		},
	}
	if scope == "file" {
		// file scope only admits strings and characteristics
		choices = []func() map[string]interface{}{choices[1], choices[4]}
	}
	return choices[rand.Intn(len(choices))]()
}

func randomLogic(scope string, depth int) map[string]interface{} {
	if depth <= 0 || rand.Float64() < 0.4 {
		return randomLeaf(scope)
	}

	n := 2 + rand.Intn(3)
	children := make([]map[string]interface{}, n)
	for i := range children {
		children[i] = randomLogic(scope, depth-1)
	}

	switch rand.Intn(3) {
	case 0:
		return map[string]interface{}{"and": children}
	case 1:
		return map[string]interface{}{"or": children}
	default:
		return map[string]interface{}{"some": map[string]interface{}{
			"min": 1 + rand.Intn(n),
			"of":  children,
		}}
	}
}

func randomRule(i int) Rule {
	scope := scopes[rand.Intn(len(scopes))]
	return Rule{
		Name:  fmt.Sprintf("%s %s %d", gofakeit.HackerVerb(), gofakeit.HackerNoun(), i),
		Scope: scope,
		Meta: map[string]interface{}{
			"authors":   []string{gofakeit.Name()},
			"namespace": gofakeit.HackerAdjective(),
		},
		Logic: randomLogic(scope, 3),
	}
}

func main() {
	numRules := flag.Int("rules", 100, "Number of rules to generate")
	outputFile := flag.String("output", "generated_rules.yaml", "Output file name")
	seed := flag.Int64("seed", 0, "Random seed (0 = time-based)")
	flag.Parse()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rand.Seed(*seed)
	gofakeit.Seed(*seed)

	ruleset := Ruleset{Rules: make([]Rule, *numRules)}
	for i := range ruleset.Rules {
		ruleset.Rules[i] = randomRule(i)
	}

	data, err := yaml.Marshal(&ruleset)
	if err != nil {
		fmt.Printf("Error marshaling ruleset: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(*outputFile, data, 0o644); err != nil {
		fmt.Printf("Error writing output file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %d rules (seed %d) in %s\n", *numRules, *seed, *outputFile)
}
