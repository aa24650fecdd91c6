// Command archcheck fails when a package imports from a higher layer.
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("Architecture Level Checker")
	fmt.Println("==========================")
	fmt.Println()
	fmt.Println("Architectural Levels:")
	fmt.Println("  Level 1 (CMD):        cmd/")
	fmt.Println("  Level 2 (SERVER):     internal/server")
	fmt.Println("  Level 3 (APP):        internal/app")
	fmt.Println("  Level 4 (SERVICE):    internal/dataaccess, postal, geocoding, output")
	fmt.Println("  Level 5 (CORE):       internal/cache, quota, docstore, lookup, metrics, storage")
	fmt.Println("  Level 6 (FOUNDATION): internal/errors, logger, clock")
	fmt.Println("  Level 7 (PKG):        pkg/")
	fmt.Println()
	fmt.Println("Rule: Each level can only import from same level or lower (higher number)")
	fmt.Println()

	root := "."
	if len(os.Args) > 1 {
		root = os.Args[1]
	}

	violations, checked, err := Check(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error walking files: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Checked %d Go files\n\n", checked)

	if len(violations) == 0 {
		fmt.Println("No architectural level violations found")
		return
	}

	fmt.Printf("Found %d architectural level violations:\n", len(violations))

	byType := make(map[string][]Violation)
	var order []string
	for _, v := range violations {
		key := fmt.Sprintf("%s -> %s", levelName(v.FromLevel), levelName(v.ToLevel))
		if _, seen := byType[key]; !seen {
			order = append(order, key)
		}
		byType[key] = append(byType[key], v)
	}

	for _, key := range order {
		group := byType[key]
		fmt.Printf("\n%s (%d violations):\n", key, len(group))
		for i, v := range group {
			if i >= 5 {
				fmt.Printf("   ... and %d more\n", len(group)-5)
				break
			}
			fmt.Printf("   %s imports %s\n", v.FromPackage, v.ToPackage)
		}
	}

	fmt.Println()
	fmt.Println("To fix these violations:")
	fmt.Println("   1. Move shared code to lower levels (higher numbers)")
	fmt.Println("   2. Pass dependencies in through app.Container instead of importing upward")

	os.Exit(1)
}
