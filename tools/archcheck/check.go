package main

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const modulePath = "github.com/acessivel/mobility/"

type Level int

const (
	LevelCmd Level = iota + 1
	LevelServer
	LevelApp
	LevelService
	LevelCore
	LevelFoundation
	LevelPkg
)

// packageLevels maps a path prefix to its layer. A package may import its
// own layer or any layer with a higher number.
var packageLevels = map[string]Level{
	"cmd":                 LevelCmd,
	"internal/server":     LevelServer,
	"internal/app":        LevelApp,
	"internal/dataaccess": LevelService,
	"internal/postal":     LevelService,
	"internal/geocoding":  LevelService,
	"internal/output":     LevelService,
	"internal/cache":      LevelCore,
	"internal/quota":      LevelCore,
	"internal/docstore":   LevelCore,
	"internal/lookup":     LevelCore,
	"internal/metrics":    LevelCore,
	"internal/storage":    LevelCore,
	"internal/errors":     LevelFoundation,
	"internal/logger":     LevelFoundation,
	"internal/clock":      LevelFoundation,
	"pkg":                 LevelPkg,
}

type Violation struct {
	FromFile    string
	FromPackage string
	FromLevel   Level
	ToPackage   string
	ToLevel     Level
}

func getPackageLevel(pkgPath string) Level {
	// Longest prefix wins so "internal/app" never matches "internal/apple".
	var best string
	for prefix := range packageLevels {
		if (pkgPath == prefix || strings.HasPrefix(pkgPath, prefix+"/")) && len(prefix) > len(best) {
			best = prefix
		}
	}
	return packageLevels[best]
}

func checkFile(root, filePath string) ([]Violation, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	fset := token.NewFileSet()
	node, err := parser.ParseFile(fset, filePath, content, parser.ImportsOnly)
	if err != nil {
		return nil, err
	}

	rel, err := filepath.Rel(root, filepath.Dir(filePath))
	if err != nil {
		return nil, err
	}
	fromPackage := filepath.ToSlash(rel)
	fromLevel := getPackageLevel(fromPackage)
	if fromLevel == 0 {
		return nil, nil
	}

	var violations []Violation
	for _, imp := range node.Imports {
		importPath := strings.Trim(imp.Path.Value, `"`)
		if !strings.HasPrefix(importPath, modulePath) {
			continue
		}
		importPath = strings.TrimPrefix(importPath, modulePath)

		toLevel := getPackageLevel(importPath)
		if toLevel == 0 {
			continue
		}
		if toLevel < fromLevel {
			violations = append(violations, Violation{
				FromFile:    filePath,
				FromPackage: fromPackage,
				FromLevel:   fromLevel,
				ToPackage:   importPath,
				ToLevel:     toLevel,
			})
		}
	}
	return violations, nil
}

// Check walks root and returns every upward import, sorted by file.
func Check(root string) ([]Violation, int, error) {
	var (
		all     []Violation
		checked int
	)

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			name := info.Name()
			if path != root && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") || name == "vendor" || name == "testdata") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}

		violations, err := checkFile(root, path)
		if err != nil {
			return err
		}
		all = append(all, violations...)
		checked++
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sort.Slice(all, func(i, j int) bool { return all[i].FromFile < all[j].FromFile })
	return all, checked, nil
}

func levelName(l Level) string {
	switch l {
	case LevelCmd:
		return "CMD (Level 1)"
	case LevelServer:
		return "SERVER (Level 2)"
	case LevelApp:
		return "APP (Level 3)"
	case LevelService:
		return "SERVICE (Level 4)"
	case LevelCore:
		return "CORE (Level 5)"
	case LevelFoundation:
		return "FOUNDATION (Level 6)"
	case LevelPkg:
		return "PKG (Level 7)"
	default:
		return "UNKNOWN"
	}
}
