package architecture_test

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const modulesPrefix = "pathwise/internal/modules/"

type moduleImport struct {
	module string
	layer  string
}

// parseModuleImport splits pathwise/internal/modules/<module>/<layer>/...
// Paths outside the modules tree report ok=false.
func parseModuleImport(importPath string) (moduleImport, bool) {
	rest, found := strings.CutPrefix(importPath, modulesPrefix)
	if !found {
		return moduleImport{}, false
	}
	module, rest, _ := strings.Cut(rest, "/")
	return moduleImport{module: module, layer: layerOf(rest)}, true
}

func layerOf(rest string) string {
	for _, layer := range []string{"adapter/in", "adapter/out", "port/in", "port/out", "usecase", "service", "domain", "dto"} {
		if rest == layer || strings.HasPrefix(rest, layer+"/") {
			return layer
		}
	}
	return ""
}

// publicLayers are the only layers another package may reach into.
var publicLayers = map[string]bool{"domain": true, "dto": true, "port/in": true}

// forbiddenWithin lists, per layer, the same-module layers it must not import.
var forbiddenWithin = map[string]map[string]bool{
	"domain":   {"adapter/in": true, "adapter/out": true, "usecase": true, "service": true, "port/in": true, "port/out": true, "dto": true},
	"service":  {"adapter/in": true, "adapter/out": true, "usecase": true},
	"usecase":  {"adapter/in": true, "adapter/out": true},
	"port/out": {"adapter/in": true, "adapter/out": true, "usecase": true, "service": true},
}

func violatesLayerRule(from moduleImport, to moduleImport) bool {
	if from.module != to.module {
		return !publicLayers[to.layer]
	}
	if from.layer == "adapter/in" {
		return to.layer != "port/in" && to.layer != "dto"
	}
	return forbiddenWithin[from.layer][to.layer]
}

type goFile struct {
	path    string
	imports []string
}

func walkGoFiles(t *testing.T, root string) []goFile {
	t.Helper()
	fset := token.NewFileSet()
	var files []goFile
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		node, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		file := goFile{path: filepath.ToSlash(path)}
		for _, imp := range node.Imports {
			file.imports = append(file.imports, strings.Trim(imp.Path.Value, `"`))
		}
		files = append(files, file)
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", root, err)
	}
	return files
}

func TestHexagonalLayerImports(t *testing.T) {
	t.Parallel()
	for _, file := range walkGoFiles(t, filepath.Join("..", "modules")) {
		rel := strings.TrimPrefix(file.path, "../modules/")
		module, rest, _ := strings.Cut(rel, "/")
		from := moduleImport{module: module, layer: layerOf(rest)}
		if from.layer == "" {
			continue
		}
		for _, importPath := range file.imports {
			to, ok := parseModuleImport(importPath)
			if !ok {
				continue
			}
			if violatesLayerRule(from, to) {
				t.Fatalf("forbidden import in %s (%s): %s", file.path, from.layer, importPath)
			}
		}
	}
}

// Delivery surfaces outside the modules see only their public layers.
func TestSurfacesUsePublicLayers(t *testing.T) {
	t.Parallel()
	for _, root := range []string{"../ui", "../httpapi"} {
		for _, file := range walkGoFiles(t, root) {
			for _, importPath := range file.imports {
				to, ok := parseModuleImport(importPath)
				if ok && !publicLayers[to.layer] {
					t.Fatalf("%s reaches into %s", file.path, importPath)
				}
			}
		}
	}
}

func TestPlatformDoesNotImportModules(t *testing.T) {
	t.Parallel()
	for _, file := range walkGoFiles(t, filepath.Join("..", "platform")) {
		for _, importPath := range file.imports {
			if strings.HasPrefix(importPath, modulesPrefix) || strings.HasPrefix(importPath, "pathwise/internal/ui") {
				t.Fatalf("%s imports %s", file.path, importPath)
			}
		}
	}
}

func TestViolatesLayerRule(t *testing.T) {
	t.Parallel()
	cases := []struct {
		from, to string
		want     bool
	}{
		{from: "session/usecase", to: modulesPrefix + "journey/port/in", want: false},
		{from: "session/usecase", to: modulesPrefix + "journey/service", want: true},
		{from: "prediction/adapter/out", to: modulesPrefix + "journey/dto", want: false},
		{from: "prediction/adapter/out", to: modulesPrefix + "inference/usecase", want: true},
		{from: "prediction/adapter/in", to: modulesPrefix + "prediction/service", want: true},
		{from: "prediction/adapter/in", to: modulesPrefix + "prediction/dto", want: false},
		{from: "prediction/service", to: modulesPrefix + "prediction/usecase", want: true},
		{from: "prediction/service", to: modulesPrefix + "prediction/port/out", want: false},
		{from: "journey/domain", to: modulesPrefix + "journey/service", want: true},
	}
	for _, tc := range cases {
		module, rest, _ := strings.Cut(tc.from, "/")
		to, ok := parseModuleImport(tc.to)
		if !ok {
			t.Fatalf("unparsed import %s", tc.to)
		}
		if got := violatesLayerRule(moduleImport{module: module, layer: layerOf(rest)}, to); got != tc.want {
			t.Fatalf("%s -> %s: got %v want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
