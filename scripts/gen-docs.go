//go:build ignore

// gen-docs renders the configuration reference from the apis/v1 structs.
// It walks the Config type, following nested spec structs, and writes
// docs/configuration.md with one table per section.
package main

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/token"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"

	"golang.org/x/tools/go/packages"
)

const rootStruct = "Config"

type field struct {
	key         string
	typ         string
	required    bool
	template    bool
	enum        []string
	def         string
	description string
	nested      string
}

type section struct {
	path   string
	name   string
	doc    string
	fields []field
}

func main() {
	root, err := findProjectRoot()
	if err != nil {
		fail("finding project root: %v", err)
	}

	pkgs, err := packages.Load(&packages.Config{
		Mode: packages.NeedSyntax | packages.NeedFiles | packages.NeedName,
		Dir:  root,
	}, "./apis/v1")
	if err != nil {
		fail("loading package: %v", err)
	}
	if packages.PrintErrors(pkgs) > 0 {
		os.Exit(1)
	}

	structs := map[string]*typeInfo{}
	for _, pkg := range pkgs {
		for _, file := range pkg.Syntax {
			collectTypeSpecs(file, structs)
		}
	}
	if _, ok := structs[rootStruct]; !ok {
		fail("struct %s not found", rootStruct)
	}

	var sections []section
	walk(structs, rootStruct, "", &sections)

	out := filepath.Join(root, "docs", "configuration.md")
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		fail("creating docs directory: %v", err)
	}
	if err := os.WriteFile(out, render(sections), 0o644); err != nil {
		fail("writing %s: %v", out, err)
	}
	fmt.Printf("Generated %s\n", out)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "gen-docs: "+format+"\n", args...)
	os.Exit(1)
}

type typeInfo struct {
	name       string
	doc        string
	structType *ast.StructType
}

func collectTypeSpecs(file *ast.File, structs map[string]*typeInfo) {
	for _, decl := range file.Decls {
		genDecl, ok := decl.(*ast.GenDecl)
		if !ok || genDecl.Tok != token.TYPE {
			continue
		}
		for _, spec := range genDecl.Specs {
			typeSpec, ok := spec.(*ast.TypeSpec)
			if !ok {
				continue
			}
			structType, ok := typeSpec.Type.(*ast.StructType)
			if !ok {
				continue
			}

			var doc string
			switch {
			case genDecl.Doc != nil && len(genDecl.Specs) == 1:
				doc = cleanDoc(genDecl.Doc.Text())
			case typeSpec.Doc != nil:
				doc = cleanDoc(typeSpec.Doc.Text())
			}
			structs[typeSpec.Name.Name] = &typeInfo{
				name:       typeSpec.Name.Name,
				doc:        doc,
				structType: structType,
			}
		}
	}
}

// walk appends the section for name and, depth first, the sections of the
// structs it holds by value or pointer. prefix is the dotted key path.
func walk(structs map[string]*typeInfo, name, prefix string, out *[]section) {
	info := structs[name]
	sec := section{path: prefix, name: name, doc: info.doc}

	var children []field
	for _, f := range info.structType.Fields.List {
		if len(f.Names) == 0 || !ast.IsExported(f.Names[0].Name) {
			continue
		}
		fd := parseField(f, structs)
		sec.fields = append(sec.fields, fd)
		if fd.nested != "" {
			children = append(children, fd)
		}
	}
	*out = append(*out, sec)

	for _, child := range children {
		walk(structs, child.nested, joinKey(prefix, child.key), out)
	}
}

func parseField(f *ast.Field, structs map[string]*typeInfo) field {
	fd := field{key: f.Names[0].Name}
	if f.Tag != nil {
		tag := reflect.StructTag(strings.Trim(f.Tag.Value, "`"))
		if key, _, _ := strings.Cut(tag.Get("yaml"), ","); key != "" {
			fd.key = key
		}
		fd.required, fd.enum = parseValidateTag(tag.Get("validate"))
		if v, ok := tag.Lookup("template"); ok && v != "-" {
			fd.template = true
		}
	}
	fd.typ, fd.nested = fieldType(f.Type, structs)
	fd.description, fd.def = fieldDoc(f)
	return fd
}

func parseValidateTag(tag string) (required bool, enum []string) {
	for _, part := range strings.Split(tag, ",") {
		switch {
		case part == "required":
			required = true
		case strings.HasPrefix(part, "oneof="):
			enum = strings.Fields(strings.TrimPrefix(part, "oneof="))
		}
	}
	return required, enum
}

// fieldType renders a Go type expression and reports the struct to descend
// into, if any.
func fieldType(expr ast.Expr, structs map[string]*typeInfo) (string, string) {
	switch t := expr.(type) {
	case *ast.Ident:
		if _, ok := structs[t.Name]; ok {
			return "object", t.Name
		}
		return t.Name, ""
	case *ast.StarExpr:
		return fieldType(t.X, structs)
	case *ast.ArrayType:
		inner, _ := fieldType(t.Elt, structs)
		return "list of " + inner, ""
	case *ast.MapType:
		key, _ := fieldType(t.Key, structs)
		val, _ := fieldType(t.Value, structs)
		return fmt.Sprintf("map of %s to %s", key, val), ""
	case *ast.SelectorExpr:
		return t.Sel.Name, ""
	default:
		return "any", ""
	}
}

// Matches: Defaults to "5m", Default: "zip".
var defaultRegex = regexp.MustCompile(`[Dd]efaults?(?: is|:| to)[:\s]+["']([^"']+)["']`)

func fieldDoc(f *ast.Field) (description, def string) {
	var text string
	switch {
	case f.Doc != nil:
		text = f.Doc.Text()
	case f.Comment != nil:
		text = f.Comment.Text()
	}
	if m := defaultRegex.FindStringSubmatch(text); len(m) > 1 {
		def = m[1]
	}
	return strings.ReplaceAll(cleanDoc(text), "\n", " "), def
}

func render(sections []section) []byte {
	var b bytes.Buffer
	b.WriteString("# Configuration reference\n\n")
	b.WriteString("Generated by `go run scripts/gen-docs.go`. Fields marked *template* expand `${VAR}` from `--allowed-env` variables.\n")

	for _, sec := range sections {
		title := sec.path
		if title == "" {
			title = "(root)"
		}
		fmt.Fprintf(&b, "\n## `%s`\n\n", title)
		if sec.doc != "" {
			fmt.Fprintf(&b, "%s\n\n", strings.ReplaceAll(sec.doc, "\n", " "))
		}
		b.WriteString("| key | type | required | default | description |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for _, f := range sec.fields {
			desc := f.description
			if len(f.enum) > 0 {
				desc = strings.TrimSpace(desc + " One of: " + strings.Join(f.enum, ", ") + ".")
			}
			if f.template {
				desc = strings.TrimSpace(desc + " *template*")
			}
			required := ""
			if f.required {
				required = "yes"
			}
			fmt.Fprintf(&b, "| `%s` | %s | %s | %s | %s |\n",
				joinKey(sec.path, f.key), f.typ, required, f.def, strings.ReplaceAll(desc, "|", `\|`))
		}
	}
	return b.Bytes()
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func cleanDoc(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.Join(lines, "\n")
}

func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
