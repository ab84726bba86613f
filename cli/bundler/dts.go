package bundler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/fluxbase-eu/pkgkit/internal/pkgpath"
)

// DeclarationExtension is the extension of written declaration bundles.
const DeclarationExtension = ".d.ts"

// moduleReferenceRegex matches top-level import and re-export statements that
// reference another module, including side-effect imports. Group 1 is the
// keyword (empty for side-effect imports), group 3 the import or export clause
// and group 5 the quoted specifier.
var moduleReferenceRegex = regexp.MustCompile(
	`(?m)^[ \t]*(?:(import|export)(\s+type\b)?\s*([^;'"]*?)\s*\bfrom\s*|import\s*)(['"])([^'"]+)['"][ \t]*;?[ \t]*\n?`)

var (
	// exportedNameRegex matches a top-level declaration or alias exported by name.
	exportedNameRegex = regexp.MustCompile(
		`(?m)^export\s+(?:declare\s+)?(?:import\s+|(?:abstract\s+)?(?:function|const|let|var|class|interface|type|enum|namespace|module)\s+)([A-Za-z_$][\w$]*)`)
	exportListRegex        = regexp.MustCompile(`(?m)^[ \t]*export\s+(?:type\s+)?\{([^}]*)\}[ \t]*;?[ \t]*\n?`)
	exportDefaultDeclRegex = regexp.MustCompile(
		`(?m)^export\s+default\s+((?:declare\s+)?(?:abstract\s+)?(?:function|class|interface))\b[ \t]*([A-Za-z_$][\w$]*)?`)
	exportDefaultNameRegex = regexp.MustCompile(`(?m)^[ \t]*export\s+default\s+([A-Za-z_$][\w$.]*)[ \t]*;[ \t]*\n?`)
	declareModifierRegex   = regexp.MustCompile(`(?m)^(export\s+)?declare\s+`)
)

// defaultExport is the member a wrapped module exports its default binding as.
const defaultExport = "__default"

// DeclarationEngine bundles compiled declaration files. The entry stays at the
// top level and every module it pulls in is wrapped in its own namespace, so
// private names of different modules never meet. Imports and re-exports of
// wrapped modules become aliases of namespace members, and external imports
// are hoisted to the top. Star re-exports of external modules from inside a
// wrapped module surface at the top level.
type DeclarationEngine struct{}

// NewDeclarationEngine creates a declaration bundler.
func NewDeclarationEngine() *DeclarationEngine {
	return &DeclarationEngine{}
}

// Build bundles every input of opts.
func (e *DeclarationEngine) Build(ctx context.Context, opts BuildOptions) (Bundle, error) {
	bundle := &declarationBundle{files: make(map[string]string, len(opts.Inputs))}
	for _, id := range opts.Inputs.OutputIDs() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := bundleDeclarations(opts.Plugins, opts.Inputs[id])
		if err != nil {
			return nil, fmt.Errorf("failed to bundle declarations for %s: %w", id, err)
		}
		bundle.files[id] = text
	}
	return bundle, nil
}

// Watch is not supported for declarations.
func (e *DeclarationEngine) Watch(context.Context, BuildOptions, []OutputOptions) (Session, error) {
	return nil, ErrWatchUnsupported
}

type declarationBundle struct {
	files map[string]string
}

func (b *declarationBundle) Write(ctx context.Context, out OutputOptions) (*Output, error) {
	ext := out.Extension
	if ext == "" {
		ext = DeclarationExtension
	}
	output := &Output{}
	for _, id := range sortedKeys(b.files) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(out.Dir, filepath.FromSlash(id)+ext)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // output tree
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
		if err := os.WriteFile(path, []byte(b.files[id]), 0o644); err != nil { //nolint:gosec // published artifact
			return nil, fmt.Errorf("failed to write %s: %w", path, err)
		}
		output.Files = append(output.Files, OutputFile{Path: path, Bytes: len(b.files[id])})
	}
	return output, nil
}

func (b *declarationBundle) Close() error {
	b.files = nil
	return nil
}

// declarationModule is one declaration file pulled into a bundle.
type declarationModule struct {
	// namespace wraps the module's declarations; it is empty for the entry.
	namespace string
	// exports lists the names the module exports, "default" included.
	exports []string
}

// declarationBinding is one name of an import or export list.
type declarationBinding struct {
	name  string
	alias string
}

// declarationClause is the parsed part of an import or export statement
// between the keyword and "from".
type declarationClause struct {
	defaultName string
	namespace   string
	star        bool
	named       []declarationBinding
}

type declarationBundler struct {
	plugins   Pipeline
	modules   map[string]*declarationModule
	externals []string
	seen      map[string]bool
	scopes    []string
	entry     string
	aliases   int
}

func bundleDeclarations(plugins Pipeline, entry string) (string, error) {
	b := &declarationBundler{
		plugins: plugins,
		modules: make(map[string]*declarationModule),
		seen:    make(map[string]bool),
	}
	if _, err := b.visit(filepath.Clean(entry), true); err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, stmt := range b.externals {
		sb.WriteString(stmt)
		sb.WriteString("\n")
	}
	if len(b.externals) > 0 {
		sb.WriteString("\n")
	}
	for _, scope := range b.scopes {
		sb.WriteString(scope)
		sb.WriteString("\n")
	}
	if body := strings.TrimSpace(b.entry); body != "" {
		sb.WriteString(body)
		sb.WriteString("\n")
	}
	if len(b.scopes) > 0 {
		// Keeps the module namespaces private to the bundle.
		sb.WriteString("export {};\n")
	}
	return sb.String(), nil
}

func (b *declarationBundler) visit(path string, entry bool) (*declarationModule, error) {
	if m, ok := b.modules[path]; ok {
		if m.namespace == "" {
			return nil, fmt.Errorf("%s: circular import of the entry declaration", path)
		}
		return m, nil
	}
	m := &declarationModule{}
	if !entry {
		m.namespace = fmt.Sprintf("__m%d", len(b.modules))
	}
	b.modules[path] = m

	text, err := b.load(path)
	if err != nil {
		return nil, err
	}
	exported := make(map[string]bool)
	for _, match := range exportedNameRegex.FindAllStringSubmatch(text, -1) {
		exported[match[1]] = true
	}

	var body strings.Builder
	last := 0
	for _, loc := range moduleReferenceRegex.FindAllStringSubmatchIndex(text, -1) {
		groups := submatches(text, loc)
		stmt, keyword, specifier := groups[0], groups[1], groups[5]
		clause := parseClause(groups[3])
		body.WriteString(text[last:loc[0]])
		last = loc[1]

		res, _, err := b.plugins.Resolve(ResolveArgs{
			Specifier:  specifier,
			Importer:   path,
			ResolveDir: filepath.Dir(path),
		})
		if err != nil {
			return nil, err
		}
		if res.IsClaimed() && res.External {
			writeLines(&body, b.external(m, stmt, keyword, clause, specifier, res.Path))
			continue
		}

		var target string
		if res.IsClaimed() {
			target = filepath.Clean(res.Path)
		} else if target, err = resolveDeclaration(path, specifier); err != nil {
			return nil, err
		}
		dep, err := b.visit(target, false)
		if err != nil {
			return nil, err
		}
		writeLines(&body, link(m, keyword, clause, dep, exported))
	}
	body.WriteString(text[last:])
	text = sourceMappingURLRegex.ReplaceAllString(body.String(), "")

	if entry {
		b.entry = text
		return m, nil
	}
	scoped, exports := scopeDeclarations(text)
	m.exports = exports
	b.scopes = append(b.scopes, wrapNamespace(m.namespace, scoped))
	return m, nil
}

func (b *declarationBundler) load(path string) (string, error) {
	loaded, _, err := b.plugins.Load(path)
	if err != nil {
		return "", err
	}
	if loaded.IsClaimed() {
		return loaded.Contents, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

// external hoists a statement referencing an external module. Named
// re-exports inside a wrapped module become hoisted imports under private
// aliases that the namespace exports again.
func (b *declarationBundler) external(m *declarationModule, stmt, keyword string, c declarationClause, specifier, resolved string) []string {
	if m.namespace == "" || keyword != "export" || c.star {
		b.hoist(strings.Replace(strings.TrimSpace(stmt), specifier, resolved, 1))
		return nil
	}

	var lines []string
	if c.namespace != "" {
		alias := b.externalAlias()
		b.hoist(fmt.Sprintf("import * as %s from %q;", alias, resolved))
		lines = append(lines, exportAlias(false, c.namespace, alias))
	}
	if len(c.named) > 0 {
		items := make([]string, 0, len(c.named))
		for _, binding := range c.named {
			alias := b.externalAlias()
			items = append(items, binding.name+" as "+alias)
			lines = append(lines, exportAlias(false, binding.alias, alias))
		}
		b.hoist(fmt.Sprintf("import { %s } from %q;", strings.Join(items, ", "), resolved))
	}
	return lines
}

func (b *declarationBundler) externalAlias() string {
	b.aliases++
	return fmt.Sprintf("__x%d", b.aliases)
}

func (b *declarationBundler) hoist(stmt string) {
	if !strings.HasSuffix(stmt, ";") {
		stmt += ";"
	}
	if b.seen[stmt] {
		return
	}
	b.seen[stmt] = true
	b.externals = append(b.externals, stmt)
}

// link rewrites an import or re-export of a wrapped module into aliases of its
// namespace members. exported holds the names m already exports; star
// re-exports skip them.
func link(m *declarationModule, keyword string, c declarationClause, dep *declarationModule, exported map[string]bool) []string {
	member := func(name string) string {
		if name == "default" {
			name = defaultExport
		}
		return dep.namespace + "." + name
	}

	var lines []string
	if keyword != "export" {
		if c.defaultName != "" {
			lines = append(lines, fmt.Sprintf("import %s = %s;", c.defaultName, member("default")))
		}
		if c.namespace != "" {
			lines = append(lines, fmt.Sprintf("import %s = %s;", c.namespace, dep.namespace))
		}
		for _, binding := range c.named {
			lines = append(lines, fmt.Sprintf("import %s = %s;", binding.alias, member(binding.name)))
		}
		return lines
	}

	top := m.namespace == ""
	if c.namespace != "" {
		exported[c.namespace] = true
		lines = append(lines, exportAlias(top, c.namespace, dep.namespace))
	}
	for _, binding := range c.named {
		exported[binding.alias] = true
		lines = append(lines, exportAlias(top, binding.alias, member(binding.name)))
	}
	if c.star {
		for _, name := range dep.exports {
			if name == "default" || exported[name] {
				continue
			}
			exported[name] = true
			lines = append(lines, exportAlias(top, name, member(name)))
		}
	}
	return lines
}

// exportAlias exports target under name. Inside a namespace the default
// binding is exported as defaultExport.
func exportAlias(top bool, name, target string) string {
	if name == "default" {
		if top {
			return fmt.Sprintf("export default %s;", target)
		}
		name = defaultExport
	}
	return fmt.Sprintf("export import %s = %s;", name, target)
}

// scopeDeclarations turns the top-level statements of a declaration file into
// namespace members and returns them with the names they export.
func scopeDeclarations(text string) (string, []string) {
	var defaults []string
	text = replaceSubmatches(exportDefaultDeclRegex, text, func(groups []string) string {
		if groups[2] == "" {
			return "export " + groups[1] + " " + defaultExport
		}
		defaults = append(defaults, exportAlias(false, "default", groups[2]))
		return groups[1] + " " + groups[2]
	})
	text = replaceSubmatches(exportDefaultNameRegex, text, func(groups []string) string {
		return exportAlias(false, "default", groups[1]) + "\n"
	})

	var promoted []string
	text = replaceSubmatches(exportListRegex, text, func(groups []string) string {
		var lines []string
		for _, binding := range parseBindings(groups[1]) {
			if binding.alias == binding.name {
				promoted = append(promoted, binding.name)
				continue
			}
			lines = append(lines, exportAlias(false, binding.alias, binding.name))
		}
		var sb strings.Builder
		writeLines(&sb, lines)
		return sb.String()
	})
	for _, name := range promoted {
		declaration := regexp.MustCompile(`(?m)^((?:declare\s+)?(?:abstract\s+)?(?:function|const|let|var|class|interface|type|enum|namespace|import)\s+` +
			regexp.QuoteMeta(name) + `\b)`)
		text = declaration.ReplaceAllString(text, "export $1")
	}
	if len(defaults) > 0 {
		text = strings.TrimRight(text, "\n") + "\n" + strings.Join(defaults, "\n") + "\n"
	}
	text = declareModifierRegex.ReplaceAllString(text, "$1")

	var exports []string
	seen := make(map[string]bool)
	for _, match := range exportedNameRegex.FindAllStringSubmatch(text, -1) {
		name := match[1]
		if name == defaultExport {
			name = "default"
		}
		if !seen[name] {
			seen[name] = true
			exports = append(exports, name)
		}
	}
	return text, exports
}

func wrapNamespace(name, body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return fmt.Sprintf("declare namespace %s { }", name)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "declare namespace %s {\n", name)
	for _, line := range strings.Split(body, "\n") {
		if strings.TrimSpace(line) != "" {
			sb.WriteString("    ")
			sb.WriteString(line)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}")
	return sb.String()
}

func parseClause(clause string) declarationClause {
	var c declarationClause
	if open := strings.IndexByte(clause, '{'); open >= 0 {
		if end := strings.IndexByte(clause[open:], '}'); end > 0 {
			c.named = parseBindings(clause[open+1 : open+end])
			clause = clause[:open] + clause[open+end+1:]
		}
	}
	for _, part := range strings.Split(clause, ",") {
		fields := strings.Fields(part)
		switch {
		case len(fields) == 0:
		case fields[0] == "*" && len(fields) == 3 && fields[1] == "as":
			c.namespace = fields[2]
		case fields[0] == "*":
			c.star = true
		default:
			c.defaultName = fields[0]
		}
	}
	return c
}

func parseBindings(list string) []declarationBinding {
	var bindings []declarationBinding
	for _, item := range strings.Split(list, ",") {
		fields := strings.Fields(item)
		if (len(fields) == 2 || len(fields) == 4) && fields[0] == "type" {
			fields = fields[1:]
		}
		switch {
		case len(fields) == 1:
			bindings = append(bindings, declarationBinding{name: fields[0], alias: fields[0]})
		case len(fields) == 3 && fields[1] == "as":
			bindings = append(bindings, declarationBinding{name: fields[0], alias: fields[2]})
		}
	}
	return bindings
}

// submatches returns every group of a match; groups that did not take part
// are empty.
func submatches(text string, loc []int) []string {
	groups := make([]string, len(loc)/2)
	for i := range groups {
		if loc[2*i] >= 0 {
			groups[i] = text[loc[2*i]:loc[2*i+1]]
		}
	}
	return groups
}

func replaceSubmatches(re *regexp.Regexp, text string, fn func(groups []string) string) string {
	var sb strings.Builder
	last := 0
	for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
		sb.WriteString(text[last:loc[0]])
		sb.WriteString(fn(submatches(text, loc)))
		last = loc[1]
	}
	sb.WriteString(text[last:])
	return sb.String()
}

func writeLines(sb *strings.Builder, lines []string) {
	for _, line := range lines {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
}

// resolveDeclaration finds the declaration file a relative specifier refers to.
func resolveDeclaration(importer, specifier string) (string, error) {
	if !pkgpath.IsRelative(specifier) {
		return "", fmt.Errorf("could not resolve %q from %s", specifier, importer)
	}
	joined := filepath.Join(filepath.Dir(importer), specifier)
	base := pkgpath.StripExtension(joined)
	candidates := []string{
		base + DeclarationExtension,
		joined + DeclarationExtension,
		filepath.Join(joined, "index"+DeclarationExtension),
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("could not resolve %q from %s", specifier, importer)
}
