// Package prompt implements the versioned prompt registry. Templates
// are named, versioned, and may carry several concurrently live
// variants for controlled experimentation; variant assignment is
// deterministic per subject so the same candidate or job always sees
// the same variant within an experiment window.
package prompt

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"text/template"
)

// TemplateRenderError indicates that rendering failed, typically
// because a required placeholder was missing from the context. This is
// a configuration bug and is never retried.
type TemplateRenderError struct {
	// Template names the failing template.
	Template string

	// Version is the template version that failed.
	Version string

	// Err is the underlying rendering failure.
	Err error
}

// Error implements the error interface.
func (e *TemplateRenderError) Error() string {
	return fmt.Sprintf("failed to render template %s@%s: %v", e.Template, e.Version, e.Err)
}

// Unwrap returns the underlying rendering failure.
func (e *TemplateRenderError) Unwrap() error { return e.Err }

// Template is one versioned prompt definition. Variants are alternate
// phrasings of the same prompt; experiments compare their outcomes.
type Template struct {
	// Name identifies the template, such as "framework_extraction".
	Name string

	// Version is the template version, such as "1.0.0". Dimension
	// scores record this version as their rubric lineage.
	Version string

	// Variants are alternate bodies. At least one is required; a
	// single-variant template behaves as an un-experimented prompt.
	Variants []string
}

// compiledTemplate pairs a Template with its parsed variant bodies.
type compiledTemplate struct {
	def      Template
	variants []*template.Template
}

// ResolvedTemplate is one concrete (version, variant) selection ready
// for rendering.
type ResolvedTemplate struct {
	// Name is the template name.
	Name string

	// Version is the selected version.
	Version string

	// Variant is the selected variant index.
	Variant int

	tmpl *template.Template
}

// Render fills the template's placeholders from data, which may be a
// struct or a map. Missing placeholders fail with TemplateRenderError.
func (r *ResolvedTemplate) Render(data any) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return "", &TemplateRenderError{Template: r.Name, Version: r.Version, Err: err}
	}

	rendered := buf.String()
	// missingkey=error only covers map contexts; struct contexts render
	// missing fields as "<no value>" which template.Execute reports as
	// an error only for maps. Guard against the marker leaking through.
	if strings.Contains(rendered, "<no value>") {
		return "", &TemplateRenderError{
			Template: r.Name,
			Version:  r.Version,
			Err:      fmt.Errorf("context is missing a required placeholder value"),
		}
	}

	return rendered, nil
}

// Registry stores prompt templates by name and version and assigns
// variants deterministically. Safe for concurrent use.
type Registry struct {
	mu sync.RWMutex

	// templates maps name -> version -> compiled template.
	templates map[string]map[string]*compiledTemplate

	// active maps name -> currently live version.
	active map[string]string
}

// NewRegistry returns a registry pre-loaded with the engine's built-in
// templates.
func NewRegistry() *Registry {
	r := &Registry{
		templates: make(map[string]map[string]*compiledTemplate),
		active:    make(map[string]string),
	}
	for _, t := range builtinTemplates {
		// Built-ins are statically defined and must compile.
		if err := r.Register(t); err != nil {
			panic(fmt.Sprintf("built-in template %s@%s: %v", t.Name, t.Version, err))
		}
	}
	return r
}

// Register adds a template version. Registering a version for an
// existing name makes it the active version; earlier versions remain
// resolvable for reproducing past generations.
func (r *Registry) Register(def Template) error {
	if def.Name == "" {
		return fmt.Errorf("template name cannot be empty")
	}
	if def.Version == "" {
		return fmt.Errorf("template %s: version cannot be empty", def.Name)
	}
	if len(def.Variants) == 0 {
		return fmt.Errorf("template %s@%s: at least one variant is required", def.Name, def.Version)
	}

	compiled := &compiledTemplate{def: def}
	for i, body := range def.Variants {
		tmpl, err := template.New(fmt.Sprintf("%s@%s#%d", def.Name, def.Version, i)).
			Option("missingkey=error").
			Parse(body)
		if err != nil {
			return fmt.Errorf("template %s@%s variant %d: %w", def.Name, def.Version, i, err)
		}
		compiled.variants = append(compiled.variants, tmpl)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.templates[def.Name] == nil {
		r.templates[def.Name] = make(map[string]*compiledTemplate)
	}
	r.templates[def.Name][def.Version] = compiled
	r.active[def.Name] = def.Version
	return nil
}

// Resolve returns the active version of a template with the variant
// assigned for subjectID. The assignment is a stable hash of
// (subjectID, name), so one subject consistently receives the same
// variant.
func (r *Registry) Resolve(name, subjectID string) (*ResolvedTemplate, error) {
	r.mu.RLock()
	version, ok := r.active[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown template: %s", name)
	}
	return r.ResolveVersion(name, version, subjectID)
}

// ResolveVersion returns a specific template version with the variant
// assigned for subjectID. Used to re-render prompts from a recorded
// version lineage.
func (r *Registry) ResolveVersion(name, version, subjectID string) (*ResolvedTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.templates[name]
	if !ok {
		return nil, fmt.Errorf("unknown template: %s", name)
	}
	compiled, ok := versions[version]
	if !ok {
		return nil, fmt.Errorf("unknown version %s for template %s", version, name)
	}

	variant := assignVariant(subjectID, name, len(compiled.variants))
	return &ResolvedTemplate{
		Name:    name,
		Version: version,
		Variant: variant,
		tmpl:    compiled.variants[variant],
	}, nil
}

// ActiveVersion returns the currently live version for a template name.
func (r *Registry) ActiveVersion(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	version, ok := r.active[name]
	return version, ok
}

// assignVariant hashes (subjectID, name) into a variant index.
// FNV-1a keeps the assignment stable across processes and restarts.
func assignVariant(subjectID, name string, variantCount int) int {
	if variantCount <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(subjectID))
	h.Write([]byte{0})
	h.Write([]byte(name))
	return int(h.Sum32() % uint32(variantCount))
}
