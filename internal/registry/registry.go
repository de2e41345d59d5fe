// Package registry resolves the configured job-list string into a map
// of job.Descriptor, per spec.md §4.2. It is a pure function of the
// configuration string and the loader: it never touches the state
// store.
package registry

import (
	"fmt"
	"strings"

	"github.com/mozilla/crontabber/internal/cronerr"
	"github.com/mozilla/crontabber/internal/frequency"
	"github.com/mozilla/crontabber/internal/job"
)

// Registry holds the resolved descriptors plus the original
// configuration order, used by the dependency graph to break ties.
type Registry struct {
	descriptors map[string]*job.Descriptor
	order       []string
}

// Descriptors returns the resolved job map, keyed by identifier.
func (r *Registry) Descriptors() map[string]*job.Descriptor { return r.descriptors }

// Order returns identifiers in original configuration-list order.
func (r *Registry) Order() []string { return r.order }

// Get returns the descriptor for identifier, if any.
func (r *Registry) Get(identifier string) (*job.Descriptor, bool) {
	d, ok := r.descriptors[identifier]
	return d, ok
}

// StaticLoader is the simplest conforming job.Loader: an explicit map
// of class path to App, populated at program start. spec.md §9 notes
// that registration may be explicit instead of reflection-based without
// changing the core contract.
type StaticLoader map[string]job.App

func (l StaticLoader) Load(classPath string) (job.App, error) {
	app, ok := l[classPath]
	if !ok {
		return nil, fmt.Errorf("no job registered for class path %q", classPath)
	}
	return app, nil
}

// Build parses the multi-line "class_path|frequency[|HH:MM]" config
// string, resolves each line through loader, and returns the
// registry. Duplicate identifiers and unknown dependency identifiers
// are reported as ConfigError.
func Build(configLines string, loader job.Loader) (*Registry, error) {
	reg := &Registry{descriptors: map[string]*job.Descriptor{}}

	for lineNo, raw := range strings.Split(configLines, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		fields := strings.Split(line, "|")
		if len(fields) < 2 || len(fields) > 3 {
			return nil, cronerr.NewConfigError(
				cronerr.BadFrequency, line,
				fmt.Errorf("line %d: expected class_path|frequency[|HH:MM]", lineNo+1),
			)
		}

		classPath := strings.TrimSpace(fields[0])
		freqStr := strings.TrimSpace(fields[1])
		anchor := ""
		if len(fields) == 3 {
			anchor = strings.TrimSpace(fields[2])
		}

		freq, err := frequency.Parse(freqStr, anchor)
		if err != nil {
			return nil, err
		}

		app, err := loader.Load(classPath)
		if err != nil {
			return nil, cronerr.NewConfigError(cronerr.BadFrequency, classPath, err)
		}

		identifier := app.Identifier()
		if _, exists := reg.descriptors[identifier]; exists {
			return nil, cronerr.NewConfigError(cronerr.DuplicateIdentifier, identifier, nil)
		}

		deps := map[string]struct{}{}
		for _, dep := range app.DependsOn() {
			deps[dep] = struct{}{}
		}

		reg.descriptors[identifier] = &job.Descriptor{
			Identifier: identifier,
			ClassPath:  classPath,
			Frequency:  freq,
			DependsOn:  deps,
			IsBackfill: app.IsBackfill(),
			App:        app,
		}
		reg.order = append(reg.order, identifier)
	}

	for _, d := range reg.descriptors {
		for dep := range d.DependsOn {
			if _, ok := reg.descriptors[dep]; !ok {
				return nil, cronerr.NewConfigError(cronerr.UnknownDependency, dep,
					fmt.Errorf("job %q depends on unknown job %q", d.Identifier, dep))
			}
		}
	}

	return reg, nil
}
