package topics

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/sochub/soc-hub/internal/infrastructure/config"
)

// placeholderPattern matches %(name)s seed references in templates.
var placeholderPattern = regexp.MustCompile(`%\(([A-Za-z0-9_]+)\)s`)

// Registry holds the fully resolved topic namespace. It is built once at
// startup by Resolve and is read-only afterwards, so it is safe for
// concurrent use without locking.
type Registry struct {
	topics  map[string]Topic
	filters map[string]Filter
	seeds   map[string]string
	lwtName string
}

// Resolve builds a Registry from the configured seed vocabulary and
// topic/filter definitions.
//
// Seed values may reference other seeds with %(name)s placeholders to any
// depth; resolution walks the reference graph explicitly and fails with
// ErrCircularReference on a cycle rather than relying on repeated
// substitution to converge. Topic and filter templates may reference any
// resolved seed.
//
// Resolution is a pure function over the configuration: it has no side
// effects and the same input always produces the same Registry.
//
// Returns:
//   - *Registry: Resolved read-only namespace
//   - error: ErrCircularReference, ErrUnknownReference, ErrDuplicateName,
//     ErrDuplicateRole or ErrUnknownRole describing the first failure
func Resolve(cfg config.TopicsConfig) (*Registry, error) {
	seeds, err := resolveSeeds(cfg.Seeds)
	if err != nil {
		return nil, err
	}

	r := &Registry{
		topics:  make(map[string]Topic, len(cfg.Publish)),
		filters: make(map[string]Filter, len(cfg.Subscribe)),
		seeds:   seeds,
	}

	for _, def := range cfg.Publish {
		if _, exists := r.topics[def.Name]; exists {
			return nil, fmt.Errorf("%w: topic %q", ErrDuplicateName, def.Name)
		}

		value, err := substitute(def.Topic, seeds)
		if err != nil {
			return nil, fmt.Errorf("topic %q: %w", def.Name, err)
		}

		switch def.Role {
		case "":
		case RoleLWT:
			if r.lwtName != "" {
				return nil, fmt.Errorf("%w: %q and %q both claim role %q",
					ErrDuplicateRole, r.lwtName, def.Name, RoleLWT)
			}
			r.lwtName = def.Name
		default:
			return nil, fmt.Errorf("%w: topic %q has role %q", ErrUnknownRole, def.Name, def.Role)
		}

		r.topics[def.Name] = Topic{
			Name:   def.Name,
			Value:  value,
			QoS:    byte(def.QoS),
			Retain: def.Retain,
		}
	}

	for _, def := range cfg.Subscribe {
		if _, exists := r.filters[def.Name]; exists {
			return nil, fmt.Errorf("%w: filter %q", ErrDuplicateName, def.Name)
		}

		value, err := substitute(def.Filter, seeds)
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", def.Name, err)
		}

		r.filters[def.Name] = Filter{
			Name:  def.Name,
			Value: value,
			QoS:   byte(def.QoS),
		}
	}

	return r, nil
}

// resolveSeeds expands every seed template until no placeholder remains,
// detecting reference cycles along the way.
func resolveSeeds(raw map[string]string) (map[string]string, error) {
	resolved := make(map[string]string, len(raw))

	// state tracks the DFS colour of each seed: absent = unvisited,
	// false = in progress, true = done.
	state := make(map[string]bool, len(raw))

	var resolve func(name string) (string, error)
	resolve = func(name string) (string, error) {
		if done, seen := state[name]; seen {
			if !done {
				return "", fmt.Errorf("%w: seed %q", ErrCircularReference, name)
			}
			return resolved[name], nil
		}

		template, ok := raw[name]
		if !ok {
			return "", fmt.Errorf("%w: seed %q", ErrUnknownReference, name)
		}

		state[name] = false

		var substErr error
		value := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
			if substErr != nil {
				return match
			}
			ref := placeholderPattern.FindStringSubmatch(match)[1]
			refValue, err := resolve(ref)
			if err != nil {
				substErr = err
				return match
			}
			return refValue
		})
		if substErr != nil {
			return "", substErr
		}

		state[name] = true
		resolved[name] = value
		return value, nil
	}

	// Sorted iteration keeps error reporting deterministic.
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, err := resolve(name); err != nil {
			return nil, err
		}
	}

	return resolved, nil
}

// substitute expands seed placeholders in a topic or filter template.
// Every placeholder must name a resolved seed.
func substitute(template string, seeds map[string]string) (string, error) {
	var substErr error
	value := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		ref := placeholderPattern.FindStringSubmatch(match)[1]
		refValue, ok := seeds[ref]
		if !ok {
			if substErr == nil {
				substErr = fmt.Errorf("%w: %q", ErrUnknownReference, ref)
			}
			return match
		}
		return refValue
	})
	if substErr != nil {
		return "", substErr
	}
	return value, nil
}

// Topic returns the named publish topic.
func (r *Registry) Topic(name string) (Topic, bool) {
	t, ok := r.topics[name]
	return t, ok
}

// Filter returns the named subscription filter.
func (r *Registry) Filter(name string) (Filter, bool) {
	f, ok := r.filters[name]
	return f, ok
}

// LWT returns the topic carrying the last-will role, if one was defined.
func (r *Registry) LWT() (Topic, bool) {
	if r.lwtName == "" {
		return Topic{}, false
	}
	return r.topics[r.lwtName], true
}

// Seed returns the resolved value of a seed name.
func (r *Registry) Seed(name string) (string, bool) {
	s, ok := r.seeds[name]
	return s, ok
}

// Topics returns all publish topics, sorted by name.
func (r *Registry) Topics() []Topic {
	out := make([]Topic, 0, len(r.topics))
	for _, t := range r.topics {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Filters returns all subscription filters, sorted by name.
func (r *Registry) Filters() []Filter {
	out := make([]Filter, 0, len(r.filters))
	for _, f := range r.filters {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
