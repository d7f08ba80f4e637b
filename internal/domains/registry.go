// Package domains manages the YAML allow-list of web-search domains.
package domains

import (
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Domain is one host the web-search tool may consult.
type Domain struct {
	Host        string `yaml:"host"`
	Description string `yaml:"description"`
}

// Config is the top-level YAML structure.
type Config struct {
	Domains []Domain `yaml:"domains"`
}

// Registry holds loaded domains in definition order.
type Registry struct {
	byHost map[string]*Domain
	order  []string
}

// Load reads the YAML file at path and returns a Registry.
// An empty path or a missing file yields an empty Registry (not an error).
func Load(path string) (*Registry, error) {
	r := &Registry{byHost: make(map[string]*Domain)}
	if path == "" {
		return r, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	for i := range cfg.Domains {
		d := &cfg.Domains[i]
		d.Host = Canonical(d.Host)
		if d.Host == "" {
			continue
		}
		if _, dup := r.byHost[d.Host]; dup {
			continue
		}
		r.byHost[d.Host] = d
		r.order = append(r.order, d.Host)
	}
	return r, nil
}

// Get returns a domain by host. Returns (nil, false) if not found.
func (r *Registry) Get(host string) (*Domain, bool) {
	d, ok := r.byHost[Canonical(host)]
	return d, ok
}

// Hosts returns the hosts in definition order.
func (r *Registry) Hosts() []string {
	hosts := make([]string, len(r.order))
	copy(hosts, r.order)
	return hosts
}

// Sorted returns a sorted list of hosts.
func (r *Registry) Sorted() []string {
	hosts := r.Hosts()
	sort.Strings(hosts)
	return hosts
}

// Merge returns extra followed by the registry hosts, canonicalized and
// deduplicated. The result is never nil.
func (r *Registry) Merge(extra []string) []string {
	seen := make(map[string]bool, len(extra)+len(r.order))
	out := make([]string, 0, len(extra)+len(r.order))
	add := func(h string) {
		h = Canonical(h)
		if h == "" || seen[h] {
			return
		}
		seen[h] = true
		out = append(out, h)
	}
	for _, h := range extra {
		add(h)
	}
	for _, h := range r.order {
		add(h)
	}
	return out
}

// Canonical lowercases a host and strips any scheme, path and trailing dot.
func Canonical(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	if i := strings.Index(h, "://"); i >= 0 {
		h = h[i+3:]
	}
	if i := strings.IndexAny(h, "/?#"); i >= 0 {
		h = h[:i]
	}
	return strings.TrimSuffix(h, ".")
}
