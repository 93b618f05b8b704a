// Package sidecar reads per-directory folder.yaml documents and merges them
// along the directory chain into a single metadata hint for a file.
package sidecar

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the sidecar document looked up in every directory.
const FileName = "folder.yaml"

// Hint is the merged outcome of all sidecar documents on a file's directory
// chain. Every field is optional; the zero value means "no hints anywhere".
type Hint struct {
	NotEarlierThan *time.Time
	NotLaterThan   *time.Time
	// Directory whose document last set either date bound.
	DateSourcePath string

	Country *string
	State   *string
	City    *string
	Street  *string
	Lat     *float64
	Lon     *float64
}

// HasDate reports whether either date bound is set.
func (h *Hint) HasDate() bool {
	return h.NotEarlierThan != nil || h.NotLaterThan != nil
}

// HasNamedPlace reports whether at least one named hierarchy level is set.
func (h *Hint) HasNamedPlace() bool {
	return h.Country != nil || h.State != nil || h.City != nil || h.Street != nil
}

// HasCoordinates reports whether both coordinates are set.
func (h *Hint) HasCoordinates() bool {
	return h.Lat != nil && h.Lon != nil
}

type document struct {
	Date  *dateSection  `yaml:"date"`
	Place *placeSection `yaml:"place"`
}

type dateSection struct {
	NotEarlierThan string `yaml:"not_earlier_than"`
	NotLaterThan   string `yaml:"not_later_than"`
}

type placeSection struct {
	Country string   `yaml:"country"`
	State   string   `yaml:"state"`
	City    string   `yaml:"city"`
	Street  string   `yaml:"street"`
	Lat     *float64 `yaml:"lat"`
	Lon     *float64 `yaml:"lon"`
}

// Load parses the sidecar document in dir. A missing or empty document
// yields (nil, nil); malformed YAML or an unparseable date is an error.
func Load(dir string) (*Hint, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sidecar in %s: %w", dir, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse sidecar in %s: %w", dir, err)
	}
	if doc.Date == nil && doc.Place == nil {
		return nil, nil
	}

	h := &Hint{}
	if doc.Date != nil {
		if h.NotEarlierThan, err = parseDate(doc.Date.NotEarlierThan); err != nil {
			return nil, fmt.Errorf("sidecar in %s: not_earlier_than: %w", dir, err)
		}
		if h.NotLaterThan, err = parseDate(doc.Date.NotLaterThan); err != nil {
			return nil, fmt.Errorf("sidecar in %s: not_later_than: %w", dir, err)
		}
	}
	if doc.Place != nil {
		h.Country = optString(doc.Place.Country)
		h.State = optString(doc.Place.State)
		h.City = optString(doc.Place.City)
		h.Street = optString(doc.Place.Street)
		h.Lat = doc.Place.Lat
		h.Lon = doc.Place.Lon
	}
	return h, nil
}

// Resolve walks from the file's directory upward, collecting sidecar
// documents, and merges them root-to-leaf so that the closest ancestor's
// explicit value wins for each field independently. The walk stops at root
// (inclusive) when root is non-empty, otherwise at the filesystem root.
// No documents anywhere yields an empty hint, not an error.
func Resolve(filePath, root string) (*Hint, error) {
	dir := filepath.Dir(filepath.Clean(filePath))
	if root != "" {
		root = filepath.Clean(root)
	}

	type entry struct {
		dir  string
		hint *Hint
	}
	var stack []entry // leaf to root order

	for {
		h, err := Load(dir)
		if err != nil {
			return nil, err
		}
		if h != nil {
			stack = append(stack, entry{dir: dir, hint: h})
		}
		if root != "" && dir == root {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	// Apply root to leaf so the closer document overrides, field by field.
	merged := &Hint{}
	for i := len(stack) - 1; i >= 0; i-- {
		merged.apply(stack[i].dir, stack[i].hint)
	}
	return merged, nil
}

// apply overwrites only the fields h sets. Merging whole sections instead
// of single fields would break partial overrides at depth.
func (m *Hint) apply(dir string, h *Hint) {
	if h.NotEarlierThan != nil {
		m.NotEarlierThan = h.NotEarlierThan
		m.DateSourcePath = dir
	}
	if h.NotLaterThan != nil {
		m.NotLaterThan = h.NotLaterThan
		m.DateSourcePath = dir
	}
	if h.Country != nil {
		m.Country = h.Country
	}
	if h.State != nil {
		m.State = h.State
	}
	if h.City != nil {
		m.City = h.City
	}
	if h.Street != nil {
		m.Street = h.Street
	}
	if h.Lat != nil {
		m.Lat = h.Lat
	}
	if h.Lon != nil {
		m.Lon = h.Lon
	}
}

// parseDate parses a YYYY-MM-DD calendar date as midnight UTC.
func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", s, err)
	}
	return &t, nil
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
