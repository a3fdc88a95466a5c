// Package config holds the scan and server options and loads the optional
// YAML config file. The file mirrors the long flag names so that anything
// settable on the command line can be pinned in a file instead:
//
//	scan:
//	  threads: 20
//	  methods: [GET, PUT, DELETE]
//	  fail-on: high
//	server:
//	  listen: ":9090"
//	  allowed-origin: ["https://failwarn.com"]
//
// Only keys present in the file are applied, and never over a flag the
// user set explicitly.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidValue is returned when a config file value is out of range.
var ErrInvalidValue = errors.New("invalid config value")

// File is a parsed config file.
type File struct {
	Scan   Options       `yaml:"scan"`
	Server ServerOptions `yaml:"server"`

	scanKeys   map[string]struct{}
	serverKeys map[string]struct{}
}

// LoadFile parses the YAML config at path. Unknown keys are an error so
// that typos do not silently fall back to defaults.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	f := &File{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil {
		// An empty file decodes to EOF; treat it as "no overrides".
		if errors.Is(err, io.EOF) {
			return f, nil
		}
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	var keys map[string]map[string]yaml.Node
	if err := yaml.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	f.scanKeys = keySet(keys["scan"])
	f.serverKeys = keySet(keys["server"])

	if err := f.check(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) check() error {
	if f.Scan.Threads < 0 {
		return fmt.Errorf("%w: scan.threads must be >= 0, got %d", ErrInvalidValue, f.Scan.Threads)
	}
	if f.Scan.MaxDuplicates < 0 {
		return fmt.Errorf("%w: scan.max-duplicates must be >= 0, got %d", ErrInvalidValue, f.Scan.MaxDuplicates)
	}
	if f.Scan.Timeout < 0 || f.Scan.Delay < 0 {
		return fmt.Errorf("%w: scan durations must be >= 0", ErrInvalidValue)
	}
	if f.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("%w: server.max-body-bytes must be >= 0", ErrInvalidValue)
	}
	if f.Server.CloseTimeout < 0 || f.Server.Timeout < 0 {
		return fmt.Errorf("%w: server durations must be >= 0", ErrInvalidValue)
	}
	return nil
}

// ApplyScan copies every scan key present in the file into dst unless
// changed reports that the matching flag was set on the command line.
func (f *File) ApplyScan(dst *Options, changed func(name string) bool) {
	mergeByTag(dst, &f.Scan, f.scanKeys, changed)
}

// ApplyServer is ApplyScan for the server section.
func (f *File) ApplyServer(dst *ServerOptions, changed func(name string) bool) {
	mergeByTag(dst, &f.Server, f.serverKeys, changed)
}

func keySet(m map[string]yaml.Node) map[string]struct{} {
	set := make(map[string]struct{}, len(m))
	for k := range m {
		set[k] = struct{}{}
	}
	return set
}

// mergeByTag copies fields of src into dst by yaml tag name. dst and src
// must be pointers to the same struct type.
func mergeByTag(dst, src any, present map[string]struct{}, changed func(string) bool) {
	dv := reflect.ValueOf(dst).Elem()
	sv := reflect.ValueOf(src).Elem()
	t := dv.Type()
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			continue
		}
		if _, ok := present[name]; !ok {
			continue
		}
		if changed != nil && changed(name) {
			continue
		}
		dv.Field(i).Set(sv.Field(i))
	}
}
