// Package nativestubs loads the opaque side table describing what a
// native method is assumed to allocate and call, since RTA cannot walk
// a native method's bytecode body. The format is YAML, mirroring the
// teacher's own YAML-driven expected.yaml test-fixture convention in
// internal/harness — spec.md is silent on a concrete stub file format,
// an Open Question resolved this way and recorded in DESIGN.md.
package nativestubs

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vantage-dev/jvmrta/pkg/rta"
)

// file is the YAML document's on-disk shape.
type file struct {
	Methods []stubEntry `yaml:"methods"`
}

type stubEntry struct {
	Class            string   `yaml:"class"`
	Name             string   `yaml:"name"`
	Desc             string   `yaml:"desc"`
	AllocatedClasses []string `yaml:"allocatedClasses"`
	Callees          []callee `yaml:"callees"`
}

type callee struct {
	Class string `yaml:"class"`
	Name  string `yaml:"name"`
	Desc  string `yaml:"desc"`
}

// Load reads a native-stub YAML file and returns it in the shape
// pkg/rta.Options.Stubs expects.
func Load(path string) (map[rta.MethodKey]rta.NativeStub, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("nativestubs: reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes stub YAML already read into memory, for callers that
// hold the YAML as bytes rather than reading it from a file.
func Parse(data []byte) (map[rta.MethodKey]rta.NativeStub, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("nativestubs: parsing yaml: %w", err)
	}
	out := make(map[rta.MethodKey]rta.NativeStub, len(f.Methods))
	for _, e := range f.Methods {
		key := rta.MethodKey{Class: e.Class, Name: e.Name, Desc: e.Desc}
		stub := rta.NativeStub{AllocatedClasses: e.AllocatedClasses}
		for _, c := range e.Callees {
			stub.Callees = append(stub.Callees, rta.MethodKey{Class: c.Class, Name: c.Name, Desc: c.Desc})
		}
		out[key] = stub
	}
	return out, nil
}
