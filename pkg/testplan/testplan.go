// Package testplan parses the YAML test-plan document into typed test-case
// records. The document is a list of tests:
//
//	- name: multi-bluetooth
//	  type: multi            # required for multi and custom, inferred otherwise
//	  test:
//	    script: multi_bluetooth            # scalar or list
//	    exclude: multi_bluetooth/ble_irq.py
//	    device:
//	      - board: CY8CPROTO-063-BLE
//	        version: v1.2                  # optional
//	    post_test_delay_ms: 500
//	    args: [--verbose]                  # custom type only
//	  stub:
//	    script: stubs/ble_peer.py
//	    device:
//	      - board: CY8CPROTO-063-BLE
//	    post_stub_delay_ms: 1000
package testplan

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Type is the execution type of a test case.
type Type string

const (
	TypeSingle          Type = "single"
	TypeSinglePostDelay Type = "single_post_delay"
	TypeMulti           Type = "multi"
	TypeMultiStub       Type = "multi_stub"
	TypeCustom          Type = "custom"
)

// Role distinguishes the two device slots of a test.
type Role string

const (
	RoleDUT  Role = "dut"
	RoleStub Role = "stub"
)

// DeviceRequirement declares a board (and optionally a version) a test can
// run on.
type DeviceRequirement struct {
	Board   string `yaml:"board"`
	Version string `yaml:"version"`
}

// StringList accepts either a scalar or a sequence in YAML.
type StringList []string

func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var single string
		if err := node.Decode(&single); err != nil {
			return err
		}
		*l = StringList{single}
		return nil
	}
	var many []string
	if err := node.Decode(&many); err != nil {
		return err
	}
	*l = StringList(many)
	return nil
}

// TestCase is one entry of the test plan.
type TestCase struct {
	Name          string
	Type          Type
	Scripts       []string
	Excludes      []string
	PostTestDelay time.Duration
	StubScript    string
	PostStubDelay time.Duration
	DUTDevices    []DeviceRequirement
	StubDevices   []DeviceRequirement
	CustomArgs    []string
}

// RequiresMultipleDevs reports whether the test needs both a dut and a stub
// device (multi and multi_stub types).
func (tc *TestCase) RequiresMultipleDevs() bool {
	return strings.Contains(string(tc.Type), "multi")
}

// DevicesAvailable reports whether the resolved ports satisfy the test's
// device needs: a dut always, a stub only for multi-device types.
func (tc *TestCase) DevicesAvailable(dutPort, stubPort string) bool {
	if dutPort == "" {
		return false
	}
	if tc.RequiresMultipleDevs() && stubPort == "" {
		return false
	}
	return true
}

// SupportedDevices filters the requirement list of the given role down to
// the given board. The multi type reuses the dut list for the stub role,
// since both devices play the same part there.
func (tc *TestCase) SupportedDevices(role Role, board string) []DeviceRequirement {
	list := tc.DUTDevices
	if role == RoleStub {
		list = tc.StubDevices
		if tc.Type == TypeMulti {
			list = tc.DUTDevices
		}
	}
	var supported []DeviceRequirement
	for _, req := range list {
		if req.Board == board {
			supported = append(supported, req)
		}
	}
	return supported
}

type rawTest struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	Test struct {
		Script          StringList          `yaml:"script"`
		Exclude         StringList          `yaml:"exclude"`
		Device          []DeviceRequirement `yaml:"device"`
		PostTestDelayMS int                 `yaml:"post_test_delay_ms"`
		Args            []string            `yaml:"args"`
	} `yaml:"test"`
	Stub struct {
		Script          string              `yaml:"script"`
		Device          []DeviceRequirement `yaml:"device"`
		PostStubDelayMS int                 `yaml:"post_stub_delay_ms"`
	} `yaml:"stub"`
}

// inferType derives the execution type from the optional fields when the
// plan does not declare one. multi and custom can never be inferred.
func inferType(stubScript string, postTestDelayMS int) Type {
	if stubScript != "" {
		return TypeMultiStub
	}
	if postTestDelayMS > 0 {
		return TypeSinglePostDelay
	}
	return TypeSingle
}

func resolveType(declared, stubScript string, postTestDelayMS int) (Type, error) {
	if declared == "" {
		return inferType(stubScript, postTestDelayMS), nil
	}
	switch t := Type(declared); t {
	case TypeSingle, TypeSinglePostDelay, TypeMulti, TypeMultiStub, TypeCustom:
		return t, nil
	default:
		return "", errors.Errorf("unknown test type %q", declared)
	}
}

// Load parses the plan document into test cases. A missing or unparsable
// file is an error; the caller treats it as fatal before any test runs.
func Load(path string) ([]*TestCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read test plan %q failed", path)
	}
	var raw []rawTest
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(err, "parse test plan %q failed", path)
	}

	cases := make([]*TestCase, 0, len(raw))
	for _, rt := range raw {
		typ, err := resolveType(rt.Type, rt.Stub.Script, rt.Test.PostTestDelayMS)
		if err != nil {
			return nil, errors.Wrapf(err, "test %q", rt.Name)
		}
		cases = append(cases, &TestCase{
			Name:          rt.Name,
			Type:          typ,
			Scripts:       rt.Test.Script,
			Excludes:      rt.Test.Exclude,
			PostTestDelay: time.Duration(rt.Test.PostTestDelayMS) * time.Millisecond,
			StubScript:    rt.Stub.Script,
			PostStubDelay: time.Duration(rt.Stub.PostStubDelayMS) * time.Millisecond,
			DUTDevices:    rt.Test.Device,
			StubDevices:   rt.Stub.Device,
			CustomArgs:    rt.Test.Args,
		})
	}
	return cases, nil
}

// FilterByNames keeps the tests named in names, in the order the names are
// given. An empty names list keeps the whole plan.
func FilterByNames(cases []*TestCase, names []string) []*TestCase {
	if len(names) == 0 {
		return cases
	}
	var filtered []*TestCase
	for _, name := range names {
		for _, tc := range cases {
			if tc.Name == name {
				filtered = append(filtered, tc)
			}
		}
	}
	return filtered
}
