package planrunner

import (
	"context"

	"github.com/mpy-hil/planrunner/pkg/devs"
	"github.com/mpy-hil/planrunner/pkg/testplan"
)

// Resolver turns the abstract device requirements of a test case into
// concrete devices. A nil dut or stub means the slot could not be filled;
// the engine skips such tests. The strategy is chosen once at startup.
type Resolver interface {
	Resolve(ctx context.Context, tc *testplan.TestCase) (dut, stub *devs.Device, err error)
}

// HILResolver resolves against the HIL device registry: the plan declares
// boards, the registry knows which physical devices carry them and whether
// they are reachable right now.
//
// Devices are re-bound from the registry document on every call, so a board
// plugged in between passes is picked up without restarting the run.
type HILResolver struct {
	Registry *devs.Registry
	DevsFile string
	Board    string
}

func (r *HILResolver) Resolve(ctx context.Context, tc *testplan.TestCase) (*devs.Device, *devs.Device, error) {
	devices, err := r.Registry.Load(ctx, r.DevsFile)
	if err != nil {
		return nil, nil, err
	}

	dutCandidates := r.candidates(devices, tc, testplan.RoleDUT)
	if len(dutCandidates) == 0 {
		return nil, nil, nil
	}
	dut := dutCandidates[0]

	var stub *devs.Device
	if tc.RequiresMultipleDevs() {
		for _, candidate := range r.candidates(devices, tc, testplan.RoleStub) {
			if candidate != dut {
				stub = candidate
				break
			}
		}
	}
	return dut, stub, nil
}

// candidates lists the connected devices satisfying any of the test's
// requirements for the role, in registry order.
func (r *HILResolver) candidates(devices []*devs.Device, tc *testplan.TestCase, role testplan.Role) []*devs.Device {
	var out []*devs.Device
	for _, req := range tc.SupportedDevices(role, r.Board) {
		for _, dev := range devices {
			if dev.Connected() && dev.SupportsBoard(req.Board, req.Version) {
				out = append(out, dev)
			}
		}
	}
	return out
}

// StaticResolver hands every test the same fixed ports, bypassing the
// registry. Used when the operator wires the boards directly.
type StaticResolver struct {
	DUTPort  string
	StubPort string
}

func (r *StaticResolver) Resolve(ctx context.Context, tc *testplan.TestCase) (*devs.Device, *devs.Device, error) {
	var dut, stub *devs.Device
	if r.DUTPort != "" {
		dut = &devs.Device{Name: "dut", Access: &devs.SerialAccess{Address: r.DUTPort}}
	}
	if r.StubPort != "" {
		stub = &devs.Device{Name: "stub", Access: &devs.SerialAccess{Address: r.StubPort}}
	}
	return dut, stub, nil
}
