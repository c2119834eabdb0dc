package planrunner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mpy-hil/planrunner/pkg/devs"
	"github.com/mpy-hil/planrunner/pkg/testplan"
	"github.com/mpy-hil/planrunner/providers/uhubctl"
)

const resolverDevsYAML = `- name: ble-1
  uid: UID-BLE-1
  features: [CY8CPROTO-063-BLE]
- name: ble-2
  uid: UID-BLE-2
  features: [CY8CPROTO-063-BLE]
- name: wifi-1
  uid: UID-WIFI-1
  features: [CY8CPROTO-062-4343W]
`

type silentRunner struct{}

func (silentRunner) Run(ctx context.Context, args []string) (string, string, error) {
	return "", "No compatible devices detected!", os.ErrNotExist
}

func newHILResolver(t *testing.T, connected map[string]string) *HILResolver {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devs.yml")
	if err := os.WriteFile(path, []byte(resolverDevsYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	ctl := uhubctl.NewControllerWithRunner(silentRunner{})
	registry := devs.NewRegistryWithLister(ctl, func() ([]devs.SerialPort, error) {
		var ports []devs.SerialPort
		for uid, addr := range connected {
			ports = append(ports, devs.SerialPort{Device: addr, SerialNumber: uid})
		}
		return ports, nil
	})
	return &HILResolver{Registry: registry, DevsFile: path, Board: "CY8CPROTO-063-BLE"}
}

func TestHILResolverSingle(t *testing.T) {
	r := newHILResolver(t, map[string]string{"UID-BLE-1": "/dev/ttyACM0"})
	tc := &testplan.TestCase{
		Name: "t", Type: testplan.TypeSingle,
		DUTDevices: []testplan.DeviceRequirement{{Board: "CY8CPROTO-063-BLE"}},
	}
	dut, stub, err := r.Resolve(context.Background(), tc)
	if err != nil {
		t.Fatal(err)
	}
	if dut == nil || dut.Access.Address != "/dev/ttyACM0" {
		t.Fatalf("dut = %+v", dut)
	}
	if stub != nil {
		t.Fatalf("single test must not resolve a stub, got %+v", stub)
	}
}

func TestHILResolverNoDeviceConnected(t *testing.T) {
	r := newHILResolver(t, nil)
	tc := &testplan.TestCase{
		Name: "t", Type: testplan.TypeSingle,
		DUTDevices: []testplan.DeviceRequirement{{Board: "CY8CPROTO-063-BLE"}},
	}
	dut, _, err := r.Resolve(context.Background(), tc)
	if err != nil {
		t.Fatal(err)
	}
	if dut != nil {
		t.Fatalf("no connected board must yield nil dut, got %+v", dut)
	}
}

func TestHILResolverStubIsDifferentDevice(t *testing.T) {
	r := newHILResolver(t, map[string]string{
		"UID-BLE-1": "/dev/ttyACM0",
		"UID-BLE-2": "/dev/ttyACM1",
	})
	tc := &testplan.TestCase{
		Name: "t", Type: testplan.TypeMulti,
		DUTDevices: []testplan.DeviceRequirement{{Board: "CY8CPROTO-063-BLE"}},
	}
	dut, stub, err := r.Resolve(context.Background(), tc)
	if err != nil {
		t.Fatal(err)
	}
	if dut == nil || stub == nil {
		t.Fatalf("dut=%v stub=%v", dut, stub)
	}
	if dut.UID == stub.UID {
		t.Fatal("stub must be a different physical device than the dut")
	}
}

func TestHILResolverSingleBoardCannotServeMulti(t *testing.T) {
	r := newHILResolver(t, map[string]string{"UID-BLE-1": "/dev/ttyACM0"})
	tc := &testplan.TestCase{
		Name: "t", Type: testplan.TypeMulti,
		DUTDevices: []testplan.DeviceRequirement{{Board: "CY8CPROTO-063-BLE"}},
	}
	dut, stub, err := r.Resolve(context.Background(), tc)
	if err != nil {
		t.Fatal(err)
	}
	if dut == nil || stub != nil {
		t.Fatalf("one board cannot fill both slots: dut=%v stub=%v", dut, stub)
	}
}

func TestHILResolverMissingDevsFile(t *testing.T) {
	r := newHILResolver(t, nil)
	r.DevsFile = filepath.Join(t.TempDir(), "absent.yml")
	tc := &testplan.TestCase{Name: "t", Type: testplan.TypeSingle}
	if _, _, err := r.Resolve(context.Background(), tc); err == nil {
		t.Fatal("unreadable devices file must be an error")
	}
}

func TestStaticResolver(t *testing.T) {
	r := &StaticResolver{DUTPort: "/dev/ttyACM0", StubPort: "/dev/ttyACM1"}
	dut, stub, err := r.Resolve(context.Background(), &testplan.TestCase{Name: "t"})
	if err != nil {
		t.Fatal(err)
	}
	if dut.Access.Address != "/dev/ttyACM0" || stub.Access.Address != "/dev/ttyACM1" {
		t.Fatalf("dut=%v stub=%v", dut.Access, stub.Access)
	}
	if dut.Switch != nil {
		t.Fatal("static ports carry no power switch")
	}
}
