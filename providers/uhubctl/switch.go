package uhubctl

import "context"

// Switch is the power-switch handle of one device: a hub location plus the
// port the device hangs off. Port 0 addresses all ports of the hub.
type Switch struct {
	Hub  string
	Port int

	ctl *Controller
}

// NewSwitch binds a hub/port address to a controller.
func NewSwitch(ctl *Controller, hub string, port int) *Switch {
	return &Switch{Hub: hub, Port: port, ctl: ctl}
}

// SwitchFromUID locates the switch path of the device whose description
// contains uid. It returns nil when the device is not on any switchable
// port, which is a normal condition for non-switched setups.
func SwitchFromUID(ctx context.Context, ctl *Controller, uid string) *Switch {
	hp, ok := ctl.GetHubPortByDesc(ctx, uid)
	if !ok {
		return nil
	}
	return NewSwitch(ctl, hp.Hub, hp.Port)
}

func (s *Switch) On(ctx context.Context) {
	s.ctl.RunAction(ctx, ActionOn, s.Hub, s.Port)
}

func (s *Switch) Off(ctx context.Context) {
	s.ctl.RunAction(ctx, ActionOff, s.Hub, s.Port)
}

// Reset power-cycles the port.
func (s *Switch) Reset(ctx context.Context) {
	s.ctl.RunAction(ctx, ActionCycle, s.Hub, s.Port)
}

func (s *Switch) Status(ctx context.Context) Status {
	return s.ctl.GetStatus(ctx, s.Hub, s.Port)
}

// ResetAll power-cycles every hub uhubctl can see, whole hub at a time.
// Daisy-chained and USB 3.0 duality paths may cycle the same physical port
// more than once; the scan surfaces the duplicates and no dedup is applied.
func ResetAll(ctx context.Context, ctl *Controller) {
	seen := map[string]struct{}{}
	for _, hp := range ctl.ScanHubsPorts(ctx) {
		if _, done := seen[hp.Hub]; done {
			continue
		}
		seen[hp.Hub] = struct{}{}
		ctl.RunAction(ctx, ActionCycle, hp.Hub, 0)
	}
}
