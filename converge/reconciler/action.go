package reconciler

import (
	"fmt"

	"github.com/steelcutops/converge/converge/descriptor"
	"github.com/steelcutops/converge/converge/prober"
)

type Kind string

const (
	Install Kind = "Install"
	Remove  Kind = "Remove"
	Upgrade Kind = "Upgrade"
	NoOp    Kind = "NoOp"
)

// Action is one planned step for one descriptor.
type Action struct {
	Kind       Kind
	Descriptor descriptor.Descriptor
	// Current is the probed state; nil when the probe failed.
	Current *prober.InstalledState
	Reason  string
	// Err is the probe failure, if any. The executor records such actions
	// as failed without touching the host.
	Err error
}

func (a Action) Name() string { return a.Descriptor.Name() }

func (a Action) String() string {
	return fmt.Sprintf("%s %s", a.Kind, a.Descriptor.Key())
}
