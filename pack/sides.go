package pack

import "fmt"

// SideRequirement says whether a mod is needed on a given side. The values
// form a total order Unsupported < Optional < Required; Join and Cap are the
// lattice join and meet, which keeps side merging commutative, associative
// and idempotent.
type SideRequirement int

const (
	Unsupported SideRequirement = iota
	Optional
	Required
)

func (r SideRequirement) String() string {
	switch r {
	case Unsupported:
		return "unsupported"
	case Optional:
		return "optional"
	case Required:
		return "required"
	}
	return fmt.Sprintf("SideRequirement(%d)", int(r))
}

func ParseSideRequirement(s string) (SideRequirement, error) {
	switch s {
	case "unsupported":
		return Unsupported, nil
	case "optional":
		return Optional, nil
	case "required":
		return Required, nil
	}
	return Unsupported, fmt.Errorf("unknown side requirement %q", s)
}

func (r SideRequirement) Join(o SideRequirement) SideRequirement {
	if o > r {
		return o
	}
	return r
}

func (r SideRequirement) Cap(o SideRequirement) SideRequirement {
	if o < r {
		return o
	}
	return r
}

// Sides carries the client and server requirements of one mod. The two
// components merge independently.
type Sides struct {
	Client SideRequirement
	Server SideRequirement
}

var BothRequired = Sides{Client: Required, Server: Required}

func (s Sides) Join(o Sides) Sides {
	return Sides{
		Client: s.Client.Join(o.Client),
		Server: s.Server.Join(o.Server),
	}
}

func (s Sides) Cap(o Sides) Sides {
	return Sides{
		Client: s.Client.Cap(o.Client),
		Server: s.Server.Cap(o.Server),
	}
}

// On reports whether the mod belongs in an output for the given side.
// Unsupported mods are omitted entirely, not shipped as disabled.
func (s Sides) On(side Side) bool {
	switch side {
	case ClientSide:
		return s.Client != Unsupported
	case ServerSide:
		return s.Server != Unsupported
	}
	return false
}

// Side names an output target side.
type Side int

const (
	ClientSide Side = iota
	ServerSide
)

func (s Side) String() string {
	if s == ServerSide {
		return "server"
	}
	return "client"
}
