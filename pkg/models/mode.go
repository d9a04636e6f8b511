package models

import (
	"fmt"
	"strings"
)

// Mode is the flight phase of a simulated drone.
type Mode int

const (
	ModeIdle Mode = iota
	ModeTakeoff
	ModeFlying
	ModeDelivering
	ModeReturning
	ModeLanding
	ModeEmergency
)

var modeNames = [...]string{
	ModeIdle:       "idle",
	ModeTakeoff:    "takeoff",
	ModeFlying:     "flying",
	ModeDelivering: "delivering",
	ModeReturning:  "returning",
	ModeLanding:    "landing",
	ModeEmergency:  "emergency",
}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modeNames[m]
}

// Valid reports whether m is one of the declared modes.
func (m Mode) Valid() bool {
	return m >= ModeIdle && m <= ModeEmergency
}

// Airborne reports whether the drone is off the ground in this mode.
func (m Mode) Airborne() bool {
	return m != ModeIdle
}

// Descending reports whether the mode ends with the drone on the ground.
func (m Mode) Descending() bool {
	return m == ModeLanding || m == ModeEmergency
}

// ParseMode converts a mode name into a Mode.
func ParseMode(s string) (Mode, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range modeNames {
		if n == name {
			return Mode(i), nil
		}
	}
	return ModeIdle, fmt.Errorf("unknown flight mode %q", s)
}

func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid flight mode %d", int(m))
	}
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
