package travel

import (
	"fmt"
	"strings"
	"time"

	"ontime/internal/geo"
)

// DefaultThresholdKm is the classical travel-distance concession.
const DefaultThresholdKm = 88.7

// Override is the user's manual travel-mode switch.
type Override int

const (
	OverrideAuto Override = iota
	OverrideForceOn
	OverrideForceOff
)

func (o Override) String() string {
	switch o {
	case OverrideAuto:
		return "auto"
	case OverrideForceOn:
		return "on"
	case OverrideForceOff:
		return "off"
	default:
		return fmt.Sprintf("override(%d)", int(o))
	}
}

func ParseOverride(s string) (Override, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return OverrideAuto, nil
	case "on", "force_on", "forceon":
		return OverrideForceOn, nil
	case "off", "force_off", "forceoff":
		return OverrideForceOff, nil
	default:
		return 0, fmt.Errorf("unknown travel override %q", s)
	}
}

// HomeBase is the user-declared reference location. Replaced wholesale,
// never partially mutated.
type HomeBase struct {
	Coordinates geo.Coordinates
	Name        string
}

// Settings is the persisted travel configuration.
//
// Invariant: AutoConfirmed is only meaningful while Override == OverrideAuto;
// the tracker clears it when the user returns within threshold distance of
// home or clears the home base.
type Settings struct {
	Enabled             bool
	HomeBase            *HomeBase
	Override            Override
	DistanceThresholdKm float64
	CombineDhuhrAsr     bool
	CombineMaghribIsha  bool
	MaxTravelDays       int // 0 = unlimited
	TravelStartDate     *time.Time
	AutoConfirmed       bool
}

func (s Settings) withDefaults() Settings {
	if s.DistanceThresholdKm <= 0 {
		s.DistanceThresholdKm = DefaultThresholdKm
	}
	return s
}

// State is the derived position in the travel state machine. It is
// recomputed on every evaluation, never stored.
type State int

const (
	StateOff State = iota
	StateForcedOff
	StateForcedOn
	StateMonitoring
	StatePendingConfirmation
	StateConfirmedTraveling
	StateExpiredByDuration
)

func (s State) String() string {
	switch s {
	case StateOff:
		return "off"
	case StateForcedOff:
		return "forced_off"
	case StateForcedOn:
		return "forced_on"
	case StateMonitoring:
		return "monitoring"
	case StatePendingConfirmation:
		return "pending_confirmation"
	case StateConfirmedTraveling:
		return "confirmed_traveling"
	case StateExpiredByDuration:
		return "expired_by_duration"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status is the authoritative derived travel output. Always replaced, never
// mutated in place.
type Status struct {
	State              State
	IsTraveling        bool
	TravelPending      bool
	DistanceFromHomeKm *float64
	IsAutoDetected     bool
	ShortenDhuhr       bool
	ShortenAsr         bool
	ShortenIsha        bool
	CombineDhuhrAsr    bool
	CombineMaghribIsha bool
}

// Session is process-lifetime-only state. It is deliberately not part of
// Settings so it never reaches the persisted blob.
type Session struct {
	Dismissed bool
}
