package sculpt

// Capability is an axis of platform responsibility. A platform declares a
// Preference for every capability it can serve; the Manager arbitrates which
// registered platform is authoritative for each capability at any instant.
type Capability int

const (
	// CapConfiguration covers host configuration ownership and reloads.
	CapConfiguration Capability = iota

	// CapGameHooks covers tick and event hook installation. Exactly one
	// platform has game hooks enabled at a time.
	CapGameHooks

	// CapPermissions covers permission lookups.
	CapPermissions

	// CapUserCommands covers user command registration. The command manager
	// hook is forwarded to the platform holding this capability.
	CapUserCommands

	// CapWorldAccess covers block reads and writes. The world-access platform
	// supplies the pipeline's processor hooks and the relighter factory.
	CapWorldAccess

	// CapEntitySpawning covers entity creation and validity checks.
	CapEntitySpawning

	// capabilityCount is the total number of capabilities.
	capabilityCount
)

// Capabilities returns every capability in declaration order.
func Capabilities() []Capability {
	caps := make([]Capability, 0, capabilityCount)
	for c := Capability(0); c < capabilityCount; c++ {
		caps = append(caps, c)
	}
	return caps
}

// String returns the string representation of the capability.
func (c Capability) String() string {
	switch c {
	case CapConfiguration:
		return "Configuration"
	case CapGameHooks:
		return "GameHooks"
	case CapPermissions:
		return "Permissions"
	case CapUserCommands:
		return "UserCommands"
	case CapWorldAccess:
		return "WorldAccess"
	case CapEntitySpawning:
		return "EntitySpawning"
	default:
		return "Unknown"
	}
}

// Preference is the ordinal rank a platform declares for a capability.
// Higher ranks win arbitration; ties go to the earliest registration.
type Preference int

const (
	// PreferenceNone declares the platform cannot serve the capability.
	// A platform registered with PreferenceNone is never resolved for it.
	PreferenceNone Preference = iota

	// PreferenceNormal is the rank of a working default implementation.
	PreferenceNormal

	// PreferencePreferred marks the designated implementation. It outranks
	// every PreferenceNormal registration regardless of registration order.
	PreferencePreferred
)

// String returns the string representation of the preference.
func (p Preference) String() string {
	switch p {
	case PreferenceNone:
		return "None"
	case PreferenceNormal:
		return "Normal"
	case PreferencePreferred:
		return "Preferred"
	default:
		return "Unknown"
	}
}
