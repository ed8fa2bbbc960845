package vfs

// BackendTag names an adapter.
type BackendTag string

const (
	BackendLocal  BackendTag = "local"
	BackendRemote BackendTag = "remote"
)

func (b BackendTag) Valid() bool {
	return b == BackendLocal || b == BackendRemote
}

// ParseBackend accepts "local" or "remote"; anything else yields "".
func ParseBackend(s string) BackendTag {
	if t := BackendTag(s); t.Valid() {
		return t
	}
	return ""
}

// Environment exposes the runtime facts capability detection relies on.
type Environment interface {
	// SecureContext reports whether privileged local APIs may be used.
	SecureContext() bool
	// PickerAvailable reports whether a native directory picker exists.
	PickerAvailable() bool
	// UserActivation reports whether the current call stems from a user gesture.
	UserActivation() bool
}

// StaticEnvironment is a fixed Environment.
type StaticEnvironment struct {
	Secure     bool
	Picker     bool
	Activation bool
}

func (e StaticEnvironment) SecureContext() bool   { return e.Secure }
func (e StaticEnvironment) PickerAvailable() bool { return e.Picker }
func (e StaticEnvironment) UserActivation() bool  { return e.Activation }

// HostEnvironment describes this process. Every call counts as user
// initiated; the picker is available when one is configured.
type HostEnvironment struct {
	Picker DirectoryPicker
}

func (e HostEnvironment) SecureContext() bool   { return true }
func (e HostEnvironment) PickerAvailable() bool { return e.Picker != nil }
func (e HostEnvironment) UserActivation() bool  { return true }

// Detect picks the eligible backend. It never fails: Remote is the universal
// fallback because it only needs HTTP reachability.
func Detect(env Environment, override BackendTag) BackendTag {
	if override.Valid() {
		return override
	}
	if env == nil {
		return BackendRemote
	}
	if !env.SecureContext() && !env.PickerAvailable() {
		return BackendRemote
	}
	if !env.PickerAvailable() {
		return BackendRemote
	}
	return BackendLocal
}

// Fallback returns the other backend in the chain.
func Fallback(tag BackendTag) BackendTag {
	if tag == BackendLocal {
		return BackendRemote
	}
	return BackendLocal
}
