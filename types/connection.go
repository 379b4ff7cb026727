package types

import "fmt"

// ConnectionState is the process wide ledger connectivity mode.
type ConnectionState int

const (
	Uninitialized ConnectionState = iota
	DemoMode
	LiveReadOnly
	LiveSigning
)

func (s ConnectionState) String() string {
	switch s {
	case DemoMode:
		return "demo"
	case LiveReadOnly:
		return "live-readonly"
	case LiveSigning:
		return "live-signing"
	default:
		return "uninitialized"
	}
}

// IsLive reports whether the state is backed by a real ledger.
func (s ConnectionState) IsLive() bool {
	return s == LiveReadOnly || s == LiveSigning
}

// MarshalText implements encoding.TextMarshaler.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ConnectionState) UnmarshalText(text []byte) error {
	for _, st := range []ConnectionState{Uninitialized, DemoMode, LiveReadOnly, LiveSigning} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown connection state %q", text)
}
