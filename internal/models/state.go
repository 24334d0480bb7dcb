package models

import "fmt"

// State is everything the tracker persists locally for one user.
type State struct {
	Connections []Connection `json:"connections"`
	Settings    Settings     `json:"settings"`

	// LastUpdated is the Unix millisecond time of the latest local mutation.
	LastUpdated int64 `json:"lastUpdated,omitempty"`
}

// NewState returns an empty state with default settings.
func NewState() *State {
	return &State{
		Connections: []Connection{},
		Settings:    DefaultSettings(),
	}
}

// Validate checks the settings and every connection, and rejects duplicate IDs.
func (s *State) Validate() error {
	if err := s.Settings.Validate(); err != nil {
		return err
	}
	seen := make(map[int64]bool, len(s.Connections))
	for i, c := range s.Connections {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("connection %d: %w", i, err)
		}
		if seen[c.ID] {
			return fmt.Errorf("%w: duplicate connection id %d", ErrValidation, c.ID)
		}
		seen[c.ID] = true
	}
	return nil
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	out := *s
	out.Connections = append([]Connection(nil), s.Connections...)
	if out.Connections == nil {
		out.Connections = []Connection{}
	}
	return &out
}
