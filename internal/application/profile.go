package application

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Profile is the candidate profile. Only the parts the workflow reads directly are typed,
// the full document is kept in Raw.
type Profile struct {
	Meta ProfileMeta    `mapstructure:"meta"`
	Raw  map[string]any `mapstructure:"-"`
}

type ProfileMeta struct {
	Location          string            `mapstructure:"location"`
	PostalCode        string            `mapstructure:"postal_code"`
	Contact           Contact           `mapstructure:"contact"`
	WorkAuthorization map[string]string `mapstructure:"work_authorization"`
}

type Contact struct {
	Phone string `mapstructure:"phone"`
	Email string `mapstructure:"email"`
}

// DecodeProfile converts a parsed profile document into a Profile.
func DecodeProfile(raw map[string]any) (*Profile, error) {
	profile := &Profile{Raw: raw}
	if raw == nil {
		profile.Raw = map[string]any{}
		return profile, nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           profile,
	})
	if err != nil {
		return nil, fmt.Errorf("create profile decoder: %w", err)
	}

	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}

	return profile, nil
}
