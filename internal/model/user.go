// Package model holds the messaging domain types shared by the client, the
// stores and the dev relay.
package model

import (
	"bytes"
	"encoding/json"
	"strings"
)

// User is a marketplace account as referenced by messaging. It is owned by the
// external auth service and never mutated here.
type User struct {
	ID           string `json:"_id"`
	FirstName    string `json:"firstName,omitempty"`
	LastName     string `json:"lastName,omitempty"`
	ProfileImage string `json:"profileImage,omitempty"`
}

// DisplayName joins first and last name, falling back to the id.
func (u User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.ID
	}
	return name
}

// UnmarshalJSON accepts either a populated user object or a bare id string.
func (u *User) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*u = User{ID: id}
		return nil
	}

	type plain User
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*u = User(p)
	return nil
}
