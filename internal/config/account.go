package config

import "errors"

// ErrAccountNotFound is returned by GetAccount/DeleteAccount when name
// has no matching saved account.
var ErrAccountNotFound = errors.New("config: account not found")

// Account represents a saved MUD account
type Account struct {
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"-"` // never persisted; authentication is out of scope
}
