package model

import (
	"fmt"
	"regexp"
)

// Mode selects which targets an execution runs against.
type Mode string

// Execution modes.
const (
	ModeAll    Mode = "all"
	ModeSingle Mode = "single"
)

// TargetName identifies one configured database target. Values are only
// produced by ParseTargetName, so every TargetName is a valid map key in a
// Response.
type TargetName string

const maxTargetNameLen = 63

var targetNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// reservedTargetNames collide with the top-level keys of a serialized Response.
var reservedTargetNames = map[string]bool{
	"id":      true,
	"success": true,
}

// ParseTargetName validates s and returns it as a TargetName.
func ParseTargetName(s string) (TargetName, error) {
	if len(s) == 0 || len(s) > maxTargetNameLen {
		return "", fmt.Errorf("target name %q: length must be 1-%d", s, maxTargetNameLen)
	}
	if !targetNamePattern.MatchString(s) {
		return "", fmt.Errorf("target name %q: only lowercase letters, digits, '_' and '-' are allowed", s)
	}
	if reservedTargetNames[s] {
		return "", fmt.Errorf("target name %q is reserved", s)
	}
	return TargetName(s), nil
}

// ParseMode validates a caller-supplied mode. An empty string means ModeAll.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeAll:
		return ModeAll, nil
	case ModeSingle:
		return ModeSingle, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}
