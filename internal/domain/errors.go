package domain

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrStreamerGone    = errors.New("streamer connection is gone")
	ErrRoleAssigned    = errors.New("role already assigned")
)
