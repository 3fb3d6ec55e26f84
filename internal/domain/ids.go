// Package domain contains entity without logic, just meta-data
package domain

import "github.com/google/uuid"

type (
	// SessionID names one streamer/viewers pairing. Always generated
	// server-side; client-supplied ids are never honored.
	SessionID string

	// ViewerID names one viewer inside a session. Server-generated.
	ViewerID string

	// ConnID names one transport connection for logging.
	ConnID string
)

func NewSessionID() SessionID { return SessionID(uuid.NewString()) }

func NewViewerID() ViewerID { return ViewerID(uuid.NewString()) }

func NewConnID() ConnID { return ConnID(uuid.NewString()) }
