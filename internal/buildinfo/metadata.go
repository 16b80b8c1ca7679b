package buildinfo

import (
	"log/slog"
	"os/user"

	"github.com/roach88/critpath/internal/ir"
)

// Metadata keys of a BuildGraphInfo instant.
const (
	KeyUsername = "username"
	KeyClient   = "client"
	KeyOncall   = "oncall"
)

// Metadata is the invocation context recorded with a critical path.
type Metadata struct {
	Username string
	Client   string
	Oncall   string
}

// currentUsername is replaced in tests.
var currentUsername = func() string {
	u, err := user.Current()
	if err != nil {
		slog.Debug("cannot resolve invoking user", "error", err)
		return ""
	}
	return u.Username
}

// ResolveMetadata merges the invocation's settings with the build_start
// metadata. client and oncall come from configuration and flags and win
// over the event; the username falls back to the invoking OS user.
func ResolveMetadata(b ir.BuildStart, client, oncall string) Metadata {
	m := Metadata{Username: b.Username, Client: b.Client, Oncall: b.Oncall}
	if client != "" {
		m.Client = client
	}
	if oncall != "" {
		m.Oncall = oncall
	}
	if m.Username == "" {
		m.Username = currentUsername()
	}
	return m
}

// Map returns the metadata map. The username key is always present; client
// and oncall only when set.
func (m Metadata) Map() map[string]string {
	out := map[string]string{KeyUsername: m.Username}
	if m.Client != "" {
		out[KeyClient] = m.Client
	}
	if m.Oncall != "" {
		out[KeyOncall] = m.Oncall
	}
	return out
}

// MetadataFromMap is the inverse of Metadata.Map.
func MetadataFromMap(m map[string]string) Metadata {
	return Metadata{
		Username: m[KeyUsername],
		Client:   m[KeyClient],
		Oncall:   m[KeyOncall],
	}
}
