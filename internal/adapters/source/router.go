package source

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/artifactrepo/internal/domain/artifact"
	"github.com/felixgeelhaar/artifactrepo/internal/ports"
)

// Router picks the transport for a request: SSH when the request names a
// web application host, the local filesystem otherwise.
type Router struct {
	local  ports.ScriptFetcher
	remote func(host, user string) ports.ScriptFetcher
}

// NewRouter creates a router using Local and SSH with cfg.
func NewRouter(cfg SSHConfig) *Router {
	return &Router{
		local: NewLocal(),
		remote: func(host, user string) ports.ScriptFetcher {
			return NewSSH(host, user, cfg)
		},
	}
}

// NewRouterWith creates a router with explicit transports.
func NewRouterWith(local ports.ScriptFetcher, remote func(host, user string) ports.ScriptFetcher) *Router {
	return &Router{local: local, remote: remote}
}

// Fetch retrieves the install script named by req into target.
func (r *Router) Fetch(ctx context.Context, req *artifact.Request, target string) error {
	if req == nil || req.ScriptInstallPath == "" {
		return errors.New("request names no install script")
	}
	if req.Remote() {
		return r.remote(req.SSHHost, req.SSHUser).Fetch(ctx, req.ScriptInstallPath, target)
	}
	return r.local.Fetch(ctx, req.ScriptInstallPath, target)
}
