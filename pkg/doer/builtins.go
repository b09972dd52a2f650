package doer

import (
	"github.com/mattferris/statecraft/pkg/doer/cmd"
	"github.com/mattferris/statecraft/pkg/doer/file"
	"github.com/mattferris/statecraft/pkg/doer/pkgmgr"
	"github.com/mattferris/statecraft/pkg/doer/service"
)

// RegisterBuiltins installs the reference doer modules (§1 "Reference
// doer modules"): cmd.run, file.managed/recurse, the virtualized
// pkg.installed/removed (apt + yum), and service.running/dead with its
// restart reaction.
func RegisterBuiltins(r *Registry) {
	r.Register(Registration{Module: "cmd", Doer: cmd.New()})
	r.Register(Registration{Module: "file", Doer: file.New()})

	r.Register(Registration{Module: "pkg", Doer: pkgmgr.NewAPT(), Virtualize: pkgmgr.VirtualizeAPT})
	r.Register(Registration{Module: "pkg", Doer: pkgmgr.NewYum(), Virtualize: pkgmgr.VirtualizeYum})

	svc := service.New()
	r.Register(Registration{Module: "service", Doer: svc, Reaction: svc.Reaction})
}
