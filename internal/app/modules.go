package app

import (
	"github.com/vk/rayflow/internal/registry"
	"github.com/vk/rayflow/modules/exec"
	"github.com/vk/rayflow/modules/print"
)

// coreModules is the default handler set wired into an App when the caller
// does not supply its own (tests register canned handlers instead).
var coreModules = []registry.Module{
	&exec.Module{},
	&print.Module{},
}
