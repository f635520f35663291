package main

import (
	"fmt"
	"plugin"

	reactor "github.com/kayserve/reactor"
)

// loadPluginHandler opens path as a Go plugin and looks up its exported
// NewHandler symbol, matching the original runtime's dlopen+dlsym("load")
// entrypoint convention (original_source/src/80s/80s_common.c's
// s80_popen/module loading), adapted to Go's plugin package.
func loadPluginHandler(path, nodeName string) (reactor.Handler, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reactord: open plugin: %w", err)
	}
	sym, err := p.Lookup("NewHandler")
	if err != nil {
		return nil, fmt.Errorf("reactord: lookup NewHandler: %w", err)
	}
	factory, ok := sym.(func(string) reactor.Handler)
	if !ok {
		return nil, fmt.Errorf("reactord: NewHandler has unexpected signature in %s", path)
	}
	return factory(nodeName), nil
}
