package main

import (
	core "github.com/tavernkit/core"
)

func versionString() string {
	return core.GetVersion().String()
}
