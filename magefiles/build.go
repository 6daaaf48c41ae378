//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Compiles the demo binary into bin/.
func (Build) Demo() error {
	if _, err := executeCmd("go", withArgs("build", "-o", "bin/prism", "."), withStream()); err != nil {
		return err
	}
	return nil
}

// Compiles the SPIR-V shader binaries the hardware target loads.
func (Build) Shaders() error {
	if _, err := executeCmd("glslc", withArgs("shaders/quad.vert", "-o", "shaders/quad.vert.spv"), withStream()); err != nil {
		return err
	}
	if _, err := executeCmd("glslc", withArgs("shaders/quad.frag", "-o", "shaders/quad.frag.spv"), withStream()); err != nil {
		return err
	}
	return nil
}
