//go:build !darwin

package sysinfo

import "context"

// Only macOS exposes GPU and Neural Engine core counts.
func (d *Detector) detectPlatform(context.Context, *Descriptor) {}
