package emulatorsurface

import "fmt"

func errInvalidButton(color string) error {
	return fmt.Errorf("unknown button %q", color)
}

func errSwitchRange(v int) error {
	return fmt.Errorf("switch value %d out of range [0,255]", v)
}
