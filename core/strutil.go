package core

import "fmt"

// sprintf is split out so targets without fmt support can replace it
func sprintf(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
