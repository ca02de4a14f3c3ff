//go:build !windows

package shell

// Host returns the dialect of the platform the binary was built for.
func Host() Dialect { return POSIX }

// Command returns the argv that runs commandLine through the dialect's shell.
// The absolute shell path avoids a PATH lookup when the child env is replaced.
func Command(d Dialect, commandLine string) []string {
	if d == Windows {
		return []string{"cmd", "/c", commandLine}
	}
	return []string{"/bin/sh", "-c", commandLine}
}
