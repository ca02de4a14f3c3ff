//go:build windows

package shell

// Host returns the dialect of the platform the binary was built for.
func Host() Dialect { return Windows }

// Command returns the argv that runs commandLine through the dialect's shell.
func Command(d Dialect, commandLine string) []string {
	if d == POSIX {
		return []string{"sh", "-c", commandLine}
	}
	return []string{"cmd", "/c", commandLine}
}
