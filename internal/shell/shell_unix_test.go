//go:build !windows

package shell

import "testing"

func TestHost_POSIX(t *testing.T) {
	if Host() != POSIX {
		t.Fatalf("Host() = %s, want posix", Host())
	}
}

func TestCommand_Unix(t *testing.T) {
	argv := Command(POSIX, "'echo' 'hi'")
	if len(argv) != 3 || argv[0] != "/bin/sh" || argv[1] != "-c" || argv[2] != "'echo' 'hi'" {
		t.Fatalf("unexpected argv: %#v", argv)
	}
	argv = Command(Windows, `"dir"`)
	if argv[0] != "cmd" || argv[1] != "/c" {
		t.Fatalf("unexpected argv: %#v", argv)
	}
}
