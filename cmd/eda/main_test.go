package main

import "testing"

func TestMainWiring(t *testing.T) {
	origSetVersion := setVersion
	origExecute := executeCmd
	t.Cleanup(func() {
		setVersion = origSetVersion
		executeCmd = origExecute
	})

	calls := struct {
		version bool
		exec    bool
	}{}

	setVersion = func(v string) {
		calls.version = true
		if v == "" {
			t.Fatalf("expected version to be set")
		}
	}
	executeCmd = func() {
		calls.exec = true
	}

	main()

	if !calls.version || !calls.exec {
		t.Fatalf("expected all wiring calls, got %+v", calls)
	}
}
