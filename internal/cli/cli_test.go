package cli

import (
	"context"
	"flag"
	"testing"
)

func TestFilterFlag_Set(t *testing.T) {
	var f filterFlag

	if err := f.Set("storage-tier=standard"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := f.Set("volume-id=vol-1,vol-2"); err != nil {
		t.Fatalf("set: %v", err)
	}

	if got := f.filter["storage-tier"]; len(got) != 1 || got[0] != "standard" {
		t.Errorf("storage-tier: %v", got)
	}
	if got := f.filter["volume-id"]; len(got) != 2 || got[1] != "vol-2" {
		t.Errorf("volume-id: %v", got)
	}
}

func TestFilterFlag_SetInvalid(t *testing.T) {
	var f filterFlag

	for _, bad := range []string{"", "noequals", "=value", "name="} {
		if err := f.Set(bad); err == nil {
			t.Errorf("Set(%q): expected error", bad)
		}
	}
}

func TestFilterFlag_String(t *testing.T) {
	var f filterFlag
	if got := f.String(); got != "" {
		t.Errorf("empty flag: %q", got)
	}

	if err := f.Set("status=completed"); err != nil {
		t.Fatal(err)
	}
	if err := f.Set("storage-tier=standard"); err != nil {
		t.Fatal(err)
	}

	// Names render in sorted order.
	want := "status=completed storage-tier=standard"
	if got := f.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFilterFlag_AsFlagValue(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var f filterFlag
	fs.Var(&f, "filter", "")

	if err := fs.Parse([]string{"-filter", "status=completed", "-filter", "volume-id=vol-1"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(f.filter) != 2 {
		t.Errorf("filter: %v", f.filter)
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	if err := Run(context.Background(), []string{"bogus"}); err == nil {
		t.Error("expected error for unknown command")
	}
	if err := Run(context.Background(), nil); err == nil {
		t.Error("expected usage error for no arguments")
	}
}
