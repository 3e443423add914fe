package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/signalsfoundry/membership-globe/internal/logging"
	"github.com/signalsfoundry/membership-globe/kb"
)

func runDump(t *testing.T, opts options) map[string]any {
	t.Helper()
	if opts.maxActive == 0 {
		opts.maxActive = kb.DefaultMaxActive
	}
	var buf bytes.Buffer
	if err := dump(context.Background(), &buf, opts, logging.Noop()); err != nil {
		t.Fatalf("dump(%+v): %v", opts, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	return doc
}

func TestDumpLinks(t *testing.T) {
	doc := runDump(t, options{view: "links", orgs: []string{"g7", "nato"}})

	links, ok := doc["links"].([]any)
	if !ok || len(links) == 0 {
		t.Fatalf("links = %v, want a non-empty list", doc["links"])
	}
	if total := doc["total"].(float64); int(total) != len(links) {
		t.Fatalf("total = %v, want %d", total, len(links))
	}
	if shared := doc["shared"].(float64); shared == 0 {
		t.Fatalf("g7 and nato share members, want shared links")
	}
}

func TestDumpTreeOfInactiveOrganization(t *testing.T) {
	doc := runDump(t, options{view: "tree", target: "G7", pretty: true})

	if doc["organization"] != "g7" {
		t.Fatalf("organization = %v, want g7", doc["organization"])
	}
	if walk := doc["walk"].([]any); len(walk) != 8 {
		t.Fatalf("walk has %d steps, want 8", len(walk))
	}
}

func TestDumpCountry(t *testing.T) {
	doc := runDump(t, options{view: "country", target: "jp"})
	if doc["name"] != "Japan" {
		t.Fatalf("name = %v, want Japan", doc["name"])
	}
}

func TestDumpErrors(t *testing.T) {
	tests := []struct {
		name  string
		opts  options
		usage bool
	}{
		{name: "unknown view", opts: options{view: "globe"}, usage: true},
		{name: "tree without target", opts: options{view: "tree"}, usage: true},
		{name: "country without target", opts: options{view: "country"}, usage: true},
		{name: "selection over limit", opts: options{view: "links", orgs: []string{"eu", "un", "g7", "coe"}}},
		{name: "unknown organization", opts: options{view: "org", target: "efta"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.opts.maxActive = kb.DefaultMaxActive
			var buf bytes.Buffer
			err := dump(context.Background(), &buf, tc.opts, logging.Noop())
			if err == nil {
				t.Fatalf("dump(%+v): want error", tc.opts)
			}
			if got := errors.Is(err, errUsage); got != tc.usage {
				t.Fatalf("errors.Is(err, errUsage) = %v, want %v (err=%v)", got, tc.usage, err)
			}
		})
	}
}

func TestSplitOrgs(t *testing.T) {
	got := splitOrgs(" eu, ,nato,")
	if len(got) != 2 || got[0] != "eu" || got[1] != "nato" {
		t.Fatalf("splitOrgs = %q", got)
	}
	if splitOrgs("") != nil {
		t.Fatalf("splitOrgs(\"\") should be nil")
	}
}
