//go:build perf || perf_large

package perf

import (
	"context"
	"fmt"
	"testing"

	"github.com/signalsfoundry/membership-globe/core"
	"github.com/signalsfoundry/membership-globe/internal/api"
	"github.com/signalsfoundry/membership-globe/internal/logging"
	"github.com/signalsfoundry/membership-globe/internal/scene"
	"github.com/signalsfoundry/membership-globe/kb"
	"github.com/signalsfoundry/membership-globe/model"
)

type perfConfig struct {
	Countries int
	// Every Stride-th country joins the sparse organizations.
	Stride int
}

// syntheticCountries spreads n countries over a lat/lon grid. All of them
// belong to the UN; OECD and G7 take every stride-th and 2*stride-th one.
func syntheticCountries(n, stride int) []model.CountryRecord {
	out := make([]model.CountryRecord, n)
	cols := 72
	for i := range out {
		lat := -80 + 160*float64(i/cols)/float64(n/cols+1)
		lon := -180 + 360*float64(i%cols)/float64(cols)
		out[i] = model.CountryRecord{
			Code:      fmt.Sprintf("C%05d", i),
			Name:      fmt.Sprintf("Country %d", i),
			Latitude:  lat,
			Longitude: lon,
			Memberships: map[model.OrganizationID]bool{
				model.OrgUN:   true,
				model.OrgOECD: i%stride == 0,
				model.OrgG7:   i%(2*stride) == 0,
			},
		}
	}
	return out
}

func newStore(b *testing.B, cfg perfConfig) *kb.KnowledgeBase {
	b.Helper()
	store := kb.NewKnowledgeBase()
	for _, id := range []model.OrganizationID{model.OrgUN, model.OrgOECD, model.OrgG7} {
		store.PutOrganization(model.Organization{ID: id, Name: string(id)})
	}
	if err := store.AddCountries(syntheticCountries(cfg.Countries, cfg.Stride)); err != nil {
		b.Fatalf("AddCountries: %v", err)
	}
	return store
}

func benchmarkTree(b *testing.B, cfg perfConfig) {
	params := core.DefaultProjectionParams()
	idx := core.BuildMembershipIndex(syntheticCountries(cfg.Countries, cfg.Stride), params)
	points := idx.Spherical(model.OrgUN)
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := core.BuildShortestPathTree(points); err != nil {
			b.Fatalf("BuildShortestPathTree: %v", err)
		}
	}
}

func benchmarkSelection(b *testing.B, cfg perfConfig) {
	ctx := context.Background()
	store := newStore(b, cfg)
	st := scene.NewState(store)
	if err := st.Watch(ctx); err != nil {
		b.Fatalf("Watch: %v", err)
	}
	defer st.Close()
	svc := api.NewService(store, st, logging.Noop())

	selections := [][]string{{"un", "oecd"}, {"oecd", "g7"}, {"g7", "un", "oecd"}}
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		req, err := api.NewSelectionRequest(selections[i%len(selections)]...)
		if err != nil {
			b.Fatalf("NewSelectionRequest: %v", err)
		}
		if _, err := svc.SetActiveOrganizations(ctx, req); err != nil {
			b.Fatalf("SetActiveOrganizations: %v", err)
		}
	}
}
