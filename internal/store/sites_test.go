package store

import (
	"context"
	"testing"

	"github.com/tbechet/safestep/internal/db"
)

func TestCreateAndGetSite(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	site, err := CreateSite(ctx, database, "Tower Block A", "Porto", "Rua Central 12")
	if err != nil {
		t.Fatalf("CreateSite: %v", err)
	}
	if site.Name != "Tower Block A" || site.City != "Porto" {
		t.Errorf("unexpected site: %+v", site)
	}
}

func TestListSitesForUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	assigned, _ := CreateSite(ctx, database, "Assigned", "Lisbon", "")
	CreateSite(ctx, database, "Other", "Faro", "")
	AddSiteMember(ctx, database, assigned.ID, 1)

	sites, err := ListSitesForUser(ctx, database, 1, false)
	if err != nil {
		t.Fatalf("ListSitesForUser: %v", err)
	}
	if len(sites) != 1 || sites[0].Name != "Assigned" {
		t.Errorf("expected only the assigned site, got %+v", sites)
	}

	all, _ := ListSitesForUser(ctx, database, 1, true)
	if len(all) != 2 {
		t.Errorf("expected admin to see 2 sites, got %d", len(all))
	}
}
