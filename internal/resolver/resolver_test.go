package resolver

import (
	"errors"
	"reflect"
	"sort"
	"testing"

	"github.com/tinytelemetry/zquery/internal/filter"
	"github.com/tinytelemetry/zquery/internal/inventory"
	"github.com/tinytelemetry/zquery/internal/model"
)

func testInventory(t *testing.T) *inventory.Snapshot {
	t.Helper()
	snap, err := inventory.New(
		[]model.Group{
			{ID: "1", Name: "Servers"},
			{ID: "2", Name: "Databases"},
			{ID: "3", Name: "Staging"},
		},
		[]model.Host{
			{ID: "10", Name: "web1", Groups: []string{"1"}},
			{ID: "11", Name: "web2", Groups: []string{"1", "3"}},
			{ID: "12", Name: "web3", Groups: []string{"3"}},
			{ID: "13", Name: "db2", Groups: []string{"2"}},
		},
		[]model.Application{
			{ID: "100", Name: "CPU", Items: []string{"1000", "1001"}},
			{ID: "101", Name: "Memory", Items: []string{"1002", "1004"}},
			{ID: "102", Name: "CPU", Items: []string{"1003"}},
		},
		[]model.Item{
			{ID: "1000", Name: "cpu load", HostID: "10", Applications: []string{"100"}},
			{ID: "1001", Name: "cpu idle", HostID: "10", Applications: []string{"100"}},
			{ID: "1002", Name: "free memory", HostID: "10", Applications: []string{"101"}},
			{ID: "1003", Name: "cpu load", HostID: "11", Applications: []string{"102"}},
			{ID: "1004", Name: "free memory", HostID: "11", Applications: []string{"101"}},
			{ID: "1005", Name: "cpu load", HostID: "12"},
			{ID: "1006", Name: "cpu load", HostID: "13"},
			{ID: "1007", Name: "cpu orphan", HostID: "99"},
		},
	)
	if err != nil {
		t.Fatalf("inventory.New: %v", err)
	}
	return snap
}

func resolve(t *testing.T, inv model.Inventory, target model.Target) []model.ResolvedItem {
	t.Helper()
	got, err := ResolveTarget(target, inv)
	if err != nil {
		t.Fatalf("ResolveTarget(%+v): %v", target, err)
	}
	if got == nil {
		t.Fatalf("ResolveTarget(%+v) returned nil slice", target)
	}
	return got
}

func itemIDs(items []model.ResolvedItem) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

func TestResolve_GroupLiteralHostPattern(t *testing.T) {
	t.Parallel()
	inv := testInventory(t)

	got := resolve(t, inv, model.Target{Group: "Servers", Host: "/web.*/", Application: "", Item: "/cpu/"})

	want := []string{"1000", "1001", "1003"}
	if ids := itemIDs(got); !reflect.DeepEqual(ids, want) {
		t.Fatalf("items = %v, want %v", ids, want)
	}
	wantHosts := map[string]string{"1000": "web1", "1001": "web1", "1003": "web2"}
	for _, it := range got {
		if it.HostName != wantHosts[it.ID] {
			t.Errorf("item %s host = %q, want %q", it.ID, it.HostName, wantHosts[it.ID])
		}
	}
}

func TestResolve_HostLiteralNoMatch(t *testing.T) {
	t.Parallel()
	inv := testInventory(t)

	for _, target := range []model.Target{
		{Group: "Servers", Host: "db1", Item: "/cpu/"},
		{Group: "/.*/", Host: "db1", Application: "CPU", Item: "cpu load"},
		{Group: "", Host: "db1", Application: "/.*/", Item: "/.*/"},
	} {
		if got := resolve(t, inv, target); len(got) != 0 {
			t.Errorf("ResolveTarget(%+v) = %v, want empty", target, itemIDs(got))
		}
	}
}

func TestResolve_GroupLiteralNoMatch(t *testing.T) {
	t.Parallel()
	inv := testInventory(t)

	got := resolve(t, inv, model.Target{Group: "Nope", Host: "/.*/", Item: "/.*/"})
	if len(got) != 0 {
		t.Errorf("items = %v, want empty", itemIDs(got))
	}
}

func TestResolve_GroupPattern(t *testing.T) {
	t.Parallel()
	inv := testInventory(t)

	got := resolve(t, inv, model.Target{Group: "/^(Servers|Staging)$/", Host: "/web/", Item: "/load/"})
	want := []string{"1000", "1003", "1005"}
	if ids := itemIDs(got); !reflect.DeepEqual(ids, want) {
		t.Errorf("items = %v, want %v", ids, want)
	}
}

func TestResolve_HostLiteralBypassesGroups(t *testing.T) {
	t.Parallel()
	inv := testInventory(t)

	got := resolve(t, inv, model.Target{Group: "Nope", Host: "web3", Item: "/cpu/"})
	if ids := itemIDs(got); !reflect.DeepEqual(ids, []string{"1005"}) {
		t.Errorf("items = %v, want [1005]", ids)
	}
	if got[0].HostName != "web3" {
		t.Errorf("host = %q, want web3", got[0].HostName)
	}
}

func TestResolve_ApplicationLiteral(t *testing.T) {
	t.Parallel()
	inv := testInventory(t)

	// Both applications named CPU are selected.
	got := resolve(t, inv, model.Target{Group: "Servers", Host: "/web/", Application: "CPU", Item: "/.*/"})
	want := []string{"1000", "1001", "1003"}
	if ids := itemIDs(got); !reflect.DeepEqual(ids, want) {
		t.Errorf("items = %v, want %v", ids, want)
	}
}

func TestResolve_ApplicationLiteralNoMatch(t *testing.T) {
	t.Parallel()
	inv := testInventory(t)

	got := resolve(t, inv, model.Target{Group: "Servers", Host: "/web/", Application: "Disk", Item: "/.*/"})
	if len(got) != 0 {
		t.Errorf("items = %v, want empty", itemIDs(got))
	}
}

func TestResolve_ApplicationPattern(t *testing.T) {
	t.Parallel()
	inv := testInventory(t)

	got := resolve(t, inv, model.Target{Group: "Servers", Host: "/web/", Application: "/^mem/i", Item: "/.*/"})
	want := []string{"1002", "1004"}
	if ids := itemIDs(got); !reflect.DeepEqual(ids, want) {
		t.Errorf("items = %v, want %v", ids, want)
	}

	none := resolve(t, inv, model.Target{Group: "Servers", Host: "/web/", Application: "/^Disk/", Item: "/.*/"})
	if len(none) != 0 {
		t.Errorf("non-matching app pattern items = %v, want empty", itemIDs(none))
	}
}

func TestResolve_EmptyApplicationSkipsNarrowing(t *testing.T) {
	t.Parallel()
	inv := testInventory(t)

	got := resolve(t, inv, model.Target{Group: "Servers", Host: "/web/", Application: "", Item: "/.*/"})
	want := []string{"1000", "1001", "1002", "1003", "1004"}
	if ids := itemIDs(got); !reflect.DeepEqual(ids, want) {
		t.Errorf("items = %v, want %v", ids, want)
	}
}

func TestResolve_ItemLiteralIgnoresApplication(t *testing.T) {
	t.Parallel()
	inv := testInventory(t)

	got := resolve(t, inv, model.Target{Group: "Servers", Host: "/web/", Application: "CPU", Item: "free memory"})
	want := []string{"1002", "1004"}
	if ids := itemIDs(got); !reflect.DeepEqual(ids, want) {
		t.Errorf("items = %v, want %v", ids, want)
	}
}

func TestResolve_ItemLiteralNoMatch(t *testing.T) {
	t.Parallel()
	inv := testInventory(t)

	got := resolve(t, inv, model.Target{Group: "Servers", Host: "/web/", Item: "disk usage"})
	if len(got) != 0 {
		t.Errorf("items = %v, want empty", itemIDs(got))
	}
}

func TestResolve_SkipsItemsOfUnknownHosts(t *testing.T) {
	t.Parallel()
	inv := testInventory(t)

	got := resolve(t, inv, model.Target{Group: "/.*/", Host: "/.*/", Item: "/orphan/"})
	if len(got) != 0 {
		t.Errorf("items = %v, want empty", itemIDs(got))
	}
}

func TestResolveTarget_InvalidPattern(t *testing.T) {
	t.Parallel()
	inv := testInventory(t)

	for _, target := range []model.Target{
		{Group: "/(/", Host: "/web/", Item: "/cpu/"},
		{Group: "Servers", Host: "/[/", Item: "/cpu/"},
		{Group: "Servers", Host: "/web/", Application: "/(?P</", Item: "/cpu/"},
		{Group: "Servers", Host: "/web/", Item: "/a(/"},
	} {
		got, err := ResolveTarget(target, inv)
		if !errors.Is(err, filter.ErrInvalidFilterSyntax) {
			t.Errorf("ResolveTarget(%+v) error = %v, want ErrInvalidFilterSyntax", target, err)
		}
		if got != nil {
			t.Errorf("ResolveTarget(%+v) returned partial result %v", target, itemIDs(got))
		}
	}
}

func TestResolve_Idempotent(t *testing.T) {
	t.Parallel()
	inv := testInventory(t)
	before := inv.Document()

	target := model.Target{Group: "/.*/", Host: "/.*/", Application: "", Item: "/cpu/"}
	first := resolve(t, inv, target)
	second := resolve(t, inv, target)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("second resolve differs:\n%v\n%v", first, second)
	}
	if !reflect.DeepEqual(before, inv.Document()) {
		t.Error("resolve mutated the inventory snapshot")
	}
}

// TestResolve_MatchesDirectIntersection checks pattern resolution against a
// brute-force evaluation of the same filters.
func TestResolve_MatchesDirectIntersection(t *testing.T) {
	t.Parallel()
	inv := testInventory(t)

	targets := []model.Target{
		{Group: "/.*/", Host: "/.*/", Application: "", Item: "/.*/"},
		{Group: "/Serv/", Host: "/2$/", Application: "/CPU/", Item: "/load/"},
		{Group: "/Stag/", Host: "/web/", Application: "", Item: "/cpu/"},
		{Group: "/a/", Host: "/[0-9]/", Application: "/Mem|CPU/", Item: "/e/"},
		{Group: "/DB/i", Host: "/db/", Application: "", Item: "/cpu/"},
	}

	for _, target := range targets {
		f, err := ParseTarget(target)
		if err != nil {
			t.Fatalf("ParseTarget(%+v): %v", target, err)
		}

		groups := map[string]struct{}{}
		for _, g := range inv.Groups() {
			if f.Group.Match(g.Name) {
				groups[g.ID] = struct{}{}
			}
		}
		hosts := map[string]struct{}{}
		for _, h := range inv.Hosts() {
			if intersects(h.Groups, groups) && f.Host.Match(h.Name) {
				hosts[h.ID] = struct{}{}
			}
		}
		apps := map[string]struct{}{}
		for _, a := range inv.Applications() {
			if f.Application.Match(a.Name) {
				apps[a.ID] = struct{}{}
			}
		}
		var want []string
		for _, it := range inv.Items() {
			if _, ok := hosts[it.HostID]; !ok {
				continue
			}
			if !f.Application.IsEmpty() && !intersects(it.Applications, apps) {
				continue
			}
			if f.Item.Match(it.Name) {
				want = append(want, it.ID)
			}
		}

		got := itemIDs(Resolve(f, inv))
		sort.Strings(got)
		sort.Strings(want)
		if len(got) == 0 && len(want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Resolve(%+v) = %v, want %v", target, got, want)
		}
	}
}
