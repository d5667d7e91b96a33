// Package resolver turns a group/host/application/item filter into the
// concrete set of items it selects from an inventory snapshot.
package resolver

import (
	"github.com/tinytelemetry/zquery/internal/filter"
	"github.com/tinytelemetry/zquery/internal/model"
)

// Filter is a parsed model.Target.
type Filter struct {
	Group       filter.Expr
	Host        filter.Expr
	Application filter.Expr
	Item        filter.Expr
}

// ParseTarget classifies and compiles all four filters of t. It fails on the
// first malformed pattern with an error wrapping filter.ErrInvalidFilterSyntax.
func ParseTarget(t model.Target) (Filter, error) {
	var f Filter
	var err error
	if f.Group, err = filter.Parse(t.Group); err != nil {
		return Filter{}, err
	}
	if f.Host, err = filter.Parse(t.Host); err != nil {
		return Filter{}, err
	}
	if f.Application, err = filter.Parse(t.Application); err != nil {
		return Filter{}, err
	}
	if f.Item, err = filter.Parse(t.Item); err != nil {
		return Filter{}, err
	}
	return f, nil
}

// ResolveTarget parses t and resolves it against inv.
func ResolveTarget(t model.Target, inv model.Inventory) ([]model.ResolvedItem, error) {
	f, err := ParseTarget(t)
	if err != nil {
		return nil, err
	}
	return Resolve(f, inv), nil
}

// Resolve returns the items selected by f, each paired with its host name,
// in inventory order. A literal filter that matches nothing at any level
// yields an empty result. inv is only read.
func Resolve(f Filter, inv model.Inventory) []model.ResolvedItem {
	hosts, ok := resolveHosts(f, inv)
	if !ok {
		return []model.ResolvedItem{}
	}

	hostNames := make(map[string]string, len(hosts))
	for _, h := range hosts {
		hostNames[h.ID] = h.Name
	}

	items := make([]model.Item, 0)
	for _, it := range inv.Items() {
		if _, ok := hostNames[it.HostID]; ok {
			items = append(items, it)
		}
	}

	items, ok = narrowItems(f, inv, items)
	if !ok {
		return []model.ResolvedItem{}
	}

	out := make([]model.ResolvedItem, 0, len(items))
	for _, it := range items {
		name, ok := hostNames[it.HostID]
		if !ok {
			continue
		}
		out = append(out, model.ResolvedItem{Item: it, HostName: name})
	}
	return out
}

// resolveHosts runs the group and host stages. A literal host filter is
// looked up directly and bypasses group filtering.
func resolveHosts(f Filter, inv model.Inventory) ([]model.Host, bool) {
	if !f.Host.IsPattern() {
		for _, h := range inv.Hosts() {
			if h.Name == f.Host.Value() {
				return []model.Host{h}, true
			}
		}
		return nil, false
	}

	groupIDs := make(map[string]struct{})
	if f.Group.IsPattern() {
		for _, g := range inv.Groups() {
			if f.Group.Match(g.Name) {
				groupIDs[g.ID] = struct{}{}
			}
		}
	} else {
		found := false
		for _, g := range inv.Groups() {
			if g.Name == f.Group.Value() {
				groupIDs[g.ID] = struct{}{}
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
	}

	var hosts []model.Host
	for _, h := range inv.Hosts() {
		if intersects(h.Groups, groupIDs) && f.Host.Match(h.Name) {
			hosts = append(hosts, h)
		}
	}
	return hosts, true
}

// narrowItems applies the application and item stages.
func narrowItems(f Filter, inv model.Inventory, items []model.Item) ([]model.Item, bool) {
	if !f.Item.IsPattern() {
		var out []model.Item
		for _, it := range items {
			if it.Name == f.Item.Value() {
				out = append(out, it)
			}
		}
		return out, len(out) > 0
	}

	if !f.Application.IsEmpty() {
		appIDs := make(map[string]struct{})
		for _, a := range inv.Applications() {
			if f.Application.Match(a.Name) {
				appIDs[a.ID] = struct{}{}
			}
		}
		if !f.Application.IsPattern() && len(appIDs) == 0 {
			return nil, false
		}

		filtered := make([]model.Item, 0, len(items))
		for _, it := range items {
			if intersects(it.Applications, appIDs) {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}

	out := make([]model.Item, 0, len(items))
	for _, it := range items {
		if f.Item.Match(it.Name) {
			out = append(out, it)
		}
	}
	return out, true
}

func intersects(ids []string, set map[string]struct{}) bool {
	for _, id := range ids {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}
