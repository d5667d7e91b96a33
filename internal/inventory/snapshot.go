package inventory

import (
	"fmt"

	"github.com/tinytelemetry/zquery/internal/model"
)

// Snapshot is an immutable, indexed model.Inventory. It copies its inputs on
// construction and hands out copies, so it is safe to share between
// concurrent resolutions.
type Snapshot struct {
	groups []model.Group
	hosts  []model.Host
	apps   []model.Application
	items  []model.Item

	hostByID map[string]int
	itemByID map[string]int
}

var _ model.Inventory = (*Snapshot)(nil)

// Document is the serialized form of a snapshot.
type Document struct {
	Groups       []model.Group       `json:"groups" yaml:"groups"`
	Hosts        []model.Host        `json:"hosts" yaml:"hosts"`
	Applications []model.Application `json:"applications" yaml:"applications"`
	Items        []model.Item        `json:"items" yaml:"items"`
}

// New builds a snapshot. Identifiers must be unique within each entity kind.
func New(groups []model.Group, hosts []model.Host, apps []model.Application, items []model.Item) (*Snapshot, error) {
	s := &Snapshot{
		groups:   make([]model.Group, len(groups)),
		hosts:    make([]model.Host, 0, len(hosts)),
		apps:     make([]model.Application, 0, len(apps)),
		items:    make([]model.Item, 0, len(items)),
		hostByID: make(map[string]int, len(hosts)),
		itemByID: make(map[string]int, len(items)),
	}

	copy(s.groups, groups)
	if err := checkUnique("group", len(groups), func(i int) string { return groups[i].ID }); err != nil {
		return nil, err
	}
	if err := checkUnique("application", len(apps), func(i int) string { return apps[i].ID }); err != nil {
		return nil, err
	}

	for _, h := range hosts {
		if _, dup := s.hostByID[h.ID]; dup {
			return nil, fmt.Errorf("inventory: duplicate host id %q", h.ID)
		}
		h.Groups = cloneIDs(h.Groups)
		s.hostByID[h.ID] = len(s.hosts)
		s.hosts = append(s.hosts, h)
	}
	for _, a := range apps {
		a.Items = cloneIDs(a.Items)
		s.apps = append(s.apps, a)
	}
	for _, it := range items {
		if _, dup := s.itemByID[it.ID]; dup {
			return nil, fmt.Errorf("inventory: duplicate item id %q", it.ID)
		}
		it.Applications = cloneIDs(it.Applications)
		s.itemByID[it.ID] = len(s.items)
		s.items = append(s.items, it)
	}
	return s, nil
}

// FromDocument builds a snapshot from its serialized form.
func FromDocument(doc Document) (*Snapshot, error) {
	return New(doc.Groups, doc.Hosts, doc.Applications, doc.Items)
}

// Document returns the serialized form of the snapshot.
func (s *Snapshot) Document() Document {
	return Document{
		Groups:       s.Groups(),
		Hosts:        s.Hosts(),
		Applications: s.Applications(),
		Items:        s.Items(),
	}
}

func (s *Snapshot) Groups() []model.Group {
	out := make([]model.Group, len(s.groups))
	copy(out, s.groups)
	return out
}

func (s *Snapshot) Hosts() []model.Host {
	out := make([]model.Host, len(s.hosts))
	for i, h := range s.hosts {
		h.Groups = cloneIDs(h.Groups)
		out[i] = h
	}
	return out
}

func (s *Snapshot) Applications() []model.Application {
	out := make([]model.Application, len(s.apps))
	for i, a := range s.apps {
		a.Items = cloneIDs(a.Items)
		out[i] = a
	}
	return out
}

func (s *Snapshot) Items() []model.Item {
	out := make([]model.Item, len(s.items))
	for i, it := range s.items {
		it.Applications = cloneIDs(it.Applications)
		out[i] = it
	}
	return out
}

// Item looks up an item by ID.
func (s *Snapshot) Item(id string) (model.Item, bool) {
	idx, ok := s.itemByID[id]
	if !ok {
		return model.Item{}, false
	}
	it := s.items[idx]
	it.Applications = cloneIDs(it.Applications)
	return it, true
}

// Host looks up a host by ID.
func (s *Snapshot) Host(id string) (model.Host, bool) {
	idx, ok := s.hostByID[id]
	if !ok {
		return model.Host{}, false
	}
	h := s.hosts[idx]
	h.Groups = cloneIDs(h.Groups)
	return h, true
}

// Len returns the number of groups, hosts, applications and items.
func (s *Snapshot) Len() (groups, hosts, apps, items int) {
	return len(s.groups), len(s.hosts), len(s.apps), len(s.items)
}

func checkUnique(kind string, n int, id func(int) string) error {
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		key := id(i)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("inventory: duplicate %s id %q", kind, key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

func cloneIDs(ids []string) []string {
	if ids == nil {
		return nil
	}
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}
