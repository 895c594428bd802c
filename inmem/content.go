package inmem

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/ejacobg/link-validator/content"
	"os"
	"sort"
	"sync"
)

// ContentSource is an in-memory content.Item provider.
type ContentSource struct {
	mu    sync.RWMutex
	items map[string]*content.Item
}

// NewContentSource creates a content source holding copies of items.
func NewContentSource(items ...*content.Item) *ContentSource {
	cs := &ContentSource{items: make(map[string]*content.Item)}
	for _, item := range items {
		cs.Put(item)
	}
	return cs
}

// LoadContentSource reads a JSON array of content items from path.
func LoadContentSource(path string) (*ContentSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load content: %w", err)
	}
	defer func() { _ = f.Close() }()

	var items []*content.Item
	if err = json.NewDecoder(f).Decode(&items); err != nil {
		return nil, fmt.Errorf("load content: %w", err)
	}
	return NewContentSource(items...), nil
}

// Put creates or replaces an item.
func (cs *ContentSource) Put(item *content.Item) {
	iCopy := new(content.Item)
	*iCopy = *item

	cs.mu.Lock()
	cs.items[iCopy.ID] = iCopy
	cs.mu.Unlock()
}

// Published returns every published item whose ID is not in exclude,
// ordered by ID.
func (cs *ContentSource) Published(_ context.Context, exclude []string) ([]*content.Item, error) {
	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}

	cs.mu.RLock()
	var list []*content.Item
	for id, item := range cs.items {
		if _, excluded := skip[id]; excluded || item.Status != content.StatusPublished {
			continue
		}
		iCopy := new(content.Item)
		*iCopy = *item
		list = append(list, iCopy)
	}
	cs.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

// Get looks up a copy of an item by its ID.
func (cs *ContentSource) Get(_ context.Context, id string) (*content.Item, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	item := cs.items[id]
	if item == nil {
		return nil, fmt.Errorf("get content: %w", content.ErrNotFound)
	}
	iCopy := new(content.Item)
	*iCopy = *item
	return iCopy, nil
}

// IsDraft reports whether the item with the given ID is a draft.
func (cs *ContentSource) IsDraft(ctx context.Context, id string) (bool, error) {
	item, err := cs.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return content.IsDraft(item.Status), nil
}
