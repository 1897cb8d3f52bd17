package main

// ownedResource is a named release hook.
type ownedResource struct {
	name    string
	release func()
}

// ownedResources releases everything registered with it in reverse order. The
// list is cleared as it runs, so releasing twice is a no-op.
type ownedResources struct {
	items []ownedResource
}

// add registers a release hook.
func (o *ownedResources) add(name string, release func()) {
	o.items = append(o.items, ownedResource{name: name, release: release})
}

// releaseAll runs the hooks newest first and returns the released names.
func (o *ownedResources) releaseAll() []string {
	names := make([]string, 0, len(o.items))
	for len(o.items) > 0 {
		last := o.items[len(o.items)-1]
		o.items = o.items[:len(o.items)-1]
		last.release()
		names = append(names, last.name)
	}
	return names
}

func (o *ownedResources) len() int { return len(o.items) }
