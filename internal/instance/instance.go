// Package instance implements the multi-instance namespace: named
// partitions of one physical repository's object space, plus the
// managed-object id allocator used by higher layers that need an
// object not addressed by a caller-chosen key. See spec.md §4.11 and
// §3 "Instance".
package instance

import (
	"fmt"

	"github.com/google/uuid"

	"objectrepo/internal/header"
)

// ErrNotFound is returned when a named instance, key, or managed id is
// absent.
var ErrNotFound = fmt.Errorf("instance: not found")

// Manager operates on a Header's instance map. It holds no state of its
// own; every method reads and mutates the Header passed to New,
// matching the transaction manager's ownership of the single in-memory
// header (spec.md §4.8).
type Manager struct {
	hdr *header.Header
}

// New returns a Manager over hdr.
func New(hdr *header.Header) *Manager {
	return &Manager{hdr: hdr}
}

// Create adds a new, empty instance and returns its id. Per spec.md
// §3, instance ids are 128-bit; a fresh random one is generated here.
func (m *Manager) Create() header.InstanceID {
	id := header.InstanceID(uuid.New())
	m.hdr.Instances[id] = header.NewInstance()
	return id
}

// Remove deletes an instance and everything in it. It does not affect
// any other instance (spec.md §8 invariant 10: instance isolation).
func (m *Manager) Remove(id header.InstanceID) {
	delete(m.hdr.Instances, id)
}

// List returns every instance id currently present, including the
// default instance.
func (m *Manager) List() []header.InstanceID {
	ids := make([]header.InstanceID, 0, len(m.hdr.Instances))
	for id := range m.hdr.Instances {
		ids = append(ids, id)
	}
	return ids
}

// Exists reports whether id names a live instance.
func (m *Manager) Exists(id header.InstanceID) bool {
	_, ok := m.hdr.Instances[id]
	return ok
}

// instanceOf returns the named instance, or an error if it does not
// exist. Every other method on this type resolves the instance through
// this helper so a removed or never-created instance id fails
// uniformly.
func (m *Manager) instanceOf(id header.InstanceID) (header.Instance, error) {
	inst, ok := m.hdr.Instances[id]
	if !ok {
		return header.Instance{}, fmt.Errorf("instance: %w: instance %s", ErrNotFound, uuid.UUID(id))
	}
	return inst, nil
}

// Get returns the object stored under key in instance id.
func (m *Manager) Get(id header.InstanceID, key string) (header.ObjectHandle, error) {
	inst, err := m.instanceOf(id)
	if err != nil {
		return header.ObjectHandle{}, err
	}
	obj, ok := inst.Objects[key]
	if !ok {
		return header.ObjectHandle{}, fmt.Errorf("instance: %w: key %q", ErrNotFound, key)
	}
	return obj, nil
}

// Put stores handle under key in instance id, replacing any previous
// object at that key. It does not itself reclaim the replaced handle's
// chunks: chunk-index reachability is recomputed from scratch over all
// instances immediately before every commit (txn.pruneChunkIndex), so
// a chunk orphaned by this overwrite is pruned then rather than tracked
// incrementally here.
func (m *Manager) Put(id header.InstanceID, key string, handle header.ObjectHandle) error {
	inst, err := m.instanceOf(id)
	if err != nil {
		return err
	}
	inst.Objects[key] = handle
	return nil
}

// RemoveObject deletes the object stored under key in instance id. It is not
// an error to remove an absent key. Like Put, it leaves reclaiming the
// removed handle's chunks to the transaction manager's commit-time
// reachability scan rather than touching the chunk index directly.
func (m *Manager) RemoveObject(id header.InstanceID, key string) error {
	inst, err := m.instanceOf(id)
	if err != nil {
		return err
	}
	delete(inst.Objects, key)
	return nil
}

// Keys returns every user key currently present in instance id.
func (m *Manager) Keys(id header.InstanceID) ([]string, error) {
	inst, err := m.instanceOf(id)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(inst.Objects))
	for k := range inst.Objects {
		keys = append(keys, k)
	}
	return keys, nil
}

// Copy duplicates the object stored under srcKey to dstKey within the
// same instance. Because objects are content-addressed chunk lists,
// this is copy-on-reference: no chunk bytes are read or rewritten, only
// the ObjectHandle's chunk list is duplicated. The copy becomes
// independent of future writes to the source the next time either is
// modified (object view writes never mutate a chunk in place).
func (m *Manager) Copy(id header.InstanceID, srcKey, dstKey string) error {
	inst, err := m.instanceOf(id)
	if err != nil {
		return err
	}
	src, ok := inst.Objects[srcKey]
	if !ok {
		return fmt.Errorf("instance: %w: key %q", ErrNotFound, srcKey)
	}
	inst.Objects[dstKey] = header.ObjectHandle{
		Chunks: append([]header.ChunkRef(nil), src.Chunks...),
		Size:   src.Size,
	}
	return nil
}

// NewManagedID allocates a fresh id in instance id's managed-object
// space, independent of the user-key namespace, and reserves it by
// storing an empty object at that id.
func (m *Manager) NewManagedID(id header.InstanceID) (uuid.UUID, error) {
	inst, err := m.instanceOf(id)
	if err != nil {
		return uuid.Nil, err
	}
	mid := uuid.New()
	for {
		if _, exists := inst.Managed[mid]; !exists {
			break
		}
		mid = uuid.New()
	}
	inst.Managed[mid] = header.ObjectHandle{}
	return mid, nil
}

// GetManaged returns the object stored under a managed id.
func (m *Manager) GetManaged(id header.InstanceID, mid uuid.UUID) (header.ObjectHandle, error) {
	inst, err := m.instanceOf(id)
	if err != nil {
		return header.ObjectHandle{}, err
	}
	obj, ok := inst.Managed[mid]
	if !ok {
		return header.ObjectHandle{}, fmt.Errorf("instance: %w: managed id %s", ErrNotFound, mid)
	}
	return obj, nil
}

// PutManaged stores handle under a managed id, which must have been
// returned by NewManagedID on the same instance.
func (m *Manager) PutManaged(id header.InstanceID, mid uuid.UUID, handle header.ObjectHandle) error {
	inst, err := m.instanceOf(id)
	if err != nil {
		return err
	}
	if _, ok := inst.Managed[mid]; !ok {
		return fmt.Errorf("instance: %w: managed id %s", ErrNotFound, mid)
	}
	inst.Managed[mid] = handle
	return nil
}

// RemoveManaged releases a managed id and its object.
func (m *Manager) RemoveManaged(id header.InstanceID, mid uuid.UUID) error {
	inst, err := m.instanceOf(id)
	if err != nil {
		return err
	}
	delete(inst.Managed, mid)
	return nil
}
