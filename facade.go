package objectrepo

import (
	"bytes"
	"errors"
	"io"

	"github.com/google/uuid"

	"objectrepo/internal/header"
	"objectrepo/internal/instance"
	"objectrepo/internal/object"
)

// Put stores data under key in the default instance, replacing any
// existing object at that key. The change is staged only; call Commit
// to make it durable.
func (r *Repository) Put(key string, data []byte) error {
	return r.PutIn(header.DefaultInstance, key, data)
}

// PutIn is Put against a specific instance.
func (r *Repository) PutIn(inst header.InstanceID, key string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	view := object.New(r.chunks, r.chunking, header.ObjectHandle{})
	if _, err := view.Write(data); err != nil {
		return wrapData(err)
	}
	handle, err := view.Handle()
	if err != nil {
		return wrapData(err)
	}
	if err := r.instances.Put(inst, key, handle); err != nil {
		return translateInstanceErr(err)
	}
	return nil
}

// Get returns the full contents of the object stored under key in the
// default instance.
func (r *Repository) Get(key string) ([]byte, error) {
	return r.GetFrom(header.DefaultInstance, key)
}

// GetFrom is Get against a specific instance.
func (r *Repository) GetFrom(inst header.InstanceID, key string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	handle, err := r.instances.Get(inst, key)
	if err != nil {
		return nil, translateInstanceErr(err)
	}
	view := object.New(r.chunks, r.chunking, handle)
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, view); err != nil {
		return nil, wrapData(err)
	}
	return buf.Bytes(), nil
}

// Delete removes the object stored under key in the default instance.
// It is not an error to delete an absent key.
func (r *Repository) Delete(key string) error {
	return r.DeleteFrom(header.DefaultInstance, key)
}

// DeleteFrom is Delete against a specific instance.
func (r *Repository) DeleteFrom(inst header.InstanceID, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.instances.RemoveObject(inst, key); err != nil {
		return translateInstanceErr(err)
	}
	return nil
}

// Copy duplicates the object at srcKey to dstKey within the default
// instance, without reading or rewriting any chunk bytes (spec.md §4.11
// copy-on-reference).
func (r *Repository) Copy(srcKey, dstKey string) error {
	return r.CopyIn(header.DefaultInstance, srcKey, dstKey)
}

// CopyIn is Copy against a specific instance.
func (r *Repository) CopyIn(inst header.InstanceID, srcKey, dstKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.instances.Copy(inst, srcKey, dstKey); err != nil {
		return translateInstanceErr(err)
	}
	return nil
}

// Keys lists every key present in the default instance.
func (r *Repository) Keys() ([]string, error) {
	return r.KeysIn(header.DefaultInstance)
}

// KeysIn is Keys against a specific instance.
func (r *Repository) KeysIn(inst header.InstanceID) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys, err := r.instances.Keys(inst)
	if err != nil {
		return nil, translateInstanceErr(err)
	}
	return keys, nil
}

// OpenObject opens a streaming read/write/seek handle onto the object
// stored under key in the default instance. If the key is absent, a new
// empty object is created and will appear under that key once the
// Object is flushed (via Close or the next Commit).
func (r *Repository) OpenObject(key string) (*Object, error) {
	return r.OpenObjectIn(header.DefaultInstance, key)
}

// OpenObjectIn is OpenObject against a specific instance.
func (r *Repository) OpenObjectIn(inst header.InstanceID, key string) (*Object, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	handle, err := r.instances.Get(inst, key)
	if err != nil && !isInstanceNotFound(err) {
		return nil, translateInstanceErr(err)
	}

	obj := newObject(r, inst, handle)
	obj.key = key
	obj.isKeyed = true
	r.open = append(r.open, obj)
	return obj, nil
}

// NewManagedID allocates a fresh object id in the default instance's
// managed-object space, for callers that want an id the repository
// hands out rather than a caller-chosen key (spec.md §4.11).
func (r *Repository) NewManagedID() (uuid.UUID, error) {
	return r.NewManagedIDIn(header.DefaultInstance)
}

// NewManagedIDIn is NewManagedID against a specific instance.
func (r *Repository) NewManagedIDIn(inst header.InstanceID) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, err := r.instances.NewManagedID(inst)
	if err != nil {
		return uuid.Nil, translateInstanceErr(err)
	}
	return id, nil
}

// OpenManagedObject opens a streaming handle onto a managed-id object
// previously returned by NewManagedID, in the default instance.
func (r *Repository) OpenManagedObject(id uuid.UUID) (*Object, error) {
	return r.OpenManagedObjectIn(header.DefaultInstance, id)
}

// OpenManagedObjectIn is OpenManagedObject against a specific instance.
func (r *Repository) OpenManagedObjectIn(inst header.InstanceID, id uuid.UUID) (*Object, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	handle, err := r.instances.GetManaged(inst, id)
	if err != nil {
		return nil, translateInstanceErr(err)
	}

	obj := newObject(r, inst, handle)
	obj.managed = id
	obj.isKeyed = false
	r.open = append(r.open, obj)
	return obj, nil
}

// RemoveManaged releases a managed id and its object in the default
// instance.
func (r *Repository) RemoveManaged(id uuid.UUID) error {
	return r.RemoveManagedIn(header.DefaultInstance, id)
}

// RemoveManagedIn is RemoveManaged against a specific instance.
func (r *Repository) RemoveManagedIn(inst header.InstanceID, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.instances.RemoveManaged(inst, id); err != nil {
		return translateInstanceErr(err)
	}
	return nil
}

// CreateInstance allocates a new, empty named partition of the object
// space and returns its id.
func (r *Repository) CreateInstance() header.InstanceID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.instances.Create()
}

// RemoveInstance deletes an instance and everything stored in it. It
// does not affect any other instance (spec.md §8 invariant: instance
// isolation).
func (r *Repository) RemoveInstance(id header.InstanceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances.Remove(id)
}

// ListInstances returns every instance id currently present, including
// the default instance.
func (r *Repository) ListInstances() []header.InstanceID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.instances.List()
}

func (r *Repository) untrack(o *Object) {
	for i, cur := range r.open {
		if cur == o {
			r.open = append(r.open[:i], r.open[i+1:]...)
			return
		}
	}
}

func isInstanceNotFound(err error) bool {
	return err != nil && errors.Is(err, instance.ErrNotFound)
}

func translateInstanceErr(err error) error {
	if err == nil {
		return nil
	}
	if isInstanceNotFound(err) {
		return &RepoError{Kind: ErrNotFound, Cause: err}
	}
	return wrapIO(err)
}
